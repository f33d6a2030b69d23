package kernel

import (
	"fmt"
	"sync/atomic"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/hostarch"
	"github.com/walteh/tgexec/pkg/log"
	"github.com/walteh/tgexec/pkg/sentry/arch"
	"github.com/walteh/tgexec/pkg/sentry/kernel/auth"
	"github.com/walteh/tgexec/pkg/sentry/mm"
	"github.com/walteh/tgexec/pkg/sync"
)

// Task represents a thread of execution in the untrusted application.
//
// Fields without a lock annotation are owned by the task's goroutine: only
// code running on behalf of the task itself may touch them.
type Task struct {
	k  *Kernel
	tg *ThreadGroup

	// tid is the task's thread ID. It changes only when execve promotes the
	// task to thread group leader, under both the TaskTable and Registry
	// mutexes, so that lookups never observe a transient state.
	tid atomic.Int32

	// creds is the task's credentials. Credentials are copy-on-write; a new
	// set is stored rather than modifying the current one.
	creds atomic.Pointer[auth.Credentials]

	arch    *arch.Context
	fdTable *FDTable
	cwd     string

	// robustList is the address of the robust futex list head, set by
	// set_robust_list(2).
	robustList hostarch.Addr

	// clearChildTID is the address cleared and woken on exit, set by
	// set_tid_address(2) or CLONE_CHILD_CLEARTID.
	clearChildTID hostarch.Addr

	// signalStack is the alternate signal stack, set by sigaltstack(2).
	signalStack linux.SignalStack

	mu sync.Mutex

	// name is the thread name, as in /proc/[tid]/comm.
	//
	// name is protected by mu.
	name string

	// pendingSet and pending hold signals sent to the task and not yet
	// handled.
	//
	// pendingSet and pending are protected by mu.
	pendingSet linux.SignalSet
	pending    []linux.SignalInfo

	// killed is closed when SIGKILL becomes pending.
	killed     chan struct{}
	killedOnce sync.Once

	// exited is set once the task has released its resources and left its
	// thread group's registry.
	exited atomic.Bool

	// exitStatus is the status passed to the task's exit. It is set before
	// exited.
	exitStatus ExitStatus
}

func newTask(tg *ThreadGroup, creds *auth.Credentials, fdTable *FDTable, cwd string, ac *arch.Context) *Task {
	t := &Task{
		k:       tg.k,
		tg:      tg,
		arch:    ac,
		fdTable: fdTable,
		cwd:     cwd,
		killed:  make(chan struct{}),
	}
	t.signalStack = linux.DefaultSignalStack
	t.creds.Store(creds)
	return t
}

// Kernel returns the kernel the task runs in.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// ThreadGroup returns the task's thread group.
func (t *Task) ThreadGroup() *ThreadGroup {
	return t.tg
}

// ThreadID returns the task's thread ID.
func (t *Task) ThreadID() ThreadID {
	return ThreadID(t.tid.Load())
}

// IsLeader returns true if the task occupies its thread group's leader slot.
func (t *Task) IsLeader() bool {
	return t.tg.registry.Leader() == t
}

// Credentials returns the task's credentials. The returned value must not
// be modified.
func (t *Task) Credentials() *auth.Credentials {
	return t.creds.Load()
}

// SetCredentials installs creds. creds must not be modified afterward.
func (t *Task) SetCredentials(creds *auth.Credentials) {
	t.creds.Store(creds)
}

// Arch returns the task's CPU context.
func (t *Task) Arch() *arch.Context {
	return t.arch
}

// MemoryManager returns the task's address space.
func (t *Task) MemoryManager() *mm.MemoryManager {
	return t.tg.mm
}

// FDTable returns the task's file descriptor table.
func (t *Task) FDTable() *FDTable {
	return t.fdTable
}

// Cwd returns the task's working directory.
func (t *Task) Cwd() string {
	return t.cwd
}

// RobustList returns the robust futex list head.
func (t *Task) RobustList() hostarch.Addr {
	return t.robustList
}

// SetRobustList implements set_robust_list(2).
func (t *Task) SetRobustList(addr hostarch.Addr) {
	t.robustList = addr
}

// ClearChildTID returns the clear-child-tid address.
func (t *Task) ClearChildTID() hostarch.Addr {
	return t.clearChildTID
}

// SetClearChildTID implements set_tid_address(2).
func (t *Task) SetClearChildTID(addr hostarch.Addr) {
	t.clearChildTID = addr
}

// SignalStack returns the task's alternate signal stack.
func (t *Task) SignalStack() linux.SignalStack {
	return t.signalStack
}

// SetSignalStack implements the setting half of sigaltstack(2).
func (t *Task) SetSignalStack(st linux.SignalStack) {
	t.signalStack = st
}

// Name returns the task's name.
func (t *Task) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// SetName sets the task's name, truncating it as prctl(PR_SET_NAME) does.
func (t *Task) SetName(name string) {
	if len(name) > linux.TASK_COMM_LEN-1 {
		name = name[:linux.TASK_COMM_LEN-1]
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
}

// Exited returns true once the task has exited.
func (t *Task) Exited() bool {
	return t.exited.Load()
}

// Start runs body on a new goroutine on behalf of t. When body returns, a
// pending SIGKILL is handled; otherwise the task exits with status 0 unless
// body already made it exit.
func (t *Task) Start(body func(t *Task)) {
	go t.run(body)
}

func (t *Task) run(body func(t *Task)) {
	t.Debugf("Running")
	body(t)
	if t.Exited() {
		return
	}
	if t.HasPendingKill() {
		t.HandleKill()
		return
	}
	t.Exit(ExitStatus{})
}

// Debugf logs at the debug level, prefixed with the task's IDs.
func (t *Task) Debugf(format string, v ...any) {
	if log.IsLogging(log.Debug) {
		log.Debugf(t.logPrefix()+format, v...)
	}
}

// Infof logs at the info level, prefixed with the task's IDs.
func (t *Task) Infof(format string, v ...any) {
	if log.IsLogging(log.Info) {
		log.Infof(t.logPrefix()+format, v...)
	}
}

// Warningf logs at the warning level, prefixed with the task's IDs.
func (t *Task) Warningf(format string, v ...any) {
	if log.IsLogging(log.Warning) {
		log.Warningf(t.logPrefix()+format, v...)
	}
}

func (t *Task) logPrefix() string {
	return fmt.Sprintf("[% 4d:% 4d] ", t.tg.pid, t.ThreadID())
}
