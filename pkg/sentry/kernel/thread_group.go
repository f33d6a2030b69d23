package kernel

import (
	"fmt"
	"sync/atomic"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/sentry/mm"
	"github.com/walteh/tgexec/pkg/sync"
)

// ExitStatus is the exit status of a task or thread group.
type ExitStatus struct {
	// Code is the exit code passed to exit or exit_group.
	Code int

	// Signo is the signal that killed the task, or zero if it exited
	// normally.
	Signo linux.Signal
}

// Signaled returns true if the status reflects termination by a signal.
func (es ExitStatus) Signaled() bool {
	return es.Signo != 0
}

// String implements fmt.Stringer.
func (es ExitStatus) String() string {
	if es.Signaled() {
		return fmt.Sprintf("killed by %v", es.Signo)
	}
	return fmt.Sprintf("exited with code %d", es.Code)
}

// ThreadGroup is a process: a set of tasks sharing an address space, signal
// dispositions and a process ID.
type ThreadGroup struct {
	k *Kernel

	// pid is the thread group's ID. It is immutable after creation: the task
	// holding the leader slot always has pid as its thread ID.
	pid ThreadID

	registry Registry

	// mm is the address space. The pointer is immutable; execve resets the
	// address space in place.
	mm *mm.MemoryManager

	// signalHandlers is replaced by execve.
	signalHandlers atomic.Pointer[SignalHandlers]

	// exitSignal is the signal sent to the parent when the group exits.
	exitSignal atomic.Int32

	// parentDeathSignal is the signal this group receives when its parent
	// exits, as set by PR_SET_PDEATHSIG.
	parentDeathSignal atomic.Int32

	// The following fields are protected by registry.mu.

	// executable is the path of the running program.
	executable string

	// exitStatus is the status reported to the parent. It is set by the
	// group exit that begins tearing the group down, or else by the exit of
	// the task holding the leader slot.
	exitStatus    ExitStatus
	exitStatusSet bool

	// dead is true once every task has exited.
	dead bool

	// reaped is true once Reap has removed the group's last thread ID.
	reaped bool

	// exited is closed when dead becomes true.
	exited chan struct{}

	// vforkDone is closed when a vfork child execs or exits. It is nil for
	// other thread groups.
	vforkDone     chan struct{}
	vforkDoneOnce sync.Once
}

func newThreadGroup(k *Kernel, m *mm.MemoryManager, vfork bool) *ThreadGroup {
	tg := &ThreadGroup{
		k:      k,
		mm:     m,
		exited: make(chan struct{}),
	}
	tg.signalHandlers.Store(NewSignalHandlers())
	tg.exitSignal.Store(int32(linux.SIGCHLD))
	if vfork {
		tg.vforkDone = make(chan struct{})
	}
	return tg
}

// ID returns the thread group's process ID.
func (tg *ThreadGroup) ID() ThreadID {
	return tg.pid
}

// Registry returns the thread group's member registry.
func (tg *ThreadGroup) Registry() *Registry {
	return &tg.registry
}

// MemoryManager returns the thread group's address space.
func (tg *ThreadGroup) MemoryManager() *mm.MemoryManager {
	return tg.mm
}

// SignalHandlers returns the thread group's signal dispositions.
func (tg *ThreadGroup) SignalHandlers() *SignalHandlers {
	return tg.signalHandlers.Load()
}

// ExitSignal returns the signal the parent is sent on exit.
func (tg *ThreadGroup) ExitSignal() linux.Signal {
	return linux.Signal(tg.exitSignal.Load())
}

// SetExitSignal sets the signal the parent is sent on exit.
func (tg *ThreadGroup) SetExitSignal(sig linux.Signal) {
	tg.exitSignal.Store(int32(sig))
}

// ParentDeathSignal returns the signal sent to the group when its parent
// exits, or zero.
func (tg *ThreadGroup) ParentDeathSignal() linux.Signal {
	return linux.Signal(tg.parentDeathSignal.Load())
}

// SetParentDeathSignal implements PR_SET_PDEATHSIG.
func (tg *ThreadGroup) SetParentDeathSignal(sig linux.Signal) error {
	if sig != 0 && !sig.IsValid() {
		return linuxerr.EINVAL
	}
	tg.parentDeathSignal.Store(int32(sig))
	return nil
}

// Executable returns the path of the running program.
func (tg *ThreadGroup) Executable() string {
	tg.registry.mu.Lock()
	defer tg.registry.mu.Unlock()
	return tg.executable
}

// Exited returns a channel that is closed once every task in the group has
// exited.
func (tg *ThreadGroup) Exited() <-chan struct{} {
	return tg.exited
}

// ExitStatus returns the group's exit status. It is meaningful only once
// Exited is closed.
func (tg *ThreadGroup) ExitStatus() ExitStatus {
	tg.registry.mu.Lock()
	defer tg.registry.mu.Unlock()
	return tg.exitStatus
}

// VforkDone returns a channel that is closed when a vfork child execs or
// exits, releasing its parent. It returns nil if the group was not created
// by vfork.
func (tg *ThreadGroup) VforkDone() <-chan struct{} {
	return tg.vforkDone
}

func (tg *ThreadGroup) releaseVforkParent() {
	if tg.vforkDone == nil {
		return
	}
	tg.vforkDoneOnce.Do(func() { close(tg.vforkDone) })
}

// setExitStatusLocked records status unless a status was already recorded.
//
// Preconditions: tg.registry.mu is locked.
func (tg *ThreadGroup) setExitStatusLocked(status ExitStatus) {
	if tg.exitStatusSet {
		return
	}
	tg.exitStatus = status
	tg.exitStatusSet = true
}

// Reap releases a dead thread group's process ID and returns its exit
// status, as wait4(2) does for the parent.
func (tg *ThreadGroup) Reap() (ExitStatus, error) {
	tt := tg.k.tasks
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tg.registry.mu.Lock()
	defer tg.registry.mu.Unlock()
	if !tg.dead {
		return ExitStatus{}, linuxerr.WithMessage(linuxerr.EAGAIN, fmt.Sprintf("process %d is still running", tg.pid))
	}
	if tg.reaped {
		return ExitStatus{}, linuxerr.WithMessage(linuxerr.ESRCH, fmt.Sprintf("process %d was already reaped", tg.pid))
	}
	tg.registry.reapLocked()
	tt.removeLocked(tg.pid)
	tg.reaped = true
	return tg.exitStatus, nil
}
