// Package kernel provides an emulation of the Linux process model: thread
// groups, tasks and the coordination between execve(2) and exit_group(2) in
// a multithreaded process.
//
// Lock order:
//
//	TaskTable.mu
//	  Registry.mu
//	    Task.mu
//	      SignalHandlers.mu
//	      FDTable.mu
package kernel

import (
	"fmt"
	"path"
	"time"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/log"
	"github.com/walteh/tgexec/pkg/sentry/arch"
	"github.com/walteh/tgexec/pkg/sentry/kernel/auth"
	"github.com/walteh/tgexec/pkg/sentry/loader"
	"github.com/walteh/tgexec/pkg/sentry/mm"
	"github.com/walteh/tgexec/pkg/sentry/vfs"
)

// Config holds the tunables of a Kernel.
type Config struct {
	// MaxArgStrings bounds the number of strings in each of argv and envp.
	MaxArgStrings int

	// MaxArgStringLen bounds a single argument or environment string,
	// including its NUL terminator.
	MaxArgStringLen int

	// MaxArgTotal bounds the combined size of argv and envp, including NUL
	// terminators.
	MaxArgTotal int

	// MaxPathLen bounds the executable's path, including its NUL terminator.
	MaxPathLen int

	// MaxInterpreterDepth bounds nested "#!" interpreters.
	MaxInterpreterDepth int

	// BarrierWarnInterval is the minimum interval between warnings logged by
	// an execve that is still waiting for its sibling threads to exit.
	BarrierWarnInterval time.Duration
}

// DefaultConfig returns Linux-like limits.
func DefaultConfig() Config {
	return Config{
		MaxArgStrings:       0x7fffffff / 8,
		MaxArgStringLen:     linux.MAX_ARG_STRLEN,
		MaxArgTotal:         256 * 1024,
		MaxPathLen:          linux.PATH_MAX,
		MaxInterpreterDepth: loader.DefaultMaxInterpreterDepth,
		BarrierWarnInterval: 5 * time.Second,
	}
}

// Kernel owns the thread ID namespace and the filesystem that executables
// are loaded from.
type Kernel struct {
	conf  Config
	fs    *vfs.Filesystem
	tasks *TaskTable

	// nextTID is the next thread ID to allocate. Thread IDs are not reused.
	//
	// nextTID is protected by tasks.mu.
	nextTID ThreadID
}

// New returns a kernel with no tasks. Zero limits in conf take their
// DefaultConfig values, except MaxArgTotal, where zero means unbounded.
func New(conf Config, fs *vfs.Filesystem) *Kernel {
	def := DefaultConfig()
	for _, f := range []struct {
		val *int
		def int
	}{
		{&conf.MaxArgStrings, def.MaxArgStrings},
		{&conf.MaxArgStringLen, def.MaxArgStringLen},
		{&conf.MaxPathLen, def.MaxPathLen},
		{&conf.MaxInterpreterDepth, def.MaxInterpreterDepth},
	} {
		if *f.val == 0 {
			*f.val = f.def
		}
	}
	if conf.BarrierWarnInterval == 0 {
		conf.BarrierWarnInterval = def.BarrierWarnInterval
	}
	return &Kernel{
		conf:    conf,
		fs:      fs,
		tasks:   newTaskTable(),
		nextTID: 1,
	}
}

// Config returns the kernel's configuration.
func (k *Kernel) Config() Config {
	return k.conf
}

// Filesystem returns the filesystem executables are resolved in.
func (k *Kernel) Filesystem() *vfs.Filesystem {
	return k.fs
}

// TaskTable returns the thread ID table.
func (k *Kernel) TaskTable() *TaskTable {
	return k.tasks
}

// allocTIDLocked returns a fresh thread ID.
//
// Preconditions: k.tasks.mu is locked.
func (k *Kernel) allocTIDLocked() ThreadID {
	tid := k.nextTID
	k.nextTID++
	return tid
}

// ProcessArgs holds arguments to Kernel.NewProcess.
type ProcessArgs struct {
	// Filename is the executable to run.
	Filename string

	// Argv and Envv are the argument and environment vectors of the new
	// program.
	Argv []string
	Envv []string

	// Credentials is the initial credentials of the process. If nil, root
	// credentials are used.
	Credentials *auth.Credentials

	// Cwd is the working directory. If empty, "/" is used.
	Cwd string

	// FDTable is the initial file descriptor table. If nil, an empty table
	// is created. NewProcess takes a reference on a non-nil table.
	FDTable *FDTable

	// Vfork marks the process as a vfork child: VforkDone is closed when it
	// execs or exits.
	Vfork bool
}

// NewProcess creates a thread group with one task running Filename. The
// task is registered and visible by its thread ID, but does not run until
// Start is called.
func (k *Kernel) NewProcess(args ProcessArgs) (*Task, error) {
	creds := args.Credentials
	if creds == nil {
		creds = auth.NewRootCredentials()
	}
	cwd := args.Cwd
	if cwd == "" {
		cwd = "/"
	}

	file, err := k.fs.OpenExecutable(creds, cwd, args.Filename, true /* followFinal */)
	if err != nil {
		return nil, err
	}
	defer file.DecRef()
	img, err := loader.Prepare(loader.PrepareArgs{
		File: file,
		Argv: args.Argv,
		Envv: args.Envv,
		OpenInterpreter: func(p string) (*vfs.FileDescription, error) {
			return k.fs.OpenExecutable(creds, cwd, p, true /* followFinal */)
		},
		MaxInterpreterDepth: k.conf.MaxInterpreterDepth,
	})
	if err != nil {
		return nil, err
	}
	defer img.Release()

	m := mm.NewMemoryManager()
	info, err := img.Load(m)
	if err != nil {
		return nil, err
	}

	fdTable := args.FDTable
	if fdTable == nil {
		fdTable = NewFDTable()
	} else {
		fdTable.IncRef()
	}

	tg := newThreadGroup(k, m, args.Vfork)
	tg.executable = file.Path()
	t := newTask(tg, creds, fdTable, cwd, arch.New())
	t.arch.ResetForExec(info.Entry, info.StackTop)
	t.name = taskName(file.Path())

	k.tasks.mu.Lock()
	tid := k.allocTIDLocked()
	tg.pid = tid
	t.tid.Store(int32(tid))
	tg.registry.mu.Lock()
	if err := tg.registry.registerLocked(t); err != nil {
		panic(fmt.Sprintf("registering the first task of a new thread group: %v", err))
	}
	tg.registry.mu.Unlock()
	k.tasks.insertLocked(tid, t)
	k.tasks.mu.Unlock()

	t.Debugf("Created process running %q", file.Path())
	return t, nil
}

// Lookup returns the task with the given thread ID, or nil. The task may be
// an exited thread group leader awaiting promotion or reaping.
func (k *Kernel) Lookup(tid ThreadID) *Task {
	return k.tasks.Lookup(tid)
}

// ThreadIDs returns every thread ID in use, in ascending order.
func (k *Kernel) ThreadIDs() []ThreadID {
	return k.tasks.ThreadIDs()
}

// Kill sends a process-directed signal, as kill(2) does, to the thread group
// containing the task with the given ID. SIGKILL is delivered to every live
// thread; other signals are queued to one live thread.
func (k *Kernel) Kill(tid ThreadID, info linux.SignalInfo) error {
	t := k.Lookup(tid)
	if t == nil {
		return linuxerr.WithMessage(linuxerr.ESRCH, fmt.Sprintf("no process %d", tid))
	}
	if !info.Signo.IsValid() && info.Signo != 0 {
		return linuxerr.EINVAL
	}
	members := t.tg.registry.Snapshot()
	if info.Signo == 0 || len(members) == 0 {
		// A zombie accepts signals and discards them.
		return nil
	}
	if info.Signo == linux.SIGKILL {
		for _, m := range members {
			m.sendSignal(info)
		}
		return nil
	}
	members[0].sendSignal(info)
	return nil
}

// Tkill sends a thread-directed signal, as tkill(2) does.
func (k *Kernel) Tkill(tid ThreadID, info linux.SignalInfo) error {
	t := k.Lookup(tid)
	if t == nil || t.Exited() {
		return linuxerr.WithMessage(linuxerr.ESRCH, fmt.Sprintf("no thread %d", tid))
	}
	return t.SendSignal(info)
}

// taskName returns the thread name for an executable: its base name,
// truncated to what fits in a comm buffer.
func taskName(p string) string {
	name := path.Base(p)
	if len(name) > linux.TASK_COMM_LEN-1 {
		name = name[:linux.TASK_COMM_LEN-1]
	}
	return name
}

// logBarrier returns the logger an execve uses while waiting for siblings.
func (k *Kernel) logBarrier() log.Logger {
	return log.BasicRateLimitedLogger(k.conf.BarrierWarnInterval)
}
