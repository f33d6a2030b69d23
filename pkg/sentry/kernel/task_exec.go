package kernel

// This file implements execve(2) for multithreaded processes.
//
// An execve proceeds in two halves separated by a point of no return:
//
//   - Before it, every step is reversible. Arguments are copied in, the
//     executable is resolved and prepared, the thread group is marked as
//     execing, the other tasks are killed, and the caller waits for them to
//     exit. Errors are returned to the caller.
//
//   - After it, the caller may have taken over the thread group leader's
//     thread ID, and its old image is gone. Errors can no longer be
//     returned; they kill the task instead.

import (
	"fmt"
	"time"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/hostarch"
	"github.com/walteh/tgexec/pkg/sentry/loader"
	"github.com/walteh/tgexec/pkg/sentry/mm"
	"github.com/walteh/tgexec/pkg/sentry/vfs"
	"github.com/walteh/tgexec/pkg/sync"
)

// ExecArgs holds arguments to Task.Execve.
type ExecArgs struct {
	// Pathname is the executable's path. Relative paths are resolved from
	// Dir.
	Pathname string

	// Dir is the directory relative paths are resolved from. If empty, the
	// task's working directory is used.
	Dir string

	// File, if not nil, is executed in place of Pathname, as execveat(2)
	// with AT_EMPTY_PATH does. Execve takes its own reference.
	File *vfs.FileDescription

	// ResolveFinal is true if a symbolic link as the final path component
	// should be followed.
	ResolveFinal bool

	// Argv and Envv are the addresses of the NULL-terminated argument and
	// environment arrays in the task's address space.
	Argv hostarch.Addr
	Envv hostarch.Addr
}

// execPhase is the progress of an execve. It only moves forward.
type execPhase int

const (
	execValidated execPhase = iota
	execSiblingsTerminating
	execBarrierSatisfied
	execPromoted
	execImageReplaced
)

func (p execPhase) String() string {
	switch p {
	case execValidated:
		return "validated"
	case execSiblingsTerminating:
		return "siblings-terminating"
	case execBarrierSatisfied:
		return "barrier-satisfied"
	case execPromoted:
		return "promoted"
	case execImageReplaced:
		return "image-replaced"
	default:
		return fmt.Sprintf("execPhase(%d)", int(p))
	}
}

// execAttempt is the state of one execve. It lives on the initiator's stack.
type execAttempt struct {
	t *Task

	// wasLeader is true if t held the leader slot when the execve began.
	wasLeader bool

	file  *vfs.FileDescription
	image loader.Image

	phase execPhase
}

func (ea *execAttempt) advance(to execPhase) {
	if to != ea.phase+1 {
		panic(fmt.Sprintf("execve moved from phase %v to %v", ea.phase, to))
	}
	ea.phase = to
}

// execFatal is a failure after the point of no return. It is never returned
// from Execve.
type execFatal struct {
	err error
}

func (f *execFatal) Error() string {
	return fmt.Sprintf("execve failed past the point of no return: %v", f.err)
}

func (f *execFatal) Unwrap() error {
	return f.err
}

// Execve replaces the program running in t's thread group, killing every
// other task in the group.
//
// An error is returned only if the execve failed before the point of no
// return; t then continues running its old program. EAGAIN means that a
// group exit or another execve was in flight, or that t was killed while
// waiting for its siblings, and the caller may retry. On success, and on
// failure past the point of no return, Execve returns nil; in the latter
// case SIGKILL is pending for t.
func (t *Task) Execve(args ExecArgs) error {
	argv, envv, err := t.copyInExecArgs(args.Argv, args.Envv)
	if err != nil {
		return err
	}

	file, err := t.resolveExecutable(args)
	if err != nil {
		return err
	}
	defer file.DecRef()
	img, err := t.prepareImage(file, args, argv, envv)
	if err != nil {
		return err
	}
	defer img.Release()

	ea := execAttempt{
		t:     t,
		file:  file,
		image: img,
		phase: execValidated,
	}

	r := &t.tg.registry
	r.mu.Lock()
	if err := r.beginExecLocked(); err != nil {
		r.mu.Unlock()
		return err
	}
	ea.wasLeader = r.tasks[0] == t
	siblings := r.snapshotLocked()
	r.mu.Unlock()
	defer r.resetInExec()

	ea.advance(execSiblingsTerminating)
	for _, s := range siblings {
		if s != t {
			s.forceKill()
		}
	}

	if err := ea.waitForSiblings(); err != nil {
		return err
	}
	ea.advance(execBarrierSatisfied)

	if !ea.wasLeader {
		ea.promote()
	}
	ea.advance(execPromoted)

	// Point of no return.
	if fatal := ea.replaceImage(); fatal != nil {
		t.Warningf("%v", fatal)
		t.forceKill()
		return nil
	}
	ea.advance(execImageReplaced)
	return nil
}

// copyInExecArgs copies argv and envp from t's address space within the
// kernel's limits. The bound on combined size applies to both vectors
// together.
func (t *Task) copyInExecArgs(argvAddr, envvAddr hostarch.Addr) ([]string, []string, error) {
	conf := t.k.conf
	limits := mm.VectorLimits{
		MaxElems:   conf.MaxArgStrings,
		MaxElemLen: conf.MaxArgStringLen,
		MaxTotal:   conf.MaxArgTotal,
	}
	argv, err := t.tg.mm.CopyInVector(argvAddr, limits)
	if err != nil {
		return nil, nil, err
	}
	envv, err := t.tg.mm.CopyInVector(envvAddr, limits)
	if err != nil {
		return nil, nil, err
	}
	if conf.MaxArgTotal > 0 {
		total := 0
		for _, vec := range [][]string{argv, envv} {
			for _, s := range vec {
				total += len(s) + 1
			}
		}
		if total > conf.MaxArgTotal {
			return nil, nil, linuxerr.WithMessage(linuxerr.E2BIG, fmt.Sprintf("arguments and environment take %d bytes, more than %d", total, conf.MaxArgTotal))
		}
	}
	return argv, envv, nil
}

// resolveExecutable returns a new reference on the file args name, after
// checking that t may execute it.
func (t *Task) resolveExecutable(args ExecArgs) (*vfs.FileDescription, error) {
	creds := t.Credentials()
	if args.File != nil {
		if err := vfs.CheckExecutable(creds, args.File.Inode()); err != nil {
			return nil, err
		}
		args.File.IncRef()
		return args.File, nil
	}
	dir := args.Dir
	if dir == "" {
		dir = t.cwd
	}
	return t.k.fs.OpenExecutable(creds, dir, args.Pathname, args.ResolveFinal)
}

func (t *Task) prepareImage(file *vfs.FileDescription, args ExecArgs, argv, envv []string) (loader.Image, error) {
	creds := t.Credentials()
	dir := args.Dir
	if dir == "" {
		dir = t.cwd
	}
	return loader.Prepare(loader.PrepareArgs{
		File: file,
		Argv: argv,
		Envv: envv,
		OpenInterpreter: func(p string) (*vfs.FileDescription, error) {
			return t.k.fs.OpenExecutable(creds, dir, p, true /* followFinal */)
		},
		MaxInterpreterDepth: t.k.conf.MaxInterpreterDepth,
	})
}

// waitForSiblings spins until every other task in the thread group has
// exited, leaving at most the exited leader's placeholder.
//
// If SIGKILL becomes pending for the initiator, the execve is abandoned with
// EAGAIN and the thread group is no longer marked as execing.
func (ea *execAttempt) waitForSiblings() error {
	t := ea.t
	r := &t.tg.registry
	var (
		start  = time.Now()
		warn   = t.k.conf.BarrierWarnInterval
		logger = t.k.logBarrier()
	)
	for {
		r.mu.Lock()
		// The kill check comes first, so that a task that is both killed and
		// alone does not go on to replace its image.
		if t.HasPendingKill() {
			r.resetInExecLocked()
			r.mu.Unlock()
			t.Debugf("execve abandoned: killed while waiting for siblings")
			return linuxerr.WithMessage(linuxerr.EAGAIN, "killed while waiting for other threads to exit")
		}
		if ea.barrierSatisfiedLocked() {
			r.mu.Unlock()
			return nil
		}
		remaining := r.liveLocked() - 1
		r.mu.Unlock()

		if time.Since(start) >= warn {
			logger.Warningf("%sexecve still waiting for %d threads to exit", t.logPrefix(), remaining)
		}
		sync.Goyield()
	}
}

// barrierSatisfiedLocked returns true if the initiator is the thread group's
// only live task.
//
// Preconditions: ea.t.tg.registry.mu is locked.
func (ea *execAttempt) barrierSatisfiedLocked() bool {
	r := &ea.t.tg.registry
	if ea.wasLeader {
		return len(r.tasks) == 1
	}
	return len(r.tasks) == 2 && r.leaderExited && r.tasks[1] == ea.t
}

// promote gives the initiator the thread group's ID, replacing the exited
// leader.
func (ea *execAttempt) promote() {
	t := ea.t
	tg := t.tg
	tt := t.k.tasks
	tt.mu.Lock()
	tg.registry.mu.Lock()
	oldTID := t.ThreadID()
	tt.reassignLocked(oldTID, tg.pid, t)
	tg.registry.promoteLocked(t, tg.pid)
	// The old leader's status was recorded when it exited. The group's
	// status now comes from the new leader.
	tg.exitStatus = ExitStatus{}
	tg.exitStatusSet = false
	tg.registry.mu.Unlock()
	tt.mu.Unlock()
	t.Infof("Promoted from thread %d to thread group leader", oldTID)
}

// replaceImage installs the new program. It runs after the point of no
// return, with the initiator as the thread group's only task.
func (ea *execAttempt) replaceImage() *execFatal {
	t := ea.t
	tg := t.tg

	tg.mm.Reset()
	t.robustList = 0
	t.clearChildTID = 0
	info, err := ea.image.Load(tg.mm)
	if err != nil {
		return &execFatal{err: err}
	}
	// Clears floating point state and the TLS pointer.
	t.arch.ResetForExec(info.Entry, info.StackTop)

	ino := ea.file.Inode()
	creds := t.Credentials().Fork()
	if creds.ApplySetIDBits(ino.Mode, ino.UID, ino.GID) {
		tg.parentDeathSignal.Store(0)
	}
	t.creds.Store(creds)

	tg.signalHandlers.Store(tg.SignalHandlers().CopyForExec())
	t.signalStack = linux.DefaultSignalStack
	tg.SetExitSignal(linux.SIGCHLD)

	t.unshareFDTable()
	t.fdTable.RemoveIf(func(_ int32, _ *vfs.FileDescription, flags FDFlags) bool {
		return flags.CloseOnExec
	})

	p := ea.file.Path()
	tg.registry.mu.Lock()
	tg.executable = p
	tg.registry.mu.Unlock()
	t.SetName(taskName(p))

	tg.releaseVforkParent()
	t.Debugf("Exec'd %q, entry %v, stack %v", p, info.Entry, info.StackTop)
	return nil
}

// unshareFDTable gives t a private copy of its file descriptor table if the
// table is shared with another process.
func (t *Task) unshareFDTable() {
	if t.fdTable.ReadRefs() == 1 {
		return
	}
	old := t.fdTable
	t.fdTable = old.Fork()
	old.DecRef()
}
