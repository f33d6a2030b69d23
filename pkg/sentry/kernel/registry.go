package kernel

import (
	"fmt"
	"slices"

	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/sync"
)

// Registry tracks the tasks of a thread group and which terminal group
// operation, exit_group or execve, is in progress.
//
// Every mutation goes through Registry methods, which enforce its invariants:
//
//   - tasks is never empty while the thread group is alive.
//   - groupExiting and inExec are never both true.
//   - While leaderExited is true, tasks[0] is the exited leader, kept as a
//     placeholder until promotion or reaping.
//   - tasks[0] always has the thread group's ID as its thread ID.
//
// Methods with a Locked suffix require mu to be held. mu must never be held
// across a blocking operation.
type Registry struct {
	mu sync.Mutex

	// tasks holds the members of the thread group. tasks[0] is the leader
	// slot; the order of the remaining tasks is otherwise insignificant.
	tasks []*Task

	// leaderExited is true once the task in the leader slot has exited.
	leaderExited bool

	// groupExiting is true once exit_group or a group-fatal signal has
	// begun tearing the thread group down.
	groupExiting bool

	// inExec is true while an execve is in flight.
	inExec bool
}

// registerLocked appends t. New tasks are rejected with EAGAIN once a
// terminal group operation has begun; the caller must discard t without
// running it.
func (r *Registry) registerLocked(t *Task) error {
	if r.groupExiting || r.inExec {
		return linuxerr.WithMessage(linuxerr.EAGAIN, "an exit_group or execve is in progress")
	}
	r.tasks = append(r.tasks, t)
	return nil
}

// removeExitedLocked records that t has exited. A non-leader is removed; the
// leader keeps its slot and leaderExited is set instead.
//
// It returns true iff afterward the leader has exited and exactly one other
// task remains, which is the condition a non-leader execve waits for.
//
// Preconditions: t is a member of r.
func (r *Registry) removeExitedLocked(t *Task) bool {
	i := slices.Index(r.tasks, t)
	if i < 0 {
		panic(fmt.Sprintf("exiting task %d is not a member of its thread group", t.ThreadID()))
	}
	if i == 0 {
		if r.leaderExited {
			panic(fmt.Sprintf("thread group leader %d exited twice", t.ThreadID()))
		}
		r.leaderExited = true
	} else {
		r.tasks = slices.Delete(r.tasks, i, i+1)
	}
	return r.leaderExited && len(r.tasks) == 2
}

// promoteLocked makes t, the only surviving task, the thread group leader in
// place of the exited leader, and renames it to pid.
//
// Preconditions: The leader has exited and t is the only other member. The
// TaskTable mutex must also be held, so that the rename is atomic with the
// table update.
func (r *Registry) promoteLocked(t *Task, pid ThreadID) {
	if !r.leaderExited {
		panic(fmt.Sprintf("promoting task %d while the leader is alive", t.ThreadID()))
	}
	if len(r.tasks) != 2 || r.tasks[1] != t {
		panic(fmt.Sprintf("promoting task %d with %d members", t.ThreadID(), len(r.tasks)))
	}
	r.tasks = []*Task{t}
	r.leaderExited = false
	t.tid.Store(int32(pid))
}

// reapLocked removes the exited leader placeholder, which is the last member
// of a dead thread group.
func (r *Registry) reapLocked() *Task {
	// Every other task removed itself on exit.
	if len(r.tasks) != 1 || !r.leaderExited {
		panic(fmt.Sprintf("reaping a thread group with %d members", len(r.tasks)))
	}
	t := r.tasks[0]
	r.tasks = nil
	r.leaderExited = false
	return t
}

// beginGroupExitLocked marks the start of a group exit, failing with EAGAIN
// if a group exit or execve is already in progress.
func (r *Registry) beginGroupExitLocked() error {
	if r.groupExiting || r.inExec {
		return linuxerr.WithMessage(linuxerr.EAGAIN, "an exit_group or execve is already in progress")
	}
	r.markGroupExitingLocked()
	return nil
}

// beginExecLocked marks the start of an execve, failing with EAGAIN if a
// group exit or execve is already in progress.
func (r *Registry) beginExecLocked() error {
	if r.groupExiting || r.inExec {
		return linuxerr.WithMessage(linuxerr.EAGAIN, "an exit_group or another execve is already in progress")
	}
	r.markInExecLocked()
	return nil
}

func (r *Registry) markGroupExitingLocked() {
	if r.inExec {
		panic("group exit begun during execve")
	}
	r.groupExiting = true
}

func (r *Registry) markInExecLocked() {
	if r.groupExiting {
		panic("execve begun during group exit")
	}
	r.inExec = true
}

func (r *Registry) resetInExecLocked() {
	r.inExec = false
}

// liveLocked returns the number of tasks that have not exited.
func (r *Registry) liveLocked() int {
	if r.leaderExited {
		return len(r.tasks) - 1
	}
	return len(r.tasks)
}

// snapshotLocked returns the tasks that have not exited. The exited leader
// placeholder is never included.
func (r *Registry) snapshotLocked() []*Task {
	if r.leaderExited {
		return slices.Clone(r.tasks[1:])
	}
	return slices.Clone(r.tasks)
}

// Snapshot returns the live tasks of the thread group. The result may be
// stale as soon as it is returned.
func (r *Registry) Snapshot() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Len returns the number of members, including an exited leader placeholder.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Leader returns the task in the leader slot, or nil once the thread group
// has been reaped.
func (r *Registry) Leader() *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tasks) == 0 {
		return nil
	}
	return r.tasks[0]
}

// LeaderExited returns true if the leader slot holds an exited task.
func (r *Registry) LeaderExited() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaderExited
}

// ExitingGroup returns true if a group exit has begun.
func (r *Registry) ExitingGroup() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groupExiting
}

// InExec returns true if an execve is in flight.
func (r *Registry) InExec() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inExec
}

// resetInExec clears the execve flag. Only the execve that set it may call
// it.
func (r *Registry) resetInExec() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetInExecLocked()
}
