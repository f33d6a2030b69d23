package kernel

import (
	"fmt"

	"github.com/walteh/tgexec/pkg/abi/linux"
)

// Exit terminates t alone, as exit(2) does. The thread group exits when its
// last task does.
func (t *Task) Exit(status ExitStatus) {
	t.exit(status)
}

// ExitGroup terminates every task in t's thread group, as exit_group(2)
// does. The first group exit records status as the group's exit status and
// kills the other tasks; t then exits.
//
// If a group exit or an execve is already in flight, only t exits. An
// execve in flight will kill t anyway, and a group exit in flight already
// has a status.
func (t *Task) ExitGroup(status ExitStatus) {
	r := &t.tg.registry
	r.mu.Lock()
	var siblings []*Task
	if err := r.beginGroupExitLocked(); err != nil {
		t.Debugf("exit_group reduced to exit: %v", err)
	} else {
		t.tg.setExitStatusLocked(status)
		siblings = r.snapshotLocked()
	}
	r.mu.Unlock()

	for _, s := range siblings {
		if s != t {
			s.forceKill()
		}
	}
	t.exit(status)
}

// exit releases t's resources and removes it from its thread group.
func (t *Task) exit(status ExitStatus) {
	if t.exited.Load() {
		panic(fmt.Sprintf("task %d exited twice", t.ThreadID()))
	}
	t.Debugf("Exiting: %v", status)

	// Resources are released before the task leaves the registry, so that an
	// execve waiting in its barrier finds them released once the registry
	// shows the task gone.
	t.fdTable.DecRef()
	t.robustList = 0
	t.clearChildTID = 0

	tt := t.k.tasks
	tt.mu.Lock()
	r := &t.tg.registry
	r.mu.Lock()
	wasLeader := len(r.tasks) > 0 && r.tasks[0] == t
	t.exitStatus = status
	if r.removeExitedLocked(t) && r.inExec {
		// Logged under mu, so that it precedes the execve observing its
		// barrier.
		t.Debugf("Last sibling exited; execve by thread %d may proceed", r.tasks[1].ThreadID())
	}
	t.exited.Store(true)
	if wasLeader {
		// The leader's thread ID stays in use until promotion or reaping.
		t.tg.setExitStatusLocked(status)
	} else {
		tt.removeLocked(t.ThreadID())
	}
	died := r.liveLocked() == 0
	if died {
		t.tg.dead = true
	}
	r.mu.Unlock()
	tt.mu.Unlock()

	if died {
		t.tg.releaseVforkParent()
		close(t.tg.exited)
		t.Infof("Thread group %d exited: %v", t.tg.pid, t.tg.ExitStatus())
	}
}

// ExitStatus returns the status t exited with. It is meaningful only once
// Exited returns true.
func (t *Task) ExitStatus() ExitStatus {
	return t.exitStatus
}

// killedBy returns the status of a task killed by sig.
func killedBy(sig linux.Signal) ExitStatus {
	return ExitStatus{Signo: sig}
}
