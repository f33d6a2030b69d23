package kernel

import (
	"fmt"

	"github.com/google/btree"

	"github.com/walteh/tgexec/pkg/sync"
)

// ThreadID is a thread identifier. The ID of a thread group's leader is the
// thread group's process ID.
type ThreadID int32

type tidEntry struct {
	tid  ThreadID
	task *Task
}

func tidLess(a, b tidEntry) bool {
	return a.tid < b.tid
}

// TaskTable maps thread IDs to tasks. It is what kill(2), tkill(2) and
// /proc/[pid] consult.
//
// Lock order: TaskTable.mu, then Registry.mu, then Task.mu.
type TaskTable struct {
	mu sync.Mutex

	// tree is ordered by thread ID so that listings come out sorted.
	tree *btree.BTreeG[tidEntry]
}

func newTaskTable() *TaskTable {
	return &TaskTable{tree: btree.NewG(8, tidLess)}
}

// Lookup returns the task with the given ID, or nil.
func (tt *TaskTable) Lookup(tid ThreadID) *Task {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.lookupLocked(tid)
}

func (tt *TaskTable) lookupLocked(tid ThreadID) *Task {
	e, ok := tt.tree.Get(tidEntry{tid: tid})
	if !ok {
		return nil
	}
	return e.task
}

// ThreadIDs returns every ID in the table in ascending order.
func (tt *TaskTable) ThreadIDs() []ThreadID {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tids := make([]ThreadID, 0, tt.tree.Len())
	tt.tree.Ascend(func(e tidEntry) bool {
		tids = append(tids, e.tid)
		return true
	})
	return tids
}

func (tt *TaskTable) insertLocked(tid ThreadID, t *Task) {
	if _, dup := tt.tree.ReplaceOrInsert(tidEntry{tid: tid, task: t}); dup {
		panic(fmt.Sprintf("thread ID %d inserted twice", tid))
	}
}

func (tt *TaskTable) removeLocked(tid ThreadID) {
	if _, ok := tt.tree.Delete(tidEntry{tid: tid}); !ok {
		panic(fmt.Sprintf("removing unknown thread ID %d", tid))
	}
}

// reassignLocked moves t from oldTID to newTID, replacing whatever newTID
// referred to. Both steps happen under mu, so no observer sees t under both
// IDs or newTID unresolvable.
func (tt *TaskTable) reassignLocked(oldTID, newTID ThreadID, t *Task) {
	if cur := tt.lookupLocked(oldTID); cur != t {
		panic(fmt.Sprintf("thread ID %d does not refer to the task being renamed", oldTID))
	}
	tt.removeLocked(oldTID)
	if _, ok := tt.tree.ReplaceOrInsert(tidEntry{tid: newTID, task: t}); !ok {
		panic(fmt.Sprintf("thread ID %d had no previous holder", newTID))
	}
}
