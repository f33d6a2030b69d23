package kernel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTaskTable(t *testing.T) {
	tt := newTaskTable()
	leader, t2, t3 := fakeTask(1), fakeTask(5), fakeTask(3)
	tt.mu.Lock()
	tt.insertLocked(1, leader)
	tt.insertLocked(5, t2)
	tt.insertLocked(3, t3)
	tt.mu.Unlock()

	if diff := cmp.Diff([]ThreadID{1, 3, 5}, tt.ThreadIDs()); diff != "" {
		t.Errorf("ThreadIDs mismatch (-want +got):\n%s", diff)
	}
	if got := tt.Lookup(5); got != t2 {
		t.Errorf("Lookup(5) got %v, want t2", got)
	}
	if got := tt.Lookup(4); got != nil {
		t.Errorf("Lookup(4) got %v, want nil", got)
	}

	tt.mu.Lock()
	tt.reassignLocked(5, 1, t2)
	tt.mu.Unlock()
	if got := tt.Lookup(1); got != t2 {
		t.Errorf("Lookup(1) after reassignment got %v, want t2", got)
	}
	if diff := cmp.Diff([]ThreadID{1, 3}, tt.ThreadIDs()); diff != "" {
		t.Errorf("ThreadIDs after reassignment mismatch (-want +got):\n%s", diff)
	}
}

func TestTaskTableMisuse(t *testing.T) {
	tt := newTaskTable()
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.insertLocked(1, fakeTask(1))
	mustPanic(t, "duplicate insert", func() { tt.insertLocked(1, fakeTask(1)) })
	mustPanic(t, "removing an unknown ID", func() { tt.removeLocked(2) })
	mustPanic(t, "reassigning another task's ID", func() { tt.reassignLocked(1, 7, fakeTask(1)) })
}
