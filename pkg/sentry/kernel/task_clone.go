package kernel

// CloneThread creates a new task in t's thread group, as
// clone(CLONE_THREAD|CLONE_SIGHAND|CLONE_VM|CLONE_FILES) does. The new task
// shares t's address space, signal dispositions, credentials and file
// descriptor table, and starts with a copy of t's CPU context.
//
// CloneThread fails with EAGAIN if the thread group is exiting or an execve
// is in flight; the new task is then discarded without ever running.
func (t *Task) CloneThread() (*Task, error) {
	nt := newTask(t.tg, t.Credentials(), t.fdTable, t.cwd, t.arch.Fork())
	nt.name = t.Name()

	tt := t.k.tasks
	tt.mu.Lock()
	r := &t.tg.registry
	r.mu.Lock()
	if err := r.registerLocked(nt); err != nil {
		r.mu.Unlock()
		tt.mu.Unlock()
		t.Debugf("Thread creation rejected: %v", err)
		return nil, err
	}
	nt.fdTable.IncRef()
	tid := t.k.allocTIDLocked()
	nt.tid.Store(int32(tid))
	r.mu.Unlock()
	tt.insertLocked(tid, nt)
	tt.mu.Unlock()

	t.Debugf("Created thread %d", tid)
	return nt, nil
}
