package kernel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/hostarch"
	"github.com/walteh/tgexec/pkg/sentry/kernel/auth"
)

func TestExecSingleThreaded(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	task := newTestProcess(t, k, ProcessArgs{})
	tg := task.ThreadGroup()
	pid := task.ThreadID()

	if err := task.Execve(execArgs(t, task, "/bin/next")); err != nil {
		t.Fatalf("Execve: %v", err)
	}

	r := tg.Registry()
	if got := r.Len(); got != 1 {
		t.Errorf("registry Len got %d, want 1", got)
	}
	if got := r.Leader(); got != task {
		t.Errorf("Leader got %v, want the execing task", got)
	}
	if r.InExec() {
		t.Errorf("InExec still set after execve")
	}
	if got := task.ThreadID(); got != pid {
		t.Errorf("ThreadID got %d, want %d", got, pid)
	}
	if got := task.Arch().IP(); got != nextEntry {
		t.Errorf("IP got %#x, want %#x", got, nextEntry)
	}
	if got := tg.Executable(); got != "/bin/next" {
		t.Errorf("Executable got %q, want /bin/next", got)
	}
	if got := task.Name(); got != "next" {
		t.Errorf("Name got %q, want next", got)
	}
	if got := tg.MemoryManager().Resets(); got != 1 {
		t.Errorf("address space resets got %d, want 1", got)
	}
	if task.HasPendingKill() {
		t.Errorf("SIGKILL pending after a successful execve")
	}
}

func TestExecFromNonLeader(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	ts := newThreads(t, k, 3)
	leader, t2, t3 := ts[0], ts[1], ts[2]
	tg := leader.ThreadGroup()
	pid := tg.ID()
	oldTID := t2.ThreadID()
	leader.Start(untilKilled)
	t3.Start(untilKilled)

	if err := t2.Execve(execArgs(t, t2, "/bin/next")); err != nil {
		t.Fatalf("Execve: %v", err)
	}

	if !leader.Exited() || !t3.Exited() {
		t.Errorf("siblings still running after execve: leader exited %t, t3 exited %t", leader.Exited(), t3.Exited())
	}
	if got := t2.ThreadID(); got != pid {
		t.Errorf("ThreadID got %d, want the process ID %d", got, pid)
	}
	if got := k.Lookup(pid); got != t2 {
		t.Errorf("Lookup(%d) got %v, want the promoted task", pid, got)
	}
	if got := k.Lookup(oldTID); got != nil {
		t.Errorf("Lookup(%d) of the old thread ID got %v, want nil", oldTID, got)
	}
	if diff := cmp.Diff([]ThreadID{pid}, k.ThreadIDs()); diff != "" {
		t.Errorf("ThreadIDs mismatch (-want +got):\n%s", diff)
	}
	r := tg.Registry()
	if got := r.Len(); got != 1 {
		t.Errorf("registry Len got %d, want 1", got)
	}
	if r.LeaderExited() || r.InExec() {
		t.Errorf("registry flags after promotion: leaderExited %t, inExec %t", r.LeaderExited(), r.InExec())
	}
	if !t2.IsLeader() {
		t.Errorf("IsLeader got false for the promoted task")
	}

	// The group's status now follows the new leader, not the killed one.
	t2.Exit(ExitStatus{Code: 4})
	waitExited(t, tg)
	status, err := tg.Reap()
	if err != nil {
		t.Fatalf("Reap: %v", err)
	}
	if diff := cmp.Diff(ExitStatus{Code: 4}, status); diff != "" {
		t.Errorf("exit status mismatch (-want +got):\n%s", diff)
	}
}

func TestExecConcurrent(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	ts := newThreads(t, k, 3)
	ts[0].Start(untilKilled)

	errs := make([]error, 2)
	done := make(chan struct{}, 2)
	for i, task := range ts[1:] {
		args := execArgs(t, task, "/bin/next")
		// Each execing task lays its argv at the same heap offset; the
		// contents are identical.
		task.Start(func(task *Task) {
			errs[i] = task.Execve(args)
			done <- struct{}{}
			if errs[i] == nil {
				<-task.Interrupted()
			}
		})
	}
	<-done
	<-done

	var succeeded, retry int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case linuxerr.Equals(linuxerr.EAGAIN, err):
			retry++
		default:
			t.Errorf("Execve got unexpected error %v", err)
		}
	}
	if succeeded != 1 || retry != 1 {
		t.Errorf("got %d successful and %d EAGAIN execves, want one of each", succeeded, retry)
	}
	r := ts[0].ThreadGroup().Registry()
	if got := r.Len(); got != 1 {
		t.Errorf("registry Len got %d, want 1", got)
	}
	if r.InExec() {
		t.Errorf("InExec still set")
	}
	k.Kill(ts[0].ThreadGroup().ID(), linux.SignalInfo{Signo: linux.SIGKILL})
	waitExited(t, ts[0].ThreadGroup())
}

func TestExecDuringGroupExit(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	ts := newThreads(t, k, 2)
	leader, t2 := ts[0], ts[1]
	tg := leader.ThreadGroup()

	leader.ExitGroup(ExitStatus{Code: 3})

	mmResets := tg.MemoryManager().Resets()
	err := t2.Execve(execArgs(t, t2, "/bin/next"))
	if !linuxerr.Equals(linuxerr.EAGAIN, err) {
		t.Errorf("Execve during exit_group got %v, want EAGAIN", err)
	}
	if tg.Registry().InExec() {
		t.Errorf("InExec set by a rejected execve")
	}
	if got := tg.MemoryManager().Resets(); got != mmResets {
		t.Errorf("rejected execve reset the address space")
	}

	if !t2.HasPendingKill() {
		t.Fatalf("exit_group did not kill the other thread")
	}
	t2.HandleKill()
	waitExited(t, tg)
	if diff := cmp.Diff(ExitStatus{Code: 3}, tg.ExitStatus()); diff != "" {
		t.Errorf("exit status mismatch (-want +got):\n%s", diff)
	}
}

func TestExitGroupDuringExec(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	ts := newThreads(t, k, 2)
	leader, t2 := ts[0], ts[1]
	tg := leader.ThreadGroup()

	// The leader calls exit_group only after the execve has killed it.
	leader.Start(func(task *Task) {
		<-task.Interrupted()
		task.ExitGroup(ExitStatus{Code: 9})
	})
	if err := t2.Execve(execArgs(t, t2, "/bin/next")); err != nil {
		t.Fatalf("Execve: %v", err)
	}
	if tg.Registry().ExitingGroup() {
		t.Errorf("exit_group during execve began a group exit")
	}
	if got := t2.ThreadID(); got != tg.ID() {
		t.Errorf("ThreadID got %d, want %d", got, tg.ID())
	}
}

func TestExecKilledInBarrier(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	ts := newThreads(t, k, 2)
	leader, t2 := ts[0], ts[1]
	tg := leader.ThreadGroup()
	t2TID := t2.ThreadID()

	// The leader lingers after being killed, holding the execve in its
	// barrier.
	release := make(chan struct{})
	leader.Start(func(task *Task) {
		<-task.Interrupted()
		<-release
	})

	args := execArgs(t, t2, "/bin/next")
	execErr := make(chan error, 1)
	go func() {
		execErr <- t2.Execve(args)
	}()
	waitFor(t, "the execve to kill the leader", func() bool {
		return leader.HasPendingKill() && tg.Registry().InExec()
	})
	if err := k.Tkill(t2TID, linux.SignalInfo{Signo: linux.SIGKILL, Code: linux.SI_TKILL}); err != nil {
		t.Fatalf("Tkill: %v", err)
	}

	var err error
	select {
	case err = <-execErr:
	case <-time.After(10 * time.Second):
		t.Fatalf("execve did not abort")
	}
	if !linuxerr.Equals(linuxerr.EAGAIN, err) {
		t.Errorf("Execve got %v, want EAGAIN", err)
	}
	if tg.Registry().InExec() {
		t.Errorf("InExec still set after the execve aborted")
	}
	if got := t2.ThreadID(); got != t2TID {
		t.Errorf("aborted execve changed the thread ID to %d", got)
	}
	if got := tg.MemoryManager().Resets(); got != 0 {
		t.Errorf("aborted execve reset the address space")
	}

	// The initiator's own death proceeds as usual.
	t2.HandleKill()
	close(release)
	waitExited(t, tg)
	if diff := cmp.Diff(ExitStatus{Signo: linux.SIGKILL}, tg.ExitStatus()); diff != "" {
		t.Errorf("exit status mismatch (-want +got):\n%s", diff)
	}
}

func TestExecLoadFailureAfterPromotion(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	ts := newThreads(t, k, 2)
	leader, t2 := ts[0], ts[1]
	tg := leader.ThreadGroup()
	leader.Start(untilKilled)

	if err := t2.Execve(execArgs(t, t2, "/bin/corrupt")); err != nil {
		t.Fatalf("Execve past the point of no return returned %v, want nil", err)
	}
	if !t2.HasPendingKill() {
		t.Errorf("SIGKILL not pending after a failed image load")
	}
	if tg.Registry().InExec() {
		t.Errorf("InExec still set")
	}
	if got := t2.ThreadID(); got != tg.ID() {
		t.Errorf("ThreadID got %d, want the promoted ID %d", got, tg.ID())
	}

	t2.HandleKill()
	waitExited(t, tg)
	if diff := cmp.Diff(ExitStatus{Signo: linux.SIGKILL}, tg.ExitStatus()); diff != "" {
		t.Errorf("exit status mismatch (-want +got):\n%s", diff)
	}
}

func TestExecErrorsHaveNoSideEffects(t *testing.T) {
	small := DefaultConfig()
	small.MaxArgStrings = 2
	small.MaxArgStringLen = 8
	small.MaxArgTotal = 12

	for _, tc := range []struct {
		name string
		conf Config
		path string
		argv []string
		want error
	}{
		{name: "too many arguments", conf: small, path: "/bin/next", argv: []string{"a", "b", "c"}, want: linuxerr.E2BIG},
		{name: "argument too long", conf: small, path: "/bin/next", argv: []string{"12345678"}, want: linuxerr.E2BIG},
		{name: "arguments too large", conf: small, path: "/bin/next", argv: []string{"1234567", "12345"}, want: linuxerr.E2BIG},
		{name: "missing", conf: DefaultConfig(), path: "/bin/missing", want: linuxerr.ENOENT},
		{name: "not a directory", conf: DefaultConfig(), path: "/etc/passwd/x", want: linuxerr.ENOTDIR},
		{name: "directory", conf: DefaultConfig(), path: "/bin", want: linuxerr.EACCES},
		{name: "not executable", conf: DefaultConfig(), path: "/etc/passwd", want: linuxerr.EACCES},
		{name: "unknown format", conf: DefaultConfig(), path: "/bin/garbage", want: linuxerr.ENOEXEC},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k := newTestKernel(t, tc.conf)
			ts := newThreads(t, k, 2)
			task := ts[1]
			tg := task.ThreadGroup()
			tid := task.ThreadID()

			err := task.Execve(ExecArgs{
				Pathname:     tc.path,
				ResolveFinal: true,
				Argv:         putVector(t, task.MemoryManager(), 0, tc.argv),
			})
			if !linuxerr.Equals(tc.want, err) {
				t.Fatalf("Execve got %v, want %v", err, tc.want)
			}
			if tg.Registry().InExec() {
				t.Errorf("InExec set after a failed execve")
			}
			if ts[0].HasPendingKill() {
				t.Errorf("failed execve killed a sibling")
			}
			if got := task.ThreadID(); got != tid {
				t.Errorf("ThreadID changed to %d", got)
			}
			if got := tg.MemoryManager().Resets(); got != 0 {
				t.Errorf("failed execve reset the address space")
			}
		})
	}
}

func TestExecSymlinkAndScript(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())

	task := newTestProcess(t, k, ProcessArgs{})
	args := execArgs(t, task, "/bin/link")
	args.ResolveFinal = false
	if err := task.Execve(args); !linuxerr.Equals(linuxerr.ELOOP, err) {
		t.Errorf("Execve of a symlink without following got %v, want ELOOP", err)
	}
	args.ResolveFinal = true
	if err := task.Execve(args); err != nil {
		t.Fatalf("Execve of a symlink: %v", err)
	}
	if got := task.ThreadGroup().Executable(); got != "/bin/next" {
		t.Errorf("Executable got %q, want the symlink target", got)
	}

	if err := task.Execve(execArgs(t, task, "/bin/script")); err != nil {
		t.Fatalf("Execve of a script: %v", err)
	}
	if got := task.Arch().IP(); got != nextEntry {
		t.Errorf("IP got %#x, want the interpreter's entry %#x", got, nextEntry)
	}
	if got := task.Name(); got != "script" {
		t.Errorf("Name got %q, want script", got)
	}
}

func TestExecResetsTaskState(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	creds := auth.NewUserCredentials(userUID, userGID, nil)
	creds.KeepCaps = true
	task := newTestProcess(t, k, ProcessArgs{Credentials: creds})
	tg := task.ThreadGroup()

	sh := tg.SignalHandlers()
	if _, err := sh.SetAction(linux.SIGUSR1, linux.SigAction{Handler: 0x1234}); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if _, err := sh.SetAction(linux.SIGHUP, linux.SigAction{Handler: linux.SIG_IGN}); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	task.SetSignalStack(linux.SignalStack{Addr: 0x7000, Size: 0x1000})
	task.SetRobustList(0x5000)
	task.SetClearChildTID(0x6000)
	task.Arch().SetTLS(0x8000)
	tg.SetExitSignal(linux.SIGUSR2)
	if err := tg.SetParentDeathSignal(linux.SIGTERM); err != nil {
		t.Fatalf("SetParentDeathSignal: %v", err)
	}

	fs := k.Filesystem()
	keep, err := fs.Open("/", "/etc/passwd", true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	closed, err := fs.Open("/", "/etc/passwd", true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fdt := task.FDTable()
	keepFD, _ := fdt.NewFD(0, keep, FDFlags{})
	if _, err := fdt.NewFD(0, closed, FDFlags{CloseOnExec: true}); err != nil {
		t.Fatalf("NewFD: %v", err)
	}
	keep.DecRef()
	closed.DecRef()

	if err := task.Execve(execArgs(t, task, "/bin/setuid")); err != nil {
		t.Fatalf("Execve: %v", err)
	}

	if got := tg.SignalHandlers().Action(linux.SIGUSR1); !got.IsDefault() {
		t.Errorf("caught SIGUSR1 after exec got %+v, want the default", got)
	}
	if got := tg.SignalHandlers().Action(linux.SIGHUP); !got.IsIgnored() {
		t.Errorf("ignored SIGHUP after exec got %+v, want ignored", got)
	}
	if diff := cmp.Diff(linux.DefaultSignalStack, task.SignalStack()); diff != "" {
		t.Errorf("signal stack mismatch (-want +got):\n%s", diff)
	}
	if task.RobustList() != 0 || task.ClearChildTID() != 0 {
		t.Errorf("robust list %v and clear-child-tid %v not cleared", task.RobustList(), task.ClearChildTID())
	}
	if got := task.Arch().TLS; got != 0 {
		t.Errorf("TLS got %#x, want 0", got)
	}
	if got := tg.ExitSignal(); got != linux.SIGCHLD {
		t.Errorf("ExitSignal got %v, want SIGCHLD", got)
	}
	if got := tg.ParentDeathSignal(); got != 0 {
		t.Errorf("ParentDeathSignal got %v, want it cleared by a set-user-ID exec", got)
	}

	nc := task.Credentials()
	if nc == creds {
		t.Errorf("execve modified the credentials in place")
	}
	if diff := cmp.Diff([]auth.KUID{userUID, 0, 0}, []auth.KUID{nc.RealKUID, nc.EffectiveKUID, nc.SavedKUID}); diff != "" {
		t.Errorf("user IDs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]auth.KGID{userGID, 0, 0}, []auth.KGID{nc.RealKGID, nc.EffectiveKGID, nc.SavedKGID}); diff != "" {
		t.Errorf("group IDs mismatch (-want +got):\n%s", diff)
	}
	if nc.KeepCaps {
		t.Errorf("KeepCaps survived execve")
	}
	if creds.EffectiveKUID != userUID {
		t.Errorf("the original credentials were modified")
	}

	if diff := cmp.Diff([]int32{keepFD}, task.FDTable().FDs()); diff != "" {
		t.Errorf("descriptors after exec mismatch (-want +got):\n%s", diff)
	}
	if !closed.Released() {
		t.Errorf("close-on-exec file still referenced")
	}
	if keep.Released() {
		t.Errorf("inherited file released")
	}
}

func TestExecUnsharesFDTable(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	shared := NewFDTable()
	file, err := k.Filesystem().Open("/", "/etc/passwd", true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fd, _ := shared.NewFD(3, file, FDFlags{CloseOnExec: true})
	file.DecRef()

	p1 := newTestProcess(t, k, ProcessArgs{FDTable: shared})
	p2 := newTestProcess(t, k, ProcessArgs{FDTable: shared})
	shared.DecRef()

	if err := p1.Execve(execArgs(t, p1, "/bin/next")); err != nil {
		t.Fatalf("Execve: %v", err)
	}
	if p1.FDTable() == shared {
		t.Errorf("execve kept a descriptor table shared with another process")
	}
	if got := p1.FDTable().FDs(); len(got) != 0 {
		t.Errorf("execing process descriptors got %v, want none", got)
	}
	if diff := cmp.Diff([]int32{fd}, p2.FDTable().FDs()); diff != "" {
		t.Errorf("other process lost descriptors (-want +got):\n%s", diff)
	}
	if file.Released() {
		t.Errorf("file released while the other process holds it")
	}
}

func TestExecReleasesVforkParent(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	child := newTestProcess(t, k, ProcessArgs{Vfork: true})
	done := child.ThreadGroup().VforkDone()
	select {
	case <-done:
		t.Fatalf("vfork parent released before execve")
	default:
	}
	if err := child.Execve(execArgs(t, child, "/bin/next")); err != nil {
		t.Fatalf("Execve: %v", err)
	}
	select {
	case <-done:
	default:
		t.Errorf("vfork parent not released by execve")
	}

	if got := newTestProcess(t, k, ProcessArgs{}).ThreadGroup().VforkDone(); got != nil {
		t.Errorf("VforkDone of a non-vfork process is not nil")
	}
}

func TestExecAtEmptyPath(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	task := newTestProcess(t, k, ProcessArgs{})
	file, err := k.Filesystem().Open("/", "/bin/next", true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.DecRef()

	args := execArgs(t, task, "")
	args.File = file
	if err := task.Execve(args); err != nil {
		t.Fatalf("Execve: %v", err)
	}
	if got := task.Arch().IP(); got != nextEntry {
		t.Errorf("IP got %#x, want %#x", got, nextEntry)
	}
	if got := file.ReadRefs(); got != 1 {
		t.Errorf("file references got %d, want the caller's only", got)
	}
}

func TestExecCloneRejectedDuringBarrier(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	ts := newThreads(t, k, 2)
	leader, t2 := ts[0], ts[1]

	cloneErr := make(chan error, 1)
	leader.Start(func(task *Task) {
		<-task.Interrupted()
		_, err := task.CloneThread()
		cloneErr <- err
	})
	if err := t2.Execve(execArgs(t, t2, "/bin/next")); err != nil {
		t.Fatalf("Execve: %v", err)
	}
	if err := <-cloneErr; !linuxerr.Equals(linuxerr.EAGAIN, err) {
		t.Errorf("CloneThread during execve got %v, want EAGAIN", err)
	}
	if got := t2.ThreadGroup().Registry().Len(); got != 1 {
		t.Errorf("registry Len got %d, want 1", got)
	}
}

// TestExecProcessIDAlwaysResolves checks that an observer looking up the
// process ID during a promotion always finds exactly one task of the group.
func TestExecProcessIDAlwaysResolves(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	for i := range 20 {
		ts := newThreads(t, k, 4)
		tg := ts[0].ThreadGroup()
		pid := tg.ID()
		for _, task := range ts[:3] {
			task.Start(untilKilled)
		}

		var (
			stop   atomic.Bool
			misses atomic.Int64
			g      errgroup.Group
		)
		for range 2 {
			g.Go(func() error {
				for !stop.Load() {
					task := k.Lookup(pid)
					if task == nil || task.ThreadGroup() != tg {
						misses.Add(1)
					}
				}
				return nil
			})
		}

		if err := ts[3].Execve(execArgs(t, ts[3], "/bin/next")); err != nil {
			t.Fatalf("Execve: %v", err)
		}
		stop.Store(true)
		g.Wait()
		if n := misses.Load(); n != 0 {
			t.Fatalf("iteration %d: process ID failed to resolve %d times", i, n)
		}
		if got := k.Lookup(pid); got != ts[3] {
			t.Fatalf("iteration %d: Lookup(%d) got %v, want the promoted task", i, pid, got)
		}
		ts[3].Exit(ExitStatus{})
		waitExited(t, tg)
		if _, err := tg.Reap(); err != nil {
			t.Fatalf("Reap: %v", err)
		}
	}
}

func TestExecBarrierWaitsForAllSiblings(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	const n = 8
	ts := newThreads(t, k, n)
	var exited atomic.Int64
	for _, task := range ts[:n-1] {
		task.Start(func(task *Task) {
			<-task.Interrupted()
			// Unwind slowly, so that the initiator must actually wait.
			time.Sleep(time.Millisecond)
			exited.Add(1)
		})
	}
	if err := ts[n-1].Execve(execArgs(t, ts[n-1], "/bin/next")); err != nil {
		t.Fatalf("Execve: %v", err)
	}
	if got := exited.Load(); got != n-1 {
		t.Errorf("execve passed its barrier with %d of %d siblings unwound", got, n-1)
	}
	for _, task := range ts[:n-1] {
		if !task.Exited() {
			t.Errorf("task %d still registered after execve", task.ThreadID())
		}
	}
}

func TestExecTotalArgumentBound(t *testing.T) {
	conf := DefaultConfig()
	conf.MaxArgTotal = 32
	k := newTestKernel(t, conf)
	task := newTestProcess(t, k, ProcessArgs{})
	m := task.MemoryManager()

	args := ExecArgs{
		Pathname:     "/bin/next",
		ResolveFinal: true,
		Argv:         putVector(t, m, 0, []string{"0123456789"}),
		Envv:         putVector(t, m, 0x1000, []string{"A=0123456789", "B=01234567"}),
	}
	if err := task.Execve(args); !linuxerr.Equals(linuxerr.E2BIG, err) {
		t.Errorf("Execve got %v, want E2BIG", err)
	}
	args.Envv = putVector(t, m, 0x2000, []string{"A=0123456789"})
	if err := task.Execve(args); err != nil {
		t.Errorf("Execve within the bound: %v", err)
	}
}

func TestExecWithUnmappedArguments(t *testing.T) {
	k := newTestKernel(t, DefaultConfig())
	task := newTestProcess(t, k, ProcessArgs{})
	err := task.Execve(ExecArgs{Pathname: "/bin/next", ResolveFinal: true, Argv: hostarch.Addr(0x10)})
	if !linuxerr.Equals(linuxerr.EFAULT, err) {
		t.Errorf("Execve got %v, want EFAULT", err)
	}
}
