package kernel

import (
	"fmt"
	"slices"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
)

// SendSignal queues info to t, as tgkill(2) does. Signal 0 only checks that
// the task exists.
func (t *Task) SendSignal(info linux.SignalInfo) error {
	if info.Signo == 0 {
		return nil
	}
	if !info.Signo.IsValid() {
		return linuxerr.WithMessage(linuxerr.EINVAL, fmt.Sprintf("invalid signal %d", info.Signo))
	}
	t.sendSignal(info)
	return nil
}

func (t *Task) sendSignal(info linux.SignalInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingSet.Has(info.Signo) {
		// Standard signals are not queued more than once.
		return
	}
	t.pendingSet |= linux.SignalSetOf(info.Signo)
	t.pending = append(t.pending, info)
	if info.Signo == linux.SIGKILL {
		t.killedOnce.Do(func() { close(t.killed) })
	}
}

// forceKill queues a kernel-originated SIGKILL to t.
func (t *Task) forceKill() {
	t.sendSignal(linux.SignalInfo{Signo: linux.SIGKILL, Code: linux.SI_KERNEL})
}

// HasPendingKill returns true if SIGKILL is pending for t.
func (t *Task) HasPendingKill() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingSet.Has(linux.SIGKILL)
}

// Interrupted returns a channel that is closed once SIGKILL is pending for
// t. Blocking operations on behalf of t select on it.
func (t *Task) Interrupted() <-chan struct{} {
	return t.killed
}

// PendingSignals returns the set of pending signals.
func (t *Task) PendingSignals() linux.SignalSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingSet
}

// DequeueSignal removes and returns the oldest pending signal other than
// SIGKILL, which is consumed only by HandleKill.
func (t *Task) DequeueSignal() (linux.SignalInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := slices.IndexFunc(t.pending, func(info linux.SignalInfo) bool {
		return info.Signo != linux.SIGKILL
	})
	if i < 0 {
		return linux.SignalInfo{}, false
	}
	info := t.pending[i]
	t.pending = slices.Delete(t.pending, i, i+1)
	t.pendingSet &^= linux.SignalSetOf(info.Signo)
	return info, true
}

// HandleKill acts on a pending SIGKILL: the first task of its group to do
// so begins a group exit, and every task exits.
//
// While an execve is in flight only t exits. The initiator of the execve
// notices its own SIGKILL separately, in its barrier.
func (t *Task) HandleKill() {
	r := &t.tg.registry
	r.mu.Lock()
	var siblings []*Task
	if err := r.beginGroupExitLocked(); err == nil {
		t.tg.setExitStatusLocked(killedBy(linux.SIGKILL))
		siblings = r.snapshotLocked()
	}
	r.mu.Unlock()

	for _, s := range siblings {
		if s != t {
			s.forceKill()
		}
	}
	t.exit(killedBy(linux.SIGKILL))
}
