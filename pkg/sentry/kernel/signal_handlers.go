package kernel

import (
	"maps"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/sync"
)

// SignalHandlers holds a thread group's signal dispositions.
type SignalHandlers struct {
	mu sync.Mutex

	// actions maps signals to their dispositions. Absent signals have the
	// default action.
	//
	// actions is protected by mu.
	actions map[linux.Signal]linux.SigAction
}

// NewSignalHandlers returns a SignalHandlers with every action set to the
// default.
func NewSignalHandlers() *SignalHandlers {
	return &SignalHandlers{actions: make(map[linux.Signal]linux.SigAction)}
}

// SetAction implements the setting half of rt_sigaction(2), returning the
// previous action.
func (sh *SignalHandlers) SetAction(sig linux.Signal, act linux.SigAction) (linux.SigAction, error) {
	if !sig.IsValid() || linux.UnblockableSignals.Has(sig) {
		return linux.SigAction{}, linuxerr.EINVAL
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	old := sh.actions[sig]
	if act.IsDefault() && act.Flags == 0 && act.Mask == 0 {
		delete(sh.actions, sig)
	} else {
		sh.actions[sig] = act
	}
	return old, nil
}

// Action returns the disposition of sig.
func (sh *SignalHandlers) Action(sig linux.Signal) linux.SigAction {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.actions[sig]
}

// Fork returns a copy of sh.
func (sh *SignalHandlers) Fork() *SignalHandlers {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return &SignalHandlers{actions: maps.Clone(sh.actions)}
}

// CopyForExec returns the dispositions after an execve: caught signals
// revert to the default action and ignored signals stay ignored. Flags and
// masks are cleared, since they refer to handlers in the old image.
func (sh *SignalHandlers) CopyForExec() *SignalHandlers {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	nsh := NewSignalHandlers()
	for sig, act := range sh.actions {
		if act.IsIgnored() {
			nsh.actions[sig] = linux.SigAction{Handler: linux.SIG_IGN}
		}
	}
	return nsh
}
