// Package linux contains the constants and types needed to interface with a
// Linux application.
package linux

import "fmt"

// Signal is a signal number.
type Signal int

// Signals, as numbered on Linux regardless of the host.
const (
	SIGHUP  = Signal(1)
	SIGINT  = Signal(2)
	SIGKILL = Signal(9)
	SIGUSR1 = Signal(10)
	SIGUSR2 = Signal(12)
	SIGTERM = Signal(15)
	SIGCHLD = Signal(17)
	SIGSTOP = Signal(19)

	// SignalMaximum is the highest valid signal number.
	SignalMaximum = Signal(64)
)

var signalNames = map[Signal]string{
	SIGHUP:  "SIGHUP",
	SIGINT:  "SIGINT",
	SIGKILL: "SIGKILL",
	SIGUSR1: "SIGUSR1",
	SIGUSR2: "SIGUSR2",
	SIGTERM: "SIGTERM",
	SIGCHLD: "SIGCHLD",
	SIGSTOP: "SIGSTOP",
}

// IsValid returns true if s is a valid standard or realtime signal. (0 is not
// considered valid; interfaces special-casing signal number 0 should check for
// 0 first before asserting validity.)
func (s Signal) IsValid() bool {
	return s > 0 && s <= SignalMaximum
}

// String implements fmt.Stringer.String.
func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return fmt.Sprintf("signal %d", int(s))
}

// SignalSet is a signal mask with a bit corresponding to each signal.
type SignalSet uint64

// MakeSignalSet returns SignalSet with the bit corresponding to each of the
// given signals set.
func MakeSignalSet(sigs ...Signal) SignalSet {
	var set SignalSet
	for _, sig := range sigs {
		set |= SignalSetOf(sig)
	}
	return set
}

// SignalSetOf returns a SignalSet with a single signal set.
func SignalSetOf(sig Signal) SignalSet {
	return SignalSet(1) << uint(sig-1)
}

// Has returns true if sig is in the set.
func (s SignalSet) Has(sig Signal) bool {
	return s&SignalSetOf(sig) != 0
}

// UnblockableSignals contains the set of signals which cannot be blocked.
var UnblockableSignals = MakeSignalSet(SIGKILL, SIGSTOP)

// Signal dispositions.
const (
	SIG_DFL = 0
	SIG_IGN = 1
)

// Signal action flags for rt_sigaction(2).
const (
	SA_SIGINFO = 0x00000004
	SA_ONSTACK = 0x08000000
	SA_RESTART = 0x10000000
)

// SigAction represents struct sigaction.
type SigAction struct {
	Handler uint64
	Flags   uint64
	Mask    SignalSet
}

// IsIgnored returns true if the action ignores the signal.
func (a SigAction) IsIgnored() bool {
	return a.Handler == SIG_IGN
}

// IsDefault returns true if the action is the default one.
func (a SigAction) IsDefault() bool {
	return a.Handler == SIG_DFL
}

// Signal info codes (si_code).
const (
	// SI_USER is sent by kill, sigsend, raise.
	SI_USER = 0

	// SI_KERNEL is sent by the kernel.
	SI_KERNEL = 0x80

	// SI_TKILL is sent by tkill system call.
	SI_TKILL = -6
)

// SignalInfo is a reduced siginfo_t.
type SignalInfo struct {
	Signo Signal
	Code  int32
	// PID is the sender, zero for kernel-originated signals.
	PID int32
}

// Signal stack flags for sigaltstack(2).
const (
	SS_ONSTACK = 1
	SS_DISABLE = 2
)

// SignalStack represents information about a user stack, and is equivalent to
// stack_t.
type SignalStack struct {
	Addr  uint64
	Flags uint32
	Size  uint64
}

// IsEnabled returns true iff this signal stack is marked as enabled.
func (s SignalStack) IsEnabled() bool {
	return s.Flags&SS_DISABLE == 0
}

// DefaultSignalStack is the state of a thread that never called sigaltstack.
var DefaultSignalStack = SignalStack{Flags: SS_DISABLE}
