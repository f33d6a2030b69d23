package linux

import (
	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/sentry/arch"
	"github.com/walteh/tgexec/pkg/sentry/kernel"
)

// Kill implements linux syscall kill(2). Only positive process IDs are
// supported; there are no process groups.
func Kill(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	pid := kernel.ThreadID(args[0].Int())
	sig := linux.Signal(args[1].Int())
	if pid <= 0 {
		return 0, linuxerr.EINVAL
	}
	info := linux.SignalInfo{
		Signo: sig,
		Code:  linux.SI_USER,
		PID:   int32(t.ThreadGroup().ID()),
	}
	return 0, t.Kernel().Kill(pid, info)
}

// Tkill implements linux syscall tkill(2).
func Tkill(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	tid := kernel.ThreadID(args[0].Int())
	sig := linux.Signal(args[1].Int())

	// N.B. Inconsistent with man page, linux actually rejects calls with
	// tid <= 0 by EINVAL. This isn't the same for all signal calls.
	if tid <= 0 {
		return 0, linuxerr.EINVAL
	}
	info := linux.SignalInfo{
		Signo: sig,
		Code:  linux.SI_TKILL,
		PID:   int32(t.ThreadGroup().ID()),
	}
	return 0, t.Kernel().Tkill(tid, info)
}
