// Package linux provides syscall tables for amd64 Linux.
package linux

import (
	"fmt"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/sentry/arch"
	"github.com/walteh/tgexec/pkg/sentry/kernel"
)

// SyscallFn is a syscall implementation.
type SyscallFn func(t *kernel.Task, args arch.SyscallArguments) (uintptr, error)

// Syscall describes a system call.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation.
	Fn SyscallFn
}

// AMD64 is the syscall table, indexed by syscall number.
var AMD64 = map[uintptr]Syscall{
	linux.SYS_GETPID:     {Name: "getpid", Fn: Getpid},
	linux.SYS_EXECVE:     {Name: "execve", Fn: Execve},
	linux.SYS_EXIT:       {Name: "exit", Fn: Exit},
	linux.SYS_KILL:       {Name: "kill", Fn: Kill},
	linux.SYS_GETTID:     {Name: "gettid", Fn: Gettid},
	linux.SYS_TKILL:      {Name: "tkill", Fn: Tkill},
	linux.SYS_EXIT_GROUP: {Name: "exit_group", Fn: ExitGroup},
	linux.SYS_EXECVEAT:   {Name: "execveat", Fn: Execveat},
}

// Dispatch invokes syscall sysno on behalf of t.
func Dispatch(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	s, ok := AMD64[sysno]
	if !ok {
		t.Warningf("Unsupported syscall %d", sysno)
		return 0, linuxerr.WithMessage(linuxerr.ENOSYS, fmt.Sprintf("syscall %d is not implemented", sysno))
	}
	rv, err := s.Fn(t, args)
	if err != nil {
		t.Debugf("%s returned error: %v", s.Name, err)
	}
	return rv, err
}
