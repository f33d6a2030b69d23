package linux

import (
	"path"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/hostarch"
	"github.com/walteh/tgexec/pkg/sentry/arch"
	"github.com/walteh/tgexec/pkg/sentry/kernel"
)

// Execve implements linux syscall execve(2).
func Execve(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	filenameAddr := args[0].Pointer()
	argvAddr := args[1].Pointer()
	envvAddr := args[2].Pointer()
	return execveat(t, linux.AT_FDCWD, filenameAddr, argvAddr, envvAddr, 0)
}

// Execveat implements linux syscall execveat(2).
func Execveat(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	dirFD := args[0].Int()
	pathnameAddr := args[1].Pointer()
	argvAddr := args[2].Pointer()
	envvAddr := args[3].Pointer()
	flags := args[4].Int()
	return execveat(t, dirFD, pathnameAddr, argvAddr, envvAddr, flags)
}

func execveat(t *kernel.Task, dirFD int32, pathnameAddr, argvAddr, envvAddr hostarch.Addr, flags int32) (uintptr, error) {
	if flags&^(linux.AT_EMPTY_PATH|linux.AT_SYMLINK_NOFOLLOW) != 0 {
		return 0, linuxerr.EINVAL
	}

	pathname, err := t.MemoryManager().CopyInString(pathnameAddr, t.Kernel().Config().MaxPathLen)
	if err != nil {
		return 0, err
	}

	ea := kernel.ExecArgs{
		Pathname:     pathname,
		ResolveFinal: flags&linux.AT_SYMLINK_NOFOLLOW == 0,
		Argv:         argvAddr,
		Envv:         envvAddr,
	}
	switch {
	case pathname == "":
		// Linux returns ENOENT for an empty path unless AT_EMPTY_PATH asks
		// for dirFD itself.
		if flags&linux.AT_EMPTY_PATH == 0 {
			return 0, linuxerr.ENOENT
		}
		file, _ := t.FDTable().GetRef(dirFD)
		if file == nil {
			return 0, linuxerr.EBADF
		}
		defer file.DecRef()
		ea.File = file
	case !path.IsAbs(pathname) && dirFD != linux.AT_FDCWD:
		dir, _ := t.FDTable().GetRef(dirFD)
		if dir == nil {
			return 0, linuxerr.EBADF
		}
		defer dir.DecRef()
		if !dir.Inode().IsDir() {
			return 0, linuxerr.ENOTDIR
		}
		ea.Dir = dir.Path()
	}

	// On success the task's registers hold the new program's entry state,
	// so the return value is not observed.
	return 0, t.Execve(ea)
}

// Exit implements linux syscall exit(2).
func Exit(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	status := args[0].Int()
	t.Exit(kernel.ExitStatus{Code: int(status & 0xff)})
	return 0, nil
}

// ExitGroup implements linux syscall exit_group(2).
func ExitGroup(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	status := args[0].Int()
	t.ExitGroup(kernel.ExitStatus{Code: int(status & 0xff)})
	return 0, nil
}

// Getpid implements linux syscall getpid(2).
func Getpid(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	return uintptr(t.ThreadGroup().ID()), nil
}

// Gettid implements linux syscall gettid(2).
func Gettid(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	return uintptr(t.ThreadID()), nil
}
