// Package linuxerr contains syscall error codes exported as error interface
// instances.
package linuxerr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// The errno values returned by the sentry. They are plain unix.Errno values
// so that errors.Is matches them through wrapping.
var (
	E2BIG        error = unix.E2BIG
	EACCES       error = unix.EACCES
	EAGAIN       error = unix.EAGAIN
	EBADF        error = unix.EBADF
	EFAULT       error = unix.EFAULT
	EINVAL       error = unix.EINVAL
	EIO          error = unix.EIO
	ELOOP        error = unix.ELOOP
	ENAMETOOLONG error = unix.ENAMETOOLONG
	ENOENT       error = unix.ENOENT
	ENOEXEC      error = unix.ENOEXEC
	ENOMEM       error = unix.ENOMEM
	ENOSYS       error = unix.ENOSYS
	ENOTDIR      error = unix.ENOTDIR
	EPERM        error = unix.EPERM
	ESRCH        error = unix.ESRCH
)

// Error is an errno annotated with a message for logs.
type Error struct {
	errno unix.Errno
	msg   string
}

// Error implements error.Error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.errno.Error())
}

// Unwrap returns the errno.
func (e *Error) Unwrap() error {
	return e.errno
}

// Errno returns the errno.
func (e *Error) Errno() unix.Errno {
	return e.errno
}

// WithMessage annotates errno. The result still matches errno under
// errors.Is and Equals.
func WithMessage(errno error, msg string) error {
	var en unix.Errno
	if !errors.As(errno, &en) {
		panic(fmt.Sprintf("linuxerr.WithMessage called with non-errno %v", errno))
	}
	return &Error{errno: en, msg: msg}
}

// Equals returns true if err carries the errno e.
func Equals(e, err error) bool {
	if err == nil {
		return e == nil
	}
	return errors.Is(err, e)
}

// ToErrno returns the errno carried by err, or EINVAL paired with ok == false
// if err carries none.
func ToErrno(err error) (unix.Errno, bool) {
	var en unix.Errno
	if errors.As(err, &en) {
		return en, true
	}
	return unix.EINVAL, false
}
