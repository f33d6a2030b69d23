package linuxerr

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestWithMessageMatchesErrno(t *testing.T) {
	err := WithMessage(EAGAIN, "another execve is in progress")
	if !Equals(EAGAIN, err) {
		t.Errorf("Equals(EAGAIN, %v) = false", err)
	}
	if Equals(E2BIG, err) {
		t.Errorf("Equals(E2BIG, %v) = true", err)
	}
	wrapped := fmt.Errorf("execve: %w", err)
	if en, ok := ToErrno(wrapped); !ok || en != unix.EAGAIN {
		t.Errorf("ToErrno(%v) = %v, %v; want EAGAIN, true", wrapped, en, ok)
	}
}

func TestToErrnoForeign(t *testing.T) {
	if _, ok := ToErrno(fmt.Errorf("plain")); ok {
		t.Errorf("ToErrno on a plain error reported ok")
	}
}
