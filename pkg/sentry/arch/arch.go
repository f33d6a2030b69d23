// Package arch provides abstractions around architecture-dependent details,
// such as syscall calling conventions, native types, etc.
package arch

import (
	"fmt"

	"github.com/walteh/tgexec/pkg/hostarch"
)

// Registers is the general-purpose register file.
type Registers struct {
	Regs [16]uint64
	IP   uint64
	SP   uint64
}

// State is the floating-point state. An empty State is the state of a
// freshly initialized FPU.
type State []byte

// NewFloatingPointData returns a new floating point data blob.
func NewFloatingPointData() State {
	return make(State, 512)
}

// Context is the register state of a task.
//
// Context is owned by the task goroutine; other goroutines must not touch it.
type Context struct {
	Regs Registers

	// FPState is the floating-point register state.
	FPState State

	// TLS is the thread pointer.
	TLS uint64
}

// New returns a fresh Context.
func New() *Context {
	return &Context{FPState: NewFloatingPointData()}
}

// Fork returns an exact copy of this context.
func (c *Context) Fork() *Context {
	fp := make(State, len(c.FPState))
	copy(fp, c.FPState)
	return &Context{Regs: c.Regs, FPState: fp, TLS: c.TLS}
}

// IP returns the current instruction pointer.
func (c *Context) IP() uintptr {
	return uintptr(c.Regs.IP)
}

// SetIP sets the current instruction pointer.
func (c *Context) SetIP(value uintptr) {
	c.Regs.IP = uint64(value)
}

// Stack returns the current stack pointer.
func (c *Context) Stack() uintptr {
	return uintptr(c.Regs.SP)
}

// SetStack sets the current stack pointer.
func (c *Context) SetStack(value uintptr) {
	c.Regs.SP = uint64(value)
}

// SetTLS sets the thread pointer.
func (c *Context) SetTLS(value uintptr) {
	c.TLS = uint64(value)
}

// ResetForExec clears every register, the thread pointer and the FP state,
// then points execution at entry with the given stack.
func (c *Context) ResetForExec(entry, stack hostarch.Addr) {
	c.Regs = Registers{}
	c.FPState = NewFloatingPointData()
	c.TLS = 0
	c.SetIP(uintptr(entry))
	c.SetStack(uintptr(stack))
}

// String implements fmt.Stringer.String.
func (c *Context) String() string {
	return fmt.Sprintf("ip=%#x sp=%#x tls=%#x", c.Regs.IP, c.Regs.SP, c.TLS)
}

// SyscallArgument is an argument supplied to a syscall implementation. The
// methods used to access the arguments are named after the ***C type name***
// and they convert to the closest Go type available.
type SyscallArgument struct {
	// Prefer to use accessor methods instead of 'Value' directly.
	Value uintptr
}

// SyscallArguments represents the set of arguments passed to a syscall.
type SyscallArguments [6]SyscallArgument

// Pointer returns the hostarch.Addr representation of a pointer argument.
func (a SyscallArgument) Pointer() hostarch.Addr {
	return hostarch.Addr(a.Value)
}

// Int returns the int32 representation of a 32-bit signed integer argument.
func (a SyscallArgument) Int() int32 {
	return int32(a.Value)
}

// Uint returns the uint32 representation of a 32-bit unsigned integer argument.
func (a SyscallArgument) Uint() uint32 {
	return uint32(a.Value)
}
