// Package hostarch contains address types and page size helpers.
package hostarch

import "fmt"

// Addr represents a user virtual address.
type Addr uintptr

const (
	// PageShift is the binary log of PageSize.
	PageShift = 12

	// PageSize is the system page size.
	PageSize = 1 << PageShift
)

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the range of Addr.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	end = v + Addr(length)
	ok = uint64(end) >= uint64(v) && uint64(Addr(length)) == length
	return
}

// RoundDown returns the address rounded down to the nearest page boundary.
func (v Addr) RoundDown() Addr {
	return v &^ (PageSize - 1)
}

// RoundUp is equivalent to function PageRoundUp.
func (v Addr) RoundUp() (Addr, bool) {
	addr := (v + PageSize - 1).RoundDown()
	return addr, addr >= v
}

// String implements fmt.Stringer.String.
func (v Addr) String() string {
	return fmt.Sprintf("%#x", uintptr(v))
}
