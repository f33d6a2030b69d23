// Package mm provides a simulated application address space.
//
// A MemoryManager holds a set of non-overlapping anonymous mappings backed by
// Go byte slices. It is shared by every task in a thread group, so all methods
// are safe for concurrent use.
package mm

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/hostarch"
	"github.com/walteh/tgexec/pkg/sync"
)

const (
	// HeapBase is the start of the program break area. The initial break is
	// a fixed value rather than following the loaded segments.
	HeapBase hostarch.Addr = 0x4000_0000

	// HeapSize is the size of the heap mapping installed by Reset.
	HeapSize = 16 * hostarch.PageSize

	heapName = "[heap]"
)

type vma struct {
	start hostarch.Addr
	data  []byte
	name  string
}

func (v *vma) end() hostarch.Addr {
	return v.start + hostarch.Addr(len(v.data))
}

// MappingInfo describes one mapping, as a line of /proc/[pid]/maps would.
type MappingInfo struct {
	Start  hostarch.Addr
	Length uint64
	Name   string
}

// MemoryManager implements a virtual address space.
type MemoryManager struct {
	// mu protects all fields below.
	mu sync.Mutex

	// vmas is sorted by start address.
	vmas []*vma

	// brk is the current program break.
	brk hostarch.Addr

	// resets counts calls to Reset.
	resets int
}

// NewMemoryManager returns a MemoryManager containing only the heap.
func NewMemoryManager() *MemoryManager {
	mm := &MemoryManager{}
	mm.resetLocked()
	return mm
}

func (mm *MemoryManager) resetLocked() {
	mm.vmas = []*vma{{start: HeapBase, data: make([]byte, HeapSize), name: heapName}}
	mm.brk = HeapBase
}

// Reset discards every mapping and remaps a fresh heap. It is used by execve
// to tear down the previous image.
func (mm *MemoryManager) Reset() {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.resetLocked()
	mm.resets++
}

// Resets returns the number of times Reset was called.
func (mm *MemoryManager) Resets() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.resets
}

// Brk returns the current program break.
func (mm *MemoryManager) Brk() hostarch.Addr {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.brk
}

// MMap installs a zero-filled mapping of length bytes at addr. addr and
// length must be page aligned and must not overlap an existing mapping.
func (mm *MemoryManager) MMap(addr hostarch.Addr, length uint64, name string) error {
	if addr.RoundDown() != addr || length == 0 || length%hostarch.PageSize != 0 {
		return linuxerr.WithMessage(linuxerr.EINVAL, fmt.Sprintf("unaligned mapping %v+%#x", addr, length))
	}
	end, ok := addr.AddLength(length)
	if !ok {
		return linuxerr.WithMessage(linuxerr.ENOMEM, "mapping wraps the address space")
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	for _, v := range mm.vmas {
		if addr < v.end() && v.start < end {
			return linuxerr.WithMessage(linuxerr.ENOMEM, fmt.Sprintf("mapping %v-%v overlaps %s", addr, end, v.name))
		}
	}
	mm.vmas = append(mm.vmas, &vma{start: addr, data: make([]byte, length), name: name})
	sort.Slice(mm.vmas, func(i, j int) bool { return mm.vmas[i].start < mm.vmas[j].start })
	return nil
}

// Mappings returns the current mappings in address order.
func (mm *MemoryManager) Mappings() []MappingInfo {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	infos := make([]MappingInfo, 0, len(mm.vmas))
	for _, v := range mm.vmas {
		infos = append(infos, MappingInfo{Start: v.start, Length: uint64(len(v.data)), Name: v.name})
	}
	return infos
}

// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) findLocked(addr hostarch.Addr) *vma {
	i := sort.Search(len(mm.vmas), func(i int) bool { return mm.vmas[i].end() > addr })
	if i < len(mm.vmas) && mm.vmas[i].start <= addr {
		return mm.vmas[i]
	}
	return nil
}

// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) copyLocked(addr hostarch.Addr, b []byte, out bool) (int, error) {
	done := 0
	for done < len(b) {
		cur, ok := addr.AddLength(uint64(done))
		if !ok {
			return done, linuxerr.EFAULT
		}
		v := mm.findLocked(cur)
		if v == nil {
			return done, linuxerr.EFAULT
		}
		off := cur - v.start
		var n int
		if out {
			n = copy(v.data[off:], b[done:])
		} else {
			n = copy(b[done:], v.data[off:])
		}
		done += n
	}
	return done, nil
}

// CopyIn copies len(dst) bytes starting at addr into dst.
func (mm *MemoryManager) CopyIn(addr hostarch.Addr, dst []byte) (int, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.copyLocked(addr, dst, false)
}

// CopyOut copies src to the application address space starting at addr.
func (mm *MemoryManager) CopyOut(addr hostarch.Addr, src []byte) (int, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.copyLocked(addr, src, true)
}

// CopyInAddr reads a 64-bit little-endian pointer at addr.
func (mm *MemoryManager) CopyInAddr(addr hostarch.Addr) (hostarch.Addr, error) {
	var buf [8]byte
	if _, err := mm.CopyIn(addr, buf[:]); err != nil {
		return 0, err
	}
	return hostarch.Addr(binary.LittleEndian.Uint64(buf[:])), nil
}

// CopyOutAddr writes a 64-bit little-endian pointer at addr.
func (mm *MemoryManager) CopyOutAddr(addr, value hostarch.Addr) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	_, err := mm.CopyOut(addr, buf[:])
	return err
}

// CopyInString copies a NUL-terminated string of length at most maxlen from
// addr. maxlen counts the terminating NUL, so the returned string is at most
// maxlen-1 bytes long. If no NUL is found within maxlen bytes, CopyInString
// returns ENAMETOOLONG.
func (mm *MemoryManager) CopyInString(addr hostarch.Addr, maxlen int) (string, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	buf := make([]byte, 0, 64)
	var b [1]byte
	for i := 0; i < maxlen; i++ {
		cur, ok := addr.AddLength(uint64(i))
		if !ok {
			return "", linuxerr.EFAULT
		}
		if _, err := mm.copyLocked(cur, b[:], false); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", linuxerr.ENAMETOOLONG
}

// VectorLimits bounds CopyInVector.
type VectorLimits struct {
	// MaxElems is the maximum number of strings.
	MaxElems int

	// MaxElemLen is the maximum size of a single string, including its NUL.
	MaxElemLen int

	// MaxTotal is the maximum combined size of all strings, including their
	// NULs. Zero means unbounded.
	MaxTotal int
}

// CopyInVector copies a NULL-terminated array of pointers to NUL-terminated
// strings, as passed for argv and envp. A NULL array is an empty vector.
//
// Exceeding any of the limits returns E2BIG. Nothing outside the returned
// slice is modified, so a failed copy has no side effects.
func (mm *MemoryManager) CopyInVector(addr hostarch.Addr, limits VectorLimits) ([]string, error) {
	if addr == 0 {
		return nil, nil
	}
	var (
		vec   []string
		total int
	)
	for i := 0; ; i++ {
		ptrAddr, ok := addr.AddLength(uint64(i) * 8)
		if !ok {
			return nil, linuxerr.EFAULT
		}
		ptr, err := mm.CopyInAddr(ptrAddr)
		if err != nil {
			return nil, err
		}
		if ptr == 0 {
			return vec, nil
		}
		if i >= limits.MaxElems {
			return nil, linuxerr.WithMessage(linuxerr.E2BIG, "there are too many arguments")
		}
		s, err := mm.CopyInString(ptr, limits.MaxElemLen)
		if err != nil {
			if linuxerr.Equals(linuxerr.ENAMETOOLONG, err) {
				return nil, linuxerr.WithMessage(linuxerr.E2BIG, "there are too many bytes in the argument")
			}
			return nil, err
		}
		total += len(s) + 1
		if limits.MaxTotal > 0 && total > limits.MaxTotal {
			return nil, linuxerr.WithMessage(linuxerr.E2BIG, "the arguments exceed the total size limit")
		}
		vec = append(vec, s)
	}
}
