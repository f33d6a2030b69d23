package kernel

import (
	"fmt"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/sentry/vfs"
	"github.com/walteh/tgexec/pkg/sync"
)

// FDFlags define flags for an individual descriptor.
type FDFlags struct {
	// CloseOnExec indicates the descriptor should be closed on exec.
	CloseOnExec bool
}

type descriptor struct {
	file  *vfs.FileDescription
	flags FDFlags
}

// FDTable is a table of file descriptors, shared between tasks by reference
// counting as CLONE_FILES does.
type FDTable struct {
	refs atomic.Int64

	mu sync.Mutex

	// descriptors maps descriptor numbers to open files. Each entry holds a
	// reference on its file.
	//
	// descriptors is protected by mu.
	descriptors map[int32]descriptor
}

// NewFDTable returns an empty table with one reference.
func NewFDTable() *FDTable {
	f := &FDTable{descriptors: make(map[int32]descriptor)}
	f.refs.Store(1)
	return f
}

// IncRef takes a reference on f.
func (f *FDTable) IncRef() {
	if f.refs.Add(1) <= 1 {
		panic("FDTable.IncRef on a released table")
	}
}

// DecRef drops a reference on f, closing every descriptor when the last
// reference is dropped.
func (f *FDTable) DecRef() {
	switch n := f.refs.Add(-1); {
	case n < 0:
		panic(fmt.Sprintf("FDTable reference count dropped to %d", n))
	case n == 0:
		f.RemoveIf(func(int32, *vfs.FileDescription, FDFlags) bool { return true })
	}
}

// ReadRefs returns the current number of references.
func (f *FDTable) ReadRefs() int64 {
	return f.refs.Load()
}

// NewFD installs file at the lowest free descriptor not less than minFD,
// taking a reference on it.
func (f *FDTable) NewFD(minFD int32, file *vfs.FileDescription, flags FDFlags) (int32, error) {
	if minFD < 0 {
		return -1, linuxerr.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fd := minFD
	for {
		if _, ok := f.descriptors[fd]; !ok {
			break
		}
		fd++
	}
	file.IncRef()
	f.descriptors[fd] = descriptor{file: file, flags: flags}
	return fd, nil
}

// Get returns the file at fd without taking a reference, or nil.
func (f *FDTable) Get(fd int32) (*vfs.FileDescription, FDFlags) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.descriptors[fd]
	if !ok {
		return nil, FDFlags{}
	}
	return d.file, d.flags
}

// GetRef is Get, but takes a reference on the returned file.
func (f *FDTable) GetRef(fd int32) (*vfs.FileDescription, FDFlags) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.descriptors[fd]
	if !ok {
		return nil, FDFlags{}
	}
	d.file.IncRef()
	return d.file, d.flags
}

// Remove closes fd.
func (f *FDTable) Remove(fd int32) error {
	f.mu.Lock()
	d, ok := f.descriptors[fd]
	delete(f.descriptors, fd)
	f.mu.Unlock()
	if !ok {
		return linuxerr.EBADF
	}
	d.file.DecRef()
	return nil
}

// RemoveIf closes every descriptor for which cond returns true.
func (f *FDTable) RemoveIf(cond func(fd int32, file *vfs.FileDescription, flags FDFlags) bool) {
	var closed []*vfs.FileDescription
	f.mu.Lock()
	for fd, d := range f.descriptors {
		if cond(fd, d.file, d.flags) {
			delete(f.descriptors, fd)
			closed = append(closed, d.file)
		}
	}
	f.mu.Unlock()

	// Files are released outside mu.
	for _, file := range closed {
		file.DecRef()
	}
}

// FDs returns the open descriptors in ascending order.
func (f *FDTable) FDs() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.descriptors))
}

// Fork returns an independent copy of f with one reference.
func (f *FDTable) Fork() *FDTable {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := NewFDTable()
	for fd, d := range f.descriptors {
		d.file.IncRef()
		clone.descriptors[fd] = d
	}
	return clone
}
