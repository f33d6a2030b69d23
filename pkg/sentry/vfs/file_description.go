package vfs

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
)

// FileDescription is an open file.
type FileDescription struct {
	path  string
	inode *Inode

	// refs is the reference count. The description is released when it
	// drops to zero.
	refs atomic.Int64
}

func newFileDescription(p string, ino *Inode) *FileDescription {
	fd := &FileDescription{path: p, inode: ino}
	fd.refs.Store(1)
	return fd
}

// Path returns the absolute path the description was opened with, after
// symbolic link resolution.
func (fd *FileDescription) Path() string {
	return fd.path
}

// Inode returns the opened inode.
func (fd *FileDescription) Inode() *Inode {
	return fd.inode
}

// Size returns the file size.
func (fd *FileDescription) Size() int64 {
	return int64(len(fd.inode.Data))
}

// ReaderAt returns a reader over the file contents.
func (fd *FileDescription) ReaderAt() io.ReaderAt {
	return bytes.NewReader(fd.inode.Data)
}

// IncRef takes a reference.
func (fd *FileDescription) IncRef() {
	if fd.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("IncRef on released file description %q", fd.path))
	}
}

// DecRef drops a reference.
func (fd *FileDescription) DecRef() {
	if n := fd.refs.Add(-1); n < 0 {
		panic(fmt.Sprintf("DecRef on released file description %q", fd.path))
	}
}

// ReadRefs returns the current reference count.
func (fd *FileDescription) ReadRefs() int64 {
	return fd.refs.Load()
}

// Released returns true once the last reference has been dropped.
func (fd *FileDescription) Released() bool {
	return fd.refs.Load() == 0
}
