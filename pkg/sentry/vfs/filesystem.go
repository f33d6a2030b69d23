// Package vfs implements a minimal in-memory filesystem.
//
// Only what execve needs is modelled: a tree of directories, regular files
// and symbolic links addressed by path, and reference-counted open file
// descriptions. Paths are cleaned lexically before they are walked.
package vfs

import (
	"fmt"
	"path"
	"strings"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/sentry/kernel/auth"
	"github.com/walteh/tgexec/pkg/sync"
)

// maxSymlinkTraversals is the limit on symlinks followed by one lookup.
const maxSymlinkTraversals = 40

// Inode is a file, directory or symbolic link.
//
// Inodes are immutable once installed in a Filesystem.
type Inode struct {
	// Mode is the file type and permission bits.
	Mode uint32

	// UID and GID own the file.
	UID auth.KUID
	GID auth.KGID

	// Data is the content of a regular file.
	Data []byte

	// Target is the target of a symbolic link.
	Target string
}

// IsDir returns true if the inode is a directory.
func (i *Inode) IsDir() bool {
	return i.Mode&linux.S_IFMT == linux.S_IFDIR
}

// IsRegular returns true if the inode is a regular file.
func (i *Inode) IsRegular() bool {
	return i.Mode&linux.S_IFMT == linux.S_IFREG
}

// IsSymlink returns true if the inode is a symbolic link.
func (i *Inode) IsSymlink() bool {
	return i.Mode&linux.S_IFMT == linux.S_IFLNK
}

// Filesystem is an in-memory tree keyed by cleaned absolute path.
type Filesystem struct {
	mu     sync.RWMutex
	inodes map[string]*Inode
}

// New returns a Filesystem containing only the root directory.
func New() *Filesystem {
	return &Filesystem{
		inodes: map[string]*Inode{
			"/": {Mode: linux.S_IFDIR | 0o755},
		},
	}
}

func (fs *Filesystem) install(p string, ino *Inode) error {
	p = path.Clean("/" + p)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, ok := fs.inodes[path.Dir(p)]
	if !ok {
		return linuxerr.WithMessage(linuxerr.ENOENT, fmt.Sprintf("parent of %q does not exist", p))
	}
	if !parent.IsDir() {
		return linuxerr.WithMessage(linuxerr.ENOTDIR, fmt.Sprintf("parent of %q is not a directory", p))
	}
	fs.inodes[p] = ino
	return nil
}

// MkdirAll creates a directory and any missing parents.
func (fs *Filesystem) MkdirAll(p string, perm uint32) error {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	if err := fs.MkdirAll(path.Dir(p), perm); err != nil {
		return err
	}
	fs.mu.RLock()
	existing, ok := fs.inodes[p]
	fs.mu.RUnlock()
	if ok {
		if !existing.IsDir() {
			return linuxerr.WithMessage(linuxerr.ENOTDIR, fmt.Sprintf("%q exists and is not a directory", p))
		}
		return nil
	}
	return fs.install(p, &Inode{Mode: linux.S_IFDIR | perm&linux.ModeMask})
}

// WriteFile installs a regular file, replacing any existing file at p.
func (fs *Filesystem) WriteFile(p string, data []byte, perm uint32, uid auth.KUID, gid auth.KGID) error {
	return fs.install(p, &Inode{
		Mode: linux.S_IFREG | perm&linux.ModeMask,
		UID:  uid,
		GID:  gid,
		Data: append([]byte(nil), data...),
	})
}

// Symlink installs a symbolic link at p pointing to target.
func (fs *Filesystem) Symlink(target, p string) error {
	return fs.install(p, &Inode{Mode: linux.S_IFLNK | 0o777, Target: target})
}

// Lookup resolves p relative to cwd. Intermediate symbolic links are always
// followed; the final component is followed iff followFinal. It returns the
// resolved absolute path and its inode.
func (fs *Filesystem) Lookup(cwd, p string, followFinal bool) (string, *Inode, error) {
	if p == "" {
		return "", nil, linuxerr.ENOENT
	}
	if !path.IsAbs(p) {
		p = path.Join(cwd, p)
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.walkLocked(path.Clean(p), followFinal, 0)
}

// Preconditions: fs.mu must be locked.
func (fs *Filesystem) walkLocked(p string, followFinal bool, traversals int) (string, *Inode, error) {
	cur := "/"
	comps := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if p == "/" {
		comps = nil
	}
	for i, comp := range comps {
		if dir := fs.inodes[cur]; !dir.IsDir() {
			return "", nil, linuxerr.WithMessage(linuxerr.ENOTDIR, fmt.Sprintf("%q is not a directory", cur))
		}
		next := path.Join(cur, comp)
		ino, ok := fs.inodes[next]
		if !ok {
			return "", nil, linuxerr.WithMessage(linuxerr.ENOENT, fmt.Sprintf("%q does not exist", next))
		}
		last := i == len(comps)-1
		if ino.IsSymlink() && (!last || followFinal) {
			traversals++
			if traversals > maxSymlinkTraversals {
				return "", nil, linuxerr.ELOOP
			}
			target := ino.Target
			if !path.IsAbs(target) {
				target = path.Join(cur, target)
			}
			rest := path.Join(append([]string{target}, comps[i+1:]...)...)
			return fs.walkLocked(path.Clean(rest), followFinal, traversals)
		}
		cur = next
	}
	return cur, fs.inodes[cur], nil
}

// Open resolves p and returns a new file description for it with one
// reference.
func (fs *Filesystem) Open(cwd, p string, followFinal bool) (*FileDescription, error) {
	abs, ino, err := fs.Lookup(cwd, p, followFinal)
	if err != nil {
		return nil, err
	}
	return newFileDescription(abs, ino), nil
}

// OpenExecutable resolves p for execution by creds. The result must be a
// regular file that creds may execute.
func (fs *Filesystem) OpenExecutable(creds *auth.Credentials, cwd, p string, followFinal bool) (*FileDescription, error) {
	fd, err := fs.Open(cwd, p, followFinal)
	if err != nil {
		return nil, err
	}
	if err := CheckExecutable(creds, fd.Inode()); err != nil {
		fd.DecRef()
		return nil, err
	}
	return fd, nil
}

// CheckExecutable returns nil if creds may execute ino.
func CheckExecutable(creds *auth.Credentials, ino *Inode) error {
	switch {
	case ino.IsSymlink():
		return linuxerr.WithMessage(linuxerr.ELOOP, "the executable is a symbolic link")
	case ino.IsDir():
		return linuxerr.WithMessage(linuxerr.EACCES, "the executable is a directory")
	case !ino.IsRegular():
		return linuxerr.WithMessage(linuxerr.EACCES, "the executable is not a regular file")
	}

	var bit uint32
	switch {
	case creds.EffectiveKUID == auth.RootKUID:
		// The superuser may execute anything with at least one execute bit.
		bit = linux.S_IXUSR | linux.S_IXGRP | linux.S_IXOTH
	case creds.EffectiveKUID == ino.UID:
		bit = linux.S_IXUSR
	case creds.InGroup(ino.GID):
		bit = linux.S_IXGRP
	default:
		bit = linux.S_IXOTH
	}
	if ino.Mode&bit == 0 {
		return linuxerr.WithMessage(linuxerr.EACCES, "execute permission denied")
	}
	return nil
}
