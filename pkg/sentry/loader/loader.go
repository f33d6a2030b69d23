// Package loader loads an executable file into a MemoryManager.
//
// Loading happens in two steps. Prepare inspects the file and resolves any
// interpreter without touching the caller's address space, so it may fail
// with an ordinary error. Program.Load then populates a freshly reset address
// space and builds the initial stack; once execve calls it the old image is
// already gone.
package loader

import (
	"fmt"
	"io"

	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/hostarch"
	"github.com/walteh/tgexec/pkg/sentry/mm"
	"github.com/walteh/tgexec/pkg/sentry/vfs"
	"github.com/walteh/tgexec/pkg/sync"
)

// headerSize is the number of bytes read to identify a format.
const headerSize = 256

// DefaultMaxInterpreterDepth bounds "#!" interpreter chains.
const DefaultMaxInterpreterDepth = 4

// ImageInfo is the result of loading a program.
type ImageInfo struct {
	// Entry is the initial instruction pointer.
	Entry hostarch.Addr

	// StackTop is the initial stack pointer, pointing at argc.
	StackTop hostarch.Addr

	// Argv is the argument vector placed on the stack.
	Argv []string
}

// PrepareArgs holds the arguments to Prepare.
type PrepareArgs struct {
	// File is the executable. Prepare does not take ownership of it.
	File *vfs.FileDescription

	// Argv and Envv are the argument and environment vectors.
	Argv []string
	Envv []string

	// OpenInterpreter opens the interpreter named by a "#!" line. The
	// returned file is owned by the resulting Program.
	OpenInterpreter func(path string) (*vfs.FileDescription, error)

	// MaxInterpreterDepth bounds nested "#!" interpreters. Zero selects
	// DefaultMaxInterpreterDepth.
	MaxInterpreterDepth int
}

// Image is a program ready to be loaded.
type Image interface {
	// Load maps the program into m, which must have just been reset, and
	// returns its entry point and initial stack.
	Load(m *mm.MemoryManager) (ImageInfo, error)

	// Release drops any files held by the image.
	Release()
}

// Format recognizes and prepares one kind of executable.
type Format interface {
	// Match returns true if header identifies this format.
	Match(header []byte) bool

	// Prepare returns a loadable image for file. depth is the number of
	// interpreters already traversed.
	Prepare(args *PrepareArgs, file *vfs.FileDescription, depth int) (Image, error)
}

var (
	formatsMu sync.RWMutex
	formats   []namedFormat
)

type namedFormat struct {
	name string
	Format
}

// RegisterFormat makes a format available to Prepare. It is called from
// init functions; registering the same name twice panics.
func RegisterFormat(name string, f Format) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	for _, nf := range formats {
		if nf.name == name {
			panic(fmt.Sprintf("executable format %q registered twice", name))
		}
	}
	formats = append(formats, namedFormat{name: name, Format: f})
}

// Prepare identifies args.File and prepares it for loading. It has no side
// effects other than opening interpreter files, which the returned Image
// owns.
func Prepare(args PrepareArgs) (Image, error) {
	if args.MaxInterpreterDepth == 0 {
		args.MaxInterpreterDepth = DefaultMaxInterpreterDepth
	}
	return prepare(&args, args.File, 0)
}

func prepare(args *PrepareArgs, file *vfs.FileDescription, depth int) (Image, error) {
	header := make([]byte, headerSize)
	n, err := file.ReaderAt().ReadAt(header, 0)
	if err != nil && err != io.EOF {
		return nil, linuxerr.WithMessage(linuxerr.EIO, fmt.Sprintf("reading header of %q: %v", file.Path(), err))
	}
	header = header[:n]

	formatsMu.RLock()
	defer formatsMu.RUnlock()
	for _, f := range formats {
		if f.Match(header) {
			return f.Prepare(args, file, depth)
		}
	}
	return nil, linuxerr.WithMessage(linuxerr.ENOEXEC, fmt.Sprintf("%q has an unknown executable format", file.Path()))
}
