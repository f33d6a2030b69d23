package loader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/sentry/vfs"
)

func init() {
	RegisterFormat("script", scriptFormat{})
}

type scriptFormat struct{}

// Match implements Format.Match.
func (scriptFormat) Match(header []byte) bool {
	return bytes.HasPrefix(header, []byte("#!"))
}

// Prepare implements Format.Prepare.
//
// The interpreter line is "#!interpreter [optional-arg]". The new argument
// vector is the interpreter, the optional argument, the script path, then
// the original arguments without argv[0].
func (scriptFormat) Prepare(args *PrepareArgs, file *vfs.FileDescription, depth int) (Image, error) {
	if depth >= args.MaxInterpreterDepth {
		return nil, linuxerr.WithMessage(linuxerr.ELOOP, "too many levels of interpreters")
	}
	if args.OpenInterpreter == nil {
		return nil, linuxerr.WithMessage(linuxerr.ENOEXEC, "interpreter scripts are not supported here")
	}

	header := make([]byte, headerSize)
	n, _ := file.ReaderAt().ReadAt(header, 0)
	line := header[2:n]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	} else if n == headerSize {
		return nil, linuxerr.WithMessage(linuxerr.ENOEXEC, "interpreter line is too long")
	}
	fields := strings.SplitN(strings.TrimSpace(string(line)), " ", 2)
	interp := fields[0]
	if interp == "" {
		return nil, linuxerr.WithMessage(linuxerr.ENOEXEC, fmt.Sprintf("%q names no interpreter", file.Path()))
	}

	argv := []string{interp}
	if len(fields) == 2 {
		if opt := strings.TrimSpace(fields[1]); opt != "" {
			argv = append(argv, opt)
		}
	}
	argv = append(argv, file.Path())
	if len(args.Argv) > 1 {
		argv = append(argv, args.Argv[1:]...)
	}

	ifd, err := args.OpenInterpreter(interp)
	if err != nil {
		return nil, err
	}
	next := *args
	next.Argv = argv
	img, err := prepare(&next, ifd, depth+1)
	if err != nil {
		ifd.DecRef()
		return nil, err
	}
	if ei, ok := img.(*elfImage); ok {
		ei.opened = append(ei.opened, ifd)
	} else {
		ifd.DecRef()
	}
	return img, nil
}
