package loader

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"

	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/hostarch"
	"github.com/walteh/tgexec/pkg/sentry/mm"
	"github.com/walteh/tgexec/pkg/sentry/vfs"
)

func init() {
	RegisterFormat("elf", elfFormat{})
}

type elfFormat struct{}

// Match implements Format.Match.
func (elfFormat) Match(header []byte) bool {
	return bytes.HasPrefix(header, []byte(elf.ELFMAG))
}

// Prepare implements Format.Prepare.
func (elfFormat) Prepare(args *PrepareArgs, file *vfs.FileDescription, depth int) (Image, error) {
	f, err := elf.NewFile(file.ReaderAt())
	if err != nil {
		return nil, linuxerr.WithMessage(linuxerr.ENOEXEC, fmt.Sprintf("parsing %q: %v", file.Path(), err))
	}
	if f.Class != elf.ELFCLASS64 {
		return nil, linuxerr.WithMessage(linuxerr.ENOEXEC, fmt.Sprintf("%q is not a 64-bit ELF", file.Path()))
	}
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return nil, linuxerr.WithMessage(linuxerr.ENOEXEC, fmt.Sprintf("%q has ELF type %v", file.Path(), f.Type))
	}
	img := &elfImage{
		path:  file.Path(),
		entry: hostarch.Addr(f.Entry),
		argv:  args.Argv,
		envv:  args.Envv,
	}
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			img.segments = append(img.segments, p)
		}
	}
	if len(img.segments) == 0 {
		return nil, linuxerr.WithMessage(linuxerr.ENOEXEC, fmt.Sprintf("%q has no loadable segments", file.Path()))
	}
	return img, nil
}

type elfImage struct {
	path     string
	entry    hostarch.Addr
	segments []*elf.Prog
	argv     []string
	envv     []string

	// opened holds interpreter chain files opened on the way here.
	opened []*vfs.FileDescription
}

// Load implements Image.Load.
func (img *elfImage) Load(m *mm.MemoryManager) (ImageInfo, error) {
	for _, p := range img.segments {
		if err := loadSegment(m, img.path, p); err != nil {
			return ImageInfo{}, err
		}
	}
	sp, err := setupStack(m, img.argv, img.envv, img.entry)
	if err != nil {
		return ImageInfo{}, err
	}
	return ImageInfo{Entry: img.entry, StackTop: sp, Argv: img.argv}, nil
}

// Release implements Image.Release.
func (img *elfImage) Release() {
	for _, fd := range img.opened {
		fd.DecRef()
	}
	img.opened = nil
}

func loadSegment(m *mm.MemoryManager, path string, p *elf.Prog) error {
	if p.Filesz > p.Memsz {
		return linuxerr.WithMessage(linuxerr.ENOEXEC, fmt.Sprintf("%q: segment file size %#x exceeds memory size %#x", path, p.Filesz, p.Memsz))
	}
	vaddr := hostarch.Addr(p.Vaddr)
	end, ok := vaddr.AddLength(p.Memsz)
	if !ok {
		return linuxerr.WithMessage(linuxerr.ENOEXEC, fmt.Sprintf("%q: segment at %v overflows", path, vaddr))
	}
	end, ok = end.RoundUp()
	if !ok {
		return linuxerr.WithMessage(linuxerr.ENOEXEC, fmt.Sprintf("%q: segment at %v overflows", path, vaddr))
	}
	start := vaddr.RoundDown()
	if err := m.MMap(start, uint64(end-start), path); err != nil {
		return err
	}
	data := make([]byte, p.Filesz)
	if _, err := io.ReadFull(p.Open(), data); err != nil {
		return linuxerr.WithMessage(linuxerr.ENOEXEC, fmt.Sprintf("%q: short segment at %v: %v", path, vaddr, err))
	}
	_, err := m.CopyOut(vaddr, data)
	return err
}
