// Package loadertest builds small ELF images for tests and demos.
package loadertest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Segment is one PT_LOAD segment.
type Segment struct {
	Vaddr uint64
	Data  []byte

	// Memsz defaults to len(Data).
	Memsz uint64
}

const (
	ehdrSize = 64
	phdrSize = 56
)

// BuildELF returns a little-endian ELF64 executable with the given entry
// point and segments. It has no section headers.
func BuildELF(entry uint64, segments ...Segment) []byte {
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	hdr := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     entry,
		Phoff:     ehdrSize,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(len(segments)),
	}

	off := uint64(ehdrSize + phdrSize*len(segments))
	progs := make([]elf.Prog64, len(segments))
	for i, s := range segments {
		memsz := s.Memsz
		if memsz == 0 {
			memsz = uint64(len(s.Data))
		}
		progs[i] = elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(elf.PF_R | elf.PF_X),
			Off:    off,
			Vaddr:  s.Vaddr,
			Paddr:  s.Vaddr,
			Filesz: uint64(len(s.Data)),
			Memsz:  memsz,
			Align:  0x1000,
		}
		off += uint64(len(s.Data))
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, hdr)
	for _, p := range progs {
		binary.Write(&buf, binary.LittleEndian, p)
	}
	for _, s := range segments {
		buf.Write(s.Data)
	}
	return buf.Bytes()
}

// DefaultEntry is the entry point of SimpleELF.
const DefaultEntry = 0x401000

// SimpleELF returns an executable with a single text page at 0x401000.
func SimpleELF() []byte {
	return BuildELF(DefaultEntry, Segment{Vaddr: DefaultEntry, Data: []byte{0xf4, 0x90, 0x90, 0x90}})
}
