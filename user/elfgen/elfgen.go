// Package elfgen writes minimal statically linked ELF64 RISC-V executables.
package elfgen

import (
	"debug/elf"
	"encoding/binary"
)

const (
	headerSize  = 64
	phentSize   = 56
	shentSize   = 64
	segmentAlig = 0x1000
)

// Segment is one PT_LOAD segment.
type Segment struct {
	// Vaddr is the virtual address of the first byte of Data.
	Vaddr uint64

	// Flags is a combination of elf.PF_R, elf.PF_W and elf.PF_X.
	Flags elf.ProgFlag

	// Data holds the file-backed bytes of the segment.
	Data []byte

	// MemSize is the size of the segment in memory. Values below
	// len(Data) are raised to len(Data); the tail is zero-filled by the
	// loader.
	MemSize uint64
}

// Build returns an ET_EXEC image for EM_RISCV with one PT_LOAD program
// header per segment and no section headers. Each segment is stored at a
// file offset congruent to its address modulo the page size.
func Build(entry uint64, segs ...Segment) []byte {
	var (
		le  = binary.LittleEndian
		off = uint64(headerSize + phentSize*len(segs))
	)

	offsets := make([]uint64, len(segs))
	for i, s := range segs {
		off = alignUp(off, segmentAlig) + s.Vaddr%segmentAlig
		offsets[i] = off
		off += uint64(len(s.Data))
	}

	out := make([]byte, off)
	copy(out, elf.ELFMAG)
	out[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	out[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	out[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	out[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	le.PutUint16(out[16:], uint16(elf.ET_EXEC))
	le.PutUint16(out[18:], uint16(elf.EM_RISCV))
	le.PutUint32(out[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(out[24:], entry)
	le.PutUint64(out[32:], headerSize) // phoff
	le.PutUint64(out[40:], 0)          // shoff
	le.PutUint32(out[48:], 0)          // flags
	le.PutUint16(out[52:], headerSize)
	le.PutUint16(out[54:], phentSize)
	le.PutUint16(out[56:], uint16(len(segs)))
	le.PutUint16(out[58:], shentSize)
	le.PutUint16(out[60:], 0) // shnum
	le.PutUint16(out[62:], 0) // shstrndx

	for i, s := range segs {
		memSize := max(s.MemSize, uint64(len(s.Data)))
		ph := out[headerSize+i*phentSize:]
		le.PutUint32(ph[0:], uint32(elf.PT_LOAD))
		le.PutUint32(ph[4:], uint32(s.Flags))
		le.PutUint64(ph[8:], offsets[i])
		le.PutUint64(ph[16:], s.Vaddr)
		le.PutUint64(ph[24:], s.Vaddr)
		le.PutUint64(ph[32:], uint64(len(s.Data)))
		le.PutUint64(ph[40:], memSize)
		le.PutUint64(ph[48:], segmentAlig)

		copy(out[offsets[i]:], s.Data)
	}

	return out
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
