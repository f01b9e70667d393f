package vmm

import (
	"bytes"
	"debug/elf"

	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
)

var (
	// ErrBadELF is returned for images that carry the ELF magic but cannot
	// be loaded.
	ErrBadELF = &kernel.Error{Module: "vmm", Message: "malformed ELF image"}

	errInvalidELFMagic = &kernel.Error{Module: "vmm", Message: "invalid elf!"}
)

// HasELFMagic returns true if data starts with the 4-byte ELF magic.
func HasELFMagic(data []byte) bool {
	return len(data) >= len(elf.ELFMAG) && string(data[:len(elf.ELFMAG)]) == elf.ELFMAG
}

// FromELF builds a user address space from an ELF executable. Each PT_LOAD
// segment becomes one frame-backed area, user accessible, with the segment's
// R/W/X permissions; its file bytes are copied at the segment's offset within
// its first page. FromELF returns the address space, the entry point and the
// first page-aligned address above all segments, where stacks get placed.
//
// Images that do not start with the ELF magic were never meant to be
// executed and cause a panic.
func FromELF(kernelSpace *AddressSpace, data []byte) (as *AddressSpace, entry, base mm.VirtAddr, err *kernel.Error) {
	if !HasELFMagic(data) {
		panic(errInvalidELFMagic)
	}

	f, perr := elf.NewFile(bytes.NewReader(data))
	if perr != nil || f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return nil, 0, 0, ErrBadELF
	}

	entryVA, ok := mm.CanonicalVirtAddr(f.Entry)
	if !ok || !entryVA.IsUser() {
		return nil, 0, 0, ErrBadELF
	}

	if as, err = NewUser(kernelSpace); err != nil {
		return nil, 0, 0, err
	}

	var maxEnd mm.VirtPageNum
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		start, ok := mm.CanonicalVirtAddr(prog.Vaddr)
		end := start + mm.VirtAddr(prog.Memsz)
		if !ok || prog.Filesz > prog.Memsz || prog.Off+prog.Filesz > uint64(len(data)) ||
			!start.IsUser() || end < start || !(end - 1).IsUser() || end > mm.TrapContextBase {
			as.Release()
			return nil, 0, 0, ErrBadELF
		}

		perm := PermUser
		if prog.Flags&elf.PF_R != 0 {
			perm |= PermRead
		}
		if prog.Flags&elf.PF_W != 0 {
			perm |= PermWrite
		}
		if prog.Flags&elf.PF_X != 0 {
			perm |= PermExec
		}

		if perm == PermUser {
			as.Release()
			return nil, 0, 0, ErrBadELF
		}

		area := NewFramedArea(start, end, perm)
		for _, other := range as.areas {
			if other.Range.Overlaps(area.Range) {
				as.Release()
				return nil, 0, 0, ErrBadELF
			}
		}

		if err = as.Push(area, data[prog.Off:prog.Off+prog.Filesz], int(start.PageOffset())); err != nil {
			as.Release()
			return nil, 0, 0, err
		}
		maxEnd = max(maxEnd, area.Range.End)
	}

	// The stack of thread 0 goes right above the segments and must stay
	// below its trap context page.
	base = maxEnd.Addr()
	if _, stackTop := mm.UserStackPosition(base, 0); maxEnd == 0 || stackTop > mm.TrapContextAddr(0) {
		as.Release()
		return nil, 0, 0, ErrBadELF
	}

	return as, entryVA, base, nil
}
