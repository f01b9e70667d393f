package vmm

import (
	"fmt"

	"github.com/Poseidon-fan/Artemos/kernel/mm"
)

// PageTableEntryFlag describes a flag that can be applied to a page table
// entry.
type PageTableEntryFlag uint64

const (
	// FlagValid is set for every entry that is in use.
	FlagValid PageTableEntryFlag = 1 << iota

	// FlagRead is set if the page can be read from.
	FlagRead

	// FlagWrite is set if the page can be written to.
	FlagWrite

	// FlagExec is set if instructions can be fetched from the page.
	FlagExec

	// FlagUser is set if user-mode code can access the page.
	FlagUser

	// FlagGlobal is set for mappings present in every address space.
	FlagGlobal

	// FlagAccessed is set by the MMU when the page is accessed.
	FlagAccessed

	// FlagDirty is set by the MMU when the page is written to.
	FlagDirty
)

const (
	flagBits = 10
	flagMask = PageTableEntryFlag(0xff)
	ppnMask  = (uint64(1) << mm.PPNWidth) - 1
)

// String renders the flags in the VRWXUGAD order, using '-' for clear bits.
func (f PageTableEntryFlag) String() string {
	const names = "VRWXUGAD"
	out := []byte("--------")
	for i := range names {
		if f&(1<<i) != 0 {
			out[i] = names[i]
		}
	}
	return string(out)
}

// PageTableEntry describes a Sv39 page table entry: the PPN in bits 10..53
// and the flags in bits 0..7.
type PageTableEntry uint64

// NewPageTableEntry returns an entry pointing at ppn.
func NewPageTableEntry(ppn mm.PhysPageNum, flags PageTableEntryFlag) PageTableEntry {
	return PageTableEntry((uint64(ppn)&ppnMask)<<flagBits | uint64(flags&flagMask))
}

// PPN returns the physical page this entry points to.
func (pte PageTableEntry) PPN() mm.PhysPageNum {
	return mm.PhysPageNum((uint64(pte) >> flagBits) & ppnMask)
}

// Flags returns the flag bits of the entry.
func (pte PageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(pte) & flagMask
}

// HasFlags returns true if this entry has all the input flags set.
func (pte PageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return pte.Flags()&flags == flags
}

// HasAnyFlag returns true if this entry has at least one of the input flags
// set.
func (pte PageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return pte.Flags()&flags != 0
}

// SetFlags returns the entry with the input flags set.
func (pte PageTableEntry) SetFlags(flags PageTableEntryFlag) PageTableEntry {
	return pte | PageTableEntry(flags&flagMask)
}

// ClearFlags returns the entry with the input flags cleared.
func (pte PageTableEntry) ClearFlags(flags PageTableEntryFlag) PageTableEntry {
	return pte &^ PageTableEntry(flags&flagMask)
}

// Valid returns true if the entry is in use.
func (pte PageTableEntry) Valid() bool { return pte.HasFlags(FlagValid) }

// IsLeaf returns true for a valid entry that maps a page rather than
// pointing to the next level table.
func (pte PageTableEntry) IsLeaf() bool {
	return pte.Valid() && pte.HasAnyFlag(FlagRead|FlagWrite|FlagExec)
}

// Readable, Writable, Executable and UserAccessible report the permission
// bits of the entry.
func (pte PageTableEntry) Readable() bool       { return pte.HasFlags(FlagRead) }
func (pte PageTableEntry) Writable() bool       { return pte.HasFlags(FlagWrite) }
func (pte PageTableEntry) Executable() bool     { return pte.HasFlags(FlagExec) }
func (pte PageTableEntry) UserAccessible() bool { return pte.HasFlags(FlagUser) }

func (pte PageTableEntry) String() string {
	return fmt.Sprintf("PTE{%s %s}", pte.PPN(), pte.Flags())
}
