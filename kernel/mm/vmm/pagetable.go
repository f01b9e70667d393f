package vmm

import (
	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/pmm"
)

const (
	// satpModeSv39 is the MODE field value of satp selecting Sv39.
	satpModeSv39 = uint64(8) << 60

	satpPPNMask = (uint64(1) << mm.PPNWidth) - 1
)

var (
	errRemap         = &kernel.Error{Module: "vmm", Message: "page is mapped before mapping"}
	errUnmapUnmapped = &kernel.Error{Module: "vmm", Message: "page is invalid before unmapping"}
	errKernelHalfMap = &kernel.Error{Module: "vmm", Message: "kernel-half page mapped through a user page table"}
	errReadOnlyView  = &kernel.Error{Module: "vmm", Message: "page table view cannot be modified"}
	errBadSATP       = &kernel.Error{Module: "vmm", Message: "satp does not select Sv39"}
	errTableReleased = &kernel.Error{Module: "vmm", Message: "page table used after release"}
	errInvalidFlags  = &kernel.Error{Module: "vmm", Message: "leaf mapping without R/W/X permission"}
)

// PageTable is a three level Sv39 page table. It owns its root frame and
// every intermediate table frame it allocated; Release returns them all.
type PageTable struct {
	mem    *mm.PhysicalMemory
	frames *pmm.FrameAllocator
	root   mm.PhysPageNum
	owned  []*pmm.Frame

	// userOnly is set for tables that share the kernel-half subtrees of
	// the kernel page table. Those subtrees belong to the kernel table.
	userOnly bool

	// view is set for tables obtained from a satp token. They only
	// support lookups.
	view bool
}

// NewPageTable allocates an empty page table.
func NewPageTable(mem *mm.PhysicalMemory, frames *pmm.FrameAllocator) (*PageTable, *kernel.Error) {
	root, err := frames.Alloc()
	if err != nil {
		return nil, err
	}

	return &PageTable{
		mem:    mem,
		frames: frames,
		root:   root.PPN,
		owned:  []*pmm.Frame{root},
	}, nil
}

// NewPageTableFromKernel allocates a page table whose kernel half is shared
// with kernelTable: the root entries at and above mm.KernelSplitIndex are
// copied so every mapping kernelTable later adds below them is visible too.
func NewPageTableFromKernel(kernelTable *PageTable) (*PageTable, *kernel.Error) {
	pt, err := NewPageTable(kernelTable.mem, kernelTable.frames)
	if err != nil {
		return nil, err
	}
	pt.userOnly = true

	var entries [mm.EntriesPerTable / 2 * 8]byte
	offset := mm.PhysAddr(mm.KernelSplitIndex << mm.PointerShift)
	pt.mem.Read(kernelTable.root.Addr()+offset, entries[:])
	pt.mem.Write(pt.root.Addr()+offset, entries[:])
	return pt, nil
}

// PageTableFromToken returns a read-only view of the page table selected by
// a satp value.
func PageTableFromToken(mem *mm.PhysicalMemory, satp uint64) *PageTable {
	if satp&(uint64(0xf)<<60) != satpModeSv39 {
		panic(errBadSATP)
	}
	return &PageTable{
		mem:  mem,
		root: mm.PhysPageNum(satp & satpPPNMask),
		view: true,
	}
}

// Token returns the satp value that activates this table.
func (pt *PageTable) Token() uint64 {
	return satpModeSv39 | uint64(pt.root)
}

// Root returns the physical page holding the root table.
func (pt *PageTable) Root() mm.PhysPageNum { return pt.root }

// Map establishes a mapping between a virtual page and a physical frame,
// allocating the intermediate tables it needs. Mapping a page that is
// already mapped is a kernel bug and panics. Map only fails when the frame
// allocator is exhausted.
func (pt *PageTable) Map(vpn mm.VirtPageNum, ppn mm.PhysPageNum, flags PageTableEntryFlag) *kernel.Error {
	pt.checkWritable(vpn)
	if flags&(FlagRead|FlagWrite|FlagExec) == 0 {
		panic(errInvalidFlags)
	}

	var err *kernel.Error
	walk(pt.mem, pt.root, vpn, func(pteLevel uint8, pteAddr mm.PhysAddr, pte PageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place.
		if pteLevel == mm.PageLevels-1 {
			if pte.Valid() {
				panic(errRemap)
			}
			pt.mem.WriteUint64(pteAddr, uint64(NewPageTableEntry(ppn, flags|FlagValid)))
			return true
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it.
		if !pte.Valid() {
			var table *pmm.Frame
			if table, err = pt.frames.Alloc(); err != nil {
				return false
			}
			pt.owned = append(pt.owned, table)
			pt.mem.WriteUint64(pteAddr, uint64(NewPageTableEntry(table.PPN, FlagValid)))
		}

		return true
	})

	return err
}

// Unmap removes a mapping previously installed via a call to Map. Unmapping
// a page that is not mapped is a kernel bug and panics.
func (pt *PageTable) Unmap(vpn mm.VirtPageNum) {
	pt.checkWritable(vpn)

	walk(pt.mem, pt.root, vpn, func(pteLevel uint8, pteAddr mm.PhysAddr, pte PageTableEntry) bool {
		if !pte.Valid() {
			panic(errUnmapUnmapped)
		}

		if pteLevel == mm.PageLevels-1 {
			pt.mem.WriteUint64(pteAddr, 0)
		}
		return true
	})
}

// Translate returns the leaf entry that maps vpn. The second result is false
// if the page is not mapped.
func (pt *PageTable) Translate(vpn mm.VirtPageNum) (PageTableEntry, bool) {
	pteAddr, ok := pt.findPTE(vpn)
	if !ok {
		return 0, false
	}

	pte := PageTableEntry(pt.mem.ReadUint64(pteAddr))
	return pte, pte.Valid()
}

// TranslateVA returns the physical address backing va.
func (pt *PageTable) TranslateVA(va mm.VirtAddr) (mm.PhysAddr, bool) {
	pte, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, false
	}
	return pte.PPN().Addr() + mm.PhysAddr(va.PageOffset()), true
}

// findPTE returns the address of the leaf entry slot for vpn without
// creating any table.
func (pt *PageTable) findPTE(vpn mm.VirtPageNum) (mm.PhysAddr, bool) {
	if pt.root == 0 {
		panic(errTableReleased)
	}

	var (
		found   mm.PhysAddr
		reached bool
	)
	walk(pt.mem, pt.root, vpn, func(pteLevel uint8, pteAddr mm.PhysAddr, pte PageTableEntry) bool {
		if pteLevel == mm.PageLevels-1 {
			found, reached = pteAddr, true
			return true
		}
		return pte.Valid() && !pte.IsLeaf()
	})
	return found, reached
}

func (pt *PageTable) checkWritable(vpn mm.VirtPageNum) {
	switch {
	case pt.view:
		panic(errReadOnlyView)
	case pt.root == 0:
		panic(errTableReleased)
	case pt.userOnly && vpn.Indexes()[0] >= mm.KernelSplitIndex:
		panic(errKernelHalfMap)
	}
}

// OwnedFrames returns the number of frames owned by the table.
func (pt *PageTable) OwnedFrames() int { return len(pt.owned) }

// Release returns every frame owned by the table to the allocator. The
// table cannot be used afterwards.
func (pt *PageTable) Release() {
	if pt.view {
		panic(errReadOnlyView)
	}
	for _, f := range pt.owned {
		f.Release()
	}
	pt.owned = nil
	pt.root = 0
}
