package vmm

import "github.com/Poseidon-fan/Artemos/kernel/mm"

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level, the physical address of the
// entry for that level and its value. If the function returns false, then
// the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pteAddr mm.PhysAddr, pte PageTableEntry) bool

// walk performs a page table walk for the given virtual page starting at the
// root table. It calls walkFn with the entry that corresponds to each page
// table level. The walk descends into the table the entry points to after
// walkFn returns, so walkFn may install a missing next-level table.
func walk(mem *mm.PhysicalMemory, root mm.PhysPageNum, vpn mm.VirtPageNum, walkFn pageTableWalker) {
	var (
		idx   = vpn.Indexes()
		table = root
	)

	for level := uint8(0); level < mm.PageLevels; level++ {
		pteAddr := table.Addr() + mm.PhysAddr(idx[level]<<mm.PointerShift)
		if !walkFn(level, pteAddr, PageTableEntry(mem.ReadUint64(pteAddr))) {
			return
		}

		if level == mm.PageLevels-1 {
			return
		}

		// Reload the entry in case walkFn created the next level
		table = PageTableEntry(mem.ReadUint64(pteAddr)).PPN()
	}
}
