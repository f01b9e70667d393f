package cpu

import (
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/vmm"
	"github.com/Poseidon-fan/Artemos/kernel/trap"
)

type access uint8

const (
	accessFetch access = iota
	accessLoad
	accessStore
)

const satpModeSv39 = 8

func (a access) pageFault() trap.Cause {
	switch a {
	case accessFetch:
		return trap.CauseInstructionPageFault
	case accessLoad:
		return trap.CauseLoadPageFault
	}
	return trap.CauseStorePageFault
}

func (a access) accessFault() trap.Cause {
	switch a {
	case accessFetch:
		return trap.CauseInstructionAccessFault
	case accessLoad:
		return trap.CauseLoadAccessFault
	}
	return trap.CauseStoreAccessFault
}

// tlbEntry caches a user leaf mapping of one 4 KiB page.
type tlbEntry struct {
	pte  vmm.PageTableEntry
	base mm.PhysAddr
}

// permits checks the permission bits of a leaf entry. Supervisor accesses
// to user pages fault (sstatus.SUM is never set).
func permits(pte vmm.PageTableEntry, acc access, user bool) bool {
	if pte.UserAccessible() != user {
		return false
	}
	switch acc {
	case accessFetch:
		return pte.Executable()
	case accessLoad:
		return pte.Readable()
	}
	return pte.Writable()
}

func settled(pte vmm.PageTableEntry, acc access) bool {
	return pte.HasFlags(vmm.FlagAccessed) && (acc != accessStore || pte.HasFlags(vmm.FlagDirty))
}

// translate performs an Sv39 translation of va. On failure it returns the
// cause of the fault.
func (h *Hart) translate(va uint64, acc access, user bool) (mm.PhysAddr, trap.Cause, bool) {
	addr, ok := mm.CanonicalVirtAddr(va)
	if !ok || h.satp>>60 != satpModeSv39 {
		return 0, acc.pageFault(), false
	}

	vpn := va >> mm.PageShift
	if user {
		if e, ok := h.tlb[vpn]; ok && permits(e.pte, acc, user) && settled(e.pte, acc) {
			return e.base + mm.PhysAddr(addr.PageOffset()), 0, true
		}
	}

	idx := addr.Floor().Indexes()

walk:
	for {
		table := mm.PhysPageNum(h.satp & (1<<mm.PPNWidth - 1))
		for level := 0; level < mm.PageLevels; level++ {
			pteAddr := table.Addr() + mm.PhysAddr(idx[level]<<mm.PointerShift)
			if !h.mem.Contains(pteAddr, 8) {
				return 0, acc.accessFault(), false
			}

			raw := h.mem.ReadUint64(pteAddr)
			pte := vmm.PageTableEntry(raw)
			if !pte.Valid() || (!pte.Readable() && pte.Writable()) {
				return 0, acc.pageFault(), false
			}
			if !pte.IsLeaf() {
				table = pte.PPN()
				continue
			}

			if !permits(pte, acc, user) {
				return 0, acc.pageFault(), false
			}

			// Superpage leaves must be aligned to their size.
			lowMask := uint64(1)<<(mm.PageLevelBits*(mm.PageLevels-1-level)) - 1
			if uint64(pte.PPN())&lowMask != 0 {
				return 0, acc.pageFault(), false
			}

			if !settled(pte, acc) {
				want := pte.SetFlags(vmm.FlagAccessed)
				if acc == accessStore {
					want = want.SetFlags(vmm.FlagDirty)
				}
				if !h.mem.CompareAndSwapUint64(pteAddr, raw, uint64(want)) {
					continue walk
				}
				pte = want
			}

			base := mm.PhysPageNum(uint64(pte.PPN()) | uint64(addr.Floor())&lowMask).Addr()
			if !h.mem.Contains(base, mm.PageSize) {
				return 0, acc.accessFault(), false
			}
			if user {
				h.tlb[vpn] = tlbEntry{pte: pte, base: base}
			}
			return base + mm.PhysAddr(addr.PageOffset()), 0, true
		}

		return 0, acc.pageFault(), false
	}
}
