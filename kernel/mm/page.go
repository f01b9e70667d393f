// Package mm defines the Sv39 address types, the kernel memory layout and the
// physical memory backing the machine.
package mm

import (
	"fmt"

	"github.com/Poseidon-fan/Artemos/kernel"
)

// PhysAddr is a physical memory address.
type PhysAddr uint64

// VirtAddr is a canonical Sv39 virtual address: bits 63..39 always replicate
// bit 38.
type VirtAddr uint64

// PhysPageNum is a physical page number (a physical address without its
// page offset).
type PhysPageNum uint64

// VirtPageNum is a 27-bit Sv39 virtual page number.
type VirtPageNum uint64

const (
	paMask  = (1 << PAWidth) - 1
	vpnMask = (1 << VPNWidth) - 1
	ppnMask = (1 << PPNWidth) - 1
)

var (
	errMisaligned   = &kernel.Error{Module: "mm", Message: "address is not page aligned"}
	errNonCanonical = &kernel.Error{Module: "mm", Message: "non-canonical virtual address"}
)

// PageOffset returns the offset of the address within its page.
func (pa PhysAddr) PageOffset() uint64 { return uint64(pa) & (PageSize - 1) }

// Aligned returns true if the address is page aligned.
func (pa PhysAddr) Aligned() bool { return pa.PageOffset() == 0 }

// Floor returns the page containing the address.
func (pa PhysAddr) Floor() PhysPageNum { return PhysPageNum((uint64(pa) & paMask) >> PageShift) }

// Ceil returns the first page that starts at or after the address.
func (pa PhysAddr) Ceil() PhysPageNum {
	return PhysPageNum(((uint64(pa) & paMask) + PageSize - 1) >> PageShift)
}

// PageNumber converts a page-aligned address to its page number. It panics
// if the address is not aligned.
func (pa PhysAddr) PageNumber() PhysPageNum {
	if !pa.Aligned() {
		panic(errMisaligned)
	}
	return pa.Floor()
}

func (pa PhysAddr) String() string { return fmt.Sprintf("PA:0x%x", uint64(pa)) }

// Addr returns the address of the first byte in the page.
func (ppn PhysPageNum) Addr() PhysAddr { return PhysAddr((uint64(ppn) & ppnMask) << PageShift) }

func (ppn PhysPageNum) String() string { return fmt.Sprintf("PPN:0x%x", uint64(ppn)) }

// CanonicalVirtAddr validates that bits 63..39 of raw are a sign extension of
// bit 38. Use it for untrusted input such as syscall arguments.
func CanonicalVirtAddr(raw uint64) (VirtAddr, bool) {
	upper := raw >> (VAWidth - 1)
	if upper != 0 && upper != (1<<(64-VAWidth+1))-1 {
		return 0, false
	}
	return VirtAddr(raw), true
}

// MustVirtAddr is like CanonicalVirtAddr but panics on a non-canonical
// address.
func MustVirtAddr(raw uint64) VirtAddr {
	va, ok := CanonicalVirtAddr(raw)
	if !ok {
		panic(errNonCanonical)
	}
	return va
}

// PageOffset returns the offset of the address within its page.
func (va VirtAddr) PageOffset() uint64 { return uint64(va) & (PageSize - 1) }

// Aligned returns true if the address is page aligned.
func (va VirtAddr) Aligned() bool { return va.PageOffset() == 0 }

// Floor returns the page containing the address.
func (va VirtAddr) Floor() VirtPageNum { return VirtPageNum((uint64(va) >> PageShift) & vpnMask) }

// Ceil returns the first page that starts at or after the address.
func (va VirtAddr) Ceil() VirtPageNum {
	if va.Aligned() {
		return va.Floor()
	}
	return va.Floor() + 1
}

// PageNumber converts a page-aligned address to its page number. It panics
// if the address is not aligned.
func (va VirtAddr) PageNumber() VirtPageNum {
	if !va.Aligned() {
		panic(errMisaligned)
	}
	return va.Floor()
}

// IsUser returns true if the address belongs to the lower (user) half.
func (va VirtAddr) IsUser() bool { return uint64(va)>>(VAWidth-1) == 0 }

func (va VirtAddr) String() string { return fmt.Sprintf("VA:0x%x", uint64(va)) }

// Addr returns the canonical address of the first byte in the page.
func (vpn VirtPageNum) Addr() VirtAddr {
	v := (uint64(vpn) & vpnMask) << PageShift
	if v&(1<<(VAWidth-1)) != 0 {
		v |= ^(uint64(1)<<VAWidth - 1)
	}
	return VirtAddr(v)
}

// Indexes splits the page number into its three page table indexes, root
// level first.
func (vpn VirtPageNum) Indexes() [PageLevels]uint64 {
	var idx [PageLevels]uint64
	v := uint64(vpn)
	for level := PageLevels - 1; level >= 0; level-- {
		idx[level] = v & (EntriesPerTable - 1)
		v >>= PageLevelBits
	}
	return idx
}

// VPNFromIndexes rebuilds a page number from its three page table indexes.
func VPNFromIndexes(idx [PageLevels]uint64) VirtPageNum {
	var v uint64
	for _, i := range idx {
		v = v<<PageLevelBits | (i & (EntriesPerTable - 1))
	}
	return VirtPageNum(v)
}

func (vpn VirtPageNum) String() string { return fmt.Sprintf("VPN:0x%x", uint64(vpn)) }

// VPNRange is a half-open range of virtual page numbers.
type VPNRange struct {
	Start, End VirtPageNum
}

// NewVPNRange returns the pages covering [start, end).
func NewVPNRange(start, end VirtAddr) VPNRange {
	return VPNRange{Start: start.Floor(), End: end.Ceil()}
}

// Len returns the number of pages in the range.
func (r VPNRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return int(r.End - r.Start)
}

// Contains returns true if vpn lies in the range.
func (r VPNRange) Contains(vpn VirtPageNum) bool { return vpn >= r.Start && vpn < r.End }

// Overlaps returns true if the two ranges share at least one page.
func (r VPNRange) Overlaps(o VPNRange) bool {
	return r.Len() != 0 && o.Len() != 0 && r.Start < o.End && o.Start < r.End
}
