// Package vmm implements Sv39 page tables and the address spaces built on
// top of them.
package vmm

import (
	"sort"

	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/pmm"
)

var (
	errOverlap = &kernel.Error{Module: "vmm", Message: "area overlaps an existing area"}
)

// MMU is the part of a hart that an address space needs to become active.
type MMU interface {
	// WriteSATP installs a new address translation root.
	WriteSATP(satp uint64)

	// SfenceVMA flushes the cached translations.
	SfenceVMA()
}

// AddressSpace owns a page table and the areas mapped through it. Areas never
// overlap.
type AddressSpace struct {
	mem    *mm.PhysicalMemory
	frames *pmm.FrameAllocator
	pt     *PageTable
	areas  []*MapArea
}

// NewBare returns an address space with an empty page table.
func NewBare(mem *mm.PhysicalMemory, frames *pmm.FrameAllocator) (*AddressSpace, *kernel.Error) {
	pt, err := NewPageTable(mem, frames)
	if err != nil {
		return nil, err
	}
	return &AddressSpace{mem: mem, frames: frames, pt: pt}, nil
}

// NewUser returns an address space with no user mappings whose kernel half
// is shared with kernelSpace.
func NewUser(kernelSpace *AddressSpace) (*AddressSpace, *kernel.Error) {
	pt, err := NewPageTableFromKernel(kernelSpace.pt)
	if err != nil {
		return nil, err
	}
	return &AddressSpace{mem: kernelSpace.mem, frames: kernelSpace.frames, pt: pt}, nil
}

// PageTable returns the page table of the address space.
func (as *AddressSpace) PageTable() *PageTable { return as.pt }

// Token returns the satp value that activates the address space.
func (as *AddressSpace) Token() uint64 { return as.pt.Token() }

// Translate returns the leaf entry mapping vpn.
func (as *AddressSpace) Translate(vpn mm.VirtPageNum) (PageTableEntry, bool) {
	return as.pt.Translate(vpn)
}

// Areas returns the areas ordered by start page.
func (as *AddressSpace) Areas() []*MapArea {
	out := append([]*MapArea(nil), as.areas...)
	sort.Slice(out, func(i, j int) bool { return out[i].Range.Start < out[j].Range.Start })
	return out
}

// Push maps area into the address space and, if data is not nil, copies it
// into the area starting offset bytes into its first page. Pushing an area
// that overlaps an existing one is a kernel bug.
func (as *AddressSpace) Push(area *MapArea, data []byte, offset int) *kernel.Error {
	for _, other := range as.areas {
		if other.Range.Overlaps(area.Range) {
			panic(errOverlap)
		}
	}

	if err := area.Map(as.pt); err != nil {
		return err
	}
	if data != nil {
		area.copyData(as.mem, data, offset)
	}

	as.areas = append(as.areas, area)
	return nil
}

// InsertFramedArea pushes an empty frame-backed area covering [start, end).
func (as *AddressSpace) InsertFramedArea(start, end mm.VirtAddr, perm MapPermission) *kernel.Error {
	return as.Push(NewFramedArea(start, end, perm), nil, 0)
}

// RemoveAreaWithStartVPN unmaps the area starting at vpn and releases its
// frames. It returns false if no such area exists.
func (as *AddressSpace) RemoveAreaWithStartVPN(vpn mm.VirtPageNum) bool {
	for i, area := range as.areas {
		if area.Range.Start != vpn {
			continue
		}
		area.Unmap(as.pt)
		as.areas = append(as.areas[:i], as.areas[i+1:]...)
		return true
	}
	return false
}

// mapTrampoline maps the trampoline page, which is not part of any area.
func (as *AddressSpace) mapTrampoline(trampoline mm.PhysAddr) *kernel.Error {
	return as.pt.Map(mm.Trampoline.PageNumber(), trampoline.PageNumber(), FlagRead|FlagExec)
}

// Activate makes the address space the one used by the hart's MMU.
func (as *AddressSpace) Activate(mmu MMU) {
	mmu.WriteSATP(as.Token())
	mmu.SfenceVMA()
}

// RecycleDataPages unmaps every area and releases its frames but keeps the
// page table. It is used when a process exits and will never run again.
func (as *AddressSpace) RecycleDataPages() {
	for _, area := range as.areas {
		area.Unmap(as.pt)
	}
	as.areas = nil
}

// Release returns every frame owned by the address space, including the page
// table frames.
func (as *AddressSpace) Release() {
	for _, area := range as.areas {
		area.releaseFrames()
	}
	as.areas = nil
	as.pt.Release()
}

// NewKernel builds the kernel address space: the trampoline, each section of
// the kernel image and the physical memory past the image, all mapped at
// mm.KernelAddrOffset.
func NewKernel(mem *mm.PhysicalMemory, frames *pmm.FrameAllocator, layout mm.KernelLayout) (*AddressSpace, *kernel.Error) {
	as, err := NewBare(mem, frames)
	if err != nil {
		return nil, err
	}

	if err = as.mapTrampoline(layout.Trampoline); err != nil {
		as.Release()
		return nil, err
	}

	perms := map[string]MapPermission{
		".text":   PermRead | PermExec,
		".rodata": PermRead,
		".data":   PermRead | PermWrite,
		".bss":    PermRead | PermWrite,
	}

	regions := append(layout.Sections(), mm.Section{Name: "physical memory", Start: layout.KernelEnd, End: layout.MemoryEnd})
	for _, s := range regions {
		perm, ok := perms[s.Name]
		if !ok {
			perm = PermRead | PermWrite
		}

		kfmt.Debugf("[vmm] mapping %s [%s, %s) %s", s.Name, mm.KernelVirt(s.Start), mm.KernelVirt(s.End), perm)
		area := NewIdenticalArea(mm.KernelVirt(s.Start), mm.KernelVirt(s.End), s.Start, perm)
		if err = as.Push(area, nil, 0); err != nil {
			as.Release()
			return nil, err
		}
	}

	return as, nil
}

// FromExistedUserSpace returns a copy of a user address space: every area is
// recreated with fresh frames and each page is copied byte for byte. The
// copy shares no frame with other.
func FromExistedUserSpace(kernelSpace, other *AddressSpace) (*AddressSpace, *kernel.Error) {
	as, err := NewUser(kernelSpace)
	if err != nil {
		return nil, err
	}

	for _, src := range other.areas {
		dst := src.cloneLayout()
		if err = as.Push(dst, nil, 0); err != nil {
			as.Release()
			return nil, err
		}

		for vpn := src.Range.Start; vpn < src.Range.End; vpn++ {
			srcPPN, _ := src.Frame(vpn)
			dstPPN, _ := dst.Frame(vpn)
			as.mem.CopyPage(dstPPN, srcPPN)
		}
	}

	return as, nil
}
