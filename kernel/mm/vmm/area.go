package vmm

import (
	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/pmm"
)

// MapType selects how the pages of a MapArea are backed.
type MapType uint8

const (
	// MapIdentical maps each page to the physical page at a fixed
	// distance (Offset) from it. Used for the kernel image and the
	// physical memory window only.
	MapIdentical MapType = iota

	// MapFramed backs each page with a frame allocated when the area is
	// mapped and owned by the area.
	MapFramed
)

func (t MapType) String() string {
	if t == MapIdentical {
		return "identical"
	}
	return "framed"
}

// MapPermission is the subset of the page table flags an area can request.
type MapPermission uint8

// The permission bits share their positions with the page table flags.
const (
	PermRead  = MapPermission(FlagRead)
	PermWrite = MapPermission(FlagWrite)
	PermExec  = MapPermission(FlagExec)
	PermUser  = MapPermission(FlagUser)
)

func (p MapPermission) String() string {
	const names = "RWXU"
	out := []byte("----")
	for i := range names {
		if p&(MapPermission(FlagRead)<<i) != 0 {
			out[i] = names[i]
		}
	}
	return string(out)
}

var errBadAreaData = &kernel.Error{Module: "vmm", Message: "initial data does not fit in the area"}

// MapArea is a contiguous range of virtual pages that share one mapping
// policy and one permission set.
type MapArea struct {
	Range mm.VPNRange
	Type  MapType
	Perm  MapPermission

	// Offset is the distance between a page and its frame for
	// MapIdentical areas: ppn = vpn - Offset.
	Offset uint64

	frames map[mm.VirtPageNum]*pmm.Frame
}

// NewFramedArea returns a frame-backed area covering [start, end).
func NewFramedArea(start, end mm.VirtAddr, perm MapPermission) *MapArea {
	return &MapArea{
		Range:  mm.NewVPNRange(start, end),
		Type:   MapFramed,
		Perm:   perm,
		frames: make(map[mm.VirtPageNum]*pmm.Frame),
	}
}

// NewIdenticalArea returns an area covering [start, end) that maps each page
// to the physical page at start - pa.
func NewIdenticalArea(start, end mm.VirtAddr, pa mm.PhysAddr, perm MapPermission) *MapArea {
	r := mm.NewVPNRange(start, end)
	return &MapArea{
		Range:  r,
		Type:   MapIdentical,
		Perm:   perm,
		Offset: uint64(r.Start) - uint64(pa.Floor()),
	}
}

// cloneLayout returns an unmapped area with the same range, type and
// permissions.
func (a *MapArea) cloneLayout() *MapArea {
	c := &MapArea{Range: a.Range, Type: a.Type, Perm: a.Perm, Offset: a.Offset}
	if a.Type == MapFramed {
		c.frames = make(map[mm.VirtPageNum]*pmm.Frame, a.Range.Len())
	}
	return c
}

// Frame returns the physical page backing vpn.
func (a *MapArea) Frame(vpn mm.VirtPageNum) (mm.PhysPageNum, bool) {
	if !a.Range.Contains(vpn) {
		return 0, false
	}
	if a.Type == MapIdentical {
		return mm.PhysPageNum(uint64(vpn) - a.Offset), true
	}
	f, ok := a.frames[vpn]
	if !ok {
		return 0, false
	}
	return f.PPN, true
}

func (a *MapArea) mapOne(pt *PageTable, vpn mm.VirtPageNum) *kernel.Error {
	var ppn mm.PhysPageNum

	switch a.Type {
	case MapIdentical:
		ppn = mm.PhysPageNum(uint64(vpn) - a.Offset)
	case MapFramed:
		f, err := pt.frames.Alloc()
		if err != nil {
			return err
		}
		a.frames[vpn] = f
		ppn = f.PPN
	}

	if err := pt.Map(vpn, ppn, PageTableEntryFlag(a.Perm)); err != nil {
		if f, ok := a.frames[vpn]; ok {
			f.Release()
			delete(a.frames, vpn)
		}
		return err
	}
	return nil
}

func (a *MapArea) unmapOne(pt *PageTable, vpn mm.VirtPageNum) {
	if f, ok := a.frames[vpn]; ok {
		f.Release()
		delete(a.frames, vpn)
	}
	pt.Unmap(vpn)
}

// Map maps every page of the area. If the frame allocator runs out part of
// the way through, the pages mapped so far are unmapped again.
func (a *MapArea) Map(pt *PageTable) *kernel.Error {
	for vpn := a.Range.Start; vpn < a.Range.End; vpn++ {
		if err := a.mapOne(pt, vpn); err != nil {
			for undo := a.Range.Start; undo < vpn; undo++ {
				a.unmapOne(pt, undo)
			}
			return err
		}
	}
	return nil
}

// Unmap removes every page of the area and releases its frames.
func (a *MapArea) Unmap(pt *PageTable) {
	for vpn := a.Range.Start; vpn < a.Range.End; vpn++ {
		a.unmapOne(pt, vpn)
	}
}

// releaseFrames gives the backing frames back without touching the page
// table.
func (a *MapArea) releaseFrames() {
	for vpn, f := range a.frames {
		f.Release()
		delete(a.frames, vpn)
	}
}

// copyData copies data into the area starting offset bytes into its first
// page. Bytes outside of the copied slice are left as they are.
func (a *MapArea) copyData(mem *mm.PhysicalMemory, data []byte, offset int) {
	if offset < 0 || offset >= mm.PageSize || offset+len(data) > a.Range.Len()*mm.PageSize {
		panic(errBadAreaData)
	}

	var (
		start      int
		pageOffset = offset
		vpn        = a.Range.Start
	)

	for start < len(data) {
		n := min(len(data)-start, mm.PageSize-pageOffset)
		ppn, _ := a.Frame(vpn)
		mem.Write(ppn.Addr()+mm.PhysAddr(pageOffset), data[start:start+n])

		start += n
		pageOffset = 0
		vpn++
	}
}
