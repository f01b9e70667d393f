package mm

const (
	// KernelAddrOffset is the start of the kernel half of the address
	// space. Physical memory is mapped at KernelAddrOffset + PA.
	KernelAddrOffset VirtAddr = 0xffff_ffc0_0000_0000

	// Trampoline is the page holding the trap entry/exit code. It is
	// mapped at the same address in every address space.
	Trampoline VirtAddr = 0xffff_ffff_ffff_f000

	// TrapContextBase is the page holding the trap context of thread 0.
	// It is the highest page of the user half.
	TrapContextBase VirtAddr = 0x3f_ffff_f000

	// UserStackSize is the size of each user thread stack.
	UserStackSize = 2 * PageSize

	// KernelStackSize is the size of each kernel stack.
	KernelStackSize = 2 * PageSize

	// KernelSplitIndex is the first root page table index that belongs to
	// the kernel half.
	KernelSplitIndex = EntriesPerTable / 2
)

// TrapContextAddr returns the trap context page of the given thread.
func TrapContextAddr(tid int) VirtAddr {
	return TrapContextBase - VirtAddr(tid)*PageSize
}

// KernelStackPosition returns the [bottom, top) range of the kernel stack with
// the given id. Stacks grow down from the trampoline and are separated by an
// unmapped guard page.
func KernelStackPosition(id int) (bottom, top VirtAddr) {
	top = Trampoline - VirtAddr(id)*(KernelStackSize+PageSize)
	return top - KernelStackSize, top
}

// UserStackPosition returns the [bottom, top) range of the user stack of the
// given thread. Stacks are placed above base, each one preceded by a guard
// page.
func UserStackPosition(base VirtAddr, tid int) (bottom, top VirtAddr) {
	bottom = base + VirtAddr(tid)*(PageSize+UserStackSize) + PageSize
	return bottom, bottom + UserStackSize
}

// KernelVirt returns the kernel-half address at which a physical address is
// mapped.
func KernelVirt(pa PhysAddr) VirtAddr {
	return KernelAddrOffset + VirtAddr(pa)
}

// KernelPhys is the inverse of KernelVirt.
func KernelPhys(va VirtAddr) PhysAddr {
	return PhysAddr(va - KernelAddrOffset)
}

// Section is a half-open physical range occupied by a kernel image section.
type Section struct {
	Name       string
	Start, End PhysAddr
}

// KernelLayout describes where the linker placed the kernel image sections.
// It takes the place of the stext/etext/.../ekernel link-time symbols.
type KernelLayout struct {
	Text, Rodata, Data, BSS Section

	// Trampoline is the physical page holding the trap entry code; it
	// lives in .text right after the entry page.
	Trampoline PhysAddr

	// KernelEnd is the first byte past the image; MemoryEnd the first
	// byte past RAM.
	KernelEnd, MemoryEnd PhysAddr
}

// NewKernelLayout lays out the sections back to back starting at base, each
// one padded to a page boundary.
func NewKernelLayout(base PhysAddr, text, rodata, data, bss uint64, memoryEnd PhysAddr) KernelLayout {
	var (
		l   KernelLayout
		cur = base
	)

	next := func(name string, size uint64) Section {
		s := Section{Name: name, Start: cur}
		cur += PhysAddr((size + PageSize - 1) &^ (PageSize - 1))
		s.End = cur
		return s
	}

	l.Text = next(".text", text)
	l.Rodata = next(".rodata", rodata)
	l.Data = next(".data", data)
	l.BSS = next(".bss", bss)
	l.Trampoline = l.Text.Start + PageSize
	l.KernelEnd = cur
	l.MemoryEnd = memoryEnd
	return l
}

// Sections returns the image sections in link order.
func (l KernelLayout) Sections() []Section {
	return []Section{l.Text, l.Rodata, l.Data, l.BSS}
}

// TrapHandlerAddr is the kernel virtual address of the trap handler entry
// point stored in every trap context. It sits in the page after the
// trampoline.
func (l KernelLayout) TrapHandlerAddr() VirtAddr {
	return KernelVirt(l.Trampoline + PageSize)
}

// KernelTrapEntry is the address installed in stvec while the kernel runs.
func (l KernelLayout) KernelTrapEntry() VirtAddr {
	return KernelVirt(l.Text.Start)
}
