package mm

import (
	"encoding/binary"
	"sync"

	"github.com/Poseidon-fan/Artemos/kernel"
)

var errBusFault = &kernel.Error{Module: "mm", Message: "physical access outside of RAM"}

// PhysicalMemory is the RAM of the machine. It keeps the data in page sized
// units and only allocates host memory for the pages that have been written
// to; untouched pages read as zero. It is safe for concurrent use by several
// harts.
type PhysicalMemory struct {
	mu         sync.RWMutex
	start, end PhysAddr
	pages      map[PhysPageNum]*[PageSize]byte
}

// NewPhysicalMemory returns the RAM covering [start, end).
func NewPhysicalMemory(start, end PhysAddr) *PhysicalMemory {
	return &PhysicalMemory{
		start: start,
		end:   end,
		pages: make(map[PhysPageNum]*[PageSize]byte),
	}
}

// Start returns the first physical address backed by RAM.
func (m *PhysicalMemory) Start() PhysAddr { return m.start }

// End returns the first physical address past the end of RAM.
func (m *PhysicalMemory) End() PhysAddr { return m.end }

// Contains returns true if [pa, pa+n) lies inside RAM.
func (m *PhysicalMemory) Contains(pa PhysAddr, n uint64) bool {
	return pa >= m.start && uint64(pa)+n <= uint64(m.end) && uint64(pa)+n >= uint64(pa)
}

func (m *PhysicalMemory) check(pa PhysAddr, n uint64) {
	if !m.Contains(pa, n) {
		panic(errBusFault)
	}
}

// unit returns the page backing ppn, creating it if needed. Callers must
// hold the write lock.
func (m *PhysicalMemory) unit(ppn PhysPageNum) *[PageSize]byte {
	page, ok := m.pages[ppn]
	if !ok {
		page = new([PageSize]byte)
		m.pages[ppn] = page
	}
	return page
}

// Read fills p with the bytes starting at pa.
func (m *PhysicalMemory) Read(pa PhysAddr, p []byte) {
	m.check(pa, uint64(len(p)))
	m.mu.RLock()
	defer m.mu.RUnlock()

	for done := 0; done < len(p); {
		cur := pa + PhysAddr(done)
		off := cur.PageOffset()
		n := min(uint64(len(p)-done), PageSize-off)
		if page, ok := m.pages[cur.Floor()]; ok {
			copy(p[done:done+int(n)], page[off:off+n])
		} else {
			clear(p[done : done+int(n)])
		}
		done += int(n)
	}
}

// Write copies p to the bytes starting at pa.
func (m *PhysicalMemory) Write(pa PhysAddr, p []byte) {
	m.check(pa, uint64(len(p)))
	m.mu.Lock()
	defer m.mu.Unlock()

	for done := 0; done < len(p); {
		cur := pa + PhysAddr(done)
		off := cur.PageOffset()
		n := min(uint64(len(p)-done), PageSize-off)
		copy(m.unit(cur.Floor())[off:off+n], p[done:done+int(n)])
		done += int(n)
	}
}

// Load reads a little-endian value of size 1, 2, 4 or 8 bytes.
func (m *PhysicalMemory) Load(pa PhysAddr, size int) uint64 {
	var buf [8]byte
	m.Read(pa, buf[:size])
	return binary.LittleEndian.Uint64(buf[:])
}

// Store writes the low size bytes of v in little-endian order.
func (m *PhysicalMemory) Store(pa PhysAddr, size int, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	m.Write(pa, buf[:size])
}

// ReadUint64 reads the 64-bit word at pa.
func (m *PhysicalMemory) ReadUint64(pa PhysAddr) uint64 { return m.Load(pa, 8) }

// WriteUint64 writes the 64-bit word at pa.
func (m *PhysicalMemory) WriteUint64(pa PhysAddr, v uint64) { m.Store(pa, 8, v) }

// CompareAndSwapUint64 replaces the word at pa with newVal if it still holds
// oldVal.
func (m *PhysicalMemory) CompareAndSwapUint64(pa PhysAddr, oldVal, newVal uint64) bool {
	m.check(pa, 8)
	m.mu.Lock()
	defer m.mu.Unlock()

	off := pa.PageOffset()
	page := m.unit(pa.Floor())
	if binary.LittleEndian.Uint64(page[off:off+8]) != oldVal {
		return false
	}
	binary.LittleEndian.PutUint64(page[off:off+8], newVal)
	return true
}

// ZeroPage clears the page.
func (m *PhysicalMemory) ZeroPage(ppn PhysPageNum) {
	m.check(ppn.Addr(), PageSize)
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pages, ppn)
}

// CopyPage copies the contents of the src page to the dst page.
func (m *PhysicalMemory) CopyPage(dst, src PhysPageNum) {
	m.check(dst.Addr(), PageSize)
	m.check(src.Addr(), PageSize)
	m.mu.Lock()
	defer m.mu.Unlock()

	srcPage, ok := m.pages[src]
	if !ok {
		delete(m.pages, dst)
		return
	}
	*m.unit(dst) = *srcPage
}

// ReadPage returns a copy of the page contents.
func (m *PhysicalMemory) ReadPage(ppn PhysPageNum) [PageSize]byte {
	var page [PageSize]byte
	m.Read(ppn.Addr(), page[:])
	return page
}

// ResidentPages returns the number of pages that have host memory attached.
func (m *PhysicalMemory) ResidentPages() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}
