package vmm

import (
	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
)

// ErrBadAddress is returned when a user pointer does not point to memory the
// process may access.
var ErrBadAddress = &kernel.Error{Module: "vmm", Message: "bad user address"}

// UserMemory gives the kernel checked access to the memory of the user
// address space selected by a satp token. Every page touched must be mapped
// with the U flag plus R (reads) or W (writes).
type UserMemory struct {
	mem *mm.PhysicalMemory
	pt  *PageTable
}

// NewUserMemory returns an accessor for the address space identified by
// token.
func NewUserMemory(mem *mm.PhysicalMemory, token uint64) UserMemory {
	return UserMemory{mem: mem, pt: PageTableFromToken(mem, token)}
}

// translate returns the physical address of va after checking the page
// permissions.
func (u UserMemory) translate(va uint64, write bool) (mm.PhysAddr, *kernel.Error) {
	addr, ok := mm.CanonicalVirtAddr(va)
	if !ok || !addr.IsUser() {
		return 0, ErrBadAddress
	}

	pte, ok := u.pt.Translate(addr.Floor())
	if !ok || !pte.UserAccessible() || !pte.Readable() || (write && !pte.Writable()) {
		return 0, ErrBadAddress
	}
	return pte.PPN().Addr() + mm.PhysAddr(addr.PageOffset()), nil
}

// chunks calls fn for every page-bounded piece of [va, va+n).
func (u UserMemory) chunks(va uint64, n int, write bool, fn func(pa mm.PhysAddr, from, to int)) *kernel.Error {
	if va+uint64(n) < va {
		return ErrBadAddress
	}

	for done := 0; done < n; {
		cur := va + uint64(done)
		pa, err := u.translate(cur, write)
		if err != nil {
			return err
		}
		step := min(n-done, mm.PageSize-int(cur&(mm.PageSize-1)))
		fn(pa, done, done+step)
		done += step
	}
	return nil
}

// Read copies n bytes starting at va. The range is checked before any
// buffer is allocated, so n is bounded by what the process has mapped.
func (u UserMemory) Read(va uint64, n int) ([]byte, *kernel.Error) {
	if n < 0 {
		return nil, ErrBadAddress
	}
	if err := u.chunks(va, n, false, func(mm.PhysAddr, int, int) {}); err != nil {
		return nil, err
	}

	out := make([]byte, n)
	err := u.chunks(va, n, false, func(pa mm.PhysAddr, from, to int) {
		u.mem.Read(pa, out[from:to])
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Write copies data to va. Nothing is written unless the whole range is
// writable.
func (u UserMemory) Write(va uint64, data []byte) *kernel.Error {
	if err := u.chunks(va, len(data), true, func(mm.PhysAddr, int, int) {}); err != nil {
		return err
	}
	return u.chunks(va, len(data), true, func(pa mm.PhysAddr, from, to int) {
		u.mem.Write(pa, data[from:to])
	})
}

// ReadUint64 reads a 64-bit little-endian word.
func (u UserMemory) ReadUint64(va uint64) (uint64, *kernel.Error) {
	b, err := u.Read(va, 8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// WriteInt32 writes a 32-bit little-endian integer.
func (u UserMemory) WriteInt32(va uint64, v int32) *kernel.Error {
	x := uint32(v)
	return u.Write(va, []byte{byte(x), byte(x >> 8), byte(x >> 16), byte(x >> 24)})
}

// WriteUint64 writes a 64-bit little-endian word.
func (u UserMemory) WriteUint64(va uint64, v uint64) *kernel.Error {
	var b [8]byte
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return u.Write(va, b[:])
}

// CheckWritable returns ErrBadAddress unless [va, va+n) can be written.
func (u UserMemory) CheckWritable(va uint64, n int) *kernel.Error {
	return u.chunks(va, n, true, func(mm.PhysAddr, int, int) {})
}

// ReadString reads a NUL-terminated string of at most maxLen bytes.
func (u UserMemory) ReadString(va uint64, maxLen int) (string, *kernel.Error) {
	var out []byte
	for len(out) < maxLen {
		pa, err := u.translate(va+uint64(len(out)), false)
		if err != nil {
			return "", err
		}
		c := byte(u.mem.Load(pa, 1))
		if c == 0 {
			return string(out), nil
		}
		out = append(out, c)
	}
	return "", ErrBadAddress
}

// ReadStringArray reads a NULL-terminated array of string pointers such as
// argv. A zero va yields an empty array.
func (u UserMemory) ReadStringArray(va uint64, maxItems, maxLen int) ([]string, *kernel.Error) {
	var out []string
	if va == 0 {
		return out, nil
	}

	for i := 0; ; i++ {
		if i == maxItems {
			return nil, ErrBadAddress
		}
		ptr, err := u.ReadUint64(va + uint64(i)*8)
		if err != nil {
			return nil, err
		}
		if ptr == 0 {
			return out, nil
		}
		s, err := u.ReadString(ptr, maxLen)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}
