package cpu

import (
	"math"
	"math/bits"

	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/trap"
)

// Major opcodes.
const (
	opLoad    = 0x03
	opMiscMem = 0x0f
	opImm     = 0x13
	opAUIPC   = 0x17
	opImm32   = 0x1b
	opStore   = 0x23
	opReg     = 0x33
	opLUI     = 0x37
	opReg32   = 0x3b
	opBranch  = 0x63
	opJALR    = 0x67
	opJAL     = 0x6f
	opSystem  = 0x73
)

// User-readable counters.
const (
	csrCycle   = 0xc00
	csrTime    = 0xc01
	csrInstret = 0xc02
)

const (
	funct7Alt  = 0x20
	funct7MulD = 0x01
)

func fault(cause trap.Cause, stval uint64) (trap.Frame, bool) {
	return trap.Frame{Cause: cause, Stval: stval}, true
}

func sext(v uint64, width uint) uint64 {
	shift := 64 - width
	return uint64(int64(v<<shift) >> shift)
}

func immI(inst uint32) uint64 { return sext(uint64(inst>>20), 12) }

func immS(inst uint32) uint64 {
	return sext(uint64(inst>>25)<<5|uint64(inst>>7&0x1f), 12)
}

func immB(inst uint32) uint64 {
	v := uint64(inst>>31&1)<<12 | uint64(inst>>7&1)<<11 | uint64(inst>>25&0x3f)<<5 | uint64(inst>>8&0xf)<<1
	return sext(v, 13)
}

func immU(inst uint32) uint64 { return sext(uint64(inst&0xfffff000), 32) }

func immJ(inst uint32) uint64 {
	v := uint64(inst>>31&1)<<20 | uint64(inst>>12&0xff)<<12 | uint64(inst>>20&1)<<11 | uint64(inst>>21&0x3ff)<<1
	return sext(v, 21)
}

// load performs a user load of size bytes.
func (h *Hart) load(addr uint64, size int) (uint64, trap.Cause, bool) {
	if addr%uint64(size) != 0 {
		return 0, trap.CauseLoadMisaligned, false
	}
	pa, cause, ok := h.translate(addr, accessLoad, true)
	if !ok {
		return 0, cause, false
	}
	return h.mem.Load(pa, size), 0, true
}

// store performs a user store of size bytes.
func (h *Hart) store(addr uint64, size int, v uint64) (trap.Cause, bool) {
	if addr%uint64(size) != 0 {
		return trap.CauseStoreMisaligned, false
	}
	pa, cause, ok := h.translate(addr, accessStore, true)
	if !ok {
		return cause, false
	}
	h.mem.Store(pa, size, v)
	return 0, true
}

// jump sets pc to target, trapping if target is not 4-byte aligned.
func (h *Hart) jump(target uint64) (trap.Frame, bool) {
	if target&3 != 0 {
		return fault(trap.CauseInstructionMisaligned, target)
	}
	h.pc = target
	return trap.Frame{}, false
}

func (h *Hart) setReg(rd uint32, v uint64) {
	if rd != 0 {
		h.x[rd] = v
	}
}

// step executes the instruction at pc. It returns true together with the
// trap frame if the instruction trapped, in which case pc still points at
// it.
func (h *Hart) step() (trap.Frame, bool) {
	if h.pc&3 != 0 {
		return fault(trap.CauseInstructionMisaligned, h.pc)
	}
	pa, cause, ok := h.translate(h.pc, accessFetch, true)
	if !ok {
		return fault(cause, h.pc)
	}
	inst := uint32(h.mem.Load(pa, 4))

	var (
		rd     = inst >> 7 & 0x1f
		funct3 = inst >> 12 & 7
		rs1    = inst >> 15 & 0x1f
		rs2    = inst >> 20 & 0x1f
		funct7 = inst >> 25
		a      = h.x[rs1]
		b      = h.x[rs2]
		next   = h.pc + 4
	)

	illegal := func() (trap.Frame, bool) { return fault(trap.CauseIllegalInstruction, uint64(inst)) }

	switch inst & 0x7f {
	case opLUI:
		h.setReg(rd, immU(inst))
	case opAUIPC:
		h.setReg(rd, h.pc+immU(inst))
	case opJAL:
		if f, trapped := h.jump(h.pc + immJ(inst)); trapped {
			return f, true
		}
		h.setReg(rd, next)
		return trap.Frame{}, false
	case opJALR:
		if funct3 != 0 {
			return illegal()
		}
		if f, trapped := h.jump((a + immI(inst)) &^ 1); trapped {
			return f, true
		}
		h.setReg(rd, next)
		return trap.Frame{}, false
	case opBranch:
		var taken bool
		switch funct3 {
		case 0:
			taken = a == b
		case 1:
			taken = a != b
		case 4:
			taken = int64(a) < int64(b)
		case 5:
			taken = int64(a) >= int64(b)
		case 6:
			taken = a < b
		case 7:
			taken = a >= b
		default:
			return illegal()
		}
		if taken {
			return h.jump(h.pc + immB(inst))
		}
	case opLoad:
		size, signed := 1<<(funct3&3), funct3 < 4
		if funct3 == 7 {
			return illegal()
		}
		addr := a + immI(inst)
		v, cause, ok := h.load(addr, size)
		if !ok {
			return fault(cause, addr)
		}
		if signed && size < 8 {
			v = sext(v, uint(size*8))
		}
		h.setReg(rd, v)
	case opStore:
		if funct3 > 3 {
			return illegal()
		}
		addr := a + immS(inst)
		if cause, ok := h.store(addr, 1<<funct3, b); !ok {
			return fault(cause, addr)
		}
	case opImm:
		v, ok := aluImm(funct3, inst, a)
		if !ok {
			return illegal()
		}
		h.setReg(rd, v)
	case opImm32:
		v, ok := aluImm32(funct3, inst, a)
		if !ok {
			return illegal()
		}
		h.setReg(rd, v)
	case opReg:
		var (
			v  uint64
			ok bool
		)
		if funct7 == funct7MulD {
			v, ok = mulDiv(funct3, a, b), true
		} else {
			v, ok = alu(funct3, funct7, a, b)
		}
		if !ok {
			return illegal()
		}
		h.setReg(rd, v)
	case opReg32:
		var (
			v  uint64
			ok bool
		)
		if funct7 == funct7MulD {
			v, ok = mulDiv32(funct3, a, b)
		} else {
			v, ok = alu32(funct3, funct7, a, b)
		}
		if !ok {
			return illegal()
		}
		h.setReg(rd, v)
	case opMiscMem:
	case opSystem:
		switch {
		case inst == opSystem:
			return fault(trap.CauseUserEnvCall, 0)
		case inst == 1<<20|opSystem:
			return fault(trap.CauseBreakpoint, h.pc)
		case (funct3 == 2 || funct3 == 3 || funct3 == 6 || funct3 == 7) && rs1 == 0:
			// csrrs/csrrc without a write only read the counters.
			switch inst >> 20 {
			case csrCycle, csrInstret:
				h.setReg(rd, h.instret)
			case csrTime:
				var now uint64
				if h.clock != nil {
					now = h.clock.Now()
				}
				h.setReg(rd, now)
			default:
				return illegal()
			}
		default:
			return illegal()
		}
	default:
		return illegal()
	}

	h.pc = next
	return trap.Frame{}, false
}

func aluImm(funct3, inst uint32, a uint64) (uint64, bool) {
	imm := immI(inst)
	shamt := inst >> 20 & 0x3f
	switch funct3 {
	case 0:
		return a + imm, true
	case 1:
		if inst>>26 != 0 {
			return 0, false
		}
		return a << shamt, true
	case 2:
		return b2u(int64(a) < int64(imm)), true
	case 3:
		return b2u(a < imm), true
	case 4:
		return a ^ imm, true
	case 5:
		switch inst >> 26 {
		case 0:
			return a >> shamt, true
		case funct7Alt >> 1:
			return uint64(int64(a) >> shamt), true
		}
		return 0, false
	case 6:
		return a | imm, true
	}
	return a & imm, true
}

func aluImm32(funct3, inst uint32, a uint64) (uint64, bool) {
	shamt := inst >> 20 & 0x1f
	w := uint32(a)
	switch funct3 {
	case 0:
		return sext(uint64(w+uint32(immI(inst))), 32), true
	case 1:
		if inst>>25 != 0 {
			return 0, false
		}
		return sext(uint64(w<<shamt), 32), true
	case 5:
		switch inst >> 25 {
		case 0:
			return sext(uint64(w>>shamt), 32), true
		case funct7Alt:
			return uint64(int64(int32(w) >> shamt)), true
		}
	}
	return 0, false
}

func alu(funct3, funct7 uint32, a, b uint64) (uint64, bool) {
	if funct7 != 0 && !(funct7 == funct7Alt && (funct3 == 0 || funct3 == 5)) {
		return 0, false
	}
	shamt := b & 0x3f
	switch funct3 {
	case 0:
		if funct7 == funct7Alt {
			return a - b, true
		}
		return a + b, true
	case 1:
		return a << shamt, true
	case 2:
		return b2u(int64(a) < int64(b)), true
	case 3:
		return b2u(a < b), true
	case 4:
		return a ^ b, true
	case 5:
		if funct7 == funct7Alt {
			return uint64(int64(a) >> shamt), true
		}
		return a >> shamt, true
	case 6:
		return a | b, true
	}
	return a & b, true
}

func alu32(funct3, funct7 uint32, a, b uint64) (uint64, bool) {
	x, y := uint32(a), uint32(b)
	shamt := y & 0x1f
	switch {
	case funct3 == 0 && funct7 == 0:
		return sext(uint64(x+y), 32), true
	case funct3 == 0 && funct7 == funct7Alt:
		return sext(uint64(x-y), 32), true
	case funct3 == 1 && funct7 == 0:
		return sext(uint64(x<<shamt), 32), true
	case funct3 == 5 && funct7 == 0:
		return sext(uint64(x>>shamt), 32), true
	case funct3 == 5 && funct7 == funct7Alt:
		return uint64(int64(int32(x) >> shamt)), true
	}
	return 0, false
}

func mulDiv(funct3 uint32, a, b uint64) uint64 {
	sa, sb := int64(a), int64(b)
	switch funct3 {
	case 0:
		return a * b
	case 1:
		hi, _ := bits.Mul64(a, b)
		if sa < 0 {
			hi -= b
		}
		if sb < 0 {
			hi -= a
		}
		return hi
	case 2:
		hi, _ := bits.Mul64(a, b)
		if sa < 0 {
			hi -= b
		}
		return hi
	case 3:
		hi, _ := bits.Mul64(a, b)
		return hi
	case 4:
		switch {
		case b == 0:
			return math.MaxUint64
		case sa == math.MinInt64 && sb == -1:
			return a
		}
		return uint64(sa / sb)
	case 5:
		if b == 0 {
			return math.MaxUint64
		}
		return a / b
	case 6:
		switch {
		case b == 0:
			return a
		case sa == math.MinInt64 && sb == -1:
			return 0
		}
		return uint64(sa % sb)
	}
	if b == 0 {
		return a
	}
	return a % b
}

func mulDiv32(funct3 uint32, a, b uint64) (uint64, bool) {
	sa, sb := int32(a), int32(b)
	ua, ub := uint32(a), uint32(b)
	var v int32
	switch funct3 {
	case 0:
		v = sa * sb
	case 4:
		switch {
		case sb == 0:
			v = -1
		case sa == math.MinInt32 && sb == -1:
			v = sa
		default:
			v = sa / sb
		}
	case 5:
		if ub == 0 {
			v = -1
		} else {
			v = int32(ua / ub)
		}
	case 6:
		switch {
		case sb == 0:
			v = sa
		case sa == math.MinInt32 && sb == -1:
			v = 0
		default:
			v = sa % sb
		}
	case 7:
		if ub == 0 {
			v = sa
		} else {
			v = int32(ua % ub)
		}
	default:
		return 0, false
	}
	return uint64(int64(v)), true
}

func b2u(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// PC returns the user program counter saved by the last trap. It is only
// meaningful for tests and diagnostics.
func (h *Hart) PC() mm.VirtAddr { return mm.VirtAddr(h.pc) }
