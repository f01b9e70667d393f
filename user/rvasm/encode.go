package rvasm

// Major opcodes.
const (
	opLoad     = 0x03
	opMiscMem  = 0x0f
	opImm      = 0x13
	opAUIPC    = 0x17
	opImm32    = 0x1b
	opStore    = 0x23
	opReg      = 0x33
	opLUI      = 0x37
	opReg32    = 0x3b
	opBranch   = 0x63
	opJALR     = 0x67
	opJAL      = 0x6f
	opSystem   = 0x73
	funct7Sub  = 0x20
	funct7MulD = 0x01
)

// CSR numbers of the user-readable counters.
const (
	CSRCycle   = 0xc00
	CSRTime    = 0xc01
	CSRInstret = 0xc02
)

func rtype(f7 uint32, rs2, rs1 Reg, f3 uint32, rd Reg, op uint32) uint32 {
	return f7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | f3<<12 | uint32(rd)<<7 | op
}

func itype(imm int64, rs1 Reg, f3 uint32, rd Reg, op uint32) uint32 {
	return uint32(imm&0xfff)<<20 | uint32(rs1)<<15 | f3<<12 | uint32(rd)<<7 | op
}

func stype(imm int64, rs2, rs1 Reg, f3 uint32, op uint32) uint32 {
	return uint32(imm>>5&0x7f)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | f3<<12 | uint32(imm&0x1f)<<7 | op
}

func btype(imm int64, rs2, rs1 Reg, f3 uint32, op uint32) uint32 {
	return uint32(imm>>12&1)<<31 | uint32(imm>>5&0x3f)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 |
		f3<<12 | uint32(imm>>1&0xf)<<8 | uint32(imm>>11&1)<<7 | op
}

func utype(imm int64, rd Reg, op uint32) uint32 {
	return uint32(imm)&0xfffff000 | uint32(rd)<<7 | op
}

func jtype(imm int64, rd Reg, op uint32) uint32 {
	return uint32(imm>>20&1)<<31 | uint32(imm>>1&0x3ff)<<21 | uint32(imm>>11&1)<<20 |
		uint32(imm>>12&0xff)<<12 | uint32(rd)<<7 | op
}

func fitsSigned(v int64, bits uint) bool {
	lim := int64(1) << (bits - 1)
	return v >= -lim && v < lim
}

// sext12 sign-extends the low 12 bits of v.
func sext12(v int64) int64 {
	return v << 52 >> 52
}
