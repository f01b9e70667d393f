package rvasm

import "fmt"

// Li loads an arbitrary 64-bit constant. The expansion only depends on the
// value.
func (a *Assembler) Li(rd Reg, imm int64) {
	switch {
	case fitsSigned(imm, 12):
		a.emit(itype(imm, Zero, 0, rd, opImm))
	case fitsSigned(imm, 32):
		hi := (imm + 0x800) >> 12
		lo := imm - hi<<12
		a.emit(utype(hi<<12, rd, opLUI))
		if lo != 0 {
			a.emit(itype(lo, rd, 0, rd, opImm32))
		}
	default:
		lo := sext12(imm)
		a.Li(rd, (imm-lo)>>12)
		a.Slli(rd, rd, 12)
		if lo != 0 {
			a.Addi(rd, rd, lo)
		}
	}
}

// La loads the address of a symbol with an auipc/addi pair.
func (a *Assembler) La(rd Reg, symbol string) {
	pcrel := func(pc uint64, sym func(string) (uint64, error)) (int64, int64, error) {
		addr, err := sym(symbol)
		if err != nil {
			return 0, 0, err
		}
		off := int64(addr - pc)
		if !fitsSigned(off, 32) {
			return 0, 0, fmt.Errorf("la %s: %q out of range", rd, symbol)
		}
		hi := (off + 0x800) >> 12
		return hi, off - hi<<12, nil
	}

	a.emitFix(func(pc uint64, sym func(string) (uint64, error)) (uint32, error) {
		hi, _, err := pcrel(pc, sym)
		return utype(hi<<12, rd, opAUIPC), err
	})
	a.emitFix(func(pc uint64, sym func(string) (uint64, error)) (uint32, error) {
		_, lo, err := pcrel(pc-4, sym)
		return itype(lo, rd, 0, rd, opImm), err
	})
}

// Mv copies rs to rd.
func (a *Assembler) Mv(rd, rs Reg) { a.Addi(rd, rs, 0) }

// Nop emits addi zero, zero, 0.
func (a *Assembler) Nop() { a.Addi(Zero, Zero, 0) }

func (a *Assembler) imm12(name string, imm int64) bool {
	if !fitsSigned(imm, 12) {
		a.fail("%s: immediate %d out of range", name, imm)
		return false
	}
	return true
}

func (a *Assembler) opImm(name string, f3 uint32, rd, rs1 Reg, imm int64) {
	if a.imm12(name, imm) {
		a.emit(itype(imm, rs1, f3, rd, opImm))
	}
}

// Register-immediate arithmetic.
func (a *Assembler) Addi(rd, rs1 Reg, imm int64)  { a.opImm("addi", 0, rd, rs1, imm) }
func (a *Assembler) Slti(rd, rs1 Reg, imm int64)  { a.opImm("slti", 2, rd, rs1, imm) }
func (a *Assembler) Sltiu(rd, rs1 Reg, imm int64) { a.opImm("sltiu", 3, rd, rs1, imm) }
func (a *Assembler) Xori(rd, rs1 Reg, imm int64)  { a.opImm("xori", 4, rd, rs1, imm) }
func (a *Assembler) Ori(rd, rs1 Reg, imm int64)   { a.opImm("ori", 6, rd, rs1, imm) }
func (a *Assembler) Andi(rd, rs1 Reg, imm int64)  { a.opImm("andi", 7, rd, rs1, imm) }

func (a *Assembler) Addiw(rd, rs1 Reg, imm int64) {
	if a.imm12("addiw", imm) {
		a.emit(itype(imm, rs1, 0, rd, opImm32))
	}
}

func (a *Assembler) shift(name string, f3, f6 uint32, rd, rs1 Reg, shamt uint32) {
	if shamt > 63 {
		a.fail("%s: shift amount %d out of range", name, shamt)
		return
	}
	a.emit(f6<<26 | shamt<<20 | uint32(rs1)<<15 | f3<<12 | uint32(rd)<<7 | opImm)
}

// Shifts by an immediate.
func (a *Assembler) Slli(rd, rs1 Reg, shamt uint32) { a.shift("slli", 1, 0x00, rd, rs1, shamt) }
func (a *Assembler) Srli(rd, rs1 Reg, shamt uint32) { a.shift("srli", 5, 0x00, rd, rs1, shamt) }
func (a *Assembler) Srai(rd, rs1 Reg, shamt uint32) { a.shift("srai", 5, 0x10, rd, rs1, shamt) }

// Register-register arithmetic.
func (a *Assembler) Add(rd, rs1, rs2 Reg)  { a.emit(rtype(0, rs2, rs1, 0, rd, opReg)) }
func (a *Assembler) Sub(rd, rs1, rs2 Reg)  { a.emit(rtype(funct7Sub, rs2, rs1, 0, rd, opReg)) }
func (a *Assembler) Sll(rd, rs1, rs2 Reg)  { a.emit(rtype(0, rs2, rs1, 1, rd, opReg)) }
func (a *Assembler) Slt(rd, rs1, rs2 Reg)  { a.emit(rtype(0, rs2, rs1, 2, rd, opReg)) }
func (a *Assembler) Sltu(rd, rs1, rs2 Reg) { a.emit(rtype(0, rs2, rs1, 3, rd, opReg)) }
func (a *Assembler) Xor(rd, rs1, rs2 Reg)  { a.emit(rtype(0, rs2, rs1, 4, rd, opReg)) }
func (a *Assembler) Srl(rd, rs1, rs2 Reg)  { a.emit(rtype(0, rs2, rs1, 5, rd, opReg)) }
func (a *Assembler) Sra(rd, rs1, rs2 Reg)  { a.emit(rtype(funct7Sub, rs2, rs1, 5, rd, opReg)) }
func (a *Assembler) Or(rd, rs1, rs2 Reg)   { a.emit(rtype(0, rs2, rs1, 6, rd, opReg)) }
func (a *Assembler) And(rd, rs1, rs2 Reg)  { a.emit(rtype(0, rs2, rs1, 7, rd, opReg)) }
func (a *Assembler) Addw(rd, rs1, rs2 Reg) { a.emit(rtype(0, rs2, rs1, 0, rd, opReg32)) }
func (a *Assembler) Subw(rd, rs1, rs2 Reg) { a.emit(rtype(funct7Sub, rs2, rs1, 0, rd, opReg32)) }

// Multiplication and division.
func (a *Assembler) Mul(rd, rs1, rs2 Reg)    { a.emit(rtype(funct7MulD, rs2, rs1, 0, rd, opReg)) }
func (a *Assembler) Mulh(rd, rs1, rs2 Reg)   { a.emit(rtype(funct7MulD, rs2, rs1, 1, rd, opReg)) }
func (a *Assembler) Mulhsu(rd, rs1, rs2 Reg) { a.emit(rtype(funct7MulD, rs2, rs1, 2, rd, opReg)) }
func (a *Assembler) Mulhu(rd, rs1, rs2 Reg)  { a.emit(rtype(funct7MulD, rs2, rs1, 3, rd, opReg)) }
func (a *Assembler) Div(rd, rs1, rs2 Reg)    { a.emit(rtype(funct7MulD, rs2, rs1, 4, rd, opReg)) }
func (a *Assembler) Divu(rd, rs1, rs2 Reg)   { a.emit(rtype(funct7MulD, rs2, rs1, 5, rd, opReg)) }
func (a *Assembler) Rem(rd, rs1, rs2 Reg)    { a.emit(rtype(funct7MulD, rs2, rs1, 6, rd, opReg)) }
func (a *Assembler) Remu(rd, rs1, rs2 Reg)   { a.emit(rtype(funct7MulD, rs2, rs1, 7, rd, opReg)) }
func (a *Assembler) Mulw(rd, rs1, rs2 Reg)   { a.emit(rtype(funct7MulD, rs2, rs1, 0, rd, opReg32)) }
func (a *Assembler) Divw(rd, rs1, rs2 Reg)   { a.emit(rtype(funct7MulD, rs2, rs1, 4, rd, opReg32)) }
func (a *Assembler) Remw(rd, rs1, rs2 Reg)   { a.emit(rtype(funct7MulD, rs2, rs1, 6, rd, opReg32)) }

func (a *Assembler) load(name string, f3 uint32, rd Reg, off int64, base Reg) {
	if a.imm12(name, off) {
		a.emit(itype(off, base, f3, rd, opLoad))
	}
}

// Loads: rd = mem[base+off].
func (a *Assembler) Lb(rd Reg, off int64, base Reg)  { a.load("lb", 0, rd, off, base) }
func (a *Assembler) Lh(rd Reg, off int64, base Reg)  { a.load("lh", 1, rd, off, base) }
func (a *Assembler) Lw(rd Reg, off int64, base Reg)  { a.load("lw", 2, rd, off, base) }
func (a *Assembler) Ld(rd Reg, off int64, base Reg)  { a.load("ld", 3, rd, off, base) }
func (a *Assembler) Lbu(rd Reg, off int64, base Reg) { a.load("lbu", 4, rd, off, base) }
func (a *Assembler) Lhu(rd Reg, off int64, base Reg) { a.load("lhu", 5, rd, off, base) }
func (a *Assembler) Lwu(rd Reg, off int64, base Reg) { a.load("lwu", 6, rd, off, base) }

func (a *Assembler) store(name string, f3 uint32, rs Reg, off int64, base Reg) {
	if a.imm12(name, off) {
		a.emit(stype(off, rs, base, f3, opStore))
	}
}

// Stores: mem[base+off] = rs.
func (a *Assembler) Sb(rs Reg, off int64, base Reg) { a.store("sb", 0, rs, off, base) }
func (a *Assembler) Sh(rs Reg, off int64, base Reg) { a.store("sh", 1, rs, off, base) }
func (a *Assembler) Sw(rs Reg, off int64, base Reg) { a.store("sw", 2, rs, off, base) }
func (a *Assembler) Sd(rs Reg, off int64, base Reg) { a.store("sd", 3, rs, off, base) }

func (a *Assembler) branch(name string, f3 uint32, rs1, rs2 Reg, label string) {
	a.emitFix(func(pc uint64, sym func(string) (uint64, error)) (uint32, error) {
		addr, err := sym(label)
		if err != nil {
			return 0, err
		}
		off := int64(addr - pc)
		if !fitsSigned(off, 13) {
			return 0, fmt.Errorf("%s: %q out of range", name, label)
		}
		return btype(off, rs2, rs1, f3, opBranch), nil
	})
}

// Conditional branches to a label.
func (a *Assembler) Beq(rs1, rs2 Reg, label string)  { a.branch("beq", 0, rs1, rs2, label) }
func (a *Assembler) Bne(rs1, rs2 Reg, label string)  { a.branch("bne", 1, rs1, rs2, label) }
func (a *Assembler) Blt(rs1, rs2 Reg, label string)  { a.branch("blt", 4, rs1, rs2, label) }
func (a *Assembler) Bge(rs1, rs2 Reg, label string)  { a.branch("bge", 5, rs1, rs2, label) }
func (a *Assembler) Bltu(rs1, rs2 Reg, label string) { a.branch("bltu", 6, rs1, rs2, label) }
func (a *Assembler) Bgeu(rs1, rs2 Reg, label string) { a.branch("bgeu", 7, rs1, rs2, label) }
func (a *Assembler) Beqz(rs Reg, label string)       { a.Beq(rs, Zero, label) }
func (a *Assembler) Bnez(rs Reg, label string)       { a.Bne(rs, Zero, label) }
func (a *Assembler) Bltz(rs Reg, label string)       { a.Blt(rs, Zero, label) }
func (a *Assembler) Bgez(rs Reg, label string)       { a.Bge(rs, Zero, label) }

// Jal jumps to label and stores the return address in rd.
func (a *Assembler) Jal(rd Reg, label string) {
	a.emitFix(func(pc uint64, sym func(string) (uint64, error)) (uint32, error) {
		addr, err := sym(label)
		if err != nil {
			return 0, err
		}
		off := int64(addr - pc)
		if !fitsSigned(off, 21) {
			return 0, fmt.Errorf("jal: %q out of range", label)
		}
		return jtype(off, rd, opJAL), nil
	})
}

// Jalr jumps to rs1+off and stores the return address in rd.
func (a *Assembler) Jalr(rd, rs1 Reg, off int64) {
	if a.imm12("jalr", off) {
		a.emit(itype(off, rs1, 0, rd, opJALR))
	}
}

// J, Call and Ret are the usual jump pseudo-instructions.
func (a *Assembler) J(label string)    { a.Jal(Zero, label) }
func (a *Assembler) Call(label string) { a.Jal(RA, label) }
func (a *Assembler) Ret()              { a.Jalr(Zero, RA, 0) }

// Lui loads the upper 20 bits of imm.
func (a *Assembler) Lui(rd Reg, imm int64) { a.emit(utype(imm, rd, opLUI)) }

// Ecall traps into the kernel.
func (a *Assembler) Ecall() { a.emit(opSystem) }

// Ebreak raises a breakpoint exception.
func (a *Assembler) Ebreak() { a.emit(1<<20 | opSystem) }

// Fence orders memory accesses. It is a no-op on a single hart.
func (a *Assembler) Fence() { a.emit(0x0ff0000f) }

// Csrr reads a user counter CSR (csrrs rd, csr, zero).
func (a *Assembler) Csrr(rd Reg, csr uint32) {
	a.emit(csr<<20 | uint32(Zero)<<15 | 2<<12 | uint32(rd)<<7 | opSystem)
}

// Rdtime reads the time counter.
func (a *Assembler) Rdtime(rd Reg) { a.Csrr(rd, CSRTime) }
