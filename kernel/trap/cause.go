package trap

import "fmt"

// Cause is the value of the scause register: the exception code, with the
// top bit set for interrupts.
type Cause uint64

const interruptBit = Cause(1) << 63

// Exception and interrupt causes a hart can report.
const (
	CauseInstructionMisaligned  = Cause(0)
	CauseInstructionAccessFault = Cause(1)
	CauseIllegalInstruction     = Cause(2)
	CauseBreakpoint             = Cause(3)
	CauseLoadMisaligned         = Cause(4)
	CauseLoadAccessFault        = Cause(5)
	CauseStoreMisaligned        = Cause(6)
	CauseStoreAccessFault       = Cause(7)
	CauseUserEnvCall            = Cause(8)
	CauseSupervisorEnvCall      = Cause(9)
	CauseInstructionPageFault   = Cause(12)
	CauseLoadPageFault          = Cause(13)
	CauseStorePageFault         = Cause(15)

	CauseSupervisorSoftware = interruptBit | 1
	CauseSupervisorTimer    = interruptBit | 5
	CauseSupervisorExternal = interruptBit | 9
)

var causeNames = map[Cause]string{
	CauseInstructionMisaligned:  "InstructionMisaligned",
	CauseInstructionAccessFault: "InstructionFault",
	CauseIllegalInstruction:     "IllegalInstruction",
	CauseBreakpoint:             "Breakpoint",
	CauseLoadMisaligned:         "LoadMisaligned",
	CauseLoadAccessFault:        "LoadFault",
	CauseStoreMisaligned:        "StoreMisaligned",
	CauseStoreAccessFault:       "StoreFault",
	CauseUserEnvCall:            "UserEnvCall",
	CauseSupervisorEnvCall:      "SupervisorEnvCall",
	CauseInstructionPageFault:   "InstructionPageFault",
	CauseLoadPageFault:          "LoadPageFault",
	CauseStorePageFault:         "StorePageFault",
	CauseSupervisorSoftware:     "SupervisorSoft",
	CauseSupervisorTimer:        "SupervisorTimer",
	CauseSupervisorExternal:     "SupervisorExternal",
}

// Interrupt returns true for asynchronous causes.
func (c Cause) Interrupt() bool { return c&interruptBit != 0 }

// Code returns the cause without the interrupt bit.
func (c Cause) Code() uint64 { return uint64(c &^ interruptBit) }

// MemoryFault returns true for the misaligned, access fault and page fault
// exceptions.
func (c Cause) MemoryFault() bool {
	switch c {
	case CauseInstructionMisaligned, CauseInstructionAccessFault, CauseInstructionPageFault,
		CauseLoadMisaligned, CauseLoadAccessFault, CauseLoadPageFault,
		CauseStoreMisaligned, CauseStoreAccessFault, CauseStorePageFault:
		return true
	}
	return false
}

func (c Cause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	if c.Interrupt() {
		return fmt.Sprintf("Interrupt(%d)", c.Code())
	}
	return fmt.Sprintf("Exception(%d)", c.Code())
}

// Frame describes a trap taken from user mode: the cause and the faulting
// address or instruction reported in stval.
type Frame struct {
	Cause Cause
	Stval uint64
}

func (f Frame) String() string {
	return fmt.Sprintf("%s stval=%#x", f.Cause, f.Stval)
}
