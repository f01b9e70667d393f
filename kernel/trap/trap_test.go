package trap

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/trace"
)

const testPPN = mm.PhysPageNum(0x80400)

type fakeTask struct{ ppn mm.PhysPageNum }

func (t *fakeTask) TrapContextPPN() mm.PhysPageNum { return t.ppn }
func (t *fakeTask) PID() int                       { return 7 }
func (t *fakeTask) TID() int                       { return 0 }

type recorder struct {
	calls []string
	exit  int

	ret      int64
	id       uint64
	args     [3]uint64
	newPPN   mm.PhysPageNum
	timerFor int
}

func (r *recorder) SuspendCurrentAndRunNext(t *fakeTask) { r.calls = append(r.calls, "suspend") }
func (r *recorder) ExitCurrentAndRunNext(t *fakeTask, code int) {
	r.calls = append(r.calls, "exit")
	r.exit = code
}
func (r *recorder) SetNextTrigger(hart int) {
	r.calls = append(r.calls, "timer")
	r.timerFor = hart
}
func (r *recorder) Syscall(t *fakeTask, id uint64, args [3]uint64) int64 {
	r.calls = append(r.calls, "syscall")
	r.id, r.args = id, args
	if r.newPPN != 0 {
		t.ppn = r.newPPN
	}
	return r.ret
}

func newTestDispatcher() (*Dispatcher[*fakeTask], *recorder, *mm.PhysicalMemory) {
	mem := mm.NewPhysicalMemory(0x8000_0000, 0x8100_0000)
	rec := &recorder{}
	return NewDispatcher[*fakeTask](mem, rec, rec, rec), rec, mem
}

func TestContextRoundTrip(t *testing.T) {
	mem := mm.NewPhysicalMemory(0x8000_0000, 0x8100_0000)

	cx := AppInitContext(0x1_0000, 0x2_0000, 0x8000_0000_0008_0400, 0xffff_ffff_ffff_e000, 0xffff_ffc0_8020_2000)
	for i := range cx.X {
		cx.X[i] += uint64(i) << 32
	}
	cx.Store(mem, testPPN)

	var got Context
	got.Load(mem, testPPN)
	if got != cx {
		t.Fatalf("expected loaded context to match:\n%+v\ngot:\n%+v", cx, got)
	}

	// The kernel satp sits right after x0..x31, sstatus and sepc.
	if exp, got := cx.KernelSATP, mem.ReadUint64(testPPN.Addr()+34*8); got != exp {
		t.Fatalf("expected kernel satp at word 34 to be %#x; got %#x", exp, got)
	}

	if cx.SStatus&SStatusSPP != 0 {
		t.Fatal("expected a new context to return to user mode")
	}
}

func TestDispatchSyscall(t *testing.T) {
	d, rec, mem := newTestDispatcher()
	task := &fakeTask{ppn: testPPN}

	var cx Context
	cx.SEPC = 0x1_0010
	cx.X[RegA7], cx.X[RegA0], cx.X[RegA1], cx.X[RegA2] = 64, 1, 0x2000, 5
	cx.Store(mem, task.ppn)

	rec.ret = -1
	d.Dispatch(0, task, Frame{Cause: CauseUserEnvCall})

	if exp := [3]uint64{1, 0x2000, 5}; rec.id != 64 || rec.args != exp {
		t.Fatalf("expected syscall 64 with args %v; got %d with %v", exp, rec.id, rec.args)
	}

	cx.Load(mem, task.ppn)
	if exp := uint64(0x1_0014); cx.SEPC != exp {
		t.Fatalf("expected sepc to advance to %#x; got %#x", exp, cx.SEPC)
	}
	if exp := ^uint64(0); cx.X[RegA0] != exp {
		t.Fatalf("expected a0 to hold %#x; got %#x", exp, cx.X[RegA0])
	}
}

func TestDispatchSyscallReloadsContext(t *testing.T) {
	d, rec, mem := newTestDispatcher()
	task := &fakeTask{ppn: testPPN}

	var fresh Context
	fresh.SEPC = 0x4_0000
	fresh.Store(mem, testPPN+1)

	rec.newPPN, rec.ret = testPPN+1, 2
	d.Dispatch(0, task, Frame{Cause: CauseUserEnvCall})

	var got Context
	got.Load(mem, testPPN+1)
	if got.SEPC != 0x4_0000 || got.X[RegA0] != 2 {
		t.Fatalf("expected the result in the new context without touching sepc; got sepc %#x a0 %d", got.SEPC, got.X[RegA0])
	}
}

func TestDispatchFaults(t *testing.T) {
	defer kfmt.SetOutputSink(nil)
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	kfmt.SetColors(false)
	defer kfmt.SetColors(true)

	specs := []struct {
		cause Cause
		exp   int
	}{
		{CauseStorePageFault, ExitMemoryFault},
		{CauseStoreAccessFault, ExitMemoryFault},
		{CauseLoadPageFault, ExitMemoryFault},
		{CauseInstructionPageFault, ExitMemoryFault},
		{CauseInstructionMisaligned, ExitMemoryFault},
		{CauseIllegalInstruction, ExitIllegalInstruction},
		{CauseBreakpoint, ExitIllegalInstruction},
	}

	for specIndex, spec := range specs {
		d, rec, _ := newTestDispatcher()
		buf.Reset()

		d.Dispatch(0, &fakeTask{ppn: testPPN}, Frame{Cause: spec.cause, Stval: 0xdead})

		if len(rec.calls) != 1 || rec.calls[0] != "exit" || rec.exit != spec.exp {
			t.Errorf("[spec %d] expected %s to exit with %d; got calls %v code %d", specIndex, spec.cause, spec.exp, rec.calls, rec.exit)
		}
		if !strings.Contains(buf.String(), "kernel killed it") {
			t.Errorf("[spec %d] expected kill to be logged; got %q", specIndex, buf.String())
		}
	}
}

func TestDispatchTimer(t *testing.T) {
	d, rec, _ := newTestDispatcher()

	d.Dispatch(3, &fakeTask{ppn: testPPN}, Frame{Cause: CauseSupervisorTimer})

	if exp := "timer,suspend"; strings.Join(rec.calls, ",") != exp || rec.timerFor != 3 {
		t.Fatalf("expected calls %q on hart 3; got %v on hart %d", exp, rec.calls, rec.timerFor)
	}
}

func TestDispatchUnsupportedPanics(t *testing.T) {
	defer func(orig func(interface{})) { panicFn = orig }(panicFn)

	var got *kernel.Error
	panicFn = func(e interface{}) { got = e.(*kernel.Error) }

	d, rec, _ := newTestDispatcher()
	d.Dispatch(0, &fakeTask{ppn: testPPN}, Frame{Cause: CauseSupervisorExternal})

	if got == nil || !strings.Contains(got.Message, "SupervisorExternal") {
		t.Fatalf("expected an unsupported trap panic; got %v", got)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("expected no collaborator calls; got %v", rec.calls)
	}
}

func TestDispatchHook(t *testing.T) {
	var mem trace.MemoryWriter
	d, _, _ := newTestDispatcher()
	d.AcceptHook(trace.NewRecorder(nil, &mem))

	d.Dispatch(0, &fakeTask{ppn: testPPN}, Frame{Cause: CauseSupervisorTimer})

	events := mem.Filter(HookPosTrap.Name)
	if len(events) != 1 || events[0].PID != 7 || events[0].Detail != "SupervisorTimer stval=0x0" {
		t.Fatalf("expected one trap event for pid 7; got %+v", events)
	}
}

func TestCauseString(t *testing.T) {
	specs := []struct {
		cause Cause
		exp   string
	}{
		{CauseUserEnvCall, "UserEnvCall"},
		{CauseSupervisorTimer, "SupervisorTimer"},
		{Cause(24), "Exception(24)"},
		{interruptBit | 13, "Interrupt(13)"},
	}

	for specIndex, spec := range specs {
		if got := spec.cause.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestContextPrint(t *testing.T) {
	defer kfmt.SetOutputSink(nil)
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	cx := Context{SEPC: 0x10}
	cx.X[RegA0] = 0xff
	cx.Print()

	if !strings.Contains(buf.String(), "a0   = 00000000000000ff a1   = 0000000000000000\n") {
		t.Fatalf("expected a0/a1 row in dump; got:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "sepc = 0000000000000010") {
		t.Fatalf("expected sepc in dump; got:\n%s", buf.String())
	}
}

func TestDispatchFaultDumpsRegistersAtDebug(t *testing.T) {
	defer kfmt.SetOutputSink(nil)
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	kfmt.SetColors(false)
	defer kfmt.SetColors(true)
	kfmt.SetLevel(kfmt.LevelDebug)
	defer kfmt.SetLevel(kfmt.LevelInfo)

	d, _, mem := newTestDispatcher()
	cx := Context{SEPC: 0x1_0040}
	cx.Store(mem, testPPN)

	d.Dispatch(0, &fakeTask{ppn: testPPN}, Frame{Cause: CauseIllegalInstruction})

	if !strings.Contains(buf.String(), "\n    sepc = 0000000000010040") {
		t.Fatalf("expected an indented register dump; got:\n%s", buf.String())
	}
}
