// Package kmain boots the kernel on a hosted RISC-V machine: it builds the
// firmware, the harts and every kernel singleton, starts the boot hart and
// waits for the machine to halt.
package kmain

import (
	"context"
	"io"
	"runtime"

	"github.com/Poseidon-fan/Artemos/kernel"
	"github.com/Poseidon-fan/Artemos/kernel/config"
	"github.com/Poseidon-fan/Artemos/kernel/cpu"
	"github.com/Poseidon-fan/Artemos/kernel/hal/sbi"
	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
	"github.com/Poseidon-fan/Artemos/kernel/loader"
	"github.com/Poseidon-fan/Artemos/kernel/mm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/pmm"
	"github.com/Poseidon-fan/Artemos/kernel/mm/vmm"
	"github.com/Poseidon-fan/Artemos/kernel/sync"
	"github.com/Poseidon-fan/Artemos/kernel/syscall"
	"github.com/Poseidon-fan/Artemos/kernel/task"
	"github.com/Poseidon-fan/Artemos/kernel/timer"
	"github.com/Poseidon-fan/Artemos/kernel/trace"
	"github.com/Poseidon-fan/Artemos/kernel/trap"
)

// InitProc is the name of the first user program.
const InitProc = "initproc"

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoInitProc    = &kernel.Error{Module: "kmain", Message: "no initproc application"}
)

// Options configures a Kernel.
type Options struct {
	Config config.Config

	// Console input and output. Stdin may be nil.
	Stdin  io.Reader
	Stdout io.Writer

	// Apps holds the executable images by name. It must contain
	// InitProc.
	Apps map[string][]byte
}

// Kernel is one booted machine together with the kernel running on it.
type Kernel struct {
	cfg    config.Config
	layout mm.KernelLayout

	fw     *sbi.Firmware
	mem    *mm.PhysicalMemory
	frames *pmm.FrameAllocator
	kspace *sync.Cell[*vmm.AddressSpace]
	lock   *sync.Lock
	harts  []*cpu.Hart
	timer  *timer.Timer
	apps   *loader.Registry

	sched    *task.Scheduler
	syscalls *syscall.Table
	traps    *trap.Dispatcher[*task.ThreadControlBlock]
}

// New builds the machine and the kernel state. Nothing runs until Run is
// called.
func New(opts Options) (*Kernel, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kfmt.SetLevel(kfmt.ParseLevel(cfg.LogLevel))
	kfmt.SetColors(cfg.LogColors)

	k := &Kernel{
		cfg: cfg,
		layout: mm.NewKernelLayout(mm.PhysAddr(cfg.KernelBase), cfg.TextSize, cfg.RodataSize,
			cfg.DataSize, cfg.BSSSize, mm.PhysAddr(cfg.MemoryEnd)),
		fw:   sbi.NewFirmware(cfg.Harts, opts.Stdin, opts.Stdout),
		apps: loader.NewRegistry(),
	}

	for name, image := range opts.Apps {
		if err := k.apps.Register(name, image); err != nil {
			return nil, &kernel.Error{Module: "kmain", Message: name + ": " + err.Message}
		}
	}
	if _, ok := k.apps.Lookup(InitProc); !ok {
		return nil, errNoInitProc
	}

	k.mem = mm.NewPhysicalMemory(mm.PhysAddr(cfg.MemoryStart), k.layout.MemoryEnd)
	k.frames = pmm.New(k.mem)
	k.frames.Init(k.layout.KernelEnd.Ceil(), k.layout.MemoryEnd.Floor())

	kspace, err := vmm.NewKernel(k.mem, k.frames, k.layout)
	if err != nil {
		return nil, err
	}
	k.kspace = sync.NewCell(kspace)
	k.lock = sync.NewLock(k.fw.Halted())
	k.timer = timer.New(&k.fw.Clock, k.fw, cfg.ClockFreq, cfg.TicksPerSec)

	schedHarts := make([]task.Hart, cfg.Harts)
	for i := 0; i < cfg.Harts; i++ {
		h := cpu.New(cpu.Config{
			ID:     i,
			Memory: k.mem,
			Clock:  &k.fw.Clock,
			Timer:  k.fw,
			Halted: k.fw.Halted(),
			Lock:   k.lock,
		})
		k.harts = append(k.harts, h)
		schedHarts[i] = h
	}

	k.sched = task.New(task.Config{
		Memory:      k.mem,
		KernelSpace: k.kspace,
		TrapHandler: k.layout.TrapHandlerAddr(),
		Harts:       schedHarts,
		Switcher:    task.NewGoroutineSwitcher(k.fw.Halted()),
		Platform:    k.fw,
		Lock:        k.lock,
		Halted:      k.fw.Halted(),
	})
	k.syscalls = syscall.NewTable(k.mem, k.sched, k.apps, k.timer, k.fw)
	k.traps = trap.NewDispatcher[*task.ThreadControlBlock](k.mem, k.sched, k.syscalls, k.timer)
	k.sched.SetTrapHandler(k.traps)

	k.fw.RegisterEntry(uint64(k.layout.Text.Start), k.hartMain)
	return k, nil
}

// Now returns the machine time in timer ticks.
func (k *Kernel) Now() uint64 { return k.fw.Clock.Now() }

// Scheduler returns the process manager.
func (k *Kernel) Scheduler() *task.Scheduler { return k.sched }

// Frames returns the frame allocator.
func (k *Kernel) Frames() *pmm.FrameAllocator { return k.frames }

// Apps returns the registered applications.
func (k *Kernel) Apps() *loader.Registry { return k.apps }

// Harts returns the emulated harts.
func (k *Kernel) Harts() []*cpu.Hart { return k.harts }

// AcceptHook attaches a hook to the scheduler, the trap dispatcher and the
// system call table.
func (k *Kernel) AcceptHook(h trace.Hook) {
	k.sched.AcceptHook(h)
	k.traps.AcceptHook(h)
	k.syscalls.AcceptHook(h)
}

// Run boots the machine and blocks until it halts or ctx is done. It
// returns the final machine status.
func (k *Kernel) Run(ctx context.Context) sbi.Status {
	kfmt.SetOutputSink(kfmt.WriterFunc(k.fw.ConsolePutchar))
	kfmt.SetHaltHandler(func() {
		k.fw.Halt(sbi.StatusPanic)
		runtime.Goexit()
	})
	defer kfmt.SetHaltHandler(nil)

	if err := k.fw.StartHart(0, uint64(k.layout.Text.Start), 0); err != nil {
		kfmt.Errorf("[kernel] cannot start the boot hart: %s", err)
		return sbi.StatusFailure
	}
	return k.fw.Wait(ctx)
}

// hartMain is the kernel entry point of every hart. Hart 0 finishes the
// boot and starts the others.
func (k *Kernel) hartMain(hart int, _ uint64) {
	defer func() {
		if err := recover(); err != nil {
			kfmt.Panic(err)
		}
	}()

	k.lock.Acquire()

	h := k.harts[hart]
	k.kspace.With(func(ks **vmm.AddressSpace) { (*ks).Activate(h) })
	h.SetTrapVector(k.layout.KernelTrapEntry())
	h.EnableTimerInterrupt()
	k.timer.SetNextTrigger(hart)

	if hart == 0 {
		k.boot()
	}
	kfmt.Infof("[kernel] hart %d is running", hart)

	k.sched.RunTasks(hart)
	kfmt.Panic(errKmainReturned)
}

func (k *Kernel) boot() {
	kfmt.Infof("[kernel] Hello, Artemos!")
	for _, s := range k.layout.Sections() {
		kfmt.Debugf("[kernel] %-7s [%#x, %#x)", s.Name, uint64(s.Start), uint64(s.End))
	}
	stats := k.frames.Stats()
	kfmt.Debugf("[kernel] %d frames available", stats.Available())
	k.apps.List()

	image, _ := k.apps.Lookup(InitProc)
	if _, err := k.sched.NewProcess(image); err != nil {
		panic(err)
	}

	for i := 1; i < len(k.harts); i++ {
		if err := k.fw.StartHart(i, uint64(k.layout.Text.Start), 0); err != nil {
			panic(err)
		}
	}
}
