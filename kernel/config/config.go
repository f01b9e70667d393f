// Package config holds the machine and kernel parameters that the rest of the
// kernel treats as link-time constants: the physical memory map, the size of
// each kernel image section, the timer frequency and the number of harts.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable name read by FromEnv.
const EnvPrefix = "ARTEMOS_"

// Config describes the emulated board and the kernel image layout.
type Config struct {
	// MemoryStart is the physical address of the first byte of RAM. The
	// firmware occupies the start of RAM below KernelBase.
	MemoryStart uint64

	// KernelBase is the physical load address of the kernel image.
	KernelBase uint64

	// MemoryEnd is the first physical address past the end of RAM.
	MemoryEnd uint64

	// Sizes of the kernel image sections. The trampoline page is the
	// page right after the entry page of .text.
	TextSize   uint64
	RodataSize uint64
	DataSize   uint64
	BSSSize    uint64

	// ClockFreq is the frequency of the machine timer in Hz.
	ClockFreq uint64

	// TicksPerSec is the number of scheduler ticks per second.
	TicksPerSec uint64

	// Harts is the number of harts the firmware brings up.
	Harts int

	// LogLevel is one of error, warn, info, debug or trace.
	LogLevel string

	// LogColors enables ANSI colors in kernel log records.
	LogColors bool
}

// Default returns the layout of the qemu virt board the kernel was written
// for.
func Default() Config {
	return Config{
		MemoryStart: 0x8000_0000,
		KernelBase:  0x8020_0000,
		MemoryEnd:   0x8800_0000,
		TextSize:    0x2_0000,
		RodataSize:  0x8000,
		DataSize:    0x8000,
		BSSSize:     0x2_0000,
		ClockFreq:   12_500_000,
		TicksPerSec: 100,
		Harts:       1,
		LogLevel:    "info",
		LogColors:   true,
	}
}

// FromEnv overlays the ARTEMOS_* settings returned by lookup on top of
// Default.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	var errs []error
	u64 := func(name string, dst *uint64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.ParseUint(v, 0, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	u64("MEMORY_START", &cfg.MemoryStart)
	u64("KERNEL_BASE", &cfg.KernelBase)
	u64("MEMORY_END", &cfg.MemoryEnd)
	u64("TEXT_SIZE", &cfg.TextSize)
	u64("RODATA_SIZE", &cfg.RodataSize)
	u64("DATA_SIZE", &cfg.DataSize)
	u64("BSS_SIZE", &cfg.BSSSize)
	u64("CLOCK_FREQ", &cfg.ClockFreq)
	u64("TICKS_PER_SEC", &cfg.TicksPerSec)

	if v, ok := lookup(EnvPrefix + "HARTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sHARTS: %w", EnvPrefix, err))
		} else {
			cfg.Harts = n
		}
	}
	if v, ok := lookup("LOG"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvPrefix + "LOG_COLORS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLOG_COLORS: %w", EnvPrefix, err))
		} else {
			cfg.LogColors = b
		}
	}

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Load reads the optional dotenv files (missing files are skipped) and
// merges them under the process environment before calling FromEnv.
func Load(files ...string) (Config, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	fileEnv := map[string]string{}
	if len(existing) != 0 {
		var err error
		if fileEnv, err = godotenv.Read(existing...); err != nil {
			return Default(), err
		}
	}

	return FromEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	})
}

// KernelEnd returns the physical address of the first byte past the kernel
// image.
func (c Config) KernelEnd() uint64 {
	return c.KernelBase + pageAlign(c.TextSize) + pageAlign(c.RodataSize) + pageAlign(c.DataSize) + pageAlign(c.BSSSize)
}

// Validate rejects layouts the kernel cannot boot with.
func (c Config) Validate() error {
	switch {
	case c.MemoryStart&(pageSize-1) != 0 || c.KernelBase < c.MemoryStart:
		return fmt.Errorf("config: kernel base 0x%x is not inside RAM starting at 0x%x", c.KernelBase, c.MemoryStart)
	case c.KernelBase&(pageSize-1) != 0:
		return fmt.Errorf("config: kernel base 0x%x is not page aligned", c.KernelBase)
	case c.TextSize < 3*pageSize:
		return fmt.Errorf("config: .text must hold the entry, trampoline and trap handler pages")
	case c.KernelEnd() >= c.MemoryEnd:
		return fmt.Errorf("config: kernel image end 0x%x exceeds memory end 0x%x", c.KernelEnd(), c.MemoryEnd)
	case c.ClockFreq == 0 || c.TicksPerSec == 0 || c.ClockFreq < c.TicksPerSec:
		return fmt.Errorf("config: invalid timer setup (%d Hz, %d ticks/s)", c.ClockFreq, c.TicksPerSec)
	case c.ClockFreq%1000 != 0:
		return fmt.Errorf("config: clock frequency %d is not a multiple of 1 kHz", c.ClockFreq)
	case c.Harts < 1:
		return fmt.Errorf("config: at least one hart is required")
	}
	return nil
}

const pageSize = 4096

func pageAlign(v uint64) uint64 {
	return (v + pageSize - 1) &^ (pageSize - 1)
}
