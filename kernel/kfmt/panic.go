package kfmt

import (
	"runtime"

	"github.com/Poseidon-fan/Artemos/kernel"
)

var (
	// cpuHaltFn is invoked after the panic banner has been printed. It
	// must not return; the default stops the calling goroutine. The boot
	// code replaces it with a machine halt.
	cpuHaltFn = runtime.Goexit

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// SetHaltHandler installs the function that stops the machine after a panic.
func SetHaltHandler(fn func()) {
	if fn == nil {
		fn = runtime.Goexit
	}
	cpuHaltFn = fn
}

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t}
	case error:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t.Error()}
	case nil:
	default:
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
