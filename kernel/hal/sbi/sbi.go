// Package sbi defines the supervisor binary interface the kernel uses to talk
// to the machine firmware and provides a hosted firmware implementation.
package sbi

import "github.com/Poseidon-fan/Artemos/kernel"

var (
	// ErrInvalidParam is returned by StartHart for a hart id the machine
	// does not have.
	ErrInvalidParam = &kernel.Error{Module: "sbi", Message: "invalid parameter"}

	// ErrInvalidAddress is returned by StartHart when nothing can be
	// executed at the entry address.
	ErrInvalidAddress = &kernel.Error{Module: "sbi", Message: "invalid address"}

	// ErrAlreadyAvailable is returned by StartHart for a hart that is
	// already running.
	ErrAlreadyAvailable = &kernel.Error{Module: "sbi", Message: "hart already started"}
)

// Platform is the set of firmware calls the kernel core relies on.
type Platform interface {
	// ConsolePutchar writes one byte to the debug console.
	ConsolePutchar(c byte)

	// ConsoleGetchar returns the next byte of console input or 0 when no
	// input is pending.
	ConsoleGetchar() byte

	// Shutdown powers the machine off. It does not return.
	Shutdown(failure bool)

	// Reboot resets the machine. It does not return.
	Reboot()

	// SetTimer programs the next timer interrupt of a hart for the given
	// absolute time and clears the pending one.
	SetTimer(hart int, stime uint64)

	// StartHart starts a stopped hart at the entry address, passing
	// opaque in a1.
	StartHart(hart int, entry, opaque uint64) *kernel.Error
}
