// Package kfmt implements the kernel console output path: formatted printing,
// leveled log records and the panic banner.
package kfmt

import (
	"fmt"
	"io"
	"sync"
)

var (
	// sinkMu serializes writes coming from different harts.
	sinkMu sync.Mutex

	// earlyPrintBuffer is a ring buffer that stores Printf output before the
	// console is initialized.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf formats according to a format specifier and writes to the active
// output sink. Before a sink is registered the output is kept in a ring
// buffer and replayed by SetOutputSink.
func Printf(format string, args ...interface{}) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	if outputSink == nil {
		fmt.Fprintf(&earlyPrintBuffer, format, args...)
		return
	}
	fmt.Fprintf(outputSink, format, args...)
}

// Console is an io.Writer that sends its output to the active output sink,
// like Printf does.
var Console io.Writer = consoleWriter{}

type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	if outputSink == nil {
		return earlyPrintBuffer.Write(p)
	}
	return outputSink.Write(p)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format, args...)
}

// WriterFunc adapts a per-byte output routine (e.g. a firmware putchar call)
// to an io.Writer.
type WriterFunc func(byte)

// Write implements io.Writer.
func (fn WriterFunc) Write(p []byte) (int, error) {
	for _, b := range p {
		fn(b)
	}
	return len(p), nil
}
