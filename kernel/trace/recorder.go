package trace

import (
	"fmt"
	"sync"

	"github.com/rs/xid"
)

// Subject is implemented by hook items that belong to a process or thread.
type Subject interface {
	PID() int
	TID() int
}

// Event is one recorded hook invocation.
type Event struct {
	Session string
	Seq     uint64

	// Time is the machine time, in timer ticks, at which the hook fired.
	Time uint64

	Where  string
	PID    int
	TID    int
	Detail string
}

// Writer stores events.
type Writer interface {
	Write(e Event)
	Flush() error
}

// Recorder is a Hook that turns every invocation into an Event and hands it to
// its writers. It is safe to attach one recorder to components running on
// different harts.
type Recorder struct {
	mu      sync.Mutex
	session string
	seq     uint64
	now     func() uint64
	writers []Writer
}

// NewRecorder returns a recorder with a fresh session id. now supplies the
// event timestamps.
func NewRecorder(now func() uint64, writers ...Writer) *Recorder {
	return &Recorder{
		session: xid.New().String(),
		now:     now,
		writers: writers,
	}
}

// Session returns the id shared by every event of this recorder.
func (r *Recorder) Session() string { return r.session }

// Func implements Hook.
func (r *Recorder) Func(ctx HookCtx) {
	e := Event{
		Session: r.session,
		PID:     -1,
		TID:     -1,
	}
	if ctx.Pos != nil {
		e.Where = ctx.Pos.Name
	}
	if s, ok := ctx.Item.(Subject); ok {
		e.PID, e.TID = s.PID(), s.TID()
	}
	if ctx.Detail != nil {
		e.Detail = fmt.Sprint(ctx.Detail)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e.Seq = r.seq
	if r.now != nil {
		e.Time = r.now()
	}
	for _, w := range r.writers {
		w.Write(e)
	}
}

// Flush flushes every writer and returns the first error.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for _, w := range r.writers {
		if err := w.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// MemoryWriter keeps events in memory.
type MemoryWriter struct {
	mu     sync.Mutex
	events []Event
}

// Write implements Writer.
func (w *MemoryWriter) Write(e Event) {
	w.mu.Lock()
	w.events = append(w.events, e)
	w.mu.Unlock()
}

// Flush implements Writer.
func (w *MemoryWriter) Flush() error { return nil }

// Events returns a copy of the recorded events.
func (w *MemoryWriter) Events() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Event(nil), w.events...)
}

// Filter returns the recorded events at the given position.
func (w *MemoryWriter) Filter(where string) []Event {
	var out []Event
	for _, e := range w.Events() {
		if e.Where == where {
			out = append(out, e)
		}
	}
	return out
}
