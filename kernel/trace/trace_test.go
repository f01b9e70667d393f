package trace

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Poseidon-fan/Artemos/kernel/kfmt"
)

type fakeSubject struct{ pid, tid int }

func (s fakeSubject) PID() int { return s.pid }
func (s fakeSubject) TID() int { return s.tid }

var (
	testPosA = &HookPos{Name: "a"}
	testPosB = &HookPos{Name: "b"}
)

func TestHookableBase(t *testing.T) {
	var (
		base HookableBase
		mem  MemoryWriter
		rec  = NewRecorder(nil, &mem)
	)

	base.AcceptHook(rec)
	assert.Equal(t, 1, base.NumHooks())
	assert.Equal(t, []Hook{rec}, base.Hooks())
	assert.Panics(t, func() { base.AcceptHook(rec) })

	base.InvokeHook(HookCtx{Pos: testPosA, Item: fakeSubject{3, 0}, Detail: 42})
	base.InvokeHook(HookCtx{Pos: testPosB})

	events := mem.Events()
	require.Len(t, events, 2)
	assert.Equal(t, Event{Session: rec.Session(), Seq: 1, Where: "a", PID: 3, TID: 0, Detail: "42"}, events[0])
	assert.Equal(t, Event{Session: rec.Session(), Seq: 2, Where: "b", PID: -1, TID: -1}, events[1])
	assert.Len(t, mem.Filter("a"), 1)
}

func TestRecorderTimestamps(t *testing.T) {
	var (
		now uint64
		mem MemoryWriter
		rec = NewRecorder(func() uint64 { now += 10; return now }, &mem)
	)

	for i := 0; i < 3; i++ {
		rec.Func(HookCtx{Pos: testPosA})
	}

	for i, e := range mem.Events() {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, uint64(10*(i+1)), e.Time)
	}
	assert.NotEqual(t, rec.Session(), NewRecorder(nil).Session())
}

func TestSQLiteWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.sqlite3")

	w := NewSQLiteWriter(path)
	require.NoError(t, w.Init())
	w.batchSize = 2

	rec := NewRecorder(nil, w)
	rec.Func(HookCtx{Pos: testPosA, Item: fakeSubject{1, 0}, Detail: "first"})
	rec.Func(HookCtx{Pos: testPosB, Item: fakeSubject{2, 0}, Detail: "second"})
	rec.Func(HookCtx{Pos: testPosA, Item: fakeSubject{1, 0}, Detail: "third"})

	var count int
	require.NoError(t, w.QueryRow(`select count(*) from trace`).Scan(&count))
	assert.Equal(t, 2, count, "expected the first batch to be flushed")

	require.NoError(t, rec.Flush())
	require.NoError(t, w.QueryRow(`select count(*) from trace where position = 'a'`).Scan(&count))
	assert.Equal(t, 2, count)

	var detail string
	require.NoError(t, w.QueryRow(`select detail from trace where seq = 3`).Scan(&detail))
	assert.Equal(t, "third", detail)

	require.NoError(t, w.Close())
	assert.Error(t, NewSQLiteWriter(path).Init(), "expected an existing file to be rejected")
}

func TestSQLiteWriterReportsFailedBatch(t *testing.T) {
	defer kfmt.SetOutputSink(nil)
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	kfmt.SetColors(false)
	defer kfmt.SetColors(true)

	w := NewSQLiteWriter(filepath.Join(t.TempDir(), "trace.sqlite3"))
	require.NoError(t, w.Init())
	require.NoError(t, w.DB.Close())
	w.batchSize = 1

	w.Write(Event{Session: "s", Seq: 1, Where: "a"})

	assert.Contains(t, buf.String(), "[WARN] - [trace] dropping 1 events")
	assert.Zero(t, w.pendingLen())
}
