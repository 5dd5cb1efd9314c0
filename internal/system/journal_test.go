package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/l1jgo/tickhooks/internal/host"
	"github.com/l1jgo/tickhooks/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memWriter struct {
	batches [][]host.DispatchRecord
	err     error
}

func (w *memWriter) WriteBatch(_ context.Context, recs []host.DispatchRecord) error {
	w.batches = append(w.batches, append([]host.DispatchRecord(nil), recs...))
	return w.err
}

func newJournalDriver(t *testing.T, w JournalWriter, interval int) (*host.Driver, *DispatchJournal, *lifecycle.Events) {
	t.Helper()
	events := lifecycle.New()
	j := NewDispatchJournal(w, zap.NewNop(), interval)
	j.Attach(events)
	client := host.NewClient("test", host.NewWorld("overworld"))
	d := host.NewDriver(events, client, host.Options{TickRate: 50 * time.Millisecond, Observer: j}, zap.NewNop())
	return d, j, events
}

func TestJournalFlushesEveryInterval(t *testing.T) {
	w := &memWriter{}
	d, j, _ := newJournalDriver(t, w, 2)

	require.NoError(t, d.Tick())
	assert.Empty(t, w.batches)
	// start_client_tick, start/end world; end_client_tick is observed after
	// its callbacks return.
	assert.Equal(t, 4, j.Pending())

	require.NoError(t, d.Tick())
	require.Len(t, w.batches, 1)
	// Tick 1 fully (4) plus tick 2 up to the flushing callback (3).
	assert.Len(t, w.batches[0], 7)
	assert.Equal(t, lifecycle.PhaseStartClientTick, w.batches[0][0].Phase)
	assert.Equal(t, uint64(1), w.batches[0][0].ClientTick)
	assert.Equal(t, "overworld", w.batches[0][1].World)

	// The tick 2 end_client_tick record lands in the next batch.
	assert.Equal(t, 1, j.Pending())
}

func TestJournalFlushOnShutdown(t *testing.T) {
	w := &memWriter{}
	d, j, _ := newJournalDriver(t, w, 100)

	_, err := d.Frame(50 * time.Millisecond)
	require.NoError(t, err)
	j.Flush(context.Background())

	require.Len(t, w.batches, 1)
	assert.Len(t, w.batches[0], 6)
	assert.Zero(t, j.Pending())

	j.Flush(context.Background())
	assert.Len(t, w.batches, 1, "empty flush writes nothing")
}

func TestJournalWriteFailureDoesNotAbortTick(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	w := &memWriter{err: errors.New("db down")}
	events := lifecycle.New()
	j := NewDispatchJournal(w, zap.New(core), 1)
	j.Attach(events)
	ran := false
	events.EndClientTick.Register(func(lifecycle.Client) error { ran = true; return nil })
	d := host.NewDriver(events, host.NewClient("test"), host.Options{Observer: j}, zap.NewNop())

	require.NoError(t, d.Tick())
	assert.True(t, ran)
	assert.Equal(t, 1, logs.FilterMessage("dispatch journal flush failed").Len())
	// The failed batch is discarded; only this tick's end record remains.
	assert.Equal(t, 1, j.Pending())
}

func TestJournalRecordsFailedDispatch(t *testing.T) {
	w := &memWriter{}
	d, j, events := newJournalDriver(t, w, 10)
	errCb := errors.New("callback failed")
	events.StartClientTick.Register(func(lifecycle.Client) error { return errCb })

	require.ErrorIs(t, d.Tick(), errCb)
	j.Flush(context.Background())
	require.Len(t, w.batches, 1)
	require.Len(t, w.batches[0], 1)
	assert.ErrorIs(t, w.batches[0][0].Err, errCb)
	assert.Equal(t, 1, w.batches[0][0].Callbacks)
}

func TestJournalDropsWhenBufferFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	w := &memWriter{}
	j := NewDispatchJournal(w, zap.New(core), 1)
	for i := 0; i < j.maxBuf+5; i++ {
		j.ObserveDispatch(host.DispatchRecord{Phase: lifecycle.PhaseStartClientTick})
	}
	assert.Equal(t, j.maxBuf, j.Pending())

	j.Flush(context.Background())
	require.Len(t, w.batches, 1)
	assert.Len(t, w.batches[0], j.maxBuf)
	entries := logs.FilterMessage("dispatch journal buffer full, records dropped").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 5, entries[0].ContextMap()["dropped"])
}

func TestLogWriterSummarizes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := LogWriter{Log: zap.New(core)}
	require.NoError(t, w.WriteBatch(context.Background(), []host.DispatchRecord{
		{Duration: time.Millisecond},
		{Duration: 2 * time.Millisecond, Err: errors.New("x")},
	}))
	entries := logs.FilterMessage("dispatch summary").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.EqualValues(t, 2, ctx["dispatches"])
	assert.EqualValues(t, 1, ctx["failed"])
}
