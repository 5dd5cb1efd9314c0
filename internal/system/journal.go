package system

import (
	"context"
	"time"

	"github.com/l1jgo/tickhooks/internal/host"
	"github.com/l1jgo/tickhooks/internal/lifecycle"
	"go.uber.org/zap"
)

// JournalWriter persists a batch of dispatch records.
type JournalWriter interface {
	WriteBatch(ctx context.Context, recs []host.DispatchRecord) error
}

// DispatchJournal buffers every dispatch the driver reports and flushes the
// buffer every interval client ticks from an END_CLIENT_TICK callback.
// Accessed only from the driver goroutine.
type DispatchJournal struct {
	writer    JournalWriter
	log       *zap.Logger
	buf       []host.DispatchRecord
	tickCount int
	interval  int // flush every N client ticks
	dropped   int
	maxBuf    int
}

func NewDispatchJournal(writer JournalWriter, log *zap.Logger, intervalTicks int) *DispatchJournal {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &DispatchJournal{
		writer:   writer,
		log:      log,
		buf:      make([]host.DispatchRecord, 0, 256),
		interval: intervalTicks,
		// Every tick produces at least two client records plus two per world.
		maxBuf: intervalTicks * 64,
	}
}

// Attach registers the periodic flush on events. Register it after plugins
// so a flush never runs ahead of plugin callbacks in the same tick.
func (j *DispatchJournal) Attach(events *lifecycle.Events) {
	events.EndClientTick.Register(j.onEndClientTick)
}

// ObserveDispatch implements host.DispatchObserver.
func (j *DispatchJournal) ObserveDispatch(rec host.DispatchRecord) {
	if len(j.buf) >= j.maxBuf {
		j.dropped++
		return
	}
	j.buf = append(j.buf, rec)
}

// Pending returns the number of buffered records.
func (j *DispatchJournal) Pending() int {
	return len(j.buf)
}

func (j *DispatchJournal) onEndClientTick(lifecycle.Client) error {
	j.tickCount++
	if j.tickCount < j.interval {
		return nil
	}
	j.tickCount = 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	j.Flush(ctx)
	// Journal trouble must never abort the tick.
	return nil
}

// Flush writes all buffered records. On failure the batch is discarded and
// logged. Called periodically and once on shutdown.
func (j *DispatchJournal) Flush(ctx context.Context) {
	if j.dropped > 0 {
		j.log.Warn("dispatch journal buffer full, records dropped", zap.Int("dropped", j.dropped))
		j.dropped = 0
	}
	if len(j.buf) == 0 {
		return
	}
	if err := j.writer.WriteBatch(ctx, j.buf); err != nil {
		j.log.Error("dispatch journal flush failed",
			zap.Int("records", len(j.buf)),
			zap.Error(err),
		)
	} else {
		j.log.Debug("dispatch journal flushed", zap.Int("records", len(j.buf)))
	}
	j.buf = make([]host.DispatchRecord, 0, cap(j.buf))
}

// LogWriter is a JournalWriter that summarizes batches to the log, used when
// no database is configured.
type LogWriter struct {
	Log *zap.Logger
}

func (w LogWriter) WriteBatch(_ context.Context, recs []host.DispatchRecord) error {
	var failed int
	var total time.Duration
	for _, r := range recs {
		total += r.Duration
		if r.Err != nil {
			failed++
		}
	}
	w.Log.Info("dispatch summary",
		zap.Int("dispatches", len(recs)),
		zap.Int("failed", failed),
		zap.Duration("callback_time", total),
	)
	return nil
}
