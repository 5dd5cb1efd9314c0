package host

import (
	"context"
	"fmt"
	"time"

	"github.com/l1jgo/tickhooks/internal/lifecycle"
	"go.uber.org/zap"
)

// DispatchRecord describes one invoker call.
type DispatchRecord struct {
	Phase      lifecycle.Phase
	ClientTick uint64
	World      string // empty for client-scoped phases
	Callbacks  int
	Duration   time.Duration
	Err        error
}

// DispatchObserver is notified after every invoker call, including failed ones.
type DispatchObserver interface {
	ObserveDispatch(rec DispatchRecord)
}

// DispatchError reports which phase a callback failure came from.
type DispatchError struct {
	Phase      lifecycle.Phase
	ClientTick uint64
	World      string
	Err        error
}

func (e *DispatchError) Error() string {
	if e.World != "" {
		return fmt.Sprintf("%s (tick %d, world %s): %v", e.Phase, e.ClientTick, e.World, e.Err)
	}
	return fmt.Sprintf("%s (tick %d): %v", e.Phase, e.ClientTick, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Options configures a Driver.
type Options struct {
	TickRate         time.Duration
	FrameRate        time.Duration
	MaxTicksPerFrame int
	Observer         DispatchObserver
}

// Driver calls the lifecycle invokers in the order the client reaches them.
// It does not simulate anything: worlds only carry a name and a counter,
// and the scheduled-task phase executes nothing between its two events.
type Driver struct {
	events   *lifecycle.Events
	client   *Client
	opts     Options
	log      *zap.Logger
	pending  time.Duration // elapsed time not yet consumed by ticks
	lastTick time.Time
}

func NewDriver(events *lifecycle.Events, client *Client, opts Options, log *zap.Logger) *Driver {
	if opts.MaxTicksPerFrame < 1 {
		opts.MaxTicksPerFrame = 10
	}
	if opts.TickRate <= 0 {
		opts.TickRate = 50 * time.Millisecond
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = opts.TickRate
	}
	return &Driver{
		events: events,
		client: client,
		opts:   opts,
		log:    log,
	}
}

func (d *Driver) Client() *Client { return d.client }

// Frame runs one main-loop pass for elapsed wall time: the scheduled-task
// phase once, then as many client ticks as elapsed time allows, capped at
// MaxTicksPerFrame. Returns the number of client ticks dispatched.
// The first callback failure aborts the frame.
func (d *Driver) Frame(elapsed time.Duration) (int, error) {
	if err := d.dispatchClient(lifecycle.PhaseStartTaskExecution); err != nil {
		return 0, err
	}
	if err := d.dispatchClient(lifecycle.PhaseEndTaskExecution); err != nil {
		return 0, err
	}

	d.pending += elapsed
	ticks := int(d.pending / d.opts.TickRate)
	d.pending -= time.Duration(ticks) * d.opts.TickRate
	if ticks > d.opts.MaxTicksPerFrame {
		d.log.Warn("client tick backlog dropped",
			zap.Int("ticks", ticks),
			zap.Int("max", d.opts.MaxTicksPerFrame),
		)
		ticks = d.opts.MaxTicksPerFrame
	}

	for i := 0; i < ticks; i++ {
		if err := d.Tick(); err != nil {
			return i, err
		}
	}
	return ticks, nil
}

// Tick dispatches a single client tick including every loaded world's tick.
func (d *Driver) Tick() error {
	d.client.ticks++
	// Snapshot so callbacks that load or unload worlds take effect next tick.
	worlds := append([]*World(nil), d.client.worlds...)
	if err := d.dispatchClient(lifecycle.PhaseStartClientTick); err != nil {
		return err
	}
	for _, w := range worlds {
		w.time++
		if err := d.dispatchWorld(lifecycle.PhaseStartWorldTick, w); err != nil {
			return err
		}
		if err := d.dispatchWorld(lifecycle.PhaseEndWorldTick, w); err != nil {
			return err
		}
	}
	return d.dispatchClient(lifecycle.PhaseEndClientTick)
}

// Run drives frames every FrameRate until ctx is cancelled or a callback
// fails. Cancellation returns nil.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.FrameRate)
	defer ticker.Stop()

	d.lastTick = time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(d.lastTick)
			d.lastTick = now
			if _, err := d.Frame(elapsed); err != nil {
				d.log.Error("tick dispatch failed", zap.Error(err))
				return err
			}
		}
	}
}

func (d *Driver) dispatchClient(p lifecycle.Phase) error {
	start := time.Now()
	var (
		err error
		n   int
	)
	switch p {
	case lifecycle.PhaseStartTaskExecution:
		invoke, count := d.events.StartTaskExecution.Snapshot()
		n, err = count, invoke(d.client)
	case lifecycle.PhaseEndTaskExecution:
		invoke, count := d.events.EndTaskExecution.Snapshot()
		n, err = count, invoke(d.client)
	case lifecycle.PhaseStartClientTick:
		invoke, count := d.events.StartClientTick.Snapshot()
		n, err = count, invoke(d.client)
	case lifecycle.PhaseEndClientTick:
		invoke, count := d.events.EndClientTick.Snapshot()
		n, err = count, invoke(d.client)
	default:
		return fmt.Errorf("phase %s is not client-scoped", p)
	}
	return d.finish(p, "", n, start, err)
}

func (d *Driver) dispatchWorld(p lifecycle.Phase, w *World) error {
	start := time.Now()
	var (
		err error
		n   int
	)
	switch p {
	case lifecycle.PhaseStartWorldTick:
		invoke, count := d.events.StartWorldTick.Snapshot()
		n, err = count, invoke(w)
	case lifecycle.PhaseEndWorldTick:
		invoke, count := d.events.EndWorldTick.Snapshot()
		n, err = count, invoke(w)
	default:
		return fmt.Errorf("phase %s is not world-scoped", p)
	}
	return d.finish(p, w.name, n, start, err)
}

// finish reports the dispatch. callbacks is the count the invoker was built
// from, so registrations made during the dispatch are not included.
func (d *Driver) finish(p lifecycle.Phase, world string, callbacks int, start time.Time, err error) error {
	if d.opts.Observer != nil {
		d.opts.Observer.ObserveDispatch(DispatchRecord{
			Phase:      p,
			ClientTick: d.client.ticks,
			World:      world,
			Callbacks:  callbacks,
			Duration:   time.Since(start),
			Err:        err,
		})
	}
	if err != nil {
		return &DispatchError{Phase: p, ClientTick: d.client.ticks, World: world, Err: err}
	}
	return nil
}
