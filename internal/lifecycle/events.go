// Package lifecycle declares the client tick lifecycle events plugins hook
// into. The host calls the invokers; this package never drives a tick.
package lifecycle

import "github.com/l1jgo/tickhooks/internal/core/event"

// Client is the host's client handle passed to client-scoped callbacks.
type Client interface {
	Name() string
	Ticks() uint64
	Worlds() []World
}

// World is the host's handle for one loaded client world.
type World interface {
	Name() string
	Time() int64
}

// Callback shapes. A non-nil error aborts the remaining callbacks of the
// same invocation and is returned to the host.
type (
	StartTickCallback          func(client Client) error
	EndTickCallback            func(client Client) error
	StartWorldTickCallback     func(world World) error
	EndWorldTickCallback       func(world World) error
	StartTaskExecutionCallback func(client Client) error
	EndTaskExecutionCallback   func(client Client) error
)

// Events is one independent set of the six lifecycle registries.
type Events struct {
	// StartClientTick fires at the start of the client tick.
	StartClientTick *event.Event[StartTickCallback]
	// EndClientTick fires at the end of the client tick.
	EndClientTick *event.Event[EndTickCallback]
	// StartWorldTick fires at the start of each world's tick.
	StartWorldTick *event.Event[StartWorldTickCallback]
	// EndWorldTick fires at the end of each world's tick. A common place to
	// kick off async work for the next tick.
	EndWorldTick *event.Event[EndWorldTickCallback]
	// StartTaskExecution fires every frame before the scheduled tasks run.
	// Unlike the client tick it runs exactly once per frame, and always
	// before StartClientTick.
	StartTaskExecution *event.Event[StartTaskExecutionCallback]
	// EndTaskExecution fires every frame after the scheduled tasks ran.
	// Input is processed as scheduled tasks, so emulated key presses
	// queued here are seen by the following client tick.
	EndTaskExecution *event.Event[EndTaskExecutionCallback]
}

// New creates an empty set of registries.
func New() *Events {
	return &Events{
		StartClientTick: event.NewArrayBacked(func(callbacks []StartTickCallback) StartTickCallback {
			return func(client Client) error {
				for _, cb := range callbacks {
					if err := cb(client); err != nil {
						return err
					}
				}
				return nil
			}
		}),
		EndClientTick: event.NewArrayBacked(func(callbacks []EndTickCallback) EndTickCallback {
			return func(client Client) error {
				for _, cb := range callbacks {
					if err := cb(client); err != nil {
						return err
					}
				}
				return nil
			}
		}),
		StartWorldTick: event.NewArrayBacked(func(callbacks []StartWorldTickCallback) StartWorldTickCallback {
			return func(world World) error {
				for _, cb := range callbacks {
					if err := cb(world); err != nil {
						return err
					}
				}
				return nil
			}
		}),
		EndWorldTick: event.NewArrayBacked(func(callbacks []EndWorldTickCallback) EndWorldTickCallback {
			return func(world World) error {
				for _, cb := range callbacks {
					if err := cb(world); err != nil {
						return err
					}
				}
				return nil
			}
		}),
		StartTaskExecution: event.NewArrayBacked(func(callbacks []StartTaskExecutionCallback) StartTaskExecutionCallback {
			return func(client Client) error {
				for _, cb := range callbacks {
					if err := cb(client); err != nil {
						return err
					}
				}
				return nil
			}
		}),
		EndTaskExecution: event.NewArrayBacked(func(callbacks []EndTaskExecutionCallback) EndTaskExecutionCallback {
			return func(client Client) error {
				for _, cb := range callbacks {
					if err := cb(client); err != nil {
						return err
					}
				}
				return nil
			}
		}),
	}
}

// Count returns how many callbacks are registered for phase.
func (e *Events) Count(p Phase) int {
	switch p {
	case PhaseStartTaskExecution:
		return e.StartTaskExecution.Len()
	case PhaseEndTaskExecution:
		return e.EndTaskExecution.Len()
	case PhaseStartClientTick:
		return e.StartClientTick.Len()
	case PhaseStartWorldTick:
		return e.StartWorldTick.Len()
	case PhaseEndWorldTick:
		return e.EndWorldTick.Len()
	case PhaseEndClientTick:
		return e.EndClientTick.Len()
	default:
		return 0
	}
}

// Default is the process-wide registry set. Plugins register here during
// initialization; the host dispatches from it.
var Default = New()

// Process-wide registries, shorthand for the fields of Default.
var (
	StartClientTick    = Default.StartClientTick
	EndClientTick      = Default.EndClientTick
	StartWorldTick     = Default.StartWorldTick
	EndWorldTick       = Default.EndWorldTick
	StartTaskExecution = Default.StartTaskExecution
	EndTaskExecution   = Default.EndTaskExecution
)
