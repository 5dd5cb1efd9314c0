package lifecycle

import "fmt"

// Phase identifies one dispatch point, in the order the host reaches them
// within a frame.
type Phase int

const (
	PhaseStartTaskExecution Phase = iota // scheduled tasks about to run
	PhaseEndTaskExecution                // scheduled tasks done
	PhaseStartClientTick
	PhaseStartWorldTick
	PhaseEndWorldTick
	PhaseEndClientTick
)

// Phases lists every dispatch point in frame order.
var Phases = []Phase{
	PhaseStartTaskExecution,
	PhaseEndTaskExecution,
	PhaseStartClientTick,
	PhaseStartWorldTick,
	PhaseEndWorldTick,
	PhaseEndClientTick,
}

func (p Phase) String() string {
	switch p {
	case PhaseStartTaskExecution:
		return "start_task_execution"
	case PhaseEndTaskExecution:
		return "end_task_execution"
	case PhaseStartClientTick:
		return "start_client_tick"
	case PhaseStartWorldTick:
		return "start_world_tick"
	case PhaseEndWorldTick:
		return "end_world_tick"
	case PhaseEndClientTick:
		return "end_client_tick"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}
