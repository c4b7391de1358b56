package executor

import "time"

// State is the lifecycle position of one plan node during a run.
//
//	Pending -> Ready -> Running -> {Succeeded | Failed | Cancelled}
//
// Terminal states are monotonic: once a node reaches one it never
// leaves it. Combinators and pure computations skip Running entirely,
// they settle on the scheduler goroutine.
type State uint8

const (
	StatePending State = iota
	StateReady
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

var validTransitions = map[State][]State{
	StatePending: {StateReady, StateSucceeded, StateFailed, StateCancelled},
	StateReady:   {StateRunning, StateSucceeded, StateFailed, StateCancelled},
	StateRunning: {StateSucceeded, StateFailed, StateCancelled},
}

// canTransition reports whether from -> to is a legal lifecycle move.
func canTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Timing records when a node started running and when it settled. For
// nodes resolved on the scheduler goroutine both stamps coincide.
type Timing struct {
	Start time.Time
	End   time.Time
}

// Duration is the wall time the node spent running.
func (t Timing) Duration() time.Duration {
	if t.Start.IsZero() || t.End.IsZero() {
		return 0
	}
	return t.End.Sub(t.Start)
}
