package executor

import (
	"sort"
	"time"

	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Status summarizes a whole run.
type Status uint8

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the full record of one plan execution: the terminal state,
// result or error, and timing of every node. Partial side effects of
// failed runs are not rolled back; the outcome is how callers see what
// did happen.
type Outcome struct {
	Status  Status
	Roots   []value.NodeID
	States  map[value.NodeID]State
	Results map[value.NodeID]value.Value
	Errors  map[value.NodeID]*errs.Error
	Timings map[value.NodeID]Timing

	Started  time.Time
	Finished time.Time

	// Cause is the failure that started the collapse: the first node to
	// fail with something other than a dependency error.
	Cause *errs.Error
}

// Final returns the value of the highest-numbered operation, which is
// what a script observes as the value of its last statement. Empty
// plans and unfinished final operations yield null.
func (o *Outcome) Final() value.Value {
	var last value.NodeID
	for id := range o.States {
		if id > last {
			last = id
		}
	}
	if last == 0 {
		return value.Null()
	}
	if o.States[last] != StateSucceeded {
		return value.Null()
	}
	return o.Results[last]
}

// Err returns nil for a successful run, the root-cause failure for a
// failed one, and a cancellation error for a cancelled one.
func (o *Outcome) Err() error {
	switch o.Status {
	case StatusSucceeded:
		return nil
	case StatusCancelled:
		for _, id := range o.sortedIDs() {
			if o.States[id] == StateCancelled {
				return o.Errors[id]
			}
		}
		return errs.CancelledAt(0)
	default:
		if o.Cause != nil {
			return o.Cause
		}
		for _, root := range o.Roots {
			if o.States[root] == StateFailed {
				return o.Errors[root]
			}
		}
		for _, id := range o.sortedIDs() {
			if o.States[id] == StateFailed {
				return o.Errors[id]
			}
		}
		return nil
	}
}

// DependencyChain lists the nodes that never ran because something
// upstream failed, in id order. Failure reports show it alongside the
// root cause.
func (o *Outcome) DependencyChain() []value.NodeID {
	var chain []value.NodeID
	for id, e := range o.Errors {
		if e != nil && e.Kind == errs.Dependency {
			chain = append(chain, id)
		}
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i] < chain[j] })
	return chain
}

// StateCounts tallies nodes per terminal and live state.
func (o *Outcome) StateCounts() map[string]int {
	counts := make(map[string]int)
	for _, st := range o.States {
		counts[st.String()]++
	}
	return counts
}

// Duration is the wall time of the whole run.
func (o *Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

func (o *Outcome) sortedIDs() []value.NodeID {
	ids := make([]value.NodeID, 0, len(o.States))
	for id := range o.States {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
