// Package resilience sheds outbound calls when an upstream keeps
// failing. A Breaker trips open after a run of consecutive failures,
// rejects calls for a cooldown period, then admits a limited number of
// probes; the probes decide whether it closes again or reopens.
package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrOpen rejects calls while the upstream is presumed down.
	ErrOpen = errors.New("breaker open")

	// ErrSaturated rejects calls beyond the probe allowance while the
	// breaker is testing a recovering upstream.
	ErrSaturated = errors.New("breaker saturated")
)

// State is the breaker's position.
type State uint8

const (
	// Closed passes calls through and counts consecutive failures.
	Closed State = iota
	// Open rejects every call until the cooldown elapses.
	Open
	// Probing admits a limited number of trial calls.
	Probing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Probing:
		return "probing"
	default:
		return "unknown"
	}
}

// Config tunes when the breaker trips and how it recovers.
type Config struct {
	// TripAfter is the run of consecutive failures that opens the
	// breaker. Zero means 5.
	TripAfter uint32

	// Cooldown is how long an open breaker rejects calls before it
	// starts probing. Zero means 30 seconds.
	Cooldown time.Duration

	// Probes is how many trial calls the probing state admits. That
	// many successes close the breaker; one failure reopens it. Zero
	// means 1.
	Probes uint32

	// OnChange, when set, observes every transition. It is called
	// synchronously under the breaker's lock and must not call back
	// into the breaker.
	OnChange func(from, to State)
}

// Breaker is a three-state circuit breaker. The zero value is not
// usable; build one with New. All methods are safe for concurrent use.
type Breaker struct {
	cfg Config

	mu    sync.Mutex
	state State
	until time.Time // open: when probing may begin

	fails    uint32 // closed: current run of consecutive failures
	admitted uint32 // probing: calls let through this generation
	passed   uint32 // probing: calls that came back clean

	// gen invalidates settle calls that started before the last
	// transition, so a slow call cannot corrupt a newer generation.
	gen uint64
}

// New builds a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.TripAfter == 0 {
		cfg.TripAfter = 5
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes == 0 {
		cfg.Probes = 1
	}
	return &Breaker{cfg: cfg}
}

// Do runs fn through the breaker. Calls rejected by the breaker return
// ErrOpen or ErrSaturated without invoking fn; otherwise fn's own
// result and error pass through unchanged, and the error outcome feeds
// the breaker's state.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	gen, err := b.admit()
	if err != nil {
		return zero, err
	}

	// A panicking call still settles its slot, as a failure.
	done := false
	defer func() {
		if !done {
			b.settle(gen, false)
		}
	}()

	out, err := fn()
	done = true
	b.settle(gen, err == nil)
	return out, err
}

// State reports the breaker's current position, flipping an expired
// open state to probing first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sync(time.Now())
	return b.state
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sync(time.Now())

	switch b.state {
	case Open:
		return b.gen, ErrOpen
	case Probing:
		if b.admitted >= b.cfg.Probes {
			return b.gen, ErrSaturated
		}
		b.admitted++
	}
	return b.gen, nil
}

func (b *Breaker) settle(gen uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sync(time.Now())
	if gen != b.gen {
		return
	}

	switch b.state {
	case Closed:
		if ok {
			b.fails = 0
			return
		}
		b.fails++
		if b.fails >= b.cfg.TripAfter {
			b.transition(Open)
		}
	case Probing:
		if !ok {
			b.transition(Open)
			return
		}
		b.passed++
		if b.passed >= b.cfg.Probes {
			b.transition(Closed)
		}
	}
}

// sync performs the one time-driven transition, open to probing.
// Callers hold b.mu.
func (b *Breaker) sync(now time.Time) {
	if b.state == Open && !now.Before(b.until) {
		b.transition(Probing)
	}
}

// transition moves to a new state and starts a fresh generation.
// Callers hold b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.gen++
	b.fails = 0
	b.admitted = 0
	b.passed = 0
	if to == Open {
		b.until = time.Now().Add(b.cfg.Cooldown)
	}
	if b.cfg.OnChange != nil {
		b.cfg.OnChange(from, to)
	}
}
