// Package runs tracks concurrent plan executions. Each submission gets
// a ULID-keyed Run that owns its executor, its cancellation context, and
// its event-handle table; the manager is the daemon's and the CLI's one
// view onto everything currently or previously executing.
package runs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/blueprint/internal/drivers"
	"github.com/GriffinCanCode/blueprint/internal/executor"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/logging"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/id"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// ErrShuttingDown is returned by Submit once Shutdown has started.
var ErrShuttingDown = errors.New("run manager is shutting down")

// subscriberBuffer is the per-subscriber transition channel depth. Slow
// consumers drop transitions rather than stall the scheduler.
const subscriberBuffer = 128

// Options configures a Manager. Zero fields fall back to defaults; a nil
// Drivers set is built from the config.
type Options struct {
	Config  *config.Config
	Drivers *drivers.Set
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// Manager launches and tracks plan runs. Safe for concurrent use.
type Manager struct {
	runs    sync.Map
	cfg     *config.Config
	drivers *drivers.Set
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu     sync.Mutex
	active int
	closed bool
}

// NewManager builds a run manager.
func NewManager(opts Options) *Manager {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	set := opts.Drivers
	if set == nil {
		set = drivers.New(drivers.Options{Config: cfg, Logger: log, Metrics: opts.Metrics})
	}
	return &Manager{
		cfg:     cfg,
		drivers: set,
		log:     log.Named("runs"),
		metrics: opts.Metrics,
	}
}

// Submit starts executing p and returns immediately. The run's lifetime
// is bounded by ctx: cancelling it cancels the run. Submission after
// Shutdown is refused.
func (m *Manager) Submit(ctx context.Context, p *plan.Plan) (*Run, error) {
	if _, err := p.Levels(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	m.active++
	active := m.active
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SetRunsActive(active)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		id:        id.NewRunID().String(),
		plan:      p,
		submitted: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		states:    make(map[value.NodeID]executor.State, p.Len()),
		subs:      make(map[uint64]chan executor.Transition),
	}
	for _, n := range p.Nodes() {
		r.states[n.ID] = executor.StatePending
	}

	family, release := m.drivers.ForRun()
	ex := executor.New(executor.Options{
		MaxConcurrent: m.cfg.Executor.MaxConcurrent,
		Drivers:       family,
		Logger:        m.log,
		Metrics:       m.metrics,
		OnTransition:  r.publish,
	})

	m.runs.Store(r.id, r)
	m.log.Info("run submitted",
		zap.String("run_id", r.id),
		zap.Int("ops", p.Len()))

	go func() {
		defer cancel()
		outcome, err := ex.Execute(runCtx, p)
		release()
		r.finish(outcome, err)
		m.settle()
	}()

	return r, nil
}

// Get looks up a run by id.
func (m *Manager) Get(runID string) (*Run, bool) {
	v, ok := m.runs.Load(runID)
	if !ok {
		return nil, false
	}
	return v.(*Run), true
}

// List returns every known run, finished or not, in submission order.
// ULIDs sort lexicographically by creation time, so sorting ids is
// sorting by submission.
func (m *Manager) List() []*Run {
	var out []*Run
	m.runs.Range(func(_, v any) bool {
		out = append(out, v.(*Run))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Cancel requests cancellation of a run. Reports whether the run exists;
// cancelling a finished run is a no-op.
func (m *Manager) Cancel(runID string) bool {
	r, ok := m.Get(runID)
	if !ok {
		return false
	}
	r.Cancel()
	return true
}

// Active counts runs that have not yet finished.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Shutdown cancels every live run and waits for all of them to reach a
// terminal outcome, up to ctx. New submissions are refused from the
// moment it is called.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	live := m.List()
	for _, r := range live {
		r.Cancel()
	}
	for _, r := range live {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Manager) settle() {
	m.mu.Lock()
	m.active--
	active := m.active
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SetRunsActive(active)
	}
}

// Run is one plan execution from submission to terminal outcome.
type Run struct {
	id        string
	plan      *plan.Plan
	submitted time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu      sync.Mutex
	states  map[value.NodeID]executor.State
	started time.Time
	subs    map[uint64]chan executor.Transition
	nextSub uint64
	settled bool
	outcome *executor.Outcome
	err     error
}

// ID returns the run's ULID key.
func (r *Run) ID() string { return r.id }

// Plan returns the plan being executed. Plans are immutable once frozen,
// so sharing is safe.
func (r *Run) Plan() *plan.Plan { return r.plan }

// Submitted returns when the run was accepted.
func (r *Run) Submitted() time.Time { return r.submitted }

// Done is closed once the run has a terminal outcome.
func (r *Run) Done() <-chan struct{} { return r.done }

// Finished reports whether the run has settled.
func (r *Run) Finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Cancel asks the run to stop. The executor settles every node in
// bounded time; observe Done for completion.
func (r *Run) Cancel() { r.cancel() }

// Outcome returns the terminal outcome, or nil while the run is live. A
// non-nil error means the plan never scheduled at all.
func (r *Run) Outcome() (*executor.Outcome, error) {
	if !r.Finished() {
		return nil, nil
	}
	return r.outcome, r.err
}

// Wait blocks until the run settles or ctx expires.
func (r *Run) Wait(ctx context.Context) (*executor.Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status renders the run's coarse state for listings.
func (r *Run) Status() string {
	if !r.Finished() {
		return "running"
	}
	if r.err != nil {
		return "failed"
	}
	return r.outcome.Status.String()
}

// StateCounts tallies the plan's nodes per lifecycle state, live or
// terminal.
func (r *Run) StateCounts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, st := range r.states {
		counts[st.String()]++
	}
	return counts
}

// Started returns when the first node began executing; zero while
// nothing has run yet.
func (r *Run) Started() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Subscribe registers a transition observer. The channel is closed when
// the run settles; the returned func unsubscribes early. Subscribers
// that fall subscriberBuffer transitions behind miss the overflow.
func (r *Run) Subscribe() (<-chan executor.Transition, func()) {
	ch := make(chan executor.Transition, subscriberBuffer)
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	token := r.nextSub
	r.nextSub++
	r.subs[token] = ch
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		if _, ok := r.subs[token]; ok {
			delete(r.subs, token)
			close(ch)
		}
		r.mu.Unlock()
	}
}

// publish records one transition and fans it out. Called from the
// scheduler goroutine, so it never blocks on a subscriber.
func (r *Run) publish(t executor.Transition) {
	r.mu.Lock()
	r.states[t.Node] = t.To
	if r.started.IsZero() && t.To == executor.StateRunning {
		r.started = t.At
	}
	for _, ch := range r.subs {
		select {
		case ch <- t:
		default:
		}
	}
	r.mu.Unlock()
}

func (r *Run) finish(o *executor.Outcome, err error) {
	r.mu.Lock()
	r.settled = true
	r.outcome = o
	r.err = err
	for token, ch := range r.subs {
		delete(r.subs, token)
		close(ch)
	}
	r.mu.Unlock()
	close(r.done)
}
