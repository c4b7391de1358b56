// Package executor walks frozen plans to completion. Nodes become ready
// when every data and order dependency has succeeded, run on their kind
// family's driver, and settle into terminal states that wake their
// dependents. Combinators and pure computations resolve on the scheduler
// goroutine without occupying a driver slot.
package executor

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/blueprint/internal/infrastructure/logging"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Driver executes the nodes of one kind family. Run receives arguments
// with every deferred reference already substituted by the producing
// node's result. Implementations must honor ctx and return promptly
// once it is cancelled.
type Driver interface {
	Run(ctx context.Context, node *plan.Node, args map[string]value.Value) (value.Value, error)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, node *plan.Node, args map[string]value.Value) (value.Value, error)

func (f DriverFunc) Run(ctx context.Context, node *plan.Node, args map[string]value.Value) (value.Value, error) {
	return f(ctx, node, args)
}

// Transition is one observed node state change. The daemon's stream
// endpoint forwards these to websocket subscribers.
type Transition struct {
	Node value.NodeID
	Kind plan.Kind
	From State
	To   State
	Err  *errs.Error
	At   time.Time
}

// Options configures an Executor.
type Options struct {
	// MaxConcurrent caps nodes in the Running state; 0 means unbounded.
	// Ready nodes beyond the cap park on the queue in id order.
	MaxConcurrent int

	// Drivers maps each kind family to its driver. Compute, JSON, and
	// combinator families need no entry.
	Drivers map[plan.Family]Driver

	Logger  *logging.Logger
	Metrics *monitoring.Metrics

	// OnTransition, when set, observes every state change. It is called
	// from the scheduler goroutine and must not block.
	OnTransition func(Transition)
}

// Executor runs plans. It is stateless across runs and safe for
// concurrent use; all per-run state lives on the run.
type Executor struct {
	opts Options
	log  *logging.Logger
}

// New builds an executor from options.
func New(opts Options) *Executor {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Executor{opts: opts, log: log.Named("executor")}
}

// Execute runs every node of p to a terminal state and reports the
// outcome. Node failures land in the outcome, not in the returned
// error; a non-nil error means the plan could not be scheduled at all.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan) (*Outcome, error) {
	if _, err := p.Levels(); err != nil {
		return nil, err
	}
	r := newRun(e, p)
	return r.loop(ctx)
}

type driverDone struct {
	id  value.NodeID
	val value.Value
	err error
}

// run is the mutable state of one execution. Everything except driver
// bodies happens on the scheduler goroutine, so none of it is locked.
type run struct {
	ex *Executor
	p  *plan.Plan

	idsAsc     []value.NodeID
	deps       map[value.NodeID][]value.NodeID
	dependents map[value.NodeID][]value.NodeID
	remaining  map[value.NodeID]int

	states  map[value.NodeID]State
	results map[value.NodeID]value.Value
	errors  map[value.NodeID]*errs.Error
	timings map[value.NodeID]Timing

	// order stamps terminal transitions so any() can report the
	// temporally last failure.
	order map[value.NodeID]uint64
	seq   uint64

	queue    readyQueue
	wave     uint64
	worklist []value.NodeID

	running   int
	doneCh    chan driverDone
	terminal  int
	cancelled bool
	cause     *errs.Error
	started   time.Time
}

func newRun(e *Executor, p *plan.Plan) *run {
	n := p.Len()
	r := &run{
		ex:         e,
		p:          p,
		idsAsc:     make([]value.NodeID, 0, n),
		deps:       make(map[value.NodeID][]value.NodeID, n),
		dependents: p.Dependents(),
		remaining:  make(map[value.NodeID]int, n),
		states:     make(map[value.NodeID]State, n),
		results:    make(map[value.NodeID]value.Value, n),
		errors:     make(map[value.NodeID]*errs.Error),
		timings:    make(map[value.NodeID]Timing, n),
		order:      make(map[value.NodeID]uint64, n),
		doneCh:     make(chan driverDone, n),
	}
	nodes := p.Nodes()
	for i := range nodes {
		node := &nodes[i]
		r.idsAsc = append(r.idsAsc, node.ID)
		r.states[node.ID] = StatePending
		seen := make(map[value.NodeID]struct{})
		node.Deps(func(d value.NodeID) {
			if _, dup := seen[d]; dup {
				return
			}
			seen[d] = struct{}{}
			r.deps[node.ID] = append(r.deps[node.ID], d)
		})
		r.remaining[node.ID] = len(r.deps[node.ID])
	}
	sort.Slice(r.idsAsc, func(i, j int) bool { return r.idsAsc[i] < r.idsAsc[j] })
	return r
}

func (r *run) loop(ctx context.Context) (*Outcome, error) {
	r.started = time.Now()
	r.seed()

	for r.terminal < r.p.Len() {
		if ctx.Err() != nil {
			r.cancel()
		}
		r.drain()
		if r.terminal == r.p.Len() {
			break
		}
		if !r.cancelled {
			r.dispatch(ctx)
			r.drain()
		}
		if r.terminal == r.p.Len() {
			break
		}
		if r.running == 0 {
			// Acyclic plans always have something runnable; getting here
			// means an imported document wedged the graph.
			return nil, errs.Scriptf("plan wedged with %d operations unable to run", r.p.Len()-r.terminal)
		}
		if r.cancelled {
			r.finishDriver(<-r.doneCh)
			continue
		}
		select {
		case <-ctx.Done():
			r.cancel()
		case d := <-r.doneCh:
			r.finishDriver(d)
		}
	}
	return r.outcome(), nil
}

// seed settles zero-dependency nodes and gives every combinator a first
// chance to resolve (gather([]) and literal-only members settle here).
func (r *run) seed() {
	for _, id := range r.idsAsc {
		n, _ := r.p.Get(id)
		if n.Kind.Combinator() {
			r.tryCombinator(n)
			continue
		}
		if r.remaining[id] == 0 {
			r.markReady(n)
		}
	}
}

// drain wakes the dependents of every settled node, cascading through
// combinators and inline computations until nothing more resolves
// without a driver.
func (r *run) drain() {
	for len(r.worklist) > 0 {
		id := r.worklist[0]
		r.worklist = r.worklist[1:]
		r.wave++
		for _, dep := range r.dependents[id] {
			r.wake(dep, id)
		}
	}
}

// wake reconsiders one dependent after cause reached a terminal state.
func (r *run) wake(id, cause value.NodeID) {
	if r.states[id].Terminal() {
		return
	}
	n, ok := r.p.Get(id)
	if !ok {
		return
	}
	if n.Kind.Combinator() {
		r.tryCombinator(n)
		return
	}
	switch r.states[cause] {
	case StateSucceeded:
		r.remaining[id]--
		if r.remaining[id] == 0 && r.states[id] == StatePending {
			r.markReady(n)
		}
	case StateFailed:
		// Short-circuit: the node never runs, and its own dependents
		// collapse the same way.
		r.fail(id, errs.DependencyOn(id, cause).WithSpan(n.Span.String()))
	case StateCancelled:
		// The cancel sweep already settled every node that could be.
	}
}

func (r *run) markReady(n *plan.Node) {
	r.transition(n.ID, StateReady, nil)
	switch n.Kind.Family() {
	case plan.FamilyCompute, plan.FamilyJSON:
		r.runInline(n)
	default:
		heap.Push(&r.queue, readyItem{id: n.ID, wave: r.wave})
		r.observeQueue()
	}
}

// runInline resolves pure computations on the scheduler goroutine. They
// never block and never occupy a driver slot.
func (r *run) runInline(n *plan.Node) {
	args, err := r.resolveArgs(n)
	if err != nil {
		r.fail(n.ID, r.normalize(n, err))
		return
	}
	var out value.Value
	switch n.Kind.Family() {
	case plan.FamilyCompute:
		out, err = plan.EvalCompute(n.Kind, args)
	case plan.FamilyJSON:
		out, err = plan.EvalJSON(n.Kind, args)
	}
	if err != nil {
		r.fail(n.ID, r.normalize(n, err))
		return
	}
	r.succeed(n.ID, out)
}

// dispatch starts ready nodes until the queue empties or the
// concurrency cap is reached.
func (r *run) dispatch(ctx context.Context) {
	for r.queue.Len() > 0 && !r.cancelled {
		if cap := r.ex.opts.MaxConcurrent; cap > 0 && r.running >= cap {
			break
		}
		it := heap.Pop(&r.queue).(readyItem)
		n, ok := r.p.Get(it.id)
		if !ok {
			continue
		}
		r.start(ctx, n)
	}
	r.observeQueue()
}

func (r *run) start(ctx context.Context, n *plan.Node) {
	args, err := r.resolveArgs(n)
	if err != nil {
		r.fail(n.ID, r.normalize(n, err))
		return
	}
	driver := r.ex.opts.Drivers[n.Kind.Family()]
	if driver == nil {
		r.fail(n.ID, errs.Operationf(n.ID, "no driver registered for %s operations", n.Kind.Family()).WithSpan(n.Span.String()))
		return
	}
	r.transition(n.ID, StateRunning, nil)
	r.running++
	r.observeRunning()
	go func() {
		v, err := driver.Run(ctx, n, args)
		r.doneCh <- driverDone{id: n.ID, val: v, err: err}
	}()
}

func (r *run) finishDriver(d driverDone) {
	r.running--
	r.observeRunning()
	n, ok := r.p.Get(d.id)
	if !ok {
		return
	}
	if d.err == nil {
		// Work that finished during teardown still finished; keep the
		// result.
		r.succeed(d.id, d.val)
		return
	}
	e := r.normalize(n, d.err)
	if r.cancelled || e.Kind == errs.Cancelled {
		r.errors[d.id] = errs.CancelledAt(d.id).WithSpan(n.Span.String())
		r.transition(d.id, StateCancelled, r.errors[d.id])
		return
	}
	r.fail(d.id, e)
}

// cancel flips every node that has not started to Cancelled. Running
// drivers observe ctx and drain through doneCh, so the run reaches a
// fully terminal state in bounded time.
func (r *run) cancel() {
	if r.cancelled {
		return
	}
	r.cancelled = true
	r.ex.log.Info("run cancelled",
		zap.Int("unfinished", r.p.Len()-r.terminal),
		zap.Int("running", r.running))
	for _, id := range r.idsAsc {
		if st := r.states[id]; st == StatePending || st == StateReady {
			n, _ := r.p.Get(id)
			r.errors[id] = errs.CancelledAt(id).WithSpan(n.Span.String())
			r.transition(id, StateCancelled, r.errors[id])
		}
	}
	r.queue = r.queue[:0]
	r.observeQueue()
}

func (r *run) succeed(id value.NodeID, v value.Value) {
	r.results[id] = v
	r.transition(id, StateSucceeded, nil)
}

func (r *run) fail(id value.NodeID, e *errs.Error) {
	r.errors[id] = e
	if r.cause == nil && e.Kind != errs.Dependency {
		r.cause = e
	}
	r.transition(id, StateFailed, e)
}

// transition is the single place node state changes. It keeps terminal
// states monotonic, stamps timings, and fans out to logs, metrics, and
// the transition callback.
func (r *run) transition(id value.NodeID, to State, e *errs.Error) {
	from := r.states[id]
	if from.Terminal() || from == to {
		return
	}
	if !canTransition(from, to) {
		r.ex.log.Error("illegal state transition",
			zap.Uint64("op", uint64(id)),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
		return
	}
	r.states[id] = to
	now := time.Now()
	n, _ := r.p.Get(id)

	switch to {
	case StateRunning:
		t := r.timings[id]
		t.Start = now
		r.timings[id] = t
	case StateSucceeded, StateFailed, StateCancelled:
		t := r.timings[id]
		if t.Start.IsZero() {
			t.Start = now
		}
		t.End = now
		r.timings[id] = t
		r.seq++
		r.order[id] = r.seq
		r.terminal++
		r.worklist = append(r.worklist, id)
		if m := r.ex.opts.Metrics; m != nil {
			m.RecordOp(string(n.Kind), to.String(), t.Duration())
		}
	}

	if to == StateFailed {
		r.ex.log.Error("op failed",
			zap.Uint64("op", uint64(id)),
			zap.String("kind", string(n.Kind)),
			zap.String("span", n.Span.String()),
			zap.Error(e))
	} else {
		r.ex.log.Debug("op transition",
			zap.Uint64("op", uint64(id)),
			zap.String("kind", string(n.Kind)),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}

	if cb := r.ex.opts.OnTransition; cb != nil {
		cb(Transition{Node: id, Kind: n.Kind, From: from, To: to, Err: e, At: now})
	}
}

// resolveArgs substitutes every deferred reference in the node's
// arguments with the producing node's result. Readiness guarantees the
// results exist.
func (r *run) resolveArgs(n *plan.Node) (map[string]value.Value, error) {
	if len(n.Args) == 0 {
		return nil, nil
	}
	out := make(map[string]value.Value, len(n.Args))
	for name, v := range n.Args {
		resolved, err := value.Substitute(v, r.lookup)
		if err != nil {
			return nil, err
		}
		out[name] = resolved
	}
	return out, nil
}

func (r *run) lookup(id value.NodeID) (value.Value, bool) {
	res, ok := r.results[id]
	return res, ok
}

// resolve materializes one value against the run's results. Callers
// only use it on values whose references are known to have succeeded.
func (r *run) resolve(v value.Value) value.Value {
	out, err := value.Substitute(v, r.lookup)
	if err != nil {
		return value.Null()
	}
	return out
}

// normalize coerces a driver error into the engine taxonomy, scoping it
// to the node and attaching the source span.
func (r *run) normalize(n *plan.Node, err error) *errs.Error {
	var e *errs.Error
	switch {
	case errors.As(err, &e):
		if e.Node == 0 {
			e = e.WithNode(n.ID)
		}
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		e = errs.CancelledAt(n.ID)
	default:
		e = errs.OperationWrap(n.ID, err)
	}
	if e.Span == "" {
		if span := n.Span.String(); span != "" {
			e = e.WithSpan(span)
		}
	}
	return e
}

func (r *run) outcome() *Outcome {
	o := &Outcome{
		Roots:    append([]value.NodeID(nil), r.p.Roots()...),
		States:   r.states,
		Results:  r.results,
		Errors:   r.errors,
		Timings:  r.timings,
		Started:  r.started,
		Finished: time.Now(),
		Cause:    r.cause,
	}
	o.Status = r.status()
	if m := r.ex.opts.Metrics; m != nil {
		m.RecordRun(o.Status.String(), o.Duration())
		m.SetOpsRunning(0)
		m.SetReadyQueue(0)
	}
	r.ex.log.Info("run finished",
		zap.String("status", o.Status.String()),
		zap.Int("ops", r.p.Len()),
		zap.Duration("duration", o.Duration()))
	return o
}

func (r *run) status() Status {
	if r.cancelled {
		return StatusCancelled
	}
	for _, id := range r.idsAsc {
		// ctx can fire while the last driver drains, settling nodes
		// without the cancel sweep ever running.
		if r.states[id] == StateCancelled {
			return StatusCancelled
		}
	}
	for _, root := range r.p.Roots() {
		if r.states[root] == StateFailed {
			return StatusFailed
		}
	}
	// Plans without explicit roots fail on any failed node; imported
	// documents can reach this.
	if len(r.p.Roots()) == 0 {
		for _, id := range r.idsAsc {
			if r.states[id] == StateFailed {
				return StatusFailed
			}
		}
	}
	return StatusSucceeded
}

func (r *run) observeRunning() {
	if m := r.ex.opts.Metrics; m != nil {
		m.SetOpsRunning(r.running)
	}
}

func (r *run) observeQueue() {
	if m := r.ex.opts.Metrics; m != nil {
		m.SetReadyQueue(r.queue.Len())
	}
}
