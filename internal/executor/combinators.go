package executor

import (
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Combinators never dispatch to a driver. Their completion rules are
// applied here, once at startup and again after every dependency
// transition, so each settles at the earliest moment its rule allows:
//
//	gather   fails on the first member failure with that member's error;
//	         with every member succeeded it yields the results in order
//	any      succeeds with the first member to succeed; fails only once
//	         every member has failed, with the last failure's error
//	at_least yields true the moment n members have succeeded, otherwise
//	         waits for all members and yields succeeded >= n
//	at_most  waits for all members and yields succeeded <= n
//	after    forwards y's result once its predecessors and y succeeded
//
// Members that are still running when a combinator settles keep running
// to their own terminal states; their results are simply not consumed.
func (r *run) tryCombinator(n *plan.Node) {
	if r.states[n.ID].Terminal() {
		return
	}
	if !r.orderGateOpen(n) {
		return
	}
	switch n.Kind {
	case plan.KindGather:
		r.tryGather(n)
	case plan.KindAny:
		r.tryAny(n)
	case plan.KindAtLeast:
		r.tryAtLeast(n)
	case plan.KindAtMost:
		r.tryAtMost(n)
	case plan.KindAfter:
		r.tryAfter(n)
	}
}

// orderGateOpen checks the node's order dependencies: all must succeed
// before the rule may settle the node. A failed predecessor collapses
// the combinator with a dependency error.
func (r *run) orderGateOpen(n *plan.Node) bool {
	for _, pred := range n.OrderDeps {
		switch r.states[pred] {
		case StateSucceeded:
		case StateFailed:
			r.fail(n.ID, errs.DependencyOn(n.ID, pred).WithSpan(n.Span.String()))
			return false
		default:
			return false
		}
	}
	return true
}

type memberState uint8

const (
	memberPending memberState = iota
	memberSucceeded
	memberFailed
	memberCancelled
)

// memberStatus summarizes one composed operand. Operands are normally
// deferred handles; literals count as succeeded immediately, and
// containers resolve once every embedded reference has.
func (r *run) memberStatus(v value.Value) (memberState, *errs.Error) {
	var (
		pending   bool
		cancelled bool
		failed    *errs.Error
	)
	v.ForEachDeferred(func(id value.NodeID) {
		switch r.states[id] {
		case StateSucceeded:
		case StateFailed:
			if failed == nil {
				failed = r.errors[id]
			}
		case StateCancelled:
			cancelled = true
		default:
			pending = true
		}
	})
	switch {
	case failed != nil:
		return memberFailed, failed
	case cancelled:
		return memberCancelled, nil
	case pending:
		return memberPending, nil
	default:
		return memberSucceeded, nil
	}
}

// memberFailure returns the temporally latest failure among v's
// references, using the terminal order stamps.
func (r *run) memberFailure(v value.Value) (*errs.Error, uint64) {
	var (
		err *errs.Error
		seq uint64
	)
	v.ForEachDeferred(func(id value.NodeID) {
		if r.states[id] == StateFailed && r.order[id] >= seq {
			seq = r.order[id]
			err = r.errors[id]
		}
	})
	return err, seq
}

// members returns the composed operands. The intrinsics always build a
// list; a degenerate imported document gets its single argument treated
// as one member.
func combinatorMembers(n *plan.Node) []value.Value {
	if ops, ok := n.Arg("ops").AsList(); ok {
		return ops
	}
	if !n.HasArg("ops") {
		return nil
	}
	return []value.Value{n.Arg("ops")}
}

// combinatorCount resolves the count operand, which may itself be the
// handle of another operation. ok is false while the count is still
// pending or once the node has been failed here.
func (r *run) combinatorCount(n *plan.Node) (int64, bool) {
	v := n.Arg("count")
	if ref, isDeferred := v.AsDeferred(); isDeferred {
		switch r.states[ref] {
		case StateSucceeded:
			v = r.results[ref]
		case StateFailed:
			r.fail(n.ID, errs.DependencyOn(n.ID, ref).WithSpan(n.Span.String()))
			return 0, false
		default:
			return 0, false
		}
	}
	c, ok := v.AsInt()
	if !ok {
		r.fail(n.ID, errs.Scriptf("%s count must be an integer, got %s", n.Kind, v.Kind()).
			WithNode(n.ID).WithSpan(n.Span.String()))
		return 0, false
	}
	return c, true
}

func (r *run) tryGather(n *plan.Node) {
	ops := combinatorMembers(n)
	done := 0
	for _, op := range ops {
		st, memberErr := r.memberStatus(op)
		switch st {
		case memberFailed:
			r.fail(n.ID, memberErr)
			return
		case memberCancelled:
			return
		case memberSucceeded:
			done++
		}
	}
	if done == len(ops) {
		results := make([]value.Value, len(ops))
		for i, op := range ops {
			results[i] = r.resolve(op)
		}
		r.succeed(n.ID, value.ListOf(results))
	}
}

func (r *run) tryAny(n *plan.Node) {
	ops := combinatorMembers(n)
	var (
		lastErr *errs.Error
		lastSeq uint64
		failed  int
	)
	for _, op := range ops {
		st, _ := r.memberStatus(op)
		switch st {
		case memberSucceeded:
			r.succeed(n.ID, r.resolve(op))
			return
		case memberFailed:
			failed++
			if err, seq := r.memberFailure(op); seq >= lastSeq {
				lastSeq = seq
				lastErr = err
			}
		case memberCancelled:
			return
		}
	}
	if len(ops) > 0 && failed == len(ops) {
		r.fail(n.ID, lastErr)
	}
}

func (r *run) tryAtLeast(n *plan.Node) {
	count, ok := r.combinatorCount(n)
	if !ok {
		return
	}
	ops := combinatorMembers(n)
	succeeded, settled := 0, 0
	for _, op := range ops {
		switch st, _ := r.memberStatus(op); st {
		case memberSucceeded:
			succeeded++
			settled++
		case memberFailed, memberCancelled:
			settled++
		}
	}
	// Member failures never fail the node: the answer just arrives once
	// enough successes are in, or every member has settled.
	if int64(succeeded) >= count {
		r.succeed(n.ID, value.Bool(true))
		return
	}
	if settled == len(ops) {
		r.succeed(n.ID, value.Bool(false))
	}
}

func (r *run) tryAtMost(n *plan.Node) {
	count, ok := r.combinatorCount(n)
	if !ok {
		return
	}
	ops := combinatorMembers(n)
	succeeded, settled := 0, 0
	for _, op := range ops {
		switch st, _ := r.memberStatus(op); st {
		case memberSucceeded:
			succeeded++
			settled++
		case memberFailed, memberCancelled:
			settled++
		}
	}
	// A still-running member could still succeed, so the bound is only
	// decidable once every member has settled.
	if settled == len(ops) {
		r.succeed(n.ID, value.Bool(int64(succeeded) <= count))
	}
}

func (r *run) tryAfter(n *plan.Node) {
	// Order deps (the x side) already passed the gate; what remains is
	// forwarding y once it succeeds.
	y := n.Arg("y")
	st, _ := r.memberStatus(y)
	switch st {
	case memberFailed:
		var dep value.NodeID
		y.ForEachDeferred(func(id value.NodeID) {
			if dep == 0 && r.states[id] == StateFailed {
				dep = id
			}
		})
		r.fail(n.ID, errs.DependencyOn(n.ID, dep).WithSpan(n.Span.String()))
	case memberSucceeded:
		r.succeed(n.ID, r.resolve(y))
	}
}
