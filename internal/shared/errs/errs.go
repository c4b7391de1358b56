// Package errs defines the engine's error taxonomy. Errors are classified by
// kind rather than by Go type: planning-time violations (ScriptError),
// driver failures (OperationError), cancellation, dependency failures, and
// event-op timeouts. One structured type carries the kind, the node it
// concerns, an optional source span, and a wrapped cause.
package errs

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Kind classifies an engine error.
type Kind uint8

const (
	// Script marks a planning-time violation: branching on a deferred,
	// wrong intrinsic arity, mutation after freeze, a non-serializable
	// value in a plan file.
	Script Kind = iota + 1

	// Operation marks a driver failure while running a node. HTTP non-2xx
	// is not an operation error; only transport and parse failures are.
	Operation

	// Cancelled marks a node that did not complete because the plan was
	// cancelled.
	Cancelled

	// Dependency marks a node that never ran because a data or order
	// dependency failed.
	Dependency

	// Timeout marks an event op that hit its explicit timeout_ms. Polls
	// surface this as a null result, not a failure; the kind exists for
	// drivers that need to distinguish the case internally.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Script:
		return "ScriptError"
	case Operation:
		return "OperationError"
	case Cancelled:
		return "Cancelled"
	case Dependency:
		return "DependencyError"
	case Timeout:
		return "Timeout"
	default:
		return fmt.Sprintf("errs.Kind(%d)", uint8(k))
	}
}

// Error is the structured engine error.
type Error struct {
	Kind Kind
	Node value.NodeID // 0 when not node-scoped
	Span string       // pre-formatted "file:line:col", empty when unknown
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	var prefix string
	if e.Span != "" {
		prefix = e.Span + ": "
	}
	body := e.Msg
	if body == "" && e.Err != nil {
		body = e.Err.Error()
	} else if e.Err != nil {
		body = fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Node != 0 {
		return fmt.Sprintf("%s%s at op %d: %s", prefix, e.Kind, e.Node, body)
	}
	return fmt.Sprintf("%s%s: %s", prefix, e.Kind, body)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind via the sentinel helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Node == 0 && t.Err == nil && t.Kind == e.Kind
}

// WithNode returns a copy scoped to the given node.
func (e *Error) WithNode(id value.NodeID) *Error {
	cp := *e
	cp.Node = id
	return &cp
}

// WithSpan returns a copy carrying a source location.
func (e *Error) WithSpan(span string) *Error {
	cp := *e
	cp.Span = span
	return &cp
}

// Constructors.

func Scriptf(format string, args ...interface{}) *Error {
	return &Error{Kind: Script, Msg: fmt.Sprintf(format, args...)}
}

func Operationf(node value.NodeID, format string, args ...interface{}) *Error {
	return &Error{Kind: Operation, Node: node, Msg: fmt.Sprintf(format, args...)}
}

// OperationWrap wraps a driver failure.
func OperationWrap(node value.NodeID, err error) *Error {
	return &Error{Kind: Operation, Node: node, Err: err}
}

func CancelledAt(node value.NodeID) *Error {
	return &Error{Kind: Cancelled, Node: node, Msg: "plan cancelled"}
}

// DependencyOn reports that node could not run because dep failed.
func DependencyOn(node, dep value.NodeID) *Error {
	return &Error{Kind: Dependency, Node: node, Msg: fmt.Sprintf("dependency op %d failed", dep)}
}

func Timeoutf(node value.NodeID, format string, args ...interface{}) *Error {
	return &Error{Kind: Timeout, Node: node, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the taxonomy kind, or 0 for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsScript(err error) bool     { return KindOf(err) == Script }
func IsOperation(err error) bool  { return KindOf(err) == Operation }
func IsCancelled(err error) bool  { return KindOf(err) == Cancelled }
func IsDependency(err error) bool { return KindOf(err) == Dependency }
func IsTimeout(err error) bool    { return KindOf(err) == Timeout }
