// Package intrinsics is the flat __bp_* binding surface a script host calls
// during planning. Every intrinsic accepts materialized or deferred values
// and returns a Deferred handle for the node it appended, except where the
// eager-fold rules apply, in which case the materialized result comes back
// directly and no node is allocated.
//
// Arity and argument-shape violations are script errors in the host
// language's own voice: `read_file() takes exactly 1 argument (3 given)`.
// Shape checks run at construction only when the operand is already
// materialized; deferred operands are validated by the driver at run time.
package intrinsics

import (
	"sort"
	"strings"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Prefix is prepended to every script-visible intrinsic name.
const Prefix = "__bp_"

// Registry binds intrinsic calls to one planning session.
type Registry struct {
	b *plan.Builder
}

// New builds a registry appending to b.
func New(b *plan.Builder) *Registry {
	return &Registry{b: b}
}

// Builder returns the underlying planning builder.
func (r *Registry) Builder() *plan.Builder { return r.b }

// Names returns every registered intrinsic name with the __bp_ prefix,
// aliases included, sorted. Hosts use this to populate their global scope.
func Names() []string {
	out := make([]string, 0, len(table)+len(aliases))
	for name := range table {
		out = append(out, Prefix+name)
	}
	for alias := range aliases {
		out = append(out, Prefix+alias)
	}
	sort.Strings(out)
	return out
}

// Truth is the branch-condition helper for hosts. Script control flow
// runs at planning time over materialized values only, so asking for
// the truth of a Deferred is a script error naming the node.
func Truth(v value.Value) (bool, error) {
	t, ok := value.Truth(v)
	if !ok {
		ref, _ := v.AsDeferred()
		return false, errs.Scriptf("cannot branch on the unresolved result of op%d", ref)
	}
	return t, nil
}

// Call invokes an intrinsic by name. The name may carry the __bp_ prefix or
// not; "race" resolves to "any". args are positional, kwargs named; binding
// follows the host language's rules (positionals first, kwargs may not
// rebind a positional).
func (r *Registry) Call(name string, args []value.Value, kwargs map[string]value.Value, span *plan.Span) (value.Value, error) {
	bare := strings.TrimPrefix(name, Prefix)
	if alias, ok := aliases[bare]; ok {
		bare = alias
	}
	in, ok := table[bare]
	if !ok {
		return value.Null(), errs.Scriptf("unknown intrinsic %q", name)
	}
	c, err := in.bind(args, kwargs, span)
	if err != nil {
		return value.Null(), err
	}
	return in.build(r, c)
}

// intrinsic describes one binding: its script-visible name, positional
// parameter names, how many of them are required, and the construction
// handler. variadic intrinsics collect extra positionals into c.rest.
type intrinsic struct {
	script   string
	params   []string
	required int
	variadic bool
	build    func(r *Registry, c *call) (value.Value, error)
}

// call is one bound invocation.
type call struct {
	in   *intrinsic
	vals map[string]value.Value
	rest []value.Value
	span *plan.Span
}

func (in *intrinsic) bind(args []value.Value, kwargs map[string]value.Value, span *plan.Span) (*call, error) {
	c := &call{in: in, vals: make(map[string]value.Value, len(in.params)), span: span}

	if !in.variadic && len(args) > len(in.params) {
		return nil, in.arityErr(len(args))
	}
	for i, a := range args {
		if i >= len(in.params) {
			c.rest = append(c.rest, a)
			continue
		}
		c.vals[in.params[i]] = a
	}
	for k, v := range kwargs {
		if !in.hasParam(k) {
			return nil, errs.Scriptf("%s() got an unexpected keyword argument '%s'", in.script, k)
		}
		if _, dup := c.vals[k]; dup {
			return nil, errs.Scriptf("%s() got multiple values for argument '%s'", in.script, k)
		}
		c.vals[k] = v
	}
	for i := 0; i < in.required; i++ {
		if _, ok := c.vals[in.params[i]]; !ok {
			if len(kwargs) == 0 {
				return nil, in.arityErr(len(args))
			}
			return nil, errs.Scriptf("%s() missing required argument '%s'", in.script, in.params[i])
		}
	}
	return c, nil
}

func (in *intrinsic) hasParam(name string) bool {
	for _, p := range in.params {
		if p == name {
			return true
		}
	}
	return false
}

func (in *intrinsic) arityErr(given int) *errs.Error {
	plural := func(n int) string {
		if n == 1 {
			return "argument"
		}
		return "arguments"
	}
	switch {
	case in.variadic:
		return errs.Scriptf("%s() takes at least %d %s (%d given)",
			in.script, in.required, plural(in.required), given)
	case in.required == len(in.params):
		return errs.Scriptf("%s() takes exactly %d %s (%d given)",
			in.script, in.required, plural(in.required), given)
	default:
		return errs.Scriptf("%s() takes from %d to %d arguments (%d given)",
			in.script, in.required, len(in.params), given)
	}
}

// has reports whether the named parameter was bound.
func (c *call) has(name string) bool {
	_, ok := c.vals[name]
	return ok
}

// get returns the bound value, Null when absent.
func (c *call) get(name string) value.Value {
	return c.vals[name]
}

// materialized reports whether every bound value is free of deferreds, which
// is what gates eager folding.
func (c *call) materialized() bool {
	for _, v := range c.vals {
		if !v.IsMaterialized() {
			return false
		}
	}
	for _, v := range c.rest {
		if !v.IsMaterialized() {
			return false
		}
	}
	return true
}

// node appends a plan node carrying the bound params named in keep, in
// order, skipping unbound ones.
func (c *call) node(r *Registry, kind plan.Kind, keep ...string) (value.Value, error) {
	args := make(map[string]value.Value, len(keep))
	for _, name := range keep {
		if v, ok := c.vals[name]; ok {
			args[name] = v
		}
	}
	return r.b.NewNode(kind, args, c.span)
}

// Construction-time shape checks. Each validates only when the value is
// already materialized; a deferred passes and the driver re-checks at run
// time with the same message shape.

func (c *call) str(name string) error {
	v, ok := c.vals[name]
	if !ok || v.IsDeferred() {
		return nil
	}
	if _, isStr := v.AsString(); !isStr {
		return errs.Scriptf("%s() argument '%s' must be a string, got %s", c.in.script, name, v.Kind())
	}
	return nil
}

func (c *call) boolean(name string) error {
	v, ok := c.vals[name]
	if !ok || v.IsDeferred() || v.IsNull() {
		return nil
	}
	if _, isBool := v.AsBool(); !isBool {
		return errs.Scriptf("%s() argument '%s' must be a bool, got %s", c.in.script, name, v.Kind())
	}
	return nil
}

func (c *call) integer(name string) error {
	v, ok := c.vals[name]
	if !ok || v.IsDeferred() {
		return nil
	}
	if _, isInt := v.AsInt(); !isInt {
		return errs.Scriptf("%s() argument '%s' must be an integer, got %s", c.in.script, name, v.Kind())
	}
	return nil
}

func (c *call) strs(names ...string) error {
	for _, name := range names {
		if err := c.str(name); err != nil {
			return err
		}
	}
	return nil
}
