package plan

import (
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Builder accumulates nodes during the planning phase. Node ids are assigned
// sequentially from 1, so every argument reference points at an earlier node
// and the graph stays acyclic without a global check.
//
// Builder is not safe for concurrent use; planning is single-threaded.
type Builder struct {
	nodes  []Node
	roots  []value.NodeID
	rooted map[value.NodeID]struct{}
	frozen bool
}

func NewBuilder() *Builder {
	return &Builder{rooted: make(map[value.NodeID]struct{})}
}

// Len returns the number of nodes appended so far.
func (b *Builder) Len() int { return len(b.nodes) }

// NewNode appends a node and returns the deferred handle standing for its
// eventual result. Side-effecting kinds are rooted immediately so the work
// survives a discarded handle.
func (b *Builder) NewNode(kind Kind, args map[string]value.Value, span *Span) (value.Value, error) {
	if b.frozen {
		return value.Null(), errs.Scriptf("cannot add %s: plan is frozen", kind)
	}
	if !kind.Known() {
		return value.Null(), errs.Scriptf("unknown operation kind %q", kind)
	}
	deps := collectDeps(args)
	next := value.NodeID(len(b.nodes) + 1)
	for _, d := range deps {
		if d == 0 || d >= next {
			return value.Null(), errs.Scriptf("%s references unknown operation op%d", kind, d)
		}
	}
	if args == nil {
		args = map[string]value.Value{}
	}
	b.nodes = append(b.nodes, Node{
		ID:       next,
		Kind:     kind,
		Args:     args,
		DataDeps: deps,
		Span:     span,
	})
	if kind.SideEffecting() {
		b.markRoot(next)
	}
	return value.Deferred(next), nil
}

// AddOrderEdge sequences node after pred without forwarding a value. The
// edge is rejected if it would close a cycle, which can only happen through
// after/sequence on handles that already depend on each other.
func (b *Builder) AddOrderEdge(node, pred value.NodeID) error {
	if b.frozen {
		return errs.Scriptf("cannot add order edge: plan is frozen")
	}
	n, err := b.node(node)
	if err != nil {
		return err
	}
	if _, err := b.node(pred); err != nil {
		return err
	}
	if node == pred || b.reaches(pred, node) {
		return errs.Scriptf("ordering op%d after op%d would create a dependency cycle", node, pred)
	}
	n.OrderDeps = insertDep(n.OrderDeps, pred)
	return nil
}

// MarkRoot records id as a plan root. Roots are what the executor waits for;
// duplicates are ignored.
func (b *Builder) MarkRoot(id value.NodeID) error {
	if b.frozen {
		return errs.Scriptf("cannot mark root: plan is frozen")
	}
	if _, err := b.node(id); err != nil {
		return err
	}
	b.markRoot(id)
	return nil
}

// Freeze ends planning and returns the immutable plan. The builder is
// unusable afterwards.
func (b *Builder) Freeze() (*Plan, error) {
	if b.frozen {
		return nil, errs.Scriptf("plan is already frozen")
	}
	b.frozen = true
	return assemble(b.nodes, b.roots)
}

func (b *Builder) markRoot(id value.NodeID) {
	if _, ok := b.rooted[id]; ok {
		return
	}
	b.rooted[id] = struct{}{}
	b.roots = append(b.roots, id)
}

func (b *Builder) node(id value.NodeID) (*Node, error) {
	if id == 0 || int(id) > len(b.nodes) {
		return nil, errs.Scriptf("unknown operation op%d", id)
	}
	return &b.nodes[id-1], nil
}

// reaches reports whether to is reachable from from along dependency edges.
func (b *Builder) reaches(from, to value.NodeID) bool {
	seen := make(map[value.NodeID]struct{})
	stack := []value.NodeID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		n := &b.nodes[id-1]
		n.Deps(func(d value.NodeID) {
			stack = append(stack, d)
		})
	}
	return false
}
