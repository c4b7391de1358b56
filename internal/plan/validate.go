package plan

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// Issue is one finding from Check. Node is 0 for plan-wide findings.
type Issue struct {
	Code string
	Node value.NodeID
	Msg  string
}

func (i Issue) String() string {
	if i.Node != 0 {
		return fmt.Sprintf("op%d: %s", i.Node, i.Msg)
	}
	return i.Msg
}

// Report is the outcome of static validation.
type Report struct {
	Errors   []Issue
	Warnings []Issue
	Levels   [][]value.NodeID
}

// OK reports whether the plan can be executed.
func (r *Report) OK() bool { return len(r.Errors) == 0 }

// Err aggregates all errors, or returns nil for a runnable plan.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, issue := range r.Errors {
		result = multierror.Append(result, errs.Scriptf("%s", issue.String()))
	}
	return result.ErrorOrNil()
}

const largePlanThreshold = 1000

// Check validates a frozen plan against structural rules and, when pol is
// non-nil, against the resource policy. It never mutates the plan.
func Check(p *Plan, pol *policy.Policy) *Report {
	r := &Report{}

	levels, err := p.Levels()
	if err != nil {
		r.Errors = append(r.Errors, Issue{Code: "cycle", Msg: err.Error()})
		return r
	}
	r.Levels = levels

	referenced := make(map[value.NodeID]struct{}, len(p.nodes))
	for i := range p.nodes {
		n := &p.nodes[i]
		n.Deps(func(d value.NodeID) {
			referenced[d] = struct{}{}
		})
	}

	var lastID value.NodeID
	for i := range p.nodes {
		if p.nodes[i].ID > lastID {
			lastID = p.nodes[i].ID
		}
	}

	for i := range p.nodes {
		n := &p.nodes[i]
		r.checkCombinator(n)
		r.checkPlatform(n)
		r.checkPolicy(n, pol)
		r.checkUnused(n, p, referenced, lastID)
	}
	r.checkWriteRaces(p, levels)

	if len(p.nodes) > largePlanThreshold {
		r.Warnings = append(r.Warnings, Issue{
			Code: "large-plan",
			Msg:  fmt.Sprintf("plan has %d ops; consider splitting it", len(p.nodes)),
		})
	}
	return r
}

func (r *Report) checkCombinator(n *Node) {
	switch n.Kind {
	case KindAtLeast, KindAtMost:
		count, ok := n.Arg("count").AsInt()
		if !ok {
			r.Errors = append(r.Errors, Issue{
				Code: "combinator-count", Node: n.ID,
				Msg: fmt.Sprintf("%s count must be an integer", n.Kind),
			})
			return
		}
		if count < 0 {
			r.Errors = append(r.Errors, Issue{
				Code: "combinator-count", Node: n.ID,
				Msg: fmt.Sprintf("%s count must not be negative, got %d", n.Kind, count),
			})
			return
		}
		ops, _ := n.Arg("ops").AsList()
		if n.Kind == KindAtLeast && count > int64(len(ops)) {
			r.Errors = append(r.Errors, Issue{
				Code: "combinator-count", Node: n.ID,
				Msg: fmt.Sprintf("at_least requires %d successes but composes only %d operations", count, len(ops)),
			})
		}
	case KindAny:
		ops, _ := n.Arg("ops").AsList()
		if len(ops) == 0 {
			r.Errors = append(r.Errors, Issue{
				Code: "combinator-count", Node: n.ID,
				Msg: "any() requires at least one operation",
			})
		}
	}
}

func (r *Report) checkPlatform(n *Node) {
	if n.Kind != KindEventSource || runtime.GOOS != "windows" {
		return
	}
	if sk, ok := n.Arg("source_kind").AsString(); ok && UnixOnlySource(sk) {
		r.Errors = append(r.Errors, Issue{
			Code: "platform", Node: n.ID,
			Msg: fmt.Sprintf("%s sources are not supported on windows", sk),
		})
	}
}

func (r *Report) checkPolicy(n *Node, pol *policy.Policy) {
	if pol == nil {
		return
	}
	actions, dynamic := nodeActions(n)
	for _, a := range actions {
		if v := pol.Check(a); v.Decision == policy.Deny {
			r.Errors = append(r.Errors, Issue{
				Code: "policy", Node: n.ID,
				Msg: fmt.Sprintf("%s denied by policy rule %q", a, v.Rule),
			})
		}
	}
	if dynamic {
		r.Warnings = append(r.Warnings, Issue{
			Code: "dynamic-policy", Node: n.ID,
			Msg: fmt.Sprintf("%s target depends on another operation and is checked at run time", n.Kind),
		})
	}
}

func (r *Report) checkUnused(n *Node, p *Plan, referenced map[value.NodeID]struct{}, lastID value.NodeID) {
	if n.Kind.SideEffecting() || p.IsRoot(n.ID) || n.ID == lastID {
		return
	}
	if _, used := referenced[n.ID]; !used {
		r.Warnings = append(r.Warnings, Issue{
			Code: "unused", Node: n.ID,
			Msg: fmt.Sprintf("result of %s is never used", n.Kind),
		})
	}
}

// checkWriteRaces flags two writes to the same literal path that land in the
// same dependency level, since nothing orders them against each other.
func (r *Report) checkWriteRaces(p *Plan, levels [][]value.NodeID) {
	for _, level := range levels {
		byPath := make(map[string][]value.NodeID)
		for _, id := range level {
			n, _ := p.Get(id)
			for _, path := range writeTargets(n) {
				byPath[path] = append(byPath[path], id)
			}
		}
		paths := make([]string, 0, len(byPath))
		for path, ids := range byPath {
			if len(ids) > 1 {
				paths = append(paths, path)
			}
		}
		sort.Strings(paths)
		for _, path := range paths {
			ids := byPath[path]
			r.Warnings = append(r.Warnings, Issue{
				Code: "write-race",
				Msg:  fmt.Sprintf("%s may write %q concurrently; add ordering between them", opList(ids), path),
			})
		}
	}
}

func writeTargets(n *Node) []string {
	var out []string
	add := func(name string) {
		if s, ok := n.Arg(name).AsString(); ok {
			out = append(out, s)
		}
	}
	switch n.Kind {
	case KindWriteFile, KindAppendFile, KindDeleteFile:
		add("path")
	case KindCopyFile:
		add("dst")
	case KindMoveFile:
		add("src")
		add("dst")
	}
	return out
}

// nodeActions maps a node onto the policy actions it implies. Only literal
// arguments produce actions; dynamic is set when a policy-relevant argument
// is still deferred.
func nodeActions(n *Node) (actions []policy.Action, dynamic bool) {
	str := func(name string) (string, bool) {
		v := n.Arg(name)
		if v.IsDeferred() {
			dynamic = true
			return "", false
		}
		return v.AsString()
	}
	intArg := func(name string) (int64, bool) {
		v := n.Arg(name)
		if v.IsDeferred() {
			dynamic = true
			return 0, false
		}
		return v.AsInt()
	}

	switch n.Kind {
	case KindReadFile, KindFileExists, KindIsFile, KindIsDir, KindListDir, KindFileSize:
		if path, ok := str("path"); ok {
			actions = append(actions, policy.ReadFile(path))
		}
	case KindWriteFile, KindAppendFile, KindDeleteFile, KindMkdir, KindRmdir:
		if path, ok := str("path"); ok {
			actions = append(actions, policy.WriteFile(path))
		}
	case KindCopyFile:
		if src, ok := str("src"); ok {
			actions = append(actions, policy.ReadFile(src))
		}
		if dst, ok := str("dst"); ok {
			actions = append(actions, policy.WriteFile(dst))
		}
	case KindMoveFile:
		if src, ok := str("src"); ok {
			actions = append(actions, policy.WriteFile(src))
		}
		if dst, ok := str("dst"); ok {
			actions = append(actions, policy.WriteFile(dst))
		}
	case KindHTTPRequest:
		method, okM := str("method")
		url, okU := str("url")
		if okM && okU {
			actions = append(actions, policy.HTTP(method, url))
		}
	case KindExec:
		argv, ok := n.Arg("argv").AsList()
		if !ok {
			if n.Arg("argv").IsDeferred() {
				dynamic = true
			}
			return
		}
		if len(argv) == 0 {
			return
		}
		if argv[0].IsDeferred() {
			dynamic = true
			return
		}
		if cmd, ok := argv[0].AsString(); ok {
			actions = append(actions, policy.Exec(cmd))
		}
	case KindEnvGet:
		if name, ok := str("name"); ok {
			actions = append(actions, policy.EnvGet(name))
		}
	case KindEventSource:
		sk, ok := str("source_kind")
		if !ok {
			return
		}
		switch sk {
		case SourceTCPConnect, SourceTCPListen, SourceUDPBind:
			host, okH := str("host")
			port, okP := intArg("port")
			if okH && okP {
				switch sk {
				case SourceTCPConnect:
					actions = append(actions, policy.TCPConnect(host, int(port)))
				case SourceTCPListen:
					actions = append(actions, policy.TCPListen(host, int(port)))
				default:
					actions = append(actions, policy.UDPBind(host, int(port)))
				}
			}
		case SourceUnixConnect, SourceUnixListen:
			path, okP := str("path")
			if !okP {
				return
			}
			if sk == SourceUnixConnect {
				actions = append(actions, policy.UnixConnect(path))
			} else {
				actions = append(actions, policy.UnixListen(path))
			}
		}
	}
	return
}
