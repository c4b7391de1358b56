package plan

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

// SchemaVersion is the plan schema understood by this build. Documents and
// binary plan files both carry it; readers reject anything else.
const SchemaVersion = 5

// docJSON decodes integers as int64 so node ids and large literals survive
// the round trip.
var docJSON = sonic.Config{UseInt64: true}.Froze()

// Document is the JSON/YAML form of a plan, the interchange format between
// script hosts and this engine. Data deps are not stored; they are recomputed
// from argument references on import.
type Document struct {
	Version int      `json:"version" yaml:"version"`
	Source  string   `json:"source,omitempty" yaml:"source,omitempty"`
	Roots   []uint64 `json:"roots" yaml:"roots"`
	Ops     []OpDoc  `json:"ops" yaml:"ops"`
}

// OpDoc is one operation in a Document. After lists order-only predecessors.
type OpDoc struct {
	ID    uint64                 `json:"id" yaml:"id"`
	Kind  string                 `json:"kind" yaml:"kind"`
	Args  map[string]interface{} `json:"args,omitempty" yaml:"args,omitempty"`
	After []uint64               `json:"after,omitempty" yaml:"after,omitempty"`
	Span  *Span                  `json:"span,omitempty" yaml:"span,omitempty"`
}

// Document converts the plan to its interchange form.
func (p *Plan) Document() *Document {
	doc := &Document{
		Version: SchemaVersion,
		Roots:   make([]uint64, len(p.roots)),
		Ops:     make([]OpDoc, len(p.nodes)),
	}
	for i, r := range p.roots {
		doc.Roots[i] = uint64(r)
	}
	for i := range p.nodes {
		n := &p.nodes[i]
		op := OpDoc{ID: uint64(n.ID), Kind: string(n.Kind), Span: n.Span}
		if len(n.Args) > 0 {
			op.Args = make(map[string]interface{}, len(n.Args))
			for _, name := range n.ArgNames() {
				op.Args[name] = docValue(n.Args[name])
			}
		}
		for _, d := range n.OrderDeps {
			op.After = append(op.After, uint64(d))
		}
		doc.Ops[i] = op
	}
	return doc
}

// ExportJSON renders the plan as an indented JSON document.
func (p *Plan) ExportJSON() ([]byte, error) {
	return docJSON.MarshalIndent(p.Document(), "", "  ")
}

// ExportYAML renders the plan as a YAML document.
func (p *Plan) ExportYAML() ([]byte, error) {
	return yaml.Marshal(p.Document())
}

// ImportJSON parses a JSON plan document.
func ImportJSON(data []byte) (*Plan, error) {
	var doc Document
	if err := docJSON.Unmarshal(data, &doc); err != nil {
		return nil, errs.Scriptf("malformed plan document: %v", err)
	}
	return FromDocument(&doc)
}

// ImportYAML parses a YAML plan document.
func ImportYAML(data []byte) (*Plan, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errs.Scriptf("malformed plan document: %v", err)
	}
	return FromDocument(&doc)
}

// FromDocument reconstructs a plan, recomputing data deps from argument
// references and rejecting unknown kinds, dangling references, and cycles.
func FromDocument(doc *Document) (*Plan, error) {
	if doc.Version != SchemaVersion {
		return nil, errs.Scriptf("unsupported plan schema version %d (expected %d)", doc.Version, SchemaVersion)
	}
	nodes := make([]Node, len(doc.Ops))
	for i, op := range doc.Ops {
		kind := Kind(op.Kind)
		if !kind.Known() {
			return nil, errs.Scriptf("op%d: unknown operation kind %q", op.ID, op.Kind)
		}
		args := make(map[string]value.Value, len(op.Args))
		for name, raw := range op.Args {
			v, err := decodeDocValue(raw)
			if err != nil {
				return nil, errs.Scriptf("op%d: argument %q: %v", op.ID, name, err)
			}
			args[name] = v
		}
		var order []value.NodeID
		for _, d := range op.After {
			order = insertDep(order, value.NodeID(d))
		}
		nodes[i] = Node{
			ID:        value.NodeID(op.ID),
			Kind:      kind,
			Args:      args,
			DataDeps:  collectDeps(args),
			OrderDeps: order,
			Span:      op.Span,
		}
	}
	roots := make([]value.NodeID, len(doc.Roots))
	for i, r := range doc.Roots {
		roots[i] = value.NodeID(r)
	}
	p, err := assemble(nodes, roots)
	if err != nil {
		return nil, err
	}
	if _, err := p.Levels(); err != nil {
		return nil, err
	}
	return p, nil
}

// docValue lowers a value to its document form. Floats, bytes, references,
// maps, and structs use single-key marker objects so the JSON and YAML
// engines cannot blur them into each other.
func docValue(v value.Value) interface{} {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt:
		i, _ := v.AsInt()
		return i
	case value.KindFloat:
		f, _ := v.AsFloat()
		return map[string]interface{}{"$float": f}
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindBytes:
		raw, _ := v.AsBytes()
		return map[string]interface{}{"$bytes": base64.StdEncoding.EncodeToString(raw)}
	case value.KindList:
		items, _ := v.AsList()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = docValue(item)
		}
		return out
	case value.KindMap:
		entries, _ := v.AsMap()
		pairs := make([]interface{}, len(entries))
		for i, e := range entries {
			pairs[i] = []interface{}{docValue(e.Key), docValue(e.Val)}
		}
		return map[string]interface{}{"$map": pairs}
	case value.KindStruct:
		fields, _ := v.AsStruct()
		pairs := make([]interface{}, len(fields))
		for i, f := range fields {
			pairs[i] = []interface{}{f.Name, docValue(f.Val)}
		}
		return map[string]interface{}{"$struct": pairs}
	case value.KindDeferred:
		id, _ := v.AsDeferred()
		return map[string]interface{}{"$ref": uint64(id)}
	default:
		return nil
	}
}

func decodeDocValue(x interface{}) (value.Value, error) {
	switch t := x.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(t), nil
	case int:
		return value.Int(int64(t)), nil
	case int64:
		return value.Int(t), nil
	case uint64:
		return value.Int(int64(t)), nil
	case float64:
		return value.Float(t), nil
	case json.Number:
		if strings.ContainsAny(t.String(), ".eE") {
			f, err := t.Float64()
			if err != nil {
				return value.Null(), errs.Scriptf("bad number %q", t.String())
			}
			return value.Float(f), nil
		}
		i, err := t.Int64()
		if err != nil {
			return value.Null(), errs.Scriptf("bad number %q", t.String())
		}
		return value.Int(i), nil
	case string:
		return value.Str(t), nil
	case []interface{}:
		items := make([]value.Value, len(t))
		for i, raw := range t {
			v, err := decodeDocValue(raw)
			if err != nil {
				return value.Null(), err
			}
			items[i] = v
		}
		return value.ListOf(items), nil
	case map[string]interface{}:
		return decodeMarker(t)
	default:
		return value.Null(), errs.Scriptf("unsupported document value of type %T", x)
	}
}

func decodeMarker(m map[string]interface{}) (value.Value, error) {
	if len(m) != 1 {
		return value.Null(), errs.Scriptf("objects must be a single $ref/$bytes/$float/$map/$struct marker")
	}
	for key, raw := range m {
		switch key {
		case "$ref":
			id, err := docUint(raw)
			if err != nil {
				return value.Null(), errs.Scriptf("bad $ref: %v", err)
			}
			return value.Deferred(value.NodeID(id)), nil
		case "$bytes":
			s, ok := raw.(string)
			if !ok {
				return value.Null(), errs.Scriptf("$bytes expects a base64 string")
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return value.Null(), errs.Scriptf("bad $bytes: %v", err)
			}
			return value.Bytes(b), nil
		case "$float":
			f, err := docFloat(raw)
			if err != nil {
				return value.Null(), errs.Scriptf("bad $float: %v", err)
			}
			return value.Float(f), nil
		case "$map":
			pairs, ok := raw.([]interface{})
			if !ok {
				return value.Null(), errs.Scriptf("$map expects a list of [key, value] pairs")
			}
			entries := make([]value.Entry, 0, len(pairs))
			for _, p := range pairs {
				kv, ok := p.([]interface{})
				if !ok || len(kv) != 2 {
					return value.Null(), errs.Scriptf("$map expects a list of [key, value] pairs")
				}
				k, err := decodeDocValue(kv[0])
				if err != nil {
					return value.Null(), err
				}
				v, err := decodeDocValue(kv[1])
				if err != nil {
					return value.Null(), err
				}
				entries = append(entries, value.Entry{Key: k, Val: v})
			}
			return value.MapOf(entries), nil
		case "$struct":
			pairs, ok := raw.([]interface{})
			if !ok {
				return value.Null(), errs.Scriptf("$struct expects a list of [name, value] pairs")
			}
			fields := make([]value.Field, 0, len(pairs))
			for _, p := range pairs {
				kv, ok := p.([]interface{})
				if !ok || len(kv) != 2 {
					return value.Null(), errs.Scriptf("$struct expects a list of [name, value] pairs")
				}
				name, ok := kv[0].(string)
				if !ok {
					return value.Null(), errs.Scriptf("$struct field names must be strings")
				}
				v, err := decodeDocValue(kv[1])
				if err != nil {
					return value.Null(), err
				}
				fields = append(fields, value.Field{Name: name, Val: v})
			}
			return value.StructOf(fields), nil
		default:
			return value.Null(), errs.Scriptf("unknown marker %q", key)
		}
	}
	return value.Null(), errs.Scriptf("empty marker object")
}

func docUint(raw interface{}) (uint64, error) {
	switch t := raw.(type) {
	case int:
		if t < 0 {
			return 0, errs.Scriptf("negative id %d", t)
		}
		return uint64(t), nil
	case int64:
		if t < 0 {
			return 0, errs.Scriptf("negative id %d", t)
		}
		return uint64(t), nil
	case uint64:
		return t, nil
	case float64:
		if t < 0 || t != float64(uint64(t)) {
			return 0, errs.Scriptf("bad id %v", t)
		}
		return uint64(t), nil
	case json.Number:
		i, err := t.Int64()
		if err != nil || i < 0 {
			return 0, errs.Scriptf("bad id %q", t.String())
		}
		return uint64(i), nil
	default:
		return 0, errs.Scriptf("expected an integer, got %T", raw)
	}
}

func docFloat(raw interface{}) (float64, error) {
	switch t := raw.(type) {
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float64:
		return t, nil
	case json.Number:
		return t.Float64()
	default:
		return 0, errs.Scriptf("expected a number, got %T", raw)
	}
}
