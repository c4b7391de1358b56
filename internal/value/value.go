package value

import (
	"fmt"
	"sort"
)

// NodeID identifies a plan node. IDs are assigned monotonically by the
// builder and are stable within one planning session.
type NodeID uint64

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
	KindStruct
	KindDeferred
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NoneType"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "dict"
	case KindStruct:
		return "struct"
	case KindDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Entry is one key/value pair of a Map. Keys are strings or ints.
type Entry struct {
	Key Value
	Val Value
}

// Field is one named field of a Struct.
type Field struct {
	Name string
	Val  Value
}

// Value is the tagged union. The zero value is Null.
type Value struct {
	kind Kind

	b   bool
	i   int64
	f   float64
	s   string
	raw []byte
	seq []Value
	kv  []Entry
	st  []Field
	ref NodeID
}

// Constructors.

func Null() Value            { return Value{kind: KindNull} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Str(s string) Value     { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value   { return Value{kind: KindBytes, raw: b} }
func List(vs ...Value) Value { return Value{kind: KindList, seq: vs} }

// ListOf wraps an existing slice without copying.
func ListOf(vs []Value) Value { return Value{kind: KindList, seq: vs} }

// Map builds an ordered mapping. Key order is preserved for rendering and
// encoding; lookups are linear, which is fine at plan-argument sizes.
func Map(entries ...Entry) Value { return Value{kind: KindMap, kv: entries} }

// MapOf wraps an existing entry slice without copying.
func MapOf(entries []Entry) Value { return Value{kind: KindMap, kv: entries} }

// StrMap builds a Map with string keys in sorted order, for results whose
// source has no meaningful ordering (HTTP headers, JSON objects).
func StrMap(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: Str(k), Val: m[k]})
	}
	return MapOf(entries)
}

func Struct(fields ...Field) Value   { return Value{kind: KindStruct, st: fields} }
func StructOf(fields []Field) Value  { return Value{kind: KindStruct, st: fields} }
func Deferred(id NodeID) Value       { return Value{kind: KindDeferred, ref: id} }

// Kind reports the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Predicates.

func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) IsDeferred() bool { return v.kind == KindDeferred }

// IsMaterialized reports whether the value contains no Deferred anywhere,
// at any nesting depth.
func (v Value) IsMaterialized() bool {
	found := false
	v.ForEachDeferred(func(NodeID) { found = true })
	return !found
}

// Accessors. Each returns the payload and whether the variant matched.

func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)      { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)  { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool)  { return v.s, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool)   { return v.raw, v.kind == KindBytes }
func (v Value) AsList() ([]Value, bool)   { return v.seq, v.kind == KindList }
func (v Value) AsMap() ([]Entry, bool)    { return v.kv, v.kind == KindMap }
func (v Value) AsStruct() ([]Field, bool) { return v.st, v.kind == KindStruct }
func (v Value) AsDeferred() (NodeID, bool) {
	return v.ref, v.kind == KindDeferred
}

// AsFloatCoerced widens ints to float64; used by numeric drivers.
func (v Value) AsFloatCoerced() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// MapGet looks up a string key in a Map.
func (v Value) MapGet(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for _, e := range v.kv {
		if s, ok := e.Key.AsString(); ok && s == key {
			return e.Val, true
		}
	}
	return Value{}, false
}

// StructGet looks up a field by name in a Struct.
func (v Value) StructGet(name string) (Value, bool) {
	if v.kind != KindStruct {
		return Value{}, false
	}
	for _, f := range v.st {
		if f.Name == name {
			return f.Val, true
		}
	}
	return Value{}, false
}

// ForEachDeferred invokes fn for every Deferred reachable from v, in
// deterministic traversal order (depth-first, construction order). Duplicate
// ids are reported each time they occur; callers dedupe.
func (v Value) ForEachDeferred(fn func(NodeID)) {
	switch v.kind {
	case KindDeferred:
		fn(v.ref)
	case KindList:
		for _, e := range v.seq {
			e.ForEachDeferred(fn)
		}
	case KindMap:
		for _, e := range v.kv {
			e.Key.ForEachDeferred(fn)
			e.Val.ForEachDeferred(fn)
		}
	case KindStruct:
		for _, f := range v.st {
			f.Val.ForEachDeferred(fn)
		}
	}
}

// Substitute returns a copy of v with every Deferred replaced by the value
// lookup produces for its id. A miss aborts the walk with an error; the
// executor only calls this once all data deps are terminal, so a miss is a
// scheduling bug, not a user error.
func Substitute(v Value, lookup func(NodeID) (Value, bool)) (Value, error) {
	switch v.kind {
	case KindDeferred:
		r, ok := lookup(v.ref)
		if !ok {
			return Value{}, fmt.Errorf("no result recorded for node %d", v.ref)
		}
		return r, nil
	case KindList:
		out := make([]Value, len(v.seq))
		for i, e := range v.seq {
			r, err := Substitute(e, lookup)
			if err != nil {
				return Value{}, err
			}
			out[i] = r
		}
		return ListOf(out), nil
	case KindMap:
		out := make([]Entry, len(v.kv))
		for i, e := range v.kv {
			k, err := Substitute(e.Key, lookup)
			if err != nil {
				return Value{}, err
			}
			val, err := Substitute(e.Val, lookup)
			if err != nil {
				return Value{}, err
			}
			out[i] = Entry{Key: k, Val: val}
		}
		return MapOf(out), nil
	case KindStruct:
		out := make([]Field, len(v.st))
		for i, f := range v.st {
			r, err := Substitute(f.Val, lookup)
			if err != nil {
				return Value{}, err
			}
			out[i] = Field{Name: f.Name, Val: r}
		}
		return StructOf(out), nil
	default:
		return v, nil
	}
}

// ToInterface converts a materialized value into the generic tree sonic and
// go-yaml marshal (nil, bool, int64, float64, string, []any,
// map[string]any). Deferred values and non-string map keys are rejected;
// bytes are rejected to match the script JSON contract.
func (v Value) ToInterface() (interface{}, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.b, nil
	case KindInt:
		return v.i, nil
	case KindFloat:
		return v.f, nil
	case KindString:
		return v.s, nil
	case KindBytes:
		return nil, fmt.Errorf("bytes are not JSON-serializable")
	case KindList:
		out := make([]interface{}, len(v.seq))
		for i, e := range v.seq {
			r, err := e.ToInterface()
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case KindMap:
		out := make(map[string]interface{}, len(v.kv))
		for _, e := range v.kv {
			key, ok := e.Key.AsString()
			if !ok {
				if i, isInt := e.Key.AsInt(); isInt {
					key = fmt.Sprintf("%d", i)
				} else {
					return nil, fmt.Errorf("dict key of type %s is not JSON-serializable", e.Key.Kind())
				}
			}
			r, err := e.Val.ToInterface()
			if err != nil {
				return nil, err
			}
			out[key] = r
		}
		return out, nil
	case KindStruct:
		out := make(map[string]interface{}, len(v.st))
		for _, f := range v.st {
			r, err := f.Val.ToInterface()
			if err != nil {
				return nil, err
			}
			out[f.Name] = r
		}
		return out, nil
	case KindDeferred:
		return nil, fmt.Errorf("unresolved operation result is not JSON-serializable")
	default:
		return nil, fmt.Errorf("unsupported value kind %s", v.kind)
	}
}

// FromInterface converts a decoded JSON/YAML tree into a Value. Numbers
// arrive as float64 from generic decoding; integral floats become ints to
// match script expectations.
func FromInterface(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint64:
		return Int(int64(t)), nil
	case float64:
		if t == float64(int64(t)) && t >= -1e15 && t <= 1e15 {
			return Int(int64(t)), nil
		}
		return Float(t), nil
	case string:
		return Str(t), nil
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			v, err := FromInterface(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return ListOf(out), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]Entry, 0, len(keys))
		for _, k := range keys {
			v, err := FromInterface(t[k])
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, Entry{Key: Str(k), Val: v})
		}
		return MapOf(entries), nil
	default:
		return Value{}, fmt.Errorf("cannot convert %T into a value", x)
	}
}
