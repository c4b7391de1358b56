// Package planfile reads and writes compiled plans. The format is a small
// binary envelope:
//
//	magic   'B' 'P' 0x00 0x01
//	version uint32 (big-endian), must match plan.SchemaVersion
//	flags   uint32, bit 0 set when the payload is zstd-compressed
//	payload metadata, roots, then length-prefixed node records
//
// Node records carry only order deps; data deps are recomputed from the
// argument references on load, so a file can never disagree with itself.
package planfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

var magic = [4]byte{'B', 'P', 0x00, 0x01}

const flagCompressed = 1 << 0

// Metadata travels with the compiled plan.
type Metadata struct {
	SourceHash string
	CompiledAt time.Time
	SourceName string
}

// Options control encoding. Strip drops spans and the source name, the way
// `compile --strip` does.
type Options struct {
	Compress bool
	Strip    bool
}

// HashSource fingerprints the input a plan was compiled from.
func HashSource(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Encode writes the plan to w.
func Encode(w io.Writer, p *plan.Plan, meta Metadata, opts Options) error {
	payload := encodePayload(p, meta, opts)

	var flags uint32
	if opts.Compress {
		flags |= flagCompressed
		var buf bytes.Buffer
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return fmt.Errorf("plan file: %w", err)
		}
		if _, err := zw.Write(payload); err != nil {
			zw.Close()
			return fmt.Errorf("plan file: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("plan file: %w", err)
		}
		payload = buf.Bytes()
	}

	header := make([]byte, 12)
	copy(header, magic[:])
	binary.BigEndian.PutUint32(header[4:], plan.SchemaVersion)
	binary.BigEndian.PutUint32(header[8:], flags)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("plan file: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("plan file: %w", err)
	}
	return nil
}

// Marshal encodes the plan into memory.
func Marshal(p *plan.Plan, meta Metadata, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, p, meta, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a plan from r.
func Decode(r io.Reader) (*plan.Plan, Metadata, error) {
	var meta Metadata

	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, meta, errs.Scriptf("not a plan file: %v", err)
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return nil, meta, errs.Scriptf("not a plan file: bad magic")
	}
	version := binary.BigEndian.Uint32(header[4:8])
	if version != plan.SchemaVersion {
		return nil, meta, errs.Scriptf("unsupported plan schema version %d (expected %d)", version, plan.SchemaVersion)
	}
	flags := binary.BigEndian.Uint32(header[8:12])

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, meta, errs.Scriptf("plan file truncated: %v", err)
	}
	if flags&flagCompressed != 0 {
		zr, err := zstd.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, meta, errs.Scriptf("plan file payload corrupt: %v", err)
		}
		payload, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, meta, errs.Scriptf("plan file payload corrupt: %v", err)
		}
	}
	return decodePayload(payload)
}

// Unmarshal decodes a plan from memory.
func Unmarshal(data []byte) (*plan.Plan, Metadata, error) {
	return Decode(bytes.NewReader(data))
}

// Sniff reports whether data begins with the plan file magic. Callers
// that accept both documents and compiled plans dispatch on it.
func Sniff(data []byte) bool {
	return len(data) >= len(magic) && bytes.Equal(data[:len(magic)], magic[:])
}

func encodePayload(p *plan.Plan, meta Metadata, opts Options) []byte {
	var buf bytes.Buffer
	w := &writer{buf: &buf}

	w.str(meta.SourceHash)
	var at int64
	if !meta.CompiledAt.IsZero() {
		at = meta.CompiledAt.Unix()
	}
	w.u64(uint64(at))
	if opts.Strip {
		w.str("")
	} else {
		w.str(meta.SourceName)
	}

	roots := p.Roots()
	w.uvarint(uint64(len(roots)))
	for _, r := range roots {
		w.uvarint(uint64(r))
	}

	nodes := p.Nodes()
	w.uvarint(uint64(len(nodes)))
	var record bytes.Buffer
	for i := range nodes {
		record.Reset()
		encodeNode(&writer{buf: &record}, &nodes[i], opts.Strip)
		w.uvarint(uint64(record.Len()))
		buf.Write(record.Bytes())
	}
	return buf.Bytes()
}

func encodeNode(w *writer, n *plan.Node, strip bool) {
	w.uvarint(uint64(n.ID))
	w.u16(n.Kind.Tag())

	if n.Span != nil && !strip {
		w.byte(1)
		w.str(n.Span.File)
		w.uvarint(uint64(n.Span.Line))
		w.uvarint(uint64(n.Span.Col))
	} else {
		w.byte(0)
	}

	names := n.ArgNames()
	w.uvarint(uint64(len(names)))
	for _, name := range names {
		w.str(name)
		encodeValue(w, n.Args[name])
	}

	w.uvarint(uint64(len(n.OrderDeps)))
	for _, d := range n.OrderDeps {
		w.uvarint(uint64(d))
	}
}

func decodePayload(payload []byte) (*plan.Plan, Metadata, error) {
	r := &reader{buf: payload}
	var meta Metadata

	meta.SourceHash = r.str()
	if at := r.u64(); at != 0 {
		meta.CompiledAt = time.Unix(int64(at), 0).UTC()
	}
	meta.SourceName = r.str()

	nroots := r.uvarint()
	roots := make([]uint64, 0, nroots)
	for i := uint64(0); i < nroots && r.err == nil; i++ {
		roots = append(roots, r.uvarint())
	}

	nnodes := r.uvarint()
	nodes := make([]plan.Node, 0, nnodes)
	for i := uint64(0); i < nnodes && r.err == nil; i++ {
		recLen := r.uvarint()
		rec := r.take(int(recLen))
		if r.err != nil {
			break
		}
		n, err := decodeNode(&reader{buf: rec})
		if err != nil {
			return nil, meta, err
		}
		nodes = append(nodes, n)
	}
	if r.err != nil {
		return nil, meta, errs.Scriptf("plan file payload corrupt: %v", r.err)
	}

	rootIDs := make([]value.NodeID, len(roots))
	for i, id := range roots {
		rootIDs[i] = value.NodeID(id)
	}
	p, err := plan.FromParts(nodes, rootIDs)
	if err != nil {
		return nil, meta, err
	}
	return p, meta, nil
}

func decodeNode(r *reader) (plan.Node, error) {
	var n plan.Node
	n.ID = value.NodeID(r.uvarint())

	tag := r.u16()
	kind, ok := plan.KindForTag(tag)
	if r.err == nil && !ok {
		return n, errs.Scriptf("op%d: unknown operation tag %d", n.ID, tag)
	}
	n.Kind = kind

	if r.byte() == 1 {
		n.Span = &plan.Span{
			File: r.str(),
			Line: int(r.uvarint()),
			Col:  int(r.uvarint()),
		}
	}

	nargs := r.uvarint()
	n.Args = make(map[string]value.Value, nargs)
	for i := uint64(0); i < nargs && r.err == nil; i++ {
		name := r.str()
		v, err := decodeValue(r)
		if err != nil {
			return n, err
		}
		n.Args[name] = v
	}

	norder := r.uvarint()
	for i := uint64(0); i < norder && r.err == nil; i++ {
		n.OrderDeps = append(n.OrderDeps, value.NodeID(r.uvarint()))
	}

	if r.err != nil {
		return n, errs.Scriptf("op%d: record corrupt: %v", n.ID, r.err)
	}
	return n, nil
}

// Value wire tags.
const (
	vNull     = 0
	vBool     = 1
	vInt      = 2
	vFloat    = 3
	vString   = 4
	vBytes    = 5
	vList     = 6
	vMap      = 7
	vStruct   = 8
	vDeferred = 9
)

func encodeValue(w *writer, v value.Value) {
	switch v.Kind() {
	case value.KindNull:
		w.byte(vNull)
	case value.KindBool:
		w.byte(vBool)
		b, _ := v.AsBool()
		if b {
			w.byte(1)
		} else {
			w.byte(0)
		}
	case value.KindInt:
		w.byte(vInt)
		i, _ := v.AsInt()
		w.varint(i)
	case value.KindFloat:
		w.byte(vFloat)
		f, _ := v.AsFloat()
		w.u64(math.Float64bits(f))
	case value.KindString:
		w.byte(vString)
		s, _ := v.AsString()
		w.str(s)
	case value.KindBytes:
		w.byte(vBytes)
		raw, _ := v.AsBytes()
		w.bytes(raw)
	case value.KindList:
		w.byte(vList)
		items, _ := v.AsList()
		w.uvarint(uint64(len(items)))
		for _, item := range items {
			encodeValue(w, item)
		}
	case value.KindMap:
		w.byte(vMap)
		entries, _ := v.AsMap()
		w.uvarint(uint64(len(entries)))
		for _, e := range entries {
			encodeValue(w, e.Key)
			encodeValue(w, e.Val)
		}
	case value.KindStruct:
		w.byte(vStruct)
		fields, _ := v.AsStruct()
		w.uvarint(uint64(len(fields)))
		for _, f := range fields {
			w.str(f.Name)
			encodeValue(w, f.Val)
		}
	case value.KindDeferred:
		w.byte(vDeferred)
		id, _ := v.AsDeferred()
		w.uvarint(uint64(id))
	}
}

func decodeValue(r *reader) (value.Value, error) {
	switch tag := r.byte(); tag {
	case vNull:
		return value.Null(), nil
	case vBool:
		return value.Bool(r.byte() == 1), nil
	case vInt:
		return value.Int(r.varint()), nil
	case vFloat:
		return value.Float(math.Float64frombits(r.u64())), nil
	case vString:
		return value.Str(r.str()), nil
	case vBytes:
		return value.Bytes(r.bytes()), nil
	case vList:
		n := r.uvarint()
		items := make([]value.Value, 0, n)
		for i := uint64(0); i < n && r.err == nil; i++ {
			v, err := decodeValue(r)
			if err != nil {
				return value.Null(), err
			}
			items = append(items, v)
		}
		return value.ListOf(items), nil
	case vMap:
		n := r.uvarint()
		entries := make([]value.Entry, 0, n)
		for i := uint64(0); i < n && r.err == nil; i++ {
			k, err := decodeValue(r)
			if err != nil {
				return value.Null(), err
			}
			v, err := decodeValue(r)
			if err != nil {
				return value.Null(), err
			}
			entries = append(entries, value.Entry{Key: k, Val: v})
		}
		return value.MapOf(entries), nil
	case vStruct:
		n := r.uvarint()
		fields := make([]value.Field, 0, n)
		for i := uint64(0); i < n && r.err == nil; i++ {
			name := r.str()
			v, err := decodeValue(r)
			if err != nil {
				return value.Null(), err
			}
			fields = append(fields, value.Field{Name: name, Val: v})
		}
		return value.StructOf(fields), nil
	case vDeferred:
		return value.Deferred(value.NodeID(r.uvarint())), nil
	default:
		if r.err != nil {
			return value.Null(), r.err
		}
		return value.Null(), fmt.Errorf("unknown value tag %d", tag)
	}
}

type writer struct {
	buf *bytes.Buffer
}

func (w *writer) byte(b byte) { w.buf.WriteByte(b) }

func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) uvarint(v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	w.buf.Write(b[:n])
}

func (w *writer) varint(v int64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutVarint(b[:], v)
	w.buf.Write(b[:n])
}

func (w *writer) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf.Write(b)
}

func (w *writer) str(s string) {
	w.uvarint(uint64(len(s)))
	w.buf.WriteString(s)
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = io.ErrUnexpectedEOF
	}
}

func (r *reader) byte() byte {
	if r.err != nil || r.off >= len(r.buf) {
		r.fail()
		return 0
	}
	b := r.buf[r.off]
	r.off++
	return b
}

func (r *reader) take(n int) []byte {
	if r.err != nil || n < 0 || r.off+n > len(r.buf) {
		r.fail()
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if r.err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if r.err != nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.fail()
		return 0
	}
	r.off += n
	return v
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		r.fail()
		return 0
	}
	r.off += n
	return v
}

func (r *reader) bytes() []byte {
	n := r.uvarint()
	b := r.take(int(n))
	if r.err != nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) str() string {
	n := r.uvarint()
	b := r.take(int(n))
	if r.err != nil {
		return ""
	}
	return string(b)
}
