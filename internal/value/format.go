package value

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders the script-facing display form: None, True/False, floats
// with a trailing .0 when integral, raw strings, escaped bytes literals, and
// bracketed containers whose elements use Repr.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "None"
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	case KindBytes:
		return formatBytes(v.raw)
	case KindList:
		items := make([]string, len(v.seq))
		for i, e := range v.seq {
			items[i] = e.Repr()
		}
		return "[" + strings.Join(items, ", ") + "]"
	case KindMap:
		items := make([]string, len(v.kv))
		for i, e := range v.kv {
			items[i] = e.Key.Repr() + ": " + e.Val.Repr()
		}
		return "{" + strings.Join(items, ", ") + "}"
	case KindStruct:
		items := make([]string, len(v.st))
		for i, f := range v.st {
			items[i] = f.Name + "=" + f.Val.Repr()
		}
		return "struct(" + strings.Join(items, ", ") + ")"
	case KindDeferred:
		return fmt.Sprintf("<deferred op %d>", v.ref)
	default:
		return fmt.Sprintf("<kind %d>", v.kind)
	}
}

// Repr is like String but quotes strings, for embedding in containers.
func (v Value) Repr() string {
	if v.kind == KindString {
		return `"` + v.s + `"`
	}
	return v.String()
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) && f > -1e15 && f < 1e15 {
		return fmt.Sprintf("%d.0", int64(f))
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatBytes(b []byte) string {
	var sb strings.Builder
	sb.WriteString(`b"`)
	for _, c := range b {
		if c >= 32 && c < 127 && c != '"' && c != '\\' {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
	}
	sb.WriteString(`"`)
	return sb.String()
}
