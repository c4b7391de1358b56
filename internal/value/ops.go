package value

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// This file is the runtime calculus behind the compute node kinds. The
// semantics follow the embedded language (Python-style): true division
// always yields a float, floor division and modulo round toward negative
// infinity, numeric comparisons cross int/float, and bool never equals int.

// Truth reports Python truthiness. ok is false for a Deferred, which has no
// observable truth value at planning time.
func Truth(v Value) (truth, ok bool) {
	switch v.kind {
	case KindNull:
		return false, true
	case KindBool:
		return v.b, true
	case KindInt:
		return v.i != 0, true
	case KindFloat:
		return v.f != 0, true
	case KindString:
		return v.s != "", true
	case KindBytes:
		return len(v.raw) != 0, true
	case KindList:
		return len(v.seq) != 0, true
	case KindMap:
		return len(v.kv) != 0, true
	case KindStruct:
		return true, true
	case KindDeferred:
		return false, false
	default:
		return false, true
	}
}

// Equal implements ==. Ints and floats compare across kinds; bools do not
// equal ints; maps compare order-insensitively.
func Equal(a, b Value) bool {
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			return af == bf
		}
		return false
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindBytes:
		return bytes.Equal(a.raw, b.raw)
	case KindList:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.kv) != len(b.kv) {
			return false
		}
		for _, e := range a.kv {
			found := false
			for _, o := range b.kv {
				if Equal(e.Key, o.Key) {
					if !Equal(e.Val, o.Val) {
						return false
					}
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case KindStruct:
		if len(a.st) != len(b.st) {
			return false
		}
		for _, f := range a.st {
			other, ok := b.StructGet(f.Name)
			if !ok || !Equal(f.Val, other) {
				return false
			}
		}
		return true
	case KindDeferred:
		return a.ref == b.ref
	default:
		return false
	}
}

// numeric widens ints and floats; bools are deliberately excluded.
func numeric(v Value) (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// Compare implements < <= > >= as a three-way comparison. Numbers, strings,
// bytes, and lists (lexicographic) are orderable; everything else errors.
func Compare(a, b Value) (int, error) {
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.s, b.s), nil
	}
	if a.kind == KindBytes && b.kind == KindBytes {
		return bytes.Compare(a.raw, b.raw), nil
	}
	if a.kind == KindList && b.kind == KindList {
		n := len(a.seq)
		if len(b.seq) < n {
			n = len(b.seq)
		}
		for i := 0; i < n; i++ {
			c, err := Compare(a.seq[i], b.seq[i])
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return c, nil
			}
		}
		switch {
		case len(a.seq) < len(b.seq):
			return -1, nil
		case len(a.seq) > len(b.seq):
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, fmt.Errorf("'%s' and '%s' are not orderable", a.Kind(), b.Kind())
}

// Add adds numbers or concatenates strings, bytes, and lists, mirroring the
// embedded language's +.
func Add(a, b Value) (Value, error) {
	if a.kind == KindInt && b.kind == KindInt {
		return Int(a.i + b.i), nil
	}
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			return Float(af + bf), nil
		}
	}
	if a.kind == b.kind {
		switch a.kind {
		case KindString:
			return Str(a.s + b.s), nil
		case KindBytes:
			out := make([]byte, 0, len(a.raw)+len(b.raw))
			out = append(out, a.raw...)
			out = append(out, b.raw...)
			return Bytes(out), nil
		case KindList:
			out := make([]Value, 0, len(a.seq)+len(b.seq))
			out = append(out, a.seq...)
			out = append(out, b.seq...)
			return ListOf(out), nil
		}
	}
	return Value{}, binopErr("+", a, b)
}

func Sub(a, b Value) (Value, error) {
	if a.kind == KindInt && b.kind == KindInt {
		return Int(a.i - b.i), nil
	}
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			return Float(af - bf), nil
		}
	}
	return Value{}, binopErr("-", a, b)
}

func Mul(a, b Value) (Value, error) {
	if a.kind == KindInt && b.kind == KindInt {
		return Int(a.i * b.i), nil
	}
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			return Float(af * bf), nil
		}
	}
	// String and list repetition: "ab" * 3, [x] * 3, 3 * "ab".
	if a.kind == KindInt {
		a, b = b, a
	}
	if n, ok := b.AsInt(); ok {
		if n < 0 {
			n = 0
		}
		switch a.kind {
		case KindString:
			return Str(strings.Repeat(a.s, int(n))), nil
		case KindBytes:
			return Bytes(bytes.Repeat(a.raw, int(n))), nil
		case KindList:
			out := make([]Value, 0, len(a.seq)*int(n))
			for i := int64(0); i < n; i++ {
				out = append(out, a.seq...)
			}
			return ListOf(out), nil
		}
	}
	return Value{}, binopErr("*", a, b)
}

// Div is true division and always yields a float.
func Div(a, b Value) (Value, error) {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if !aok || !bok {
		return Value{}, binopErr("/", a, b)
	}
	if bf == 0 {
		return Value{}, fmt.Errorf("division by zero")
	}
	return Float(af / bf), nil
}

// FloorDiv rounds toward negative infinity: -10 // 3 == -4.
func FloorDiv(a, b Value) (Value, error) {
	if a.kind == KindInt && b.kind == KindInt {
		if b.i == 0 {
			return Value{}, fmt.Errorf("integer division by zero")
		}
		q := a.i / b.i
		if (a.i%b.i != 0) && ((a.i < 0) != (b.i < 0)) {
			q--
		}
		return Int(q), nil
	}
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if !aok || !bok {
		return Value{}, binopErr("//", a, b)
	}
	if bf == 0 {
		return Value{}, fmt.Errorf("division by zero")
	}
	return Float(math.Floor(af / bf)), nil
}

// Mod takes the sign of the divisor: -10 % 3 == 2, 10 % -3 == -2.
func Mod(a, b Value) (Value, error) {
	if a.kind == KindInt && b.kind == KindInt {
		if b.i == 0 {
			return Value{}, fmt.Errorf("integer modulo by zero")
		}
		m := a.i % b.i
		if m != 0 && ((m < 0) != (b.i < 0)) {
			m += b.i
		}
		return Int(m), nil
	}
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if !aok || !bok {
		return Value{}, binopErr("%", a, b)
	}
	if bf == 0 {
		return Value{}, fmt.Errorf("float modulo by zero")
	}
	m := math.Mod(af, bf)
	if m != 0 && ((m < 0) != (bf < 0)) {
		m += bf
	}
	return Float(m), nil
}

func Neg(a Value) (Value, error) {
	switch a.kind {
	case KindInt:
		return Int(-a.i), nil
	case KindFloat:
		return Float(-a.f), nil
	}
	return Value{}, fmt.Errorf("bad operand type for unary -: '%s'", a.Kind())
}

// Not negates truthiness.
func Not(a Value) (Value, error) {
	t, ok := Truth(a)
	if !ok {
		return Value{}, fmt.Errorf("cannot take the truth of an unresolved operation result")
	}
	return Bool(!t), nil
}

// Concat joins strings, bytes, or lists. Numeric operands are rejected;
// callers wanting addition use Add.
func Concat(a, b Value) (Value, error) {
	if a.kind != b.kind {
		return Value{}, binopErr("concat", a, b)
	}
	switch a.kind {
	case KindString, KindBytes, KindList:
		return Add(a, b)
	}
	return Value{}, binopErr("concat", a, b)
}

// Contains implements `needle in haystack`.
func Contains(haystack, needle Value) (Value, error) {
	switch haystack.kind {
	case KindString:
		s, ok := needle.AsString()
		if !ok {
			return Value{}, fmt.Errorf("'in <string>' requires string as left operand, not '%s'", needle.Kind())
		}
		return Bool(strings.Contains(haystack.s, s)), nil
	case KindBytes:
		b, ok := needle.AsBytes()
		if !ok {
			return Value{}, fmt.Errorf("'in <bytes>' requires bytes as left operand, not '%s'", needle.Kind())
		}
		return Bool(bytes.Contains(haystack.raw, b)), nil
	case KindList:
		for _, e := range haystack.seq {
			if Equal(e, needle) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	case KindMap:
		for _, e := range haystack.kv {
			if Equal(e.Key, needle) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	}
	return Value{}, fmt.Errorf("argument of type '%s' is not a container", haystack.Kind())
}

// ToBool is the bool() coercion.
func ToBool(a Value) (Value, error) {
	t, ok := Truth(a)
	if !ok {
		return Value{}, fmt.Errorf("cannot take the truth of an unresolved operation result")
	}
	return Bool(t), nil
}

// ToInt is the int() coercion: bools become 0/1, floats truncate toward
// zero, strings parse in base 10.
func ToInt(a Value) (Value, error) {
	switch a.kind {
	case KindBool:
		if a.b {
			return Int(1), nil
		}
		return Int(0), nil
	case KindInt:
		return a, nil
	case KindFloat:
		return Int(int64(math.Trunc(a.f))), nil
	case KindString:
		i, err := strconv.ParseInt(strings.TrimSpace(a.s), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid literal for int(): %q", a.s)
		}
		return Int(i), nil
	}
	return Value{}, fmt.Errorf("int() argument must be a string or a number, not '%s'", a.Kind())
}

// ToFloat is the float() coercion.
func ToFloat(a Value) (Value, error) {
	switch a.kind {
	case KindBool:
		if a.b {
			return Float(1), nil
		}
		return Float(0), nil
	case KindInt:
		return Float(float64(a.i)), nil
	case KindFloat:
		return a, nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(a.s), 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid literal for float(): %q", a.s)
		}
		return Float(f), nil
	}
	return Value{}, fmt.Errorf("float() argument must be a string or a number, not '%s'", a.Kind())
}

// ToStr is the str() coercion, the display form.
func ToStr(a Value) (Value, error) {
	if a.kind == KindDeferred {
		return Value{}, fmt.Errorf("cannot render an unresolved operation result")
	}
	return Str(a.String()), nil
}

// Len returns character count for strings, byte count for bytes, and element
// counts for containers.
func Len(a Value) (Value, error) {
	switch a.kind {
	case KindString:
		return Int(int64(utf8.RuneCountInString(a.s))), nil
	case KindBytes:
		return Int(int64(len(a.raw))), nil
	case KindList:
		return Int(int64(len(a.seq))), nil
	case KindMap:
		return Int(int64(len(a.kv))), nil
	}
	return Value{}, fmt.Errorf("object of type '%s' has no len()", a.Kind())
}

func binopErr(op string, a, b Value) error {
	return fmt.Errorf("unsupported operand type(s) for %s: '%s' and '%s'", op, a.Kind(), b.Kind())
}
