// Package core implements the value, schema and record model shared by every
// other component of the sharded storage engine: tagged scalar values,
// schema-bound rows, composite keys, and deterministic hashing.
package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the tag of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindUint
	KindInt
	KindText
	KindDatetime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindUint:
		return "UINT"
	case KindInt:
		return "INT"
	case KindText:
		return "TEXT"
	case KindDatetime:
		return "DATETIME"
	default:
		return "UNKNOWN"
	}
}

// Value is a tagged union over {null, uint64, int64, text, datetime}.
// The zero Value is NULL.
type Value struct {
	kind Kind
	u    uint64
	i    int64
	s    string
}

// NullValue returns the null value.
func NullValue() Value { return Value{kind: KindNull} }

// UintValue builds a Value holding an unsigned integer.
func UintValue(v uint64) Value { return Value{kind: KindUint, u: v} }

// IntValue builds a Value holding a signed integer.
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// TextValue builds a Value holding text.
func TextValue(v string) Value { return Value{kind: KindText, s: v} }

// DatetimeValue builds a Value holding a datetime string.
func DatetimeValue(v string) Value { return Value{kind: KindDatetime, s: v} }

// Kind reports the tag of this value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Uint returns the payload as uint64. Panics if the tag is not KindUint —
// type mismatches on value access are a fatal invariant, not a user error.
func (v Value) Uint() uint64 {
	if v.kind != KindUint {
		panic(fmt.Sprintf("core: Uint() called on %s value", v.kind))
	}
	return v.u
}

// Int returns the payload as int64.
func (v Value) Int() int64 {
	if v.kind != KindInt {
		panic(fmt.Sprintf("core: Int() called on %s value", v.kind))
	}
	return v.i
}

// Text returns the payload as text (also valid for KindDatetime, since the
// two are storage-interchangeable per the text<->datetime conversion rule).
func (v Value) Text() string {
	if v.kind != KindText && v.kind != KindDatetime {
		panic(fmt.Sprintf("core: Text() called on %s value", v.kind))
	}
	return v.s
}

// ParseLiteral parses a SQL literal token into a Value of the given column
// type, applying the text<->datetime and int<->uint compatibility rules.
func ParseLiteral(tok string, t ColumnType) (Value, error) {
	if strings.EqualFold(tok, "NULL") {
		return NullValue(), nil
	}
	switch t {
	case TypeUint:
		n, err := strconv.ParseUint(strings.Trim(tok, "'\""), 10, 64)
		if err != nil {
			// Allow a non-negative signed literal to convert.
			s, serr := strconv.ParseInt(strings.Trim(tok, "'\""), 10, 64)
			if serr != nil || s < 0 {
				return Value{}, fmt.Errorf("core: %q is not a valid UINT literal", tok)
			}
			return UintValue(uint64(s)), nil
		}
		return UintValue(n), nil
	case TypeInt:
		n, err := strconv.ParseInt(strings.Trim(tok, "'\""), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("core: %q is not a valid INT literal", tok)
		}
		return IntValue(n), nil
	case TypeText:
		return TextValue(strings.Trim(tok, "'\"")), nil
	case TypeDatetime:
		return DatetimeValue(strings.Trim(tok, "'\"")), nil
	default:
		return Value{}, fmt.Errorf("core: unknown column type %v for literal %q", t, tok)
	}
}

// compatible reports whether two kinds may be compared/converted between
// each other per the type-compatibility rules: text<->datetime always; int
// and uint convert when the signed side is non-negative.
func compatible(a, b Kind) bool {
	if a == b {
		return true
	}
	switch {
	case a == KindText && b == KindDatetime, a == KindDatetime && b == KindText:
		return true
	case a == KindInt && b == KindUint, a == KindUint && b == KindInt:
		return true
	}
	return false
}

// Equal reports value equality, applying cross-kind compatibility. A
// genuinely incompatible comparison (e.g. TEXT vs UINT) panics: the schema
// should never allow it to reach here.
func (v Value) Equal(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return v.kind == KindNull && o.kind == KindNull
	}
	if !compatible(v.kind, o.kind) {
		panic(fmt.Sprintf("core: incomparable value kinds %s and %s", v.kind, o.kind))
	}
	switch {
	case v.kind == KindUint && o.kind == KindUint:
		return v.u == o.u
	case v.kind == KindInt && o.kind == KindInt:
		return v.i == o.i
	case v.kind == KindUint && o.kind == KindInt:
		return o.i >= 0 && v.u == uint64(o.i)
	case v.kind == KindInt && o.kind == KindUint:
		return v.i >= 0 && uint64(v.i) == o.u
	default: // text/datetime
		return v.s == o.s
	}
}

// Compare returns -1, 0, 1 for SQL-typed ordering. Nulls sort first.
func (v Value) Compare(o Value) int {
	if v.kind == KindNull || o.kind == KindNull {
		switch {
		case v.kind == KindNull && o.kind == KindNull:
			return 0
		case v.kind == KindNull:
			return -1
		default:
			return 1
		}
	}
	if !compatible(v.kind, o.kind) {
		panic(fmt.Sprintf("core: incomparable value kinds %s and %s", v.kind, o.kind))
	}
	switch {
	case v.kind == KindUint && o.kind == KindUint:
		return cmpUint(v.u, o.u)
	case v.kind == KindInt && o.kind == KindInt:
		return cmpInt(v.i, o.i)
	case v.kind == KindUint && o.kind == KindInt:
		if o.i < 0 {
			return 1
		}
		return cmpUint(v.u, uint64(o.i))
	case v.kind == KindInt && o.kind == KindUint:
		if v.i < 0 {
			return -1
		}
		return cmpUint(uint64(v.i), o.u)
	default:
		return strings.Compare(v.s, o.s)
	}
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// AsUnquotedString renders the value as plain text, used for shard-name
// components (e.g. user ids) and debugging. Mirrors the original's
// Value::AsUnquotedString used pervasively to name shards.
func (v Value) AsUnquotedString() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	default:
		return v.s
	}
}

// String renders the value as a SQL literal.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	default:
		return "'" + strings.ReplaceAll(v.s, "'", "''") + "'"
	}
}
