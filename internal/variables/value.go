package variables

import (
	"math"
	"strconv"
	"strings"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
)

type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// ParseKind maps the protocol type names int, float and string.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "string", "str":
		return KindString, nil
	default:
		return KindString, errors.New().WithData(ErrInvalidKind, s)
	}
}

// Value is a run variable: an int, a float or a string.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Int(v int64) Value {
	return Value{kind: KindInt, i: v}
}

func Float(v float64) Value {
	return Value{kind: KindFloat, f: v}
}

func String(v string) Value {
	return Value{kind: KindString, s: v}
}

func (v Value) Kind() Kind {
	return v.kind
}

// Number returns the numeric value; ok is false for strings.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Text returns the string payload; ok is false for numbers.
func (v Value) Text() (string, bool) {
	return v.s, v.kind == KindString
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return v.s
	}
}

// Coerce converts operator input into a value of the requested kind.
func Coerce(text string, kind Kind) (Value, error) {
	errFactory := errors.New()
	text = strings.TrimSpace(text)

	switch kind {
	case KindInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, errFactory.WithData(ErrTypeMismatch, struct {
				Input    string
				Expected string
			}{text, kind.String()})
		}
		return Int(n), nil
	case KindFloat:
		f, ok := parseNumber(text)
		if !ok {
			return Value{}, errFactory.WithData(ErrTypeMismatch, struct {
				Input    string
				Expected string
			}{text, kind.String()})
		}
		return Float(f), nil
	default:
		return String(text), nil
	}
}

// numeric converts f to the requested numeric kind, truncating for ints.
func numeric(f float64, kind Kind) (Value, error) {
	switch kind {
	case KindInt:
		return Int(int64(f)), nil
	case KindFloat:
		return Float(f), nil
	default:
		return Value{}, errors.New().WithData(ErrTypeMismatch, "resolve requires a numeric kind")
	}
}

// parseNumber accepts finite decimal numbers only, so names such as "inf"
// or "nan" stay available as variables.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
