package rules

import (
	"strconv"
	"strings"
)

// Kind is the dynamic type of a metric Value.
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindBool
)

// Value is a metric reading handed to the comparators.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
}

func Number(v float64) Value { return Value{kind: KindNumber, num: v} }
func Int(v int) Value        { return Value{kind: KindNumber, num: float64(v)} }
func String(v string) Value  { return Value{kind: KindString, str: v} }
func Bool(v bool) Value      { return Value{kind: KindBool, b: v} }

func (v Value) Kind() Kind { return v.kind }

// Float converts the value to a number. Booleans map to 1 and 0; strings
// must parse as floats.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
}

// Text renders the value the way configuration values are written, so that
// 5 and "5" compare equal.
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return formatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// Truthy reports whether the value counts as set.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNumber:
		return v.num != 0
	case KindBool:
		return v.b
	default:
		return v.str != ""
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// configNumber reads a rule's configured value as a number, 0 when absent or
// not numeric.
func configNumber(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func configText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return formatNumber(v)
	case float32:
		return formatNumber(float64(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

func configBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
