package store

import (
	"fmt"
	"strconv"
)

// NormalizeValue converts a metadata value to one of the payload scalar
// types: string, bool, int64 or float64. Anything else is stringified.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case string, bool, int64, float64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case nil:
		return ""
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// NormalizePayload returns a copy of p with every value normalized.
func NormalizePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = NormalizeValue(v)
	}
	return out
}

// Filter values are normalized the same way as payloads, so an int
// filter matches an int64 payload field.
func scalarEqual(a, b any) bool {
	a, b = NormalizeValue(a), NormalizeValue(b)
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case int64:
			return x == float64(y)
		}
	}
	return a == b
}

// PayloadString returns p[key] as a string, or "" if absent.
func PayloadString(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// PayloadInt returns p[key] as an int64 and whether it was numeric.
func PayloadInt(p map[string]any, key string) (int64, bool) {
	switch x := NormalizeValue(p[key]).(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func clonePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
