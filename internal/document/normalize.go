package document

import (
	"github.com/google/go-cmp/cmp"
)

// Normalize converts a value read from a store or a YAML file into the
// document value space. Integers become float64 so that documents decoded
// from JSON compare equal to freshly extracted ones.
func Normalize(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case map[string]any:
		obj := New()
		for k, val := range t {
			obj.Set(k, Normalize(val))
		}
		return obj
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Normalize(item)
		}
		return out
	default:
		return v
	}
}

// ToPlain converts Objects to plain maps recursively, dropping key order.
func ToPlain(v any) any {
	switch t := v.(type) {
	case *Object:
		m := make(map[string]any, t.Len())
		for _, k := range t.keys {
			m[k] = ToPlain(t.values[k])
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ToPlain(item)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two documents hold the same data, ignoring key order.
func Equal(a, b any) bool {
	return cmp.Equal(ToPlain(a), ToPlain(b))
}

// Diff returns a human-readable difference between two documents, or "".
func Diff(want, got any) string {
	return cmp.Diff(ToPlain(want), ToPlain(got))
}
