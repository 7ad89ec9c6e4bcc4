package flatten

import (
	"fmt"
	"math"
	"time"
)

// Sanitize recursively prunes nil values from metadata and coerces the
// remaining values into plain JSON-friendly forms: times become RFC 3339
// strings, NaN and infinite floats are dropped, and anything exotic is
// stringified. Maps and slices are rebuilt, never mutated in place.
func Sanitize(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if clean, ok := sanitizeValue(v); ok {
			out[k] = clean
		}
	}
	return out
}

func sanitizeValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return Sanitize(val), true
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if clean, ok := sanitizeValue(item); ok {
				out = append(out, clean)
			}
		}
		return out, true
	case []map[string]any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, Sanitize(item))
		}
		return out, true
	case time.Time:
		return val.UTC().Format(time.RFC3339), true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, false
		}
		return val, true
	case float32:
		return sanitizeValue(float64(val))
	case string, bool, int, int32, int64, uint, uint32, uint64:
		return val, true
	default:
		return fmt.Sprintf("%v", val), true
	}
}
