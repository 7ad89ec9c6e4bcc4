package connector

import (
	"strconv"
	"strings"
	"time"
)

// Record is one raw record from the EMR bulk-export endpoint. Values arrive
// as decoded JSON, so numbers are float64 and nested structures are
// map[string]any / []any.
type Record map[string]any

// Str returns the string value of a field, or empty when absent or not a string.
// The EMR sends false for unset char fields; that also reads as empty.
func (r Record) Str(field string) string {
	v, ok := r[field]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Int64 returns the integer value of a field, coercing JSON numbers and
// numeric strings. Returns 0 when the field is absent or not numeric.
func (r Record) Int64(field string) int64 {
	switch v := r[field].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Float returns the float value of a field, or 0 when absent or not numeric.
func (r Record) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
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

// Map returns a nested object field, or nil when absent.
func (r Record) Map(field string) Record {
	m, ok := r[field].(map[string]any)
	if !ok {
		return nil
	}
	return Record(m)
}

// List returns the slice value of a field, or nil when absent.
func (r Record) List(field string) []any {
	v, ok := r[field].([]any)
	if !ok {
		return nil
	}
	return v
}

// Maps returns the field as a slice of objects, skipping non-object elements.
func (r Record) Maps(field string) []Record {
	items := r.List(field)
	if len(items) == 0 {
		return nil
	}

	out := make([]Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// StrList returns the field as a slice of strings, skipping empties.
func (r Record) StrList(field string) []string {
	items := r.List(field)
	if len(items) == 0 {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Time parses a timestamp field. The EMR writes "2006-01-02 15:04:05" in UTC;
// RFC 3339 and bare dates are also accepted. The second return reports
// whether parsing succeeded.
func (r Record) Time(field string) (time.Time, bool) {
	return ParseTimestamp(r.Str(field))
}

// ParseTimestamp coerces an EMR timestamp string to a time.Time.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	layouts := []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
