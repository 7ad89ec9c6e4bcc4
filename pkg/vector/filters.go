package vector

import (
	"fmt"
	"strconv"
	"strings"
)

// Key returns the stable identifier for a chunk, derived from its upsert key.
func (c Chunk) Key() string {
	return fmt.Sprintf("%s:%d:%d", c.SourceKind, c.SourceID, c.ChunkIndex)
}

// Match reports whether the given metadata satisfies every filter.
// patient_name is matched as a case-insensitive substring; everything else
// compares the string form of the metadata value exactly.
func (f Filters) Match(meta map[string]any) bool {
	for key, want := range f {
		got, ok := meta[key]
		if !ok {
			return false
		}

		if key == FilterPatientName {
			if !strings.Contains(strings.ToLower(MetaString(got)), strings.ToLower(want)) {
				return false
			}
			continue
		}

		if MetaString(got) != want {
			return false
		}
	}
	return true
}

// MetaString renders a metadata value the way it is compared in filters.
func MetaString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		// JSON round-trips integers as float64.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
