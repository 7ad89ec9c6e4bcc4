package flatten

import (
	"fmt"
	"strconv"
	"strings"
)

// doc accumulates narrative fragments. Fragments carry their own leading
// newlines; rendering joins them with single spaces so sentence-level parts
// flow together while sections stay on their own lines.
type doc struct {
	parts []string
}

func (d *doc) add(s string) {
	d.parts = append(d.parts, s)
}

func (d *doc) addf(format string, args ...any) {
	d.parts = append(d.parts, fmt.Sprintf(format, args...))
}

func (d *doc) String() string {
	return strings.Join(d.parts, " ")
}

// joinPresent joins the non-empty fragments with the separator.
func joinPresent(sep string, frags ...string) string {
	kept := frags[:0:0]
	for _, f := range frags {
		if f != "" {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, sep)
}

// capitalize uppercases the first rune of a value such as a gender code.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// trimFloat renders a float without a trailing ".000000" tail.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
