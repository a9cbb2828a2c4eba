// Package classes keeps a per-element enabled/disabled model of CSS class
// names in sync with a live document.
//
// Edits land in the model right away. The resulting class attribute values
// are buffered per element and flushed in batches. Mutation notifications
// caused by those writes are recognised as echoes and ignored, while
// notifications from anyone else invalidate the model so it is rebuilt from
// the attribute.
package classes

import (
	"sort"
	"strings"
	"unicode"
)

// ClassSet maps a class name to whether it is enabled.
type ClassSet map[string]bool

// ParseAttribute builds a ClassSet from a class attribute value. Tokens are
// split on whitespace only and every token starts out enabled.
func ParseAttribute(value string) ClassSet {
	set := make(ClassSet)
	for _, name := range strings.Fields(value) {
		set[name] = true
	}
	return set
}

// SplitInput splits text typed by the user into class names. Dots, commas
// and whitespace all separate names, so ".a.b, c" yields a, b and c.
func SplitInput(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == ',' || unicode.IsSpace(r)
	})
}

// Serialize de-duplicates names, sorts them and joins them with single
// spaces, which is the form written back to the class attribute.
func Serialize(names []string) string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// Enabled returns the enabled names in no particular order.
func (s ClassSet) Enabled() []string {
	out := make([]string, 0, len(s))
	for name, on := range s {
		if on {
			out = append(out, name)
		}
	}
	return out
}

// Names returns every name sorted case-insensitively, falling back to byte
// order for names that differ only in case.
func (s ClassSet) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i]), strings.ToLower(out[j])
		if a != b {
			return a < b
		}
		return out[i] < out[j]
	})
	return out
}

// Active returns the attribute value for s plus any names typed into the
// input box that have not been committed yet.
func (s ClassSet) Active(draft string) string {
	return Serialize(append(s.Enabled(), SplitInput(draft)...))
}
