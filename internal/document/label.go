package document

import "strings"

// Label formats an element the way the DevTools breadcrumbs do:
// the lower-cased tag, then "#id", then ".class" for each class.
func Label(tag, id, class string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(tag))
	if id != "" {
		b.WriteString("#")
		b.WriteString(id)
	}
	for _, c := range strings.Fields(class) {
		b.WriteString(".")
		b.WriteString(c)
	}
	return b.String()
}
