package directory

import (
	"regexp"
	"strings"
)

// Entry is one department in a directory: the external table or the static
// fallback table. Both address fields may hold several addresses separated
// by ';' or ','.
type Entry struct {
	Name      string
	Primary   string
	Alternate string
}

var addressRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidAddress reports whether s looks like local@domain.tld.
func ValidAddress(s string) bool {
	return addressRe.MatchString(s)
}

// SplitAddresses splits multi-valued address fields, trims each piece,
// drops anything that is not a valid address and removes duplicates
// (case-insensitively), keeping first-seen order.
func SplitAddresses(fields ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, field := range fields {
		parts := strings.FieldsFunc(field, func(r rune) bool { return r == ';' || r == ',' })
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if !ValidAddress(p) {
				continue
			}
			k := strings.ToLower(p)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, p)
		}
	}
	return out
}

// Addresses returns the merged, validated addresses of the entry.
func (e *Entry) Addresses() []string {
	return SplitAddresses(e.Primary, e.Alternate)
}
