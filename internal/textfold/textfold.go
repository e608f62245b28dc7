// Package textfold normalises free text typed by people (department names,
// manifestation types) so that comparisons ignore case, accents and spacing.
package textfold

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s, strips combining marks and collapses runs of whitespace.
// "  Secretaria  de SAÚDE " becomes "secretaria de saude".
func Fold(s string) string {
	// transform chains keep state, so one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// ContainsAny reports whether the folded form of s contains any of needles.
// Needles are folded too, so callers can list them with or without accents.
func ContainsAny(s string, needles ...string) bool {
	hay := Fold(s)
	if hay == "" {
		return false
	}
	for _, n := range needles {
		if n = Fold(n); n != "" && strings.Contains(hay, n) {
			return true
		}
	}
	return false
}
