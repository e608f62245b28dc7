package directory

import (
	"strings"

	"ombudsman_deadline_notifier/internal/textfold"
)

// MatchKind says how a department name was matched.
type MatchKind string

const (
	MatchNone      MatchKind = ""
	MatchExact     MatchKind = "exact"
	MatchSubstring MatchKind = "substring"
	MatchTokens    MatchKind = "tokens"
)

// connectives are ignored when comparing names word by word.
var connectives = map[string]bool{"de": true, "da": true, "do": true, "das": true, "dos": true, "e": true}

func tokens(folded string) []string {
	var out []string
	for _, w := range strings.Fields(folded) {
		if !connectives[w] {
			out = append(out, w)
		}
	}
	return out
}

func tokensWithin(small, large []string) bool {
	if len(small) == 0 {
		return false
	}
	set := make(map[string]bool, len(large))
	for _, w := range large {
		set[w] = true
	}
	for _, w := range small {
		if !set[w] {
			return false
		}
	}
	return true
}

// Match finds the entry for a department name. An exact (case- and
// accent-insensitive) name wins; otherwise the first entry whose name and the
// query contain one another, first as raw text and then word by word
// ("Secretaria de Saúde" and "Secretaria Municipal de Saúde"). Entries
// without a valid address never match.
func Match(entries []*Entry, name string) (*Entry, MatchKind) {
	q := textfold.Fold(name)
	if q == "" {
		return nil, MatchNone
	}

	usable := make([]*Entry, 0, len(entries))
	folded := make([]string, 0, len(entries))
	for _, e := range entries {
		if e == nil || len(e.Addresses()) == 0 {
			continue
		}
		usable = append(usable, e)
		folded = append(folded, textfold.Fold(e.Name))
	}

	for i, n := range folded {
		if n == q {
			return usable[i], MatchExact
		}
	}
	for i, n := range folded {
		if n != "" && (strings.Contains(n, q) || strings.Contains(q, n)) {
			return usable[i], MatchSubstring
		}
	}
	qt := tokens(q)
	for i, n := range folded {
		nt := tokens(n)
		if tokensWithin(qt, nt) || tokensWithin(nt, qt) {
			return usable[i], MatchTokens
		}
	}
	return nil, MatchNone
}
