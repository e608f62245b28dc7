package deadline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ombudsman_deadline_notifier/internal/domain/casefile"
)

// Candidate is one raw date value as found on a case: either text in any of
// the shapes the source systems produced, or a native timestamp.
type Candidate struct {
	Text string
	Time time.Time
}

func (c Candidate) empty() bool {
	return c.Time.IsZero() && strings.TrimSpace(c.Text) == ""
}

// DateField is a named accessor for one candidate on a case.
type DateField struct {
	Name string
	Get  func(c *casefile.Case) Candidate
}

func payloadDate(path string) DateField {
	return DateField{
		Name: "payload." + path,
		Get:  func(c *casefile.Case) Candidate { return Candidate{Text: c.PayloadString(path)} },
	}
}

// CreationFields is the creation-date precedence, highest first.
var CreationFields = []DateField{
	{Name: "created_at", Get: func(c *casefile.Case) Candidate {
		if c.CreatedAt.Valid {
			return Candidate{Time: c.CreatedAt.Time}
		}
		return Candidate{}
	}},
	{Name: "data_criacao", Get: func(c *casefile.Case) Candidate { return Candidate{Text: c.LegacyCreated.String} }},
	payloadDate("dataCriacao"),
	payloadDate("dados.dataCriacao"),
	payloadDate("dados.data_criacao"),
}

// CompletionFields is the completion-date precedence, highest first.
var CompletionFields = []DateField{
	{Name: "completed_at", Get: func(c *casefile.Case) Candidate {
		if c.CompletedAt.Valid {
			return Candidate{Time: c.CompletedAt.Time}
		}
		return Candidate{}
	}},
	{Name: "data_conclusao", Get: func(c *casefile.Case) Candidate { return Candidate{Text: c.LegacyCompleted.String} }},
	payloadDate("dataConclusao"),
	payloadDate("dados.dataConclusao"),
	payloadDate("dados.data_conclusao"),
}

var (
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	isoDateTimeRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[T ]\d{2}:\d{2}`)
	brDateRe      = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:[ T]\d{1,2}:\d{2}(?::\d{2})?)?$`)
)

// genericLayouts are tried last, in order.
var genericLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"2006/01/02",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 -0700",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseCandidate converts one candidate to a Date.
//
// Text is tried as a plain YYYY-MM-DD, then as an ISO timestamp truncated to
// its date part, then as DD/MM/YYYY, then against a list of generic layouts.
func ParseCandidate(c Candidate) (Date, bool) {
	if !c.Time.IsZero() {
		return DateOf(c.Time), true
	}
	s := strings.TrimSpace(c.Text)
	if s == "" {
		return Date{}, false
	}

	if isoDateRe.MatchString(s) {
		d, err := ParseDate(s)
		return d, err == nil
	}
	if m := isoDateTimeRe.FindStringSubmatch(s); m != nil {
		d, err := ParseDate(m[1])
		return d, err == nil
	}
	if m := brDateRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		d, err := ParseDate(fmt.Sprintf("%s-%02d-%02d", m[3], month, day))
		return d, err == nil
	}
	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), true
		}
	}
	return Date{}, false
}

// ResolveDate returns the first candidate that parses.
func ResolveDate(candidates ...Candidate) (Date, bool) {
	for _, c := range candidates {
		if c.empty() {
			continue
		}
		if d, ok := ParseCandidate(c); ok {
			return d, true
		}
	}
	return Date{}, false
}

// ResolveField walks fields in order and returns the first parseable date
// together with the name of the field that produced it.
func ResolveField(c *casefile.Case, fields []DateField) (Date, string, bool) {
	for _, f := range fields {
		cand := f.Get(c)
		if cand.empty() {
			continue
		}
		if d, ok := ParseCandidate(cand); ok {
			return d, f.Name, true
		}
	}
	return Date{}, "", false
}
