package deadline

import (
	"ombudsman_deadline_notifier/internal/domain/casefile"
	"ombudsman_deadline_notifier/internal/textfold"
)

const (
	// InformationRequestSLA is the deadline in days for information requests.
	InformationRequestSLA = 20
	// DefaultSLA is the deadline in days for every other manifestation type.
	DefaultSLA = 30
)

// informationRequestSynonyms are matched as case- and accent-insensitive substrings.
var informationRequestSynonyms = []string{
	"pedido de informacao",
	"solicitacao de informacao",
	"acesso a informacao",
	"pedido de acesso",
	"e-sic",
}

// SLA returns the deadline in days for a manifestation type.
func SLA(manifestationType string) int {
	if textfold.ContainsAny(manifestationType, informationRequestSynonyms...) {
		return InformationRequestSLA
	}
	return DefaultSLA
}

// Outcome says why a case was or was not placed in a bucket.
type Outcome int

const (
	OutcomeBucketed Outcome = iota
	OutcomeNotDue
	OutcomeClosed
	OutcomeNoCreationDate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBucketed:
		return "bucketed"
	case OutcomeNotDue:
		return "not_due"
	case OutcomeClosed:
		return "closed"
	case OutcomeNoCreationDate:
		return "no_creation_date"
	}
	return "unknown"
}

// Evaluation is the full result of classifying one case.
type Evaluation struct {
	Outcome       Outcome
	Bucket        Bucket
	CreatedOn     Date
	CreatedFrom   string // field the creation date was read from
	ClosedOn      Date
	SLADays       int
	DueDate       Date
	DaysRemaining int // negative once the due date has passed
}

// Evaluate classifies c against today. It has no side effects.
func Evaluate(c *casefile.Case, today Date) Evaluation {
	if closed, _, ok := ResolveField(c, CompletionFields); ok {
		return Evaluation{Outcome: OutcomeClosed, ClosedOn: closed}
	}

	created, from, ok := ResolveField(c, CreationFields)
	if !ok {
		return Evaluation{Outcome: OutcomeNoCreationDate}
	}

	sla := SLA(casefile.TypeOf(c))
	due := created.AddDays(sla)
	ev := Evaluation{
		Outcome:       OutcomeNotDue,
		CreatedOn:     created,
		CreatedFrom:   from,
		SLADays:       sla,
		DueDate:       due,
		DaysRemaining: today.DaysUntil(due),
	}
	if b, ok := BucketFor(due, today); ok {
		ev.Outcome = OutcomeBucketed
		ev.Bucket = b
	}
	return ev
}

// Classification is the bucket assignment for a case that needs a notification.
type Classification struct {
	Bucket        Bucket
	DueDate       Date
	DaysRemaining int
}

// Classify returns the bucket assignment for c, or false when c is closed,
// has no usable creation date, or sits in no window today.
func Classify(c *casefile.Case, today Date) (Classification, bool) {
	ev := Evaluate(c, today)
	if ev.Outcome != OutcomeBucketed {
		return Classification{}, false
	}
	return Classification{Bucket: ev.Bucket, DueDate: ev.DueDate, DaysRemaining: ev.DaysRemaining}, true
}
