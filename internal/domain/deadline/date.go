package deadline

import "time"

// DateLayout is the canonical textual form of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day without time-of-day or zone. It is stored as UTC
// midnight so that day arithmetic never crosses a DST boundary.
type Date struct {
	t time.Time
}

// NewDate builds a Date, normalising out-of-range values the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// Today returns the current calendar day in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(now.In(loc))
}

// ParseDate parses a strict YYYY-MM-DD value, rejecting impossible days.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals in tests and tables.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool { return d.t.IsZero() }

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// DaysUntil returns the signed number of whole days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t) / (24 * time.Hour))
}

func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }

// Time returns the day as UTC midnight, suitable for DATE columns.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}
