package deadline

// Bucket is a deadline-relative notification window.
type Bucket string

const (
	BucketDueIn15   Bucket = "due-in-15"  // due date is exactly 15 days ahead
	BucketDueToday  Bucket = "due-today"  // due date is today
	BucketOverdue60 Bucket = "overdue-60" // due date is 60 or more days behind
)

const (
	earlyWarningDays = 15
	overdueDays      = 60
)

// Buckets lists every bucket in the order a run processes them.
var Buckets = []Bucket{BucketDueIn15, BucketDueToday, BucketOverdue60}

// ParseBucket validates a stored or user-supplied bucket name.
func ParseBucket(s string) (Bucket, bool) {
	for _, b := range Buckets {
		if string(b) == s {
			return b, true
		}
	}
	return "", false
}

// SingleDay reports whether the bucket only matches on one calendar day.
// A missed send for such a bucket is never retried by a later run.
func (b Bucket) SingleDay() bool {
	return b == BucketDueIn15 || b == BucketDueToday
}

// BucketFor places a due date relative to today, or reports false when the
// case is in no window.
func BucketFor(due, today Date) (Bucket, bool) {
	switch {
	case due.Equal(today.AddDays(earlyWarningDays)):
		return BucketDueIn15, true
	case due.Equal(today):
		return BucketDueToday, true
	case !due.After(today.AddDays(-overdueDays)):
		return BucketOverdue60, true
	}
	return "", false
}
