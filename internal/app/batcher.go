package app

import (
	"sort"

	"ombudsman_deadline_notifier/internal/domain/deadline"
)

// Item is one case classified into a bucket.
type Item struct {
	Protocol      string
	Department    string
	Type          string
	Bucket        deadline.Bucket
	CreatedOn     deadline.Date
	DueDate       deadline.Date
	DaysRemaining int
}

// Batch is every eligible item of one department in one bucket. It becomes
// one message.
type Batch struct {
	Department string
	Bucket     deadline.Bucket
	Items      []Item
}

// GroupByDepartment groups items by department name. Items keep their input
// order inside a batch.
func GroupByDepartment(items []Item) map[string]*Batch {
	out := make(map[string]*Batch)
	for _, it := range items {
		b, ok := out[it.Department]
		if !ok {
			b = &Batch{Department: it.Department, Bucket: it.Bucket}
			out[it.Department] = b
		}
		b.Items = append(b.Items, it)
	}
	return out
}

// departmentNames returns the batch keys sorted, for deterministic dispatch
// and digest order.
func departmentNames(batches map[string]*Batch) []string {
	names := make([]string, 0, len(batches))
	for name := range batches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
