package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ombudsman_deadline_notifier/internal/domain/deadline"
)

func TestGroupByDepartment(t *testing.T) {
	items := []Item{
		item("1", "Obras", deadline.BucketDueToday, "2025-01-21"),
		item("2", "Saúde", deadline.BucketDueToday, "2025-01-21"),
		item("3", "Obras", deadline.BucketDueToday, "2025-01-21"),
		item("4", "", deadline.BucketDueToday, "2025-01-21"),
	}

	batches := GroupByDepartment(items)

	require.Len(t, batches, 3)
	assert.Equal(t, []string{"1", "3"}, protocolsOf(batches["Obras"].Items))
	assert.Equal(t, deadline.BucketDueToday, batches["Obras"].Bucket)
	assert.Equal(t, []string{"2"}, protocolsOf(batches["Saúde"].Items))
	assert.Equal(t, []string{"4"}, protocolsOf(batches[""].Items))
	assert.Equal(t, []string{"", "Obras", "Saúde"}, departmentNames(batches))
}

func TestGroupByDepartment_Empty(t *testing.T) {
	assert.Empty(t, GroupByDepartment(nil))
}

func protocolsOf(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Protocol
	}
	return out
}
