package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ombudsman_deadline_notifier/internal/domain/deadline"
)

func TestSummarize_NoOpWithoutCasesOrRecipients(t *testing.T) {
	logger, _ := nullLogger()
	sender := &recordingSender{}
	batches := GroupByDepartment([]Item{item("A", "Obras", deadline.BucketDueToday, "2025-01-21")})

	res, err := NewEscalationSummarizer(sender, NewComposer(""), nil, logger).Summarize(context.Background(), runDay, batches)
	require.NoError(t, err)
	assert.Equal(t, DigestResult{}, res)

	res, err = NewEscalationSummarizer(sender, NewComposer(""), []string{"chefia@x.gov"}, logger).Summarize(context.Background(), runDay, nil)
	require.NoError(t, err)
	assert.Equal(t, DigestResult{}, res)
	assert.Empty(t, sender.to())
}

func TestSummarize_ReportsPartialFailure(t *testing.T) {
	logger, _ := nullLogger()
	sender := &recordingSender{fail: map[string]error{"controle@x.gov": errors.New("rejected")}}
	batches := GroupByDepartment([]Item{
		item("A", "Obras", deadline.BucketDueToday, "2025-01-21"),
		item("B", "Saúde", deadline.BucketDueToday, "2025-01-21"),
	})
	s := NewEscalationSummarizer(sender, NewComposer(""), []string{"chefia@x.gov", "controle@x.gov"}, logger)

	res, err := s.Summarize(context.Background(), runDay, batches)

	assert.ErrorContains(t, err, "controle@x.gov")
	assert.Equal(t, DigestResult{Cases: 2, Delivered: 1, Failed: 1}, res)
	assert.Equal(t, []string{"chefia@x.gov"}, sender.to())
}
