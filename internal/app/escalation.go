package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"ombudsman_deadline_notifier/internal/domain/deadline"
	"ombudsman_deadline_notifier/internal/infra/delivery"
)

// DigestResult reports what the oversight digest did.
type DigestResult struct {
	Cases     int
	Delivered int // oversight addresses that accepted the digest
	Failed    int
}

// EscalationSummarizer mails one cross-department digest of due-today cases
// to the oversight list.
type EscalationSummarizer struct {
	sender     Sender
	composer   *Composer
	recipients []string
	logger     logrus.FieldLogger
}

func NewEscalationSummarizer(sender Sender, composer *Composer, recipients []string, logger logrus.FieldLogger) *EscalationSummarizer {
	return &EscalationSummarizer{sender: sender, composer: composer, recipients: recipients, logger: logger}
}

// Summarize is a no-op when there are no cases or no oversight recipients.
// Its errors are informational; department sends are never affected.
func (e *EscalationSummarizer) Summarize(ctx context.Context, today deadline.Date, batches map[string]*Batch) (DigestResult, error) {
	if len(e.recipients) == 0 || len(batches) == 0 {
		return DigestResult{}, nil
	}
	content, total, err := e.composer.Digest(today, batches)
	if err != nil {
		return DigestResult{}, err
	}
	res := DigestResult{Cases: total}
	if total == 0 {
		return res, nil
	}

	var errs []error
	for _, addr := range e.recipients {
		_, err := e.sender.Send(ctx, delivery.Message{
			To:       addr,
			Subject:  content.Subject,
			HTMLBody: content.HTML,
			TextBody: content.Text,
		})
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("digest to %s: %w", addr, err))
			continue
		}
		res.Delivered++
	}
	e.logger.WithFields(logrus.Fields{
		"cases":     res.Cases,
		"delivered": res.Delivered,
		"failed":    res.Failed,
	}).Info("Oversight digest processed")
	return res, errors.Join(errs...)
}
