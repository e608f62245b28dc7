package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ombudsman_deadline_notifier/internal/domain/deadline"
	"ombudsman_deadline_notifier/internal/domain/notification"
	"ombudsman_deadline_notifier/internal/infra/delivery"
)

// Sender delivers one message to one address.
type Sender interface {
	Send(ctx context.Context, msg delivery.Message) (string, error)
}

// Recipients resolves a department to its addresses.
type Recipients interface {
	Resolve(ctx context.Context, department string) (Resolution, error)
}

// RecordObserver counts ledger writes.
type RecordObserver interface {
	ObserveRecords(bucket, status string, n int)
}

// DepartmentResult is the outcome of one department batch.
type DepartmentResult struct {
	Department     string
	Recipients     []string
	Source         string
	MatchedName    string // directory or static entry the department resolved to
	Cases          int
	Status         notification.Status // empty when the batch was skipped
	MessageID      string
	Error          string
	AlreadyHandled int
	Skipped        bool
}

// DispatchResult aggregates a bucket's department batches.
type DispatchResult struct {
	Bucket         deadline.Bucket
	Sent           int
	Errors         int
	AlreadyHandled int
	Skipped        int
	Departments    map[string]*DepartmentResult
}

func (r *DispatchResult) add(dr *DepartmentResult) {
	r.Departments[dr.Department] = dr
	switch {
	case dr.Skipped:
		r.Skipped += dr.Cases
	case dr.Status == notification.StatusSent:
		r.Sent += dr.Cases - dr.AlreadyHandled
		r.AlreadyHandled += dr.AlreadyHandled
	case dr.Status == notification.StatusError:
		r.Errors += dr.Cases
	}
}

// Dispatcher sends department batches with bounded concurrency and writes
// their ledger records.
type Dispatcher struct {
	recipients  Recipients
	sender      Sender
	ledger      notification.Ledger
	composer    *Composer
	concurrency int
	observer    RecordObserver
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewDispatcher(recipients Recipients, sender Sender, ledger notification.Ledger, composer *Composer, concurrency int, observer RecordObserver, logger logrus.FieldLogger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		recipients:  recipients,
		sender:      sender,
		ledger:      ledger,
		composer:    composer,
		concurrency: concurrency,
		observer:    observer,
		logger:      logger,
		now:         time.Now,
	}
}

// Dispatch runs every batch of bucket. It returns an error only when the
// bucket had to be aborted: a rejected delivery credential or a ledger
// write failure. Batches already started still finish and are recorded;
// batches not yet started are reported as skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, bucket deadline.Bucket, batches map[string]*Batch) (*DispatchResult, error) {
	res := &DispatchResult{Bucket: bucket, Departments: make(map[string]*DepartmentResult, len(batches))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, name := range departmentNames(batches) {
		b := batches[name]
		g.Go(func() error {
			if gctx.Err() != nil {
				mu.Lock()
				res.add(&DepartmentResult{Department: b.Department, Cases: len(b.Items), Skipped: true})
				mu.Unlock()
				return nil
			}
			// A started batch runs to its ledger write even if the run is
			// cancelled meanwhile; each send is bounded by its own timeout.
			dr, err := d.dispatchBatch(context.WithoutCancel(gctx), bucket, b)
			mu.Lock()
			res.add(dr)
			mu.Unlock()
			return err
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil && res.Skipped > 0 {
		err = fmt.Errorf("dispatch of %s interrupted: %w", bucket, ctx.Err())
	}
	return res, err
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, bucket deadline.Bucket, b *Batch) (*DepartmentResult, error) {
	log := d.logger.WithFields(logrus.Fields{
		"bucket":     bucket,
		"department": b.Department,
		"cases":      len(b.Items),
	})
	dr := &DepartmentResult{Department: b.Department, Cases: len(b.Items)}

	var (
		messageID string
		delivered bool
		lastErr   error
		fatal     error
	)
	resolution, err := d.recipients.Resolve(ctx, b.Department)
	if err != nil {
		lastErr = fmt.Errorf("recipient resolution failed: %w", err)
	} else {
		dr.Recipients = resolution.Addresses
		dr.Source = resolution.Source
		dr.MatchedName = resolution.MatchedName
		log = log.WithFields(logrus.Fields{"source": resolution.Source, "matched": resolution.MatchedName})
		messageID, delivered, lastErr, fatal = d.send(ctx, log, b, resolution.Addresses)
	}

	records := d.records(b, bucket, dr.Recipients, delivered, messageID, lastErr)
	if delivered {
		dr.Status = notification.StatusSent
		dr.MessageID = messageID
	} else {
		dr.Status = notification.StatusError
		dr.Error = lastErr.Error()
		log.WithError(lastErr).Error("Department batch not delivered")
	}

	err = d.ledger.RecordBatch(ctx, records)
	var dup *notification.DuplicateError
	switch {
	case errors.As(err, &dup):
		dr.AlreadyHandled = len(dup.Keys)
		log.WithField("already_handled", len(dup.Keys)).Info("Cases already recorded by a concurrent run")
	case err != nil:
		log.WithError(err).Error("Failed to write ledger records")
		return dr, fmt.Errorf("failed to record %s batch for %q: %w", bucket, b.Department, err)
	}

	if d.observer != nil {
		d.observer.ObserveRecords(string(bucket), string(dr.Status), len(records)-dr.AlreadyHandled)
	}
	if dr.Status == notification.StatusSent {
		log.WithFields(logrus.Fields{"message_id": messageID, "recipients": len(dr.Recipients)}).Info("Department batch delivered")
	}
	return dr, fatal
}

// send delivers the batch message to every address. It returns the first
// successful message id, the last failure, and a fatal credential error if
// one stopped the loop.
func (d *Dispatcher) send(ctx context.Context, log logrus.FieldLogger, b *Batch, addrs []string) (messageID string, delivered bool, lastErr, fatal error) {
	content, err := d.composer.Department(b)
	if err != nil {
		return "", false, err, nil
	}
	for _, addr := range addrs {
		id, err := d.sender.Send(ctx, delivery.Message{
			To:       addr,
			Subject:  content.Subject,
			HTMLBody: content.HTML,
			TextBody: content.Text,
		})
		if err != nil {
			lastErr = err
			log.WithError(err).WithField("to", addr).Warn("Delivery to address failed")
			if errors.Is(err, delivery.ErrReauthorizationRequired) {
				return messageID, delivered, lastErr, err
			}
			continue
		}
		if !delivered {
			messageID, delivered = id, true
		}
	}
	if !delivered && lastErr == nil {
		lastErr = errors.New("no address accepted the message")
	}
	return messageID, delivered, lastErr, nil
}

func (d *Dispatcher) records(b *Batch, bucket deadline.Bucket, recipients []string, delivered bool, messageID string, failure error) []*notification.Record {
	sentAt := d.now()
	joined := notification.JoinRecipients(recipients)
	out := make([]*notification.Record, 0, len(b.Items))
	for _, it := range b.Items {
		r := &notification.Record{
			Protocol:      it.Protocol,
			Department:    b.Department,
			Recipients:    joined,
			Bucket:        bucket,
			DueDate:       it.DueDate,
			DaysRemaining: it.DaysRemaining,
			SentAt:        sentAt,
		}
		if delivered {
			r.Status = notification.StatusSent
			r.MessageID = sql.NullString{String: messageID, Valid: messageID != ""}
		} else {
			r.Status = notification.StatusError
			r.ErrorMessage = sql.NullString{String: failure.Error(), Valid: true}
		}
		out = append(out, r)
	}
	return out
}
