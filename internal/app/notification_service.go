// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ombudsman_deadline_notifier/internal/domain/casefile"
	"ombudsman_deadline_notifier/internal/domain/deadline"
	"ombudsman_deadline_notifier/internal/domain/notification"
	"ombudsman_deadline_notifier/internal/infra/delivery"
)

// ErrRunInProgress is returned when a run is triggered while another one is
// still going. Triggers are rejected, never queued.
var ErrRunInProgress = errors.New("notification run already in progress")

// Trigger names what started a run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// BucketSummary is the outcome of one bucket within a run.
type BucketSummary struct {
	Bucket          deadline.Bucket
	Candidates      int // cases classified into the bucket today
	AlreadyNotified int // filtered out by the ledger before dispatch
	Departments     int
	Sent            int
	Errors          int
	AlreadyHandled  int // lost the ledger race to a concurrent run
	Skipped         int
	Digest          DigestResult
	Err             string
	Result          *DispatchResult
}

// RunSummary is the outcome of a whole run.
type RunSummary struct {
	RunID          string
	Trigger        Trigger
	Today          deadline.Date
	StartedAt      time.Time
	FinishedAt     time.Time
	Cases          int
	Closed         int
	NotDue         int
	NoCreationDate int
	NoProtocol     int
	Buckets        []*BucketSummary
}

// Failed reports whether any bucket was aborted.
func (s *RunSummary) Failed() bool {
	for _, b := range s.Buckets {
		if b.Err != "" {
			return true
		}
	}
	return false
}

// Totals sums sent and error records over all buckets.
func (s *RunSummary) Totals() (sent, errs int) {
	for _, b := range s.Buckets {
		sent += b.Sent
		errs += b.Errors
	}
	return sent, errs
}

// RunObserver records run-level metrics.
type RunObserver interface {
	ObserveRun(trigger, result string, elapsed time.Duration)
}

// BucketDispatcher is the part of Dispatcher the service drives.
type BucketDispatcher interface {
	Dispatch(ctx context.Context, bucket deadline.Bucket, batches map[string]*Batch) (*DispatchResult, error)
}

// NotificationService runs the daily pipeline: fetch open cases, classify,
// drop already-notified ones, group by department, dispatch, record, and
// send the due-today digest. At most one run executes at a time.
type NotificationService struct {
	cases      casefile.Repository
	ledger     notification.Ledger
	dispatcher BucketDispatcher
	escalation *EscalationSummarizer
	observer   RunObserver
	location   *time.Location
	logger     logrus.FieldLogger
	now        func() time.Time

	running atomic.Bool
}

func NewNotificationService(
	cases casefile.Repository,
	ledger notification.Ledger,
	dispatcher BucketDispatcher,
	escalation *EscalationSummarizer,
	observer RunObserver,
	location *time.Location,
	logger logrus.FieldLogger,
) *NotificationService {
	return &NotificationService{
		cases:      cases,
		ledger:     ledger,
		dispatcher: dispatcher,
		escalation: escalation,
		observer:   observer,
		location:   location,
		logger:     logger,
		now:        time.Now,
	}
}

// Today is the current calendar day in the configured location.
func (s *NotificationService) Today() deadline.Date {
	return deadline.Today(s.now(), s.location)
}

// Run executes one pass over all buckets for today. A failing bucket does
// not stop the others; its error is reported in the summary.
func (s *NotificationService) Run(ctx context.Context, trigger Trigger, today deadline.Date) (*RunSummary, error) {
	return s.RunBuckets(ctx, trigger, today, deadline.Buckets)
}

// RunBuckets is Run restricted to buckets. They are still processed in the
// order of deadline.Buckets; the rest are left out of the summary.
func (s *NotificationService) RunBuckets(ctx context.Context, trigger Trigger, today deadline.Date, buckets []deadline.Bucket) (*RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		Today:     today,
		StartedAt: s.now(),
	}
	log := s.logger.WithFields(logrus.Fields{
		"run_id":  summary.RunID,
		"trigger": trigger,
		"today":   today.String(),
	})
	log.Info("Notification run started")

	cases, err := s.cases.ListCandidates(ctx)
	if err != nil {
		s.finish(summary, "failed")
		log.WithError(err).Error("Failed to load cases")
		return summary, fmt.Errorf("failed to load cases: %w", err)
	}
	summary.Cases = len(cases)

	byBucket := s.classify(log, cases, today, summary)
	for _, b := range deadline.Buckets {
		if !slices.Contains(buckets, b) {
			continue
		}
		bs := s.runBucket(ctx, log, b, byBucket[b], today)
		summary.Buckets = append(summary.Buckets, bs)
	}

	result := "ok"
	if summary.Failed() {
		result = "partial"
	}
	s.finish(summary, result)

	sent, errs := summary.Totals()
	log.WithFields(logrus.Fields{
		"cases":            summary.Cases,
		"closed":           summary.Closed,
		"not_due":          summary.NotDue,
		"no_creation_date": summary.NoCreationDate,
		"no_protocol":      summary.NoProtocol,
		"sent":             sent,
		"errors":           errs,
		"result":           result,
		"duration":         summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Info("Notification run finished")
	return summary, nil
}

func (s *NotificationService) finish(summary *RunSummary, result string) {
	summary.FinishedAt = s.now()
	if s.observer != nil {
		s.observer.ObserveRun(string(summary.Trigger), result, summary.FinishedAt.Sub(summary.StartedAt))
	}
}

func (s *NotificationService) classify(log logrus.FieldLogger, cases []*casefile.Case, today deadline.Date, summary *RunSummary) map[deadline.Bucket][]Item {
	out := make(map[deadline.Bucket][]Item)
	seen := make(map[string]bool, len(cases))
	for _, c := range cases {
		protocol := casefile.ProtocolOf(c)
		if protocol == "" {
			summary.NoProtocol++
			log.Warn("Skipping case without protocol")
			continue
		}
		if seen[protocol] {
			continue
		}
		seen[protocol] = true

		ev := deadline.Evaluate(c, today)
		switch ev.Outcome {
		case deadline.OutcomeClosed:
			summary.Closed++
			continue
		case deadline.OutcomeNoCreationDate:
			summary.NoCreationDate++
			log.WithField("protocol", protocol).Warn("Skipping case without a resolvable creation date")
			continue
		case deadline.OutcomeNotDue:
			summary.NotDue++
			continue
		}
		out[ev.Bucket] = append(out[ev.Bucket], Item{
			Protocol:      protocol,
			Department:    casefile.DepartmentOf(c),
			Type:          casefile.TypeOf(c),
			Bucket:        ev.Bucket,
			CreatedOn:     ev.CreatedOn,
			DueDate:       ev.DueDate,
			DaysRemaining: ev.DaysRemaining,
		})
	}
	return out
}

func (s *NotificationService) runBucket(ctx context.Context, log logrus.FieldLogger, bucket deadline.Bucket, items []Item, today deadline.Date) *BucketSummary {
	bs := &BucketSummary{Bucket: bucket, Candidates: len(items)}
	log = log.WithField("bucket", bucket)
	if len(items) == 0 {
		log.Debug("No cases in bucket")
		return bs
	}

	protocols := make([]string, len(items))
	for i, it := range items {
		protocols[i] = it.Protocol
	}
	notified, err := s.ledger.NotifiedAmong(ctx, bucket, protocols)
	if err != nil {
		bs.Err = fmt.Sprintf("ledger lookup failed: %v", err)
		log.WithError(err).Error("Bucket aborted: ledger lookup failed")
		return bs
	}
	eligible := items[:0:0]
	for _, it := range items {
		if !notified[it.Protocol] {
			eligible = append(eligible, it)
		}
	}
	bs.AlreadyNotified = len(items) - len(eligible)
	if len(eligible) == 0 {
		log.WithField("already_notified", bs.AlreadyNotified).Info("Every case in bucket already notified")
		return bs
	}

	batches := GroupByDepartment(eligible)
	bs.Departments = len(batches)
	res, err := s.dispatcher.Dispatch(ctx, bucket, batches)
	if res != nil {
		bs.Result = res
		bs.Sent, bs.Errors, bs.AlreadyHandled, bs.Skipped = res.Sent, res.Errors, res.AlreadyHandled, res.Skipped
	}
	if err != nil {
		bs.Err = err.Error()
		entry := log.WithError(err)
		if errors.Is(err, delivery.ErrReauthorizationRequired) {
			entry.Error("Bucket aborted: mail credential rejected, run `notifier authorize` to restore delivery")
		} else {
			entry.Error("Bucket aborted")
		}
	}

	if bucket == deadline.BucketDueToday && s.escalation != nil {
		digest, err := s.escalation.Summarize(ctx, today, batches)
		bs.Digest = digest
		if err != nil {
			log.WithError(err).Warn("Oversight digest failed")
		}
	}

	if bs.Errors > 0 && bucket.SingleDay() {
		log.WithField("errors", bs.Errors).Warn("Failed cases leave this window tomorrow and will not be retried")
	}

	log.WithFields(logrus.Fields{
		"candidates":       bs.Candidates,
		"already_notified": bs.AlreadyNotified,
		"departments":      bs.Departments,
		"sent":             bs.Sent,
		"errors":           bs.Errors,
		"already_handled":  bs.AlreadyHandled,
		"skipped":          bs.Skipped,
	}).Info("Bucket finished")
	return bs
}
