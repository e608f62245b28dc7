package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"ombudsman_deadline_notifier/internal/app"
	"ombudsman_deadline_notifier/internal/domain/deadline"
)

// Runner is the pipeline entry point shared by the cron job and manual
// triggers.
type Runner interface {
	Run(ctx context.Context, trigger app.Trigger, today deadline.Date) (*app.RunSummary, error)
	Today() deadline.Date
}

type NotificationScheduler struct {
	cronEngine *cron.Cron
	runner     Runner
	logger     logrus.FieldLogger
	cronSpec   string
	runTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func NewNotificationScheduler(
	runner Runner,
	logger logrus.FieldLogger,
	location *time.Location,
	cronSpecDaily string, // e.g., "0 8 * * *" (08:00 every day)
	runTimeout time.Duration,
) *NotificationScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationScheduler{
		cronEngine: cron.New(cron.WithLocation(location)),
		runner:     runner,
		logger:     logger,
		cronSpec:   cronSpecDaily,
		runTimeout: runTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *NotificationScheduler) Start() error {
	s.logger.Info("Starting notification scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpec, s.RunNow); err != nil {
		return fmt.Errorf("could not add daily notification cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.logger.WithField("spec", s.cronSpec).Info("Notification scheduler started")
	return nil
}

// RunNow executes the scheduled job once, in the caller's goroutine.
func (s *NotificationScheduler) RunNow() {
	s.logger.Info("Cron job triggered for daily deadline notifications.")

	ctx := s.ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.runTimeout)
		defer cancel()
	}

	summary, err := s.runner.Run(ctx, app.TriggerScheduled, s.runner.Today())
	switch {
	case errors.Is(err, app.ErrRunInProgress):
		s.logger.Warn("Skipping scheduled run: another run is in progress")
	case err != nil:
		s.logger.WithError(err).Error("Scheduled notification run failed")
	case summary.Failed():
		s.logger.WithField("run_id", summary.RunID).Warn("Scheduled notification run finished with aborted buckets")
	}
}

// Stop cancels the context of a run in progress, so it starts no new
// department batches, and waits for the job to return.
func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	s.cancel()
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Notification scheduler gracefully stopped.")
}
