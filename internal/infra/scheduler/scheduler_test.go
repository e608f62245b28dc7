package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ombudsman_deadline_notifier/internal/app"
	"ombudsman_deadline_notifier/internal/domain/deadline"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, trigger app.Trigger, today deadline.Date) (*app.RunSummary, error) {
	args := m.Called(ctx, trigger, today)
	summary, _ := args.Get(0).(*app.RunSummary)
	return summary, args.Error(1)
}

func (m *mockRunner) Today() deadline.Date {
	return m.Called().Get(0).(deadline.Date)
}

var day = deadline.MustParseDate("2025-01-21")

func TestRunNow_UsesScheduledTriggerAndToday(t *testing.T) {
	logger, _ := test.NewNullLogger()
	runner := &mockRunner{}
	runner.On("Today").Return(day)
	runner.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), app.TriggerScheduled, day).Return(&app.RunSummary{RunID: "r1"}, nil).Once()

	NewNotificationScheduler(runner, logger, time.UTC, "0 8 * * *", time.Minute).RunNow()

	runner.AssertExpectations(t)
}

func TestRunNow_LogsRejectedRun(t *testing.T) {
	logger, hook := test.NewNullLogger()
	runner := &mockRunner{}
	runner.On("Today").Return(day)
	runner.On("Run", mock.Anything, app.TriggerScheduled, day).Return(nil, app.ErrRunInProgress)

	NewNotificationScheduler(runner, logger, time.UTC, "0 8 * * *", 0).RunNow()

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "another run is in progress")
}

func TestRunNow_LogsFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	runner := &mockRunner{}
	runner.On("Today").Return(day)
	runner.On("Run", mock.Anything, app.TriggerScheduled, day).Return(nil, errors.New("no db"))

	NewNotificationScheduler(runner, logger, time.UTC, "0 8 * * *", 0).RunNow()

	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestStart_RejectsInvalidCronExpression(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewNotificationScheduler(&mockRunner{}, logger, time.UTC, "every morning", 0)

	assert.Error(t, s.Start())
}

// blockingRunner holds the run until its context is cancelled.
type blockingRunner struct {
	once    sync.Once
	started chan struct{}
	ctxErr  error
}

func (b *blockingRunner) Run(ctx context.Context, _ app.Trigger, _ deadline.Date) (*app.RunSummary, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	b.ctxErr = ctx.Err()
	return &app.RunSummary{}, nil
}

func (b *blockingRunner) Today() deadline.Date { return day }

func TestStop_CancelsRunningJob(t *testing.T) {
	logger, _ := test.NewNullLogger()
	runner := &blockingRunner{started: make(chan struct{})}
	s := NewNotificationScheduler(runner, logger, time.UTC, "@every 1s", time.Hour)
	require.NoError(t, s.Start())

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("cron job never fired")
	}
	s.Stop()

	assert.ErrorIs(t, runner.ctxErr, context.Canceled)
}
