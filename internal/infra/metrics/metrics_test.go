package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.ObserveAttempt("success")
	r.ObserveAttempt("retryable")
	r.ObserveAttempt("success")
	r.ObserveRecords("due-today", "sent", 3)
	r.ObserveRecords("due-today", "error", 0)
	r.ObserveRun("manual", "ok", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.DeliveryAttempts.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.DeliveryAttempts.WithLabelValues("retryable")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Notifications.WithLabelValues("due-today", "sent")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.Notifications))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("manual", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.RunDuration))
}
