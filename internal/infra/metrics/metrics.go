// Package metrics exposes the notifier's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the collectors and registers them on one registry.
type Recorder struct {
	Notifications    *prometheus.CounterVec
	DeliveryAttempts *prometheus.CounterVec
	Runs             *prometheus.CounterVec
	RunDuration      prometheus.Histogram
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ombudsman_notifications_total",
			Help: "Ledger records written, by bucket and status.",
		}, []string{"bucket", "status"}),
		DeliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ombudsman_delivery_attempts_total",
			Help: "Mail provider attempts, by outcome.",
		}, []string{"outcome"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ombudsman_runs_total",
			Help: "Notification runs, by trigger and result.",
		}, []string{"trigger", "result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ombudsman_run_duration_seconds",
			Help:    "Wall time of a notification run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
	}
	reg.MustRegister(r.Notifications, r.DeliveryAttempts, r.Runs, r.RunDuration)
	return r
}

func (r *Recorder) ObserveAttempt(outcome string) {
	r.DeliveryAttempts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveRecords(bucket, status string, n int) {
	if n > 0 {
		r.Notifications.WithLabelValues(bucket, status).Add(float64(n))
	}
}

func (r *Recorder) ObserveRun(trigger, result string, elapsed time.Duration) {
	r.Runs.WithLabelValues(trigger, result).Inc()
	r.RunDuration.Observe(elapsed.Seconds())
}
