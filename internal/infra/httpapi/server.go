// internal/infra/httpapi/server.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"ombudsman_deadline_notifier/internal/app"
	"ombudsman_deadline_notifier/internal/domain/deadline"
	"ombudsman_deadline_notifier/internal/infra/scheduler"
)

// Runner is the pipeline the admin surface triggers.
type Runner interface {
	scheduler.Runner
	RunBuckets(ctx context.Context, trigger app.Trigger, today deadline.Date, buckets []deadline.Bucket) (*app.RunSummary, error)
}

// Server is the admin surface: manual trigger, health and metrics.
type Server struct {
	runner     Runner
	gatherer   prometheus.Gatherer
	logger     logrus.FieldLogger
	runTimeout time.Duration
	router     *mux.Router
}

func NewServer(runner Runner, gatherer prometheus.Gatherer, runTimeout time.Duration, logger logrus.FieldLogger) *Server {
	s := &Server{
		runner:     runner,
		gatherer:   gatherer,
		logger:     logger,
		runTimeout: runTimeout,
		router:     mux.NewRouter(),
	}
	s.router.HandleFunc("/runs", s.TriggerRun).Methods("POST")
	s.router.HandleFunc("/healthz", s.Health).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type bucketResponse struct {
	Bucket          string `json:"bucket"`
	Candidates      int    `json:"candidates"`
	AlreadyNotified int    `json:"already_notified"`
	Departments     int    `json:"departments"`
	Sent            int    `json:"sent"`
	Errors          int    `json:"errors"`
	AlreadyHandled  int    `json:"already_handled"`
	Skipped         int    `json:"skipped"`
	DigestDelivered int    `json:"digest_delivered"`
	Error           string `json:"error,omitempty"`
}

type runResponse struct {
	RunID          string           `json:"run_id"`
	Trigger        string           `json:"trigger"`
	Today          string           `json:"today"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
	Cases          int              `json:"cases"`
	Closed         int              `json:"closed"`
	NotDue         int              `json:"not_due"`
	NoCreationDate int              `json:"no_creation_date"`
	NoProtocol     int              `json:"no_protocol"`
	Buckets        []bucketResponse `json:"buckets"`
}

func toResponse(s *app.RunSummary) runResponse {
	out := runResponse{
		RunID:          s.RunID,
		Trigger:        string(s.Trigger),
		Today:          s.Today.String(),
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
		Cases:          s.Cases,
		Closed:         s.Closed,
		NotDue:         s.NotDue,
		NoCreationDate: s.NoCreationDate,
		NoProtocol:     s.NoProtocol,
		Buckets:        make([]bucketResponse, 0, len(s.Buckets)),
	}
	for _, b := range s.Buckets {
		out.Buckets = append(out.Buckets, bucketResponse{
			Bucket:          string(b.Bucket),
			Candidates:      b.Candidates,
			AlreadyNotified: b.AlreadyNotified,
			Departments:     b.Departments,
			Sent:            b.Sent,
			Errors:          b.Errors,
			AlreadyHandled:  b.AlreadyHandled,
			Skipped:         b.Skipped,
			DigestDelivered: b.Digest.Delivered,
			Error:           b.Err,
		})
	}
	return out
}

// TriggerRun runs the pipeline synchronously.
// POST /runs[?date=YYYY-MM-DD][&bucket=due-in-15&bucket=...]
func (s *Server) TriggerRun(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	today := s.runner.Today()
	if v := query.Get("date"); v != "" {
		d, err := deadline.ParseDate(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
			return
		}
		today = d
	}

	buckets := deadline.Buckets
	if names := query["bucket"]; len(names) > 0 {
		buckets = make([]deadline.Bucket, 0, len(names))
		for _, name := range names {
			b, ok := deadline.ParseBucket(name)
			if !ok {
				respondWithError(w, http.StatusBadRequest, "Bad Request", "unknown bucket "+strconv.Quote(name))
				return
			}
			buckets = append(buckets, b)
		}
	}

	// The run outlives a dropped client connection.
	ctx := context.WithoutCancel(r.Context())
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	summary, err := s.runner.RunBuckets(ctx, app.TriggerManual, today, buckets)
	switch {
	case errors.Is(err, app.ErrRunInProgress):
		respondWithError(w, http.StatusConflict, "Conflict", err.Error())
		return
	case err != nil:
		s.logger.WithError(err).Error("Manual run failed")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, toResponse(summary))
}

// Health reports liveness. GET /healthz
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, errorType, message string) {
	respondWithJSON(w, statusCode, errorResponse{Error: errorType, Message: message, Code: statusCode})
}
