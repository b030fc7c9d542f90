package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"focusift/internal/event"
)

// Metrics represents the collection of all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Sessions
	SessionsStarted     prometheus.Counter
	SessionsEnded       *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	Interruptions       prometheus.Counter
	Suggestions         *prometheus.CounterVec
	FeedbackVotes       *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	InvalidInputs       prometheus.Counter
}

// NewMetrics creates all collectors on a private registry, so that several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusift_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "focusift_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusift_sessions_started_total",
			Help: "Total number of focus sessions started",
		},
	)

	m.SessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusift_sessions_ended_total",
			Help: "Total number of focus sessions ended, by reason",
		},
		[]string{"reason"},
	)

	m.ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "focusift_active_sessions",
			Help: "Number of sessions currently running",
		},
	)

	m.Interruptions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusift_interruptions_total",
			Help: "Total number of counted visibility interruptions",
		},
	)

	m.Suggestions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusift_suggestions_total",
			Help: "Suggestions produced, by policy and bucket",
		},
		[]string{"policy", "bucket", "outcome"},
	)

	m.FeedbackVotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusift_feedback_votes_total",
			Help: "Technique feedback votes, by vote",
		},
		[]string{"vote"},
	)

	m.PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focusift_persistence_failures_total",
			Help: "Session summaries that could not be persisted",
		},
		[]string{"persister"},
	)

	m.InvalidInputs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "focusift_invalid_inputs_total",
			Help: "Rejected session start requests",
		},
	)

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionsStarted,
		m.SessionsEnded,
		m.ActiveSessions,
		m.Interruptions,
		m.Suggestions,
		m.FeedbackVotes,
		m.PersistenceFailures,
		m.InvalidInputs,
	)

	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe updates the session collectors from one controller event.
func (m *Metrics) Observe(e event.Event) {
	switch e.Type {
	case event.EventTypeSessionStarted:
		m.SessionsStarted.Inc()
		m.ActiveSessions.Inc()
	case event.EventTypeSessionCompleted, event.EventTypeSessionStopped:
		m.SessionsEnded.WithLabelValues(string(e.Reason)).Inc()
		m.ActiveSessions.Dec()
	case event.EventTypeInterruption:
		m.Interruptions.Inc()
	case event.EventTypeSuggestion:
		if e.Suggestion == nil {
			return
		}
		outcome := "suggested"
		if e.Suggestion.None {
			outcome = "none"
		}
		m.Suggestions.WithLabelValues(e.Suggestion.Policy, e.Suggestion.Bucket, outcome).Inc()
	case event.EventTypeFeedback:
		m.FeedbackVotes.WithLabelValues(e.Notes).Inc()
	case event.EventTypeNotice:
		m.InvalidInputs.Inc()
	}
}

// PersistFailed counts a failed summary hand-off.
func (m *Metrics) PersistFailed(persister string) {
	m.PersistenceFailures.WithLabelValues(persister).Inc()
}

// Middleware for tracking HTTP requests. The path label is the chi route
// pattern when one matched.
func (m *Metrics) RequestTrackingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter is a wrapper to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
