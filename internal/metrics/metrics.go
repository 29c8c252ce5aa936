package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the service's Prometheus collectors. A nil *Recorder is a no-op.
type Recorder struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	RequestsOpened      *prometheus.CounterVec
	DecisionsTotal      *prometheus.CounterVec
	DecisionDuration    *prometheus.HistogramVec
	StaleRetries        *prometheus.CounterVec
	RequestsClosed      *prometheus.CounterVec
	MediaUploadFailures prometheus.Counter
}

// New registers the collectors on reg under the given name prefix.
func New(prefix string, reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		RequestsOpened: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_opened_total",
				Help: "Total number of approval requests opened",
			},
			[]string{"module"},
		),
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_decisions_total",
				Help: "Total number of submitted decisions by result",
			},
			[]string{"module", "decision", "result"},
		),
		DecisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_decision_duration_seconds",
				Help:    "Duration of decision transactions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"decision"},
		),
		StaleRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_stale_state_retries_total",
				Help: "Total number of transitions retried after a concurrent write",
			},
			[]string{"operation"},
		),
		RequestsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_closed_total",
				Help: "Total number of requests reaching a terminal status",
			},
			[]string{"module", "status"},
		),
		MediaUploadFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_media_upload_failures_total",
				Help: "Total number of failed proof or signature uploads",
			},
		),
	}
}

func (r *Recorder) RecordHTTPRequest(method, path, status string, started time.Time) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(started).Seconds())
}

func (r *Recorder) RecordOpened(module string) {
	if r == nil {
		return
	}
	r.RequestsOpened.WithLabelValues(module).Inc()
}

// RecordDecision counts a decision by its result label ("ok" or the error code).
func (r *Recorder) RecordDecision(module, decision, result string, started time.Time) {
	if r == nil {
		return
	}
	r.DecisionsTotal.WithLabelValues(module, decision, result).Inc()
	r.DecisionDuration.WithLabelValues(decision).Observe(time.Since(started).Seconds())
}

func (r *Recorder) RecordStaleRetry(operation string) {
	if r == nil {
		return
	}
	r.StaleRetries.WithLabelValues(operation).Inc()
}

func (r *Recorder) RecordClosed(module, status string) {
	if r == nil {
		return
	}
	r.RequestsClosed.WithLabelValues(module, status).Inc()
}

func (r *Recorder) RecordUploadFailure() {
	if r == nil {
		return
	}
	r.MediaUploadFailures.Inc()
}
