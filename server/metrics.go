package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests made.",
		},
		[]string{"method", "path", "code"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Journey outcomes by step and result
	journeyOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cri_journey_outcomes_total",
			Help: "Total number of issuer requests, by step and result.",
		},
		[]string{"step", "result"}, // result is success or an error kind
	)

	auditPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cri_audit_publish_failures_total",
			Help: "Total number of audit events that could not be published.",
		},
		[]string{"event"},
	)
)

// Journey step labels
const (
	stepSession         = "session"
	stepClaimedIdentity = "claimed_identity"
	stepAuthorization   = "authorization"
	stepToken           = "token"
	stepUserInfo        = "userinfo"
	stepAbort           = "abort"
)

// MetricsMiddleware counts requests by route pattern rather than raw path so
// requests for unknown paths cannot blow up label cardinality.
func (s *Server) MetricsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapResponseWriter(w)
		next(wrapped, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		requestCount.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	}
}

func recordOutcome(step string, err error) {
	result := "success"
	if err != nil {
		result = errorKindLabel(err)
	}
	journeyOutcomes.WithLabelValues(step, result).Inc()
}

// RecordAuditFailure counts an audit event the emitter failed to publish
func RecordAuditFailure(eventName string) {
	auditPublishFailures.WithLabelValues(eventName).Inc()
}
