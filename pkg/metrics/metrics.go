// Package metrics defines the prometheus collectors for the explorer API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "explorer_build_info",
			Help: "Build information of the explorer server",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explorer_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Language-understanding backend metrics
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_backend_requests_total",
			Help: "Total number of language backend requests",
		},
		[]string{"status"},
	)

	BackendRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "explorer_backend_request_duration_seconds",
			Help:    "Duration of language backend requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
	)

	BackendTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_backend_tokens_total",
			Help: "Total tokens exchanged with the language backend",
		},
		[]string{"direction"},
	)

	// Command pipeline metrics
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_commands_total",
			Help: "Total number of interpreted commands by resulting operation type",
		},
		[]string{"operation", "strategy"},
	)

	OperationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_operations_applied_total",
			Help: "Total number of table operations applied",
		},
		[]string{"operation", "status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_active_sessions",
			Help: "Number of sessions currently held in memory",
		},
	)
)

// RecordBackendRequest records a language backend call outcome.
func RecordBackendRequest(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	BackendRequestsTotal.WithLabelValues(status).Inc()
	BackendRequestDuration.Observe(duration.Seconds())
}

// RecordBackendTokens records token usage for a backend call.
func RecordBackendTokens(input, output int64) {
	BackendTokensTotal.WithLabelValues("input").Add(float64(input))
	BackendTokensTotal.WithLabelValues("output").Add(float64(output))
}

// Middleware instruments HTTP handlers with request count, duration, and
// in-flight gauges. The chi route pattern is used as the path label to keep
// cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
