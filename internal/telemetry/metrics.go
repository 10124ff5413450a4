// Package telemetry provides application-level observability for the QR API gate.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<QRG_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns the Prometheus text exposition format
// and is intended to be scraped every 15–60 seconds. It is NOT served by the Gin
// router, so it sits behind neither the API key gate nor the rate limiter.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Gate decision counters: auth failures by reason, rate limit verdicts by source and outcome
//   - Counter store health: fallback activations, quota denials
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/keys/:id) rather than
// the raw request URL to prevent unbounded label cardinality from user-supplied
// path segments. Gate metrics are labelled by small closed enums (reason, source,
// outcome) — never by key hash or user ID.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Gate metrics — recorded by the credential validator, rate limiter, and quota tracker.
//
// AuthFailuresTotal is labelled by failure reason: "malformed", "invalid",
// "revoked", "expired". An increase in "invalid" per source IP is a useful
// brute-force signal when correlated with access logs.
//
// RateLimitChecksTotal is labelled by {source, outcome} where source is "redis"
// or "memory" and outcome is "allowed" or "denied". A sustained non-zero rate of
// source="memory" means the shared counter store is down and limits are being
// enforced per-instance only.
//
// Example PromQL queries:
//   - Denial rate:            sum(rate(ratelimit_checks_total{outcome="denied"}[5m]))
//   - Fallback in effect:     sum(rate(ratelimit_checks_total{source="memory"}[5m])) > 0
//   - Auth failure breakdown: sum by (reason) (rate(auth_failures_total[15m]))
var (
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total number of API key validation failures, by reason.",
		},
		[]string{"reason"},
	)

	RateLimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Total number of rate limit checks, by backing store and outcome.",
		},
		[]string{"source", "outcome"},
	)

	CounterStoreFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "counter_store_fallbacks_total",
			Help: "Total number of operations served by the in-process fallback counter because the shared store was unavailable.",
		},
	)

	QuotaExceededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_exceeded_total",
			Help: "Total number of requests denied because the monthly quota was exhausted.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
