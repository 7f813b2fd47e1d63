package gateway

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	gbSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gb_submissions_total",
		Help: "Total submissions by final outcome.",
	}, []string{"outcome"})

	gbLedgerEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gb_ledger_entries_total",
		Help: "Total guestbook ledger entries appended.",
	})

	gbRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gb_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	gbRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gb_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		gbRequestsTotal.WithLabelValues(method, path, status).Inc()
		gbRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordSubmission records a submission reaching a terminal outcome.
func RecordSubmission(outcome string) {
	gbSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordLedgerAppend records a settled ledger entry.
func RecordLedgerAppend() {
	gbLedgerEntriesTotal.Inc()
}
