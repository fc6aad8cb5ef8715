// Package middleware contains HTTP middleware for the API server
package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration in seconds partitioned by method, route, and status code
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// In-flight HTTP requests
	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// SweepRuns counts dispatcher sweeps by outcome ("ok", "error", "disabled")
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_sweep_runs_total",
			Help: "Total dispatcher sweeps by outcome",
		},
		[]string{"outcome"},
	)

	// PayoutsDispatched counts withdrawals accepted by the processor
	PayoutsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payouts_dispatched_total",
			Help: "Total withdrawals submitted and accepted by the processor",
		},
	)

	// PayoutsRejected counts withdrawals the processor rejected during dispatch
	PayoutsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payouts_rejected_total",
			Help: "Total withdrawals rejected by the processor during dispatch",
		},
	)
)

// Metrics returns a Fiber v3 middleware that records basic Prometheus metrics.
// Labels are kept low-cardinality by using the matched route path when available.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path // Use route template to avoid high cardinality
		}

		labels := prometheus.Labels{
			"method": c.Method(),
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		return err
	}
}
