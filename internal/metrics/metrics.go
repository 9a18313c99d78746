// Package metrics exposes the Prometheus collectors for the HTTP layer and
// the scan pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reasons a scan was not recorded.
const (
	DropReasonQueueFull = "queue_full"
	DropReasonStopped   = "stopped"

	FailureStageGeo     = "geo"
	FailureStagePersist = "persist"
	FailureStagePanic   = "panic"
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

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	ScansRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scans_recorded_total",
			Help: "Scan records persisted",
		},
	)

	ScansFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_failed_total",
			Help: "Scan recording failures by pipeline stage",
		},
		[]string{"stage"},
	)

	ScansDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scans_dropped_total",
			Help: "Scans discarded before reaching a worker",
		},
		[]string{"reason"},
	)

	ScanRecordDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scan_record_duration_seconds",
			Help:    "Time spent classifying, locating and persisting one scan",
			Buckets: prometheus.DefBuckets,
		},
	)

	RedirectCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redirect_cache_hits_total",
			Help: "Short code lookups served from cache",
		},
	)

	RedirectCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redirect_cache_misses_total",
			Help: "Short code lookups that went to the database",
		},
	)
)

// Middleware records request count, latency and in-flight requests.
// Labels use the matched route template to keep cardinality low.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
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

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
