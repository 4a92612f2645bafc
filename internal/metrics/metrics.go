// Package metrics exposes Prometheus collectors for the fraud services.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	datasetRows                *prometheus.GaugeVec
	modelInfo                  *prometheus.GaugeVec
	trackingRunsTotal          *prometheus.CounterVec
	rateLimitedTotal           *prometheus.CounterVec
	upstreamErrorsTotal        *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		datasetRows = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fraud_dataset_rows",
				Help: "Rows in the loaded dataset, labeled by class.",
			},
			[]string{"class"},
		)

		modelInfo = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fraud_model_info",
				Help: "Always 1 for the currently served model, labeled by kind and version.",
			},
			[]string{"kind", "version"},
		)

		trackingRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_tracking_runs_total",
				Help: "Total number of completed training runs, labeled by status.",
			},
			[]string{"status"},
		)

		rateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_rate_limited_requests_total",
				Help: "Requests rejected by the rate limiter, labeled by route.",
			},
			[]string{"route"},
		)

		upstreamErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fraud_upstream_errors_total",
				Help: "Failed calls from the dashboard to backing services, labeled by service.",
			},
			[]string{"service"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetDatasetRows records the legitimate and fraud row counts.
func SetDatasetRows(legit, fraud int) {
	datasetRows.WithLabelValues("0").Set(float64(legit))
	datasetRows.WithLabelValues("1").Set(float64(fraud))
}

// SetModelInfo marks the served model.
func SetModelInfo(kind, version string) {
	modelInfo.Reset()
	modelInfo.WithLabelValues(kind, version).Set(1)
}

// ObserveRun counts a finished training run.
func ObserveRun(status string) {
	trackingRunsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimited counts a throttled request.
func ObserveRateLimited(route string) {
	rateLimitedTotal.WithLabelValues(route).Inc()
}

// ObserveUpstreamError counts a failed upstream call.
func ObserveUpstreamError(service string) {
	upstreamErrorsTotal.WithLabelValues(service).Inc()
}
