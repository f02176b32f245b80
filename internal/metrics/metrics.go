// Package metrics exposes Prometheus collectors for the pricing pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeJobsTotal         *prometheus.CounterVec
	scrapeDurationSeconds   *prometheus.HistogramVec
	observationsTotal       *prometheus.CounterVec
	triggerRequestsTotal    *prometheus.CounterVec
	schedulerRunsTotal      prometheus.Counter
	schedulerStaleItems     prometheus.Gauge
	aggregatorUpdatesTotal  *prometheus.CounterVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_scrape_jobs_total",
				Help: "Total number of scrape jobs processed, labeled by source and outcome.",
			},
			[]string{"source", "status"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewatch_scrape_duration_seconds",
				Help:    "Histogram of source adapter invocation latencies.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"source"},
		)

		observationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_observations_total",
				Help: "Total price observations recorded, labeled by source.",
			},
			[]string{"source"},
		)

		triggerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_trigger_requests_total",
				Help: "Manual rescrape requests, labeled by type and outcome.",
			},
			[]string{"type", "status"},
		)

		schedulerRunsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewatch_scheduler_runs_total",
				Help: "Total scheduler invocations.",
			},
		)

		schedulerStaleItems = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricewatch_scheduler_stale_items",
				Help: "Stale items discovered by the most recent scheduler pass.",
			},
		)

		aggregatorUpdatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_aggregator_updates_total",
				Help: "Aggregator item refreshes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrapeJob increments the job counter for the given source/status.
func ObserveScrapeJob(source, status string) {
	scrapeJobsTotal.WithLabelValues(source, status).Inc()
}

// ObserveScrapeDuration records one adapter invocation duration.
func ObserveScrapeDuration(source string, duration time.Duration) {
	scrapeDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveObservations adds recorded observation counts for a source.
func ObserveObservations(source string, count int) {
	if count > 0 {
		observationsTotal.WithLabelValues(source).Add(float64(count))
	}
}

// ObserveTrigger increments the manual trigger counter.
func ObserveTrigger(requestType, status string) {
	triggerRequestsTotal.WithLabelValues(requestType, status).Inc()
}

// ObserveSchedulerRun records one scheduler pass and its discovery count.
func ObserveSchedulerRun(staleItems int) {
	schedulerRunsTotal.Inc()
	schedulerStaleItems.Set(float64(staleItems))
}

// ObserveAggregatorUpdate increments the aggregator refresh counter.
func ObserveAggregatorUpdate(outcome string) {
	aggregatorUpdatesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route, code string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, code).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
