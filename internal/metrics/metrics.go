// Package metrics exposes Prometheus collectors for the housing crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcome labels.
const (
	FetchOK      = "ok"
	FetchHTTP    = "http_error"
	FetchBlocked = "blocked"
	FetchError   = "error"
)

var (
	fetchesTotal          *prometheus.CounterVec
	fetchDurationSeconds  prometheus.Histogram
	retriesTotal          *prometheus.CounterVec
	listingsStoredTotal   *prometheus.CounterVec
	listingsSkippedTotal  *prometheus.CounterVec
	serversTotal          *prometheus.CounterVec
	tasksInFlight         prometheus.Gauge
	rateLimitDelaySeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "housecrawler_fetches_total",
				Help: "Total number of page fetches, labeled by page kind and outcome.",
			},
			[]string{"page", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "housecrawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "housecrawler_retries_total",
				Help: "Retry attempts, labeled by result (retry or exhausted).",
			},
			[]string{"result"},
		)

		listingsStoredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "housecrawler_listings_stored_total",
				Help: "Listings upserted, labeled by family.",
			},
			[]string{"family"},
		)

		listingsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "housecrawler_listings_skipped_total",
				Help: "Listings dropped before or during persistence, labeled by reason.",
			},
			[]string{"reason"},
		)

		serversTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "housecrawler_servers_total",
				Help: "Worlds processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		tasksInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "housecrawler_tasks_in_flight",
				Help: "Number of batch tasks currently running.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "housecrawler_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one fetch outcome and its latency.
func ObserveFetch(page, outcome string, duration time.Duration) {
	Init()
	fetchesTotal.WithLabelValues(page, outcome).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry() {
	Init()
	retriesTotal.WithLabelValues("retry").Inc()
}

// ObserveExhausted counts a retry budget running out.
func ObserveExhausted() {
	Init()
	retriesTotal.WithLabelValues("exhausted").Inc()
}

// ObserveListingStored increments the stored counter for a family.
func ObserveListingStored(family string) {
	Init()
	listingsStoredTotal.WithLabelValues(family).Inc()
}

// ObserveListingSkipped increments the skipped counter for a reason.
func ObserveListingSkipped(reason string) {
	Init()
	listingsSkippedTotal.WithLabelValues(reason).Inc()
}

// ObserveServer counts a processed world.
func ObserveServer(outcome string) {
	Init()
	serversTotal.WithLabelValues(outcome).Inc()
}

// IncTasksInFlight increments the in-flight task gauge.
func IncTasksInFlight() {
	Init()
	tasksInFlight.Inc()
}

// DecTasksInFlight decrements the in-flight task gauge.
func DecTasksInFlight() {
	Init()
	tasksInFlight.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}
