package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Discovery
	DiscoveryCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yumcup_discovery_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"result"}, // "hit", "miss", "evicted", "error"
	)

	DiscoveryPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yumcup_discovery_pages_fetched_total",
			Help: "Local search pages fetched",
		},
	)

	DiscoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yumcup_discovery_duration_seconds",
			Help:    "Time to produce a candidate set",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Enrichment
	EnrichmentTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yumcup_enrichment_tasks_total",
			Help: "Enrichment tasks by outcome",
		},
		[]string{"outcome"}, // "enriched", "empty", "error", "timeout"
	)

	WorkerPoolQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yumcup_worker_pool_queued",
			Help: "Tasks submitted to the worker pool and not yet finished",
		},
	)

	// Upstream APIs
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yumcup_upstream_requests_total",
			Help: "Upstream HTTP requests by api and status code",
		},
		[]string{"api", "status"},
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yumcup_upstream_retries_total",
			Help: "Upstream retry attempts",
		},
		[]string{"api"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yumcup_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yumcup_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Persistence
	PlaceUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yumcup_place_upserts_total",
			Help: "Places handled by SaveOrUpdate by action",
		},
		[]string{"action"}, // "inserted", "refreshed", "unchanged", "race"
	)

	// Games
	GamesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yumcup_games_started_total",
			Help: "Games started",
		},
	)

	GamesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yumcup_games_completed_total",
			Help: "Games completed",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yumcup_http_requests_total",
			Help: "HTTP requests by route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yumcup_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func RecordUpstream(api string, status int) {
	UpstreamRequests.WithLabelValues(api, strconv.Itoa(status)).Inc()
}

func RecordHTTP(method, route string, status int, elapsed time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
