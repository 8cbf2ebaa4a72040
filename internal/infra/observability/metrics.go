package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the dashboard service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	remoteErrors      *prometheus.CounterVec
	refetches         *prometheus.CounterVec
	refetchFailures   *prometheus.CounterVec
	staleDrops        *prometheus.CounterVec
	liveSubscriptions *prometheus.GaugeVec
	snapshotsDelivered *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dash_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		remoteErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dash_remote_errors_total",
				Help: "Total errors from the Supabase backend.",
			},
			[]string{"service"},
		),
		refetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dash_refetches_total",
				Help: "Full re-lists triggered by change notifications.",
			},
			[]string{"table"},
		),
		refetchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dash_refetch_failures_total",
				Help: "Refetches that failed; previous snapshot kept.",
			},
			[]string{"table"},
		),
		staleDrops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dash_stale_refetches_dropped_total",
				Help: "Refetch results discarded because a newer one superseded them.",
			},
			[]string{"table"},
		),
		liveSubscriptions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dash_live_subscriptions",
				Help: "Currently open live subscriptions.",
			},
			[]string{"table"},
		),
		snapshotsDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dash_snapshots_delivered_total",
				Help: "Snapshots delivered to subscribers.",
			},
			[]string{"table"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dash_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dash_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// MetricsMiddleware times every request under its routed pattern, so
// /v1/events/{eventId} is one series, not one per event id.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			operation := r.Method + " unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					operation = r.Method + " " + pattern
				}
			}
			m.RecordRequestDuration(operation, time.Since(start))
		})
	}
}

// IncrRemoteError increments the backend error counter.
func (m *Metrics) IncrRemoteError(service string) {
	m.remoteErrors.WithLabelValues(service).Inc()
}

// IncrRefetch counts a change-notification-triggered re-list.
func (m *Metrics) IncrRefetch(table string) {
	m.refetches.WithLabelValues(table).Inc()
}

// IncrRefetchFailure counts a failed re-list.
func (m *Metrics) IncrRefetchFailure(table string) {
	m.refetchFailures.WithLabelValues(table).Inc()
}

// IncrStaleDrop counts a superseded refetch result that was discarded.
func (m *Metrics) IncrStaleDrop(table string) {
	m.staleDrops.WithLabelValues(table).Inc()
}

// SubscriptionOpened / SubscriptionClosed track the live gauge.
func (m *Metrics) SubscriptionOpened(table string) {
	m.liveSubscriptions.WithLabelValues(table).Inc()
}

func (m *Metrics) SubscriptionClosed(table string) {
	m.liveSubscriptions.WithLabelValues(table).Dec()
}

// IncrSnapshotDelivered counts a snapshot handed to a subscriber.
func (m *Metrics) IncrSnapshotDelivered(table string) {
	m.snapshotsDelivered.WithLabelValues(table).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// SyncSnapshot is the operational summary served by GET /v1/metrics/sync.
type SyncSnapshot struct {
	Refetches        float64 `json:"refetches"`
	RefetchFailures  float64 `json:"refetch_failures"`
	StaleDropped     float64 `json:"stale_dropped"`
	Snapshots        float64 `json:"snapshots_delivered"`
	FailureRate      float64 `json:"failure_rate"`
	ProfileCacheHits float64 `json:"profile_cache_hit_rate"`
}

// GetSyncSnapshot aggregates the synchronization counters across the
// four tables into a single operational summary.
func (m *Metrics) GetSyncSnapshot() *SyncSnapshot {
	tables := []string{"users", "events", "notifications", "group_meta"}

	var refetches, failures, stale, snapshots float64
	for _, t := range tables {
		refetches += getCounterValue(m.refetches, t)
		failures += getCounterValue(m.refetchFailures, t)
		stale += getCounterValue(m.staleDrops, t)
		snapshots += getCounterValue(m.snapshotsDelivered, t)
	}

	failureRate := float64(0)
	if refetches > 0 {
		failureRate = failures / refetches
	}

	hits := getCounterValue(m.cacheHits, "profile")
	misses := getCounterValue(m.cacheMisses, "profile")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &SyncSnapshot{
		Refetches:        refetches,
		RefetchFailures:  failures,
		StaleDropped:     stale,
		Snapshots:        snapshots,
		FailureRate:      failureRate,
		ProfileCacheHits: hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
