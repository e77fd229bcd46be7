package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farhanpavel/cognit-api/internal/notification"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	transitions     *prometheus.CounterVec
	bagsCredited    prometheus.Counter
	bagsClamped     prometheus.Counter
	dispatch        *prometheus.CounterVec
	streamSessions  prometheus.Histogram

	cacheHitCount   uint64
	cacheMissCount  uint64
	requestCount    uint64
	transitionCount uint64
	conflictCount   uint64
	clampCount      uint64
	droppedCount    uint64
}

// MetricsSnapshot summarises counters for the health endpoint.
type MetricsSnapshot struct {
	RequestsTotal     uint64    `json:"requestsTotal"`
	CacheHitRatio     float64   `json:"cacheHitRatio"`
	Transitions       uint64    `json:"transitions"`
	StateConflicts    uint64    `json:"stateConflicts"`
	ClampEvents       uint64    `json:"clampEvents"`
	DroppedDispatches uint64    `json:"droppedDispatches"`
	Goroutines        int       `json:"goroutines"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "donation_transitions_total",
		Help: "Lifecycle transitions by operation and outcome",
	}, []string{"operation", "outcome"})

	bagsCredited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "donation_bags_credited_total",
		Help: "Blood bags credited to requests by confirmations",
	})

	bagsClamped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "donation_bags_clamped_total",
		Help: "Donated bags beyond the remaining need of the request",
	})

	dispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_dispatch_total",
		Help: "Notification dispatch attempts by event kind and outcome",
	}, []string{"kind", "outcome"})

	streamSessions := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "status_stream_session_seconds",
		Help:    "Lifetime of websocket status streams",
		Buckets: []float64{1, 10, 60, 300, 900, 3600},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		transitions, bagsCredited, bagsClamped, dispatch, streamSessions, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		transitions:     transitions,
		bagsCredited:    bagsCredited,
		bagsClamped:     bagsClamped,
		dispatch:        dispatch,
		streamSessions:  streamSessions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// ObserveStreamSession records how long a status stream stayed open.
func (m *MetricsService) ObserveStreamSession(duration time.Duration) {
	if m == nil {
		return
	}
	m.streamSessions.Observe(duration.Seconds())
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveTransition counts a lifecycle operation by outcome.
func (m *MetricsService) ObserveTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
	atomic.AddUint64(&m.transitionCount, 1)
	if outcome == outcomeConflict {
		atomic.AddUint64(&m.conflictCount, 1)
	}
}

// ObserveConfirmation records credited bags and any excess removed by the clamp.
func (m *MetricsService) ObserveConfirmation(donated, applied int) {
	if m == nil {
		return
	}
	m.bagsCredited.Add(float64(applied))
	if excess := donated - applied; excess > 0 {
		m.bagsClamped.Add(float64(excess))
		atomic.AddUint64(&m.clampCount, 1)
	}
}

// ObserveDispatch counts notification deliveries by kind and outcome.
func (m *MetricsService) ObserveDispatch(kind, outcome string) {
	if m == nil {
		return
	}
	m.dispatch.WithLabelValues(kind, outcome).Inc()
	if outcome == notification.OutcomeDropped {
		atomic.AddUint64(&m.droppedCount, 1)
	}
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	return MetricsSnapshot{
		RequestsTotal:     atomic.LoadUint64(&m.requestCount),
		CacheHitRatio:     cacheRatio,
		Transitions:       atomic.LoadUint64(&m.transitionCount),
		StateConflicts:    atomic.LoadUint64(&m.conflictCount),
		ClampEvents:       atomic.LoadUint64(&m.clampCount),
		DroppedDispatches: atomic.LoadUint64(&m.droppedCount),
		Goroutines:        runtime.NumGoroutine(),
		GeneratedAt:       time.Now().UTC(),
	}
}
