package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	watchEvents     prometheus.Counter
	orderingOps     *prometheus.CounterVec
	orderingRetries prometheus.Counter
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
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

	watchEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watch_events_total",
		Help: "Total video watch events recorded",
	})

	orderingOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordering_operations_total",
		Help: "Total sibling ordering operations by kind",
	}, []string{"scope", "operation"})

	orderingRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ordering_conflicts_total",
		Help: "Ordering operations rejected by concurrent modification",
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "completion_cache_hit_ratio",
		Help: "Ratio of completion cache hits to total lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "completion_cache_hits_total",
		Help: "Total completion cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "completion_cache_misses_total",
		Help: "Total completion cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, watchEvents, orderingOps, orderingRetries, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		watchEvents:     watchEvents,
		orderingOps:     orderingOps,
		orderingRetries: orderingRetries,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordWatchEvent counts an accepted video watch report.
func (m *MetricsService) RecordWatchEvent() {
	if m == nil {
		return
	}
	m.watchEvents.Inc()
}

// RecordOrderingOperation counts one ordering mutation, e.g. ("module",
// "move") or ("video", "reorder").
func (m *MetricsService) RecordOrderingOperation(scope, operation string) {
	if m == nil {
		return
	}
	m.orderingOps.WithLabelValues(scope, operation).Inc()
}

// RecordOrderingConflict counts a concurrent modification rejection.
func (m *MetricsService) RecordOrderingConflict() {
	if m == nil {
		return
	}
	m.orderingRetries.Inc()
}

// RecordCacheOperation records completion cache hit/miss and updates the ratio.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}
