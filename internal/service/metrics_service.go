package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

const metricsNamespace = "campus_portal"

// MetricsService owns the Prometheus registry and keeps a few atomic
// counters so the admin summary does not need to scrape itself.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpLatency    *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	cacheLatency   *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	onlineSessions *prometheus.GaugeVec
	heartbeats     *prometheus.CounterVec
	pruned         prometheus.Counter
	exportJobs     *prometheus.CounterVec
	realtimeEvents *prometheus.CounterVec

	stats struct {
		cacheHits      atomic.Uint64
		cacheMisses    atomic.Uint64
		requests       atomic.Uint64
		requestNanos   atomic.Uint64
		heartbeatsOK   atomic.Uint64
		heartbeatsFail atomic.Uint64
		pruned         atomic.Uint64
		onlineStudents atomic.Int64
	}
}

// NewMetricsService builds a private registry with the portal collectors.
func NewMetricsService() *MetricsService {
	m := &MetricsService{registry: prometheus.NewRegistry()}

	m.httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route template.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "route", "status"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route template.",
	}, []string{"method", "route", "status"})
	m.cacheLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Redis cache round trips.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05},
	}, []string{"op"})
	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache reads by result.",
	}, []string{"result"})
	m.onlineSessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "presence",
		Name:      "active_sessions",
		Help:      "Sessions seen within the staleness window, by page.",
	}, []string{"page"})
	m.heartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "presence",
		Name:      "heartbeats_total",
		Help:      "Presence heartbeats received, by outcome.",
	}, []string{"result"})
	m.pruned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "presence",
		Name:      "pruned_sessions_total",
		Help:      "Stale presence rows removed.",
	})
	m.exportJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "catalog",
		Name:      "export_jobs_total",
		Help:      "Catalog export jobs by terminal status.",
	}, []string{"status"})
	m.realtimeEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "realtime",
		Name:      "events_total",
		Help:      "Change feed events published, by topic.",
	}, []string{"topic"})

	m.registry.MustRegister(
		m.httpLatency, m.httpRequests,
		m.cacheLatency, m.cacheLookups,
		m.onlineSessions, m.heartbeats, m.pruned,
		m.exportJobs, m.realtimeEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: metricsNamespace}),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the exposition format. A nil service answers 503.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request under its route template.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpLatency.WithLabelValues(method, route, code).Observe(duration.Seconds())
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.stats.requests.Add(1)
	m.stats.requestNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache read and whether it hit.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		m.stats.cacheHits.Add(1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	m.stats.cacheMisses.Add(1)
}

// ObserveCacheWrite records a cache write round trip.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// RecordHeartbeat counts one heartbeat by outcome.
func (m *MetricsService) RecordHeartbeat(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.heartbeats.WithLabelValues("ok").Inc()
		m.stats.heartbeatsOK.Add(1)
		return
	}
	m.heartbeats.WithLabelValues("error").Inc()
	m.stats.heartbeatsFail.Add(1)
}

// RecordPruned adds n evicted presence rows.
func (m *MetricsService) RecordPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
	m.stats.pruned.Add(uint64(n))
}

// SetOnline publishes the live count for page.
func (m *MetricsService) SetOnline(page string, count int) {
	if m == nil {
		return
	}
	m.onlineSessions.WithLabelValues(page).Set(float64(count))
	if page == models.PageStudent {
		m.stats.onlineStudents.Store(int64(count))
	}
}

// RecordExportJob counts a terminal export status.
func (m *MetricsService) RecordExportJob(status models.ExportStatus) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(string(status)).Inc()
}

// RecordRealtimeEvent counts a published change feed event.
func (m *MetricsService) RecordRealtimeEvent(topic string) {
	if m == nil {
		return
	}
	m.realtimeEvents.WithLabelValues(topic).Inc()
}

// Snapshot returns the counters behind the admin summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	out := models.SystemMetrics{
		CacheHits:         m.stats.cacheHits.Load(),
		CacheMisses:       m.stats.cacheMisses.Load(),
		RequestsTotal:     m.stats.requests.Load(),
		OnlineStudents:    int(m.stats.onlineStudents.Load()),
		HeartbeatsTotal:   m.stats.heartbeatsOK.Load(),
		HeartbeatFailures: m.stats.heartbeatsFail.Load(),
		PrunedSessions:    m.stats.pruned.Load(),
		Goroutines:        runtime.NumGoroutine(),
		GeneratedAt:       time.Now().UTC(),
	}
	if lookups := out.CacheHits + out.CacheMisses; lookups > 0 {
		out.CacheHitRatio = float64(out.CacheHits) / float64(lookups)
	}
	if out.RequestsTotal > 0 {
		nanos := m.stats.requestNanos.Load()
		out.AverageRequestDurationMs = float64(nanos) / float64(out.RequestsTotal) / float64(time.Millisecond)
	}
	return out
}
