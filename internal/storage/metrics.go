package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the storage layer. A nil *Metrics disables recording,
// which keeps unit tests free of registry plumbing.
type Metrics struct {
	queryDuration   *prometheus.HistogramVec
	queryErrors     *prometheus.CounterVec
	queriesInflight prometheus.Gauge

	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheEvictions   prometheus.Counter
	cacheMemoryBytes prometheus.Gauge
}

// NewMetrics registers the storage collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tributary",
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Duration of graph queries by type and query name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type", "query"}),
		queryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tributary",
			Subsystem: "storage",
			Name:      "query_errors_total",
			Help:      "Total failed graph queries by type and query name.",
		}, []string{"type", "query"}),
		queriesInflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tributary",
			Subsystem: "storage",
			Name:      "queries_inflight",
			Help:      "Number of graph queries currently executing.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tributary",
			Subsystem: "storage",
			Name:      "query_cache_hits_total",
			Help:      "Total read queries served from the cache.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tributary",
			Subsystem: "storage",
			Name:      "query_cache_misses_total",
			Help:      "Total read queries that missed the cache.",
		}),
		cacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tributary",
			Subsystem: "storage",
			Name:      "query_cache_evictions_total",
			Help:      "Total cache entries evicted by size, TTL, or invalidation.",
		}),
		cacheMemoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tributary",
			Subsystem: "storage",
			Name:      "query_cache_memory_bytes",
			Help:      "Estimated memory held by cached query results.",
		}),
	}
}

func (m *Metrics) observeQuery(queryType, name string) func(error) {
	if m == nil {
		return func(error) {}
	}
	m.queriesInflight.Inc()
	start := time.Now()
	return func(err error) {
		m.queriesInflight.Dec()
		m.queryDuration.WithLabelValues(queryType, name).Observe(time.Since(start).Seconds())
		if err != nil {
			m.queryErrors.WithLabelValues(queryType, name).Inc()
		}
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) cacheEvicted() {
	if m != nil {
		m.cacheEvictions.Inc()
	}
}

func (m *Metrics) setCacheMemory(bytes int64) {
	if m != nil {
		m.cacheMemoryBytes.Set(float64(bytes))
	}
}
