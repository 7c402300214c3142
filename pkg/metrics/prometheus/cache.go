// Package prometheus contains the Prometheus implementations of the data
// path metric interfaces. Importing it registers the constructors with
// pkg/metrics; nothing here is used directly.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/driftfs/pkg/cache"
	"github.com/marmos91/driftfs/pkg/metrics"
)

func init() {
	metrics.RegisterCacheMetricsConstructor(NewCacheMetrics)
}

type cacheMetrics struct {
	lookups        *prometheus.CounterVec
	evictions      prometheus.Counter
	evictedBytes   prometheus.Counter
	residentBytes  prometheus.Gauge
	residentChunks prometheus.Gauge
}

// NewCacheMetrics creates a Prometheus-backed cache.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() cache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &cacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_cache_lookups_total",
				Help: "Chunk cache lookups by outcome",
			},
			[]string{"outcome"}, // "hit", "miss"
		),
		evictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "driftfs_cache_evictions_total",
				Help: "Chunks evicted from the cache",
			},
		),
		evictedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "driftfs_cache_evicted_bytes_total",
				Help: "Bytes evicted from the cache",
			},
		),
		residentBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "driftfs_cache_resident_bytes",
				Help: "Bytes currently resident in the chunk cache",
			},
		),
		residentChunks: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "driftfs_cache_resident_chunks",
				Help: "Chunks currently resident in the chunk cache",
			},
		),
	}
}

func (m *cacheMetrics) RecordHit() {
	m.lookups.WithLabelValues("hit").Inc()
}

func (m *cacheMetrics) RecordMiss() {
	m.lookups.WithLabelValues("miss").Inc()
}

func (m *cacheMetrics) RecordEviction(bytes uint64) {
	m.evictions.Inc()
	m.evictedBytes.Add(float64(bytes))
}

func (m *cacheMetrics) RecordResident(bytes uint64, chunks int) {
	m.residentBytes.Set(float64(bytes))
	m.residentChunks.Set(float64(chunks))
}
