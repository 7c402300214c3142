package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/driftfs/pkg/metrics"
	"github.com/marmos91/driftfs/pkg/stream"
)

func init() {
	metrics.RegisterStreamMetricsConstructor(NewStreamMetrics)
}

type streamMetrics struct {
	reads          prometheus.Counter
	readBytes      prometheus.Counter
	patternChanges *prometheus.CounterVec
	prefetchChunks prometheus.Counter
	objectChanged  prometheus.Counter
}

// NewStreamMetrics creates a Prometheus-backed stream.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStreamMetrics() stream.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &streamMetrics{
		reads: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "driftfs_stream_reads_total",
				Help: "Completed stream reads",
			},
		),
		readBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "driftfs_stream_read_bytes_total",
				Help: "Bytes returned to readers",
			},
		),
		patternChanges: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_stream_pattern_changes_total",
				Help: "Stream access pattern reclassifications",
			},
			[]string{"pattern"}, // "sequential", "random"
		),
		prefetchChunks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "driftfs_stream_prefetch_chunks_total",
				Help: "Chunks queued for read-ahead",
			},
		),
		objectChanged: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "driftfs_stream_object_changed_total",
				Help: "Streams failed because the object changed upstream",
			},
		),
	}
}

func (m *streamMetrics) RecordRead(bytes uint64) {
	m.reads.Inc()
	m.readBytes.Add(float64(bytes))
}

func (m *streamMetrics) RecordPattern(p stream.Pattern) {
	m.patternChanges.WithLabelValues(p.String()).Inc()
}

func (m *streamMetrics) RecordPrefetchIssued(chunks uint32) {
	m.prefetchChunks.Add(float64(chunks))
}

func (m *streamMetrics) RecordObjectChanged() {
	m.objectChanged.Inc()
}
