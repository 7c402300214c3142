package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/driftfs/pkg/metrics"
	s3store "github.com/marmos91/driftfs/pkg/store/object/s3"
)

func init() {
	metrics.RegisterS3MetricsConstructor(NewS3Metrics)
}

type s3Metrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	fetchedBytes  prometheus.Counter
	retries       prometheus.Counter
}

// NewS3Metrics creates a Prometheus-backed s3.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewS3Metrics() s3store.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &s3Metrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_s3_operations_total",
				Help: "S3 operations by type and status",
			},
			[]string{"operation", "status"}, // operation: "fetch", "resolve"; status: "ok", "error"
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "driftfs_s3_operation_duration_milliseconds",
				Help: "S3 operation duration in milliseconds",
				Buckets: []float64{
					10,    // HeadObject fast path
					25,    //
					50,    //
					100,   //
					250,   //
					500,   //
					1000,  //
					2500,  // large range fetches
					5000,  //
					10000, //
				},
			},
			[]string{"operation"},
		),
		fetchedBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "driftfs_s3_fetched_bytes_total",
				Help: "Bytes fetched from S3",
			},
		),
		retries: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "driftfs_s3_retries_total",
				Help: "Retried transient S3 failures",
			},
		),
	}
}

func (m *s3Metrics) ObserveFetch(bytes int64, duration time.Duration, err error) {
	m.operations.WithLabelValues("fetch", status(err)).Inc()
	m.duration.WithLabelValues("fetch").Observe(float64(duration.Milliseconds()))
	if err == nil && bytes > 0 {
		m.fetchedBytes.Add(float64(bytes))
	}
}

func (m *s3Metrics) ObserveResolve(duration time.Duration, err error) {
	m.operations.WithLabelValues("resolve", status(err)).Inc()
	m.duration.WithLabelValues("resolve").Observe(float64(duration.Milliseconds()))
}

func (m *s3Metrics) RecordRetry() {
	m.retries.Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
