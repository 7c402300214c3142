package metrics

import (
	"github.com/marmos91/driftfs/pkg/fetcher"
	s3store "github.com/marmos91/driftfs/pkg/store/object/s3"
	"github.com/marmos91/driftfs/pkg/stream"
)

// NewFetcherMetrics creates a Prometheus-backed fetcher.Metrics, or nil
// when metrics are disabled.
func NewFetcherMetrics() fetcher.Metrics {
	if !IsEnabled() || newPrometheusFetcherMetrics == nil {
		return nil
	}
	return newPrometheusFetcherMetrics()
}

// NewStreamMetrics creates a Prometheus-backed stream.Metrics, or nil
// when metrics are disabled.
func NewStreamMetrics() stream.Metrics {
	if !IsEnabled() || newPrometheusStreamMetrics == nil {
		return nil
	}
	return newPrometheusStreamMetrics()
}

// NewS3Metrics creates a Prometheus-backed s3.Metrics, or nil when
// metrics are disabled.
func NewS3Metrics() s3store.Metrics {
	if !IsEnabled() || newPrometheusS3Metrics == nil {
		return nil
	}
	return newPrometheusS3Metrics()
}

var (
	newPrometheusFetcherMetrics func() fetcher.Metrics
	newPrometheusStreamMetrics  func() stream.Metrics
	newPrometheusS3Metrics      func() s3store.Metrics
)

// RegisterFetcherMetricsConstructor registers the Prometheus fetcher
// metrics constructor. Called by pkg/metrics/prometheus.
func RegisterFetcherMetricsConstructor(constructor func() fetcher.Metrics) {
	newPrometheusFetcherMetrics = constructor
}

// RegisterStreamMetricsConstructor registers the Prometheus stream
// metrics constructor. Called by pkg/metrics/prometheus.
func RegisterStreamMetricsConstructor(constructor func() stream.Metrics) {
	newPrometheusStreamMetrics = constructor
}

// RegisterS3MetricsConstructor registers the Prometheus object store
// metrics constructor. Called by pkg/metrics/prometheus.
func RegisterS3MetricsConstructor(constructor func() s3store.Metrics) {
	newPrometheusS3Metrics = constructor
}
