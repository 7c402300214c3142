package s3

import "time"

// Metrics is the consumer-side interface for S3 client instrumentation.
//
// A nil Metrics disables collection with zero overhead; the client guards
// every call. The Prometheus implementation lives in
// pkg/metrics/prometheus.
type Metrics interface {
	// ObserveFetch records a completed range fetch: bytes received,
	// duration, and outcome.
	ObserveFetch(bytes int64, duration time.Duration, err error)

	// ObserveResolve records a Resolve (HeadObject) call.
	ObserveResolve(duration time.Duration, err error)

	// RecordRetry records a retry of a transient failure.
	RecordRetry()
}

func (c *Client) observeFetch(bytes int64, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObserveFetch(bytes, time.Since(start), err)
	}
}

func (c *Client) observeResolve(start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObserveResolve(time.Since(start), err)
	}
}

func (c *Client) recordRetry() {
	if c.metrics != nil {
		c.metrics.RecordRetry()
	}
}
