// Package metrics manages the Prometheus registry and the metric
// collector constructors for the data path.
//
// Metrics are opt-in: until InitRegistry is called, every constructor
// returns nil, and the data path components treat a nil collector as
// "collection disabled" with zero overhead. The concrete Prometheus
// implementations live in pkg/metrics/prometheus and register their
// constructors here at package initialization, which keeps this package
// free of import cycles with the instrumented packages.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide metrics registry, including the
// standard Go runtime and process collectors. Idempotent.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()

	if registry != nil {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry was called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process-wide registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}
