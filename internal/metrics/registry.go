package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Default is the process-wide metrics instance registered on the
	// default Prometheus registerer.
	Default *Metrics
	once    sync.Once
)

// InitDefault initializes the default metrics instance.
// This should be called once at application startup.
func InitDefault() *Metrics {
	once.Do(func() {
		Default = NewMetrics(prometheus.DefaultRegisterer)
	})
	return Default
}

// GetDefault returns the default metrics instance, initializing it first
// when needed.
func GetDefault() *Metrics {
	if Default == nil {
		return InitDefault()
	}
	return Default
}

// NewRegistry creates an isolated registry with its own metrics. The server
// uses one per instance so tests can run several servers side by side.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, NewMetrics(reg)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a specific registry.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Reset clears the default metrics instance (useful for testing)
func Reset() {
	Default = nil
	once = sync.Once{}
}
