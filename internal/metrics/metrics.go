package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for flowboard.
//
// Recording helpers accept a nil receiver so components can run without
// metrics wired in.
type Metrics struct {
	// Graph metrics
	GraphMutations     *prometheus.CounterVec
	GeometryRecomputes *prometheus.CounterVec
	HistoryOperations  *prometheus.CounterVec

	// Collaboration metrics
	SyncEvents  *prometheus.CounterVec
	SyncReloads prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Persistence metrics
	StoreOperationDuration *prometheus.HistogramVec

	// Error metrics (by structured error code)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		GraphMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowboard_graph_mutations_total",
				Help: "Total number of effective graph store mutations",
			},
			[]string{"kind"},
		),
		GeometryRecomputes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowboard_geometry_recomputes_total",
				Help: "Total number of connector geometry recomputes",
			},
			[]string{"trigger"},
		),
		HistoryOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowboard_history_operations_total",
				Help: "Total number of command history operations",
			},
			[]string{"op"},
		),

		SyncEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowboard_sync_events_total",
				Help: "Total number of change notifications received",
			},
			[]string{"table", "event_type"},
		),
		SyncReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "flowboard_sync_reloads_total",
				Help: "Total number of full project reloads caused by remote changes",
			},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowboard_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"route", "code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowboard_http_request_duration_seconds",
				Help:    "HTTP API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		StoreOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowboard_store_operation_duration_seconds",
				Help:    "SQLite store operation duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"op"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowboard_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}
}

// GraphMutation counts one store mutation of the given kind.
func (m *Metrics) GraphMutation(kind string) {
	if m == nil {
		return
	}
	m.GraphMutations.WithLabelValues(kind).Inc()
}

// GeometryRecompute counts one connector recompute.
func (m *Metrics) GeometryRecompute(trigger string) {
	if m == nil {
		return
	}
	m.GeometryRecomputes.WithLabelValues(trigger).Inc()
}

// HistoryOperation counts record, undo and redo operations.
func (m *Metrics) HistoryOperation(op string) {
	if m == nil {
		return
	}
	m.HistoryOperations.WithLabelValues(op).Inc()
}

// SyncEvent counts one change notification.
func (m *Metrics) SyncEvent(table, eventType string) {
	if m == nil {
		return
	}
	m.SyncEvents.WithLabelValues(table, eventType).Inc()
}

// SyncReload counts one full reload.
func (m *Metrics) SyncReload() {
	if m == nil {
		return
	}
	m.SyncReloads.Inc()
}

// HTTPRequest records a finished API request.
func (m *Metrics) HTTPRequest(route, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// StoreOperation records the duration of one persistence operation.
func (m *Metrics) StoreOperation(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.StoreOperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// Error counts an error by its structured code.
func (m *Metrics) Error(code string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code).Inc()
}
