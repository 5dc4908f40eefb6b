// Package telemetry wires OpenTelemetry tracing and OTLP-exported metrics
// for the flowboard CLI and server.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/felixgeelhaar/flowboard"

var (
	globalMeterProvider   metric.MeterProvider
	globalMetricsShutdown func(context.Context) error
	meterMu               sync.RWMutex
	instruments           *Metrics
	metricsOnce           sync.Once
)

// Metrics holds the OTel instruments. Server-side counters live in the
// Prometheus registry instead; these cover short-lived CLI processes that
// cannot be scraped.
type Metrics struct {
	CommandCounter      metric.Int64Counter
	CommandDuration     metric.Float64Histogram
	CommandErrorCounter metric.Int64Counter

	GestureCounter metric.Int64Counter
}

// InitMetricsProvider installs an OTLP metrics pipeline when telemetry is
// enabled with an endpoint, and the global noop provider otherwise.
func InitMetricsProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	meterMu.Lock()
	defer meterMu.Unlock()

	globalMetricsShutdown = func(context.Context) error { return nil }
	globalMeterProvider = otel.GetMeterProvider()

	if cfg.Enabled && cfg.Endpoint != "" {
		res, err := createResource(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource for metrics: %w", err)
		}

		exporter, err := otlpmetrichttp.New(
			ctx,
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
		)
		globalMeterProvider = mp
		otel.SetMeterProvider(mp)
		globalMetricsShutdown = mp.Shutdown
	}

	if err := initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return globalMetricsShutdown, nil
}

// initMetrics creates the instruments on globalMeterProvider. Callers hold
// meterMu.
func initMetrics() error {
	var initErr error
	metricsOnce.Do(func() {
		meter := globalMeterProvider.Meter(meterName)
		m := &Metrics{}

		if m.CommandCounter, initErr = meter.Int64Counter(
			"flowboard.command.invocations",
			metric.WithDescription("Total number of command invocations"),
			metric.WithUnit("{invocation}"),
		); initErr != nil {
			return
		}
		if m.CommandDuration, initErr = meter.Float64Histogram(
			"flowboard.command.duration",
			metric.WithDescription("Command execution duration in seconds"),
			metric.WithUnit("s"),
		); initErr != nil {
			return
		}
		if m.CommandErrorCounter, initErr = meter.Int64Counter(
			"flowboard.command.errors",
			metric.WithDescription("Total number of failed commands by error code"),
			metric.WithUnit("{error}"),
		); initErr != nil {
			return
		}
		if m.GestureCounter, initErr = meter.Int64Counter(
			"flowboard.board.gestures",
			metric.WithDescription("Board gestures handled, by kind and outcome"),
			metric.WithUnit("{gesture}"),
		); initErr != nil {
			return
		}

		instruments = m
	})
	return initErr
}

// GetMetrics returns the instruments, or an empty set whose Record helpers
// do nothing when metrics were never initialised.
func GetMetrics() *Metrics {
	meterMu.RLock()
	defer meterMu.RUnlock()

	if instruments != nil {
		return instruments
	}
	return &Metrics{}
}

// RecordCommandInvocation counts one run of commandName ending in status.
func RecordCommandInvocation(ctx context.Context, commandName, status string, attrs ...attribute.KeyValue) {
	m := GetMetrics()
	if m.CommandCounter == nil {
		return
	}
	attrs = append([]attribute.KeyValue{
		attribute.String("command", commandName),
		attribute.String("status", status),
	}, attrs...)
	m.CommandCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCommandDuration records how long commandName ran.
func RecordCommandDuration(ctx context.Context, commandName string, duration time.Duration) {
	m := GetMetrics()
	if m.CommandDuration == nil {
		return
	}
	m.CommandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("command", commandName)))
}

// RecordCommandError counts a failed command by error code.
func RecordCommandError(ctx context.Context, commandName, code string) {
	m := GetMetrics()
	if m.CommandErrorCounter == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.CommandErrorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", commandName),
		attribute.String("code", code),
	))
}

// RecordGesture counts a board gesture (move, connect, undo...) and whether
// it changed the graph.
func RecordGesture(ctx context.Context, kind string, applied bool) {
	m := GetMetrics()
	if m.GestureCounter == nil {
		return
	}
	m.GestureCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("applied", applied),
	))
}

// ShutdownMetrics flushes and stops the metrics pipeline.
func ShutdownMetrics(ctx context.Context) error {
	meterMu.RLock()
	shutdown := globalMetricsShutdown
	meterMu.RUnlock()

	if shutdown != nil {
		return shutdown(ctx)
	}
	return nil
}

// ForceFlushMetrics exports pending measurements.
func ForceFlushMetrics(ctx context.Context) error {
	meterMu.RLock()
	provider := globalMeterProvider
	meterMu.RUnlock()

	if mp, ok := provider.(*sdkmetric.MeterProvider); ok {
		return mp.ForceFlush(ctx)
	}
	return nil
}
