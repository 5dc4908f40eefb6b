package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/felixgeelhaar/flowboard/internal/log"
)

var (
	globalProvider trace.TracerProvider
	globalShutdown func(context.Context) error
	providerMu     sync.RWMutex
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
)

// exportBreaker stops export attempts after repeated failures so a dead
// collector does not stall the batch processor.
type exportBreaker struct {
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       breakerState
}

func newExportBreaker() *exportBreaker {
	return &exportBreaker{
		threshold:    5,
		resetTimeout: 30 * time.Second,
		now:          time.Now,
	}
}

// allow reports whether an export may be attempted. An open breaker lets one
// attempt through once resetTimeout has passed.
func (b *exportBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerClosed {
		return true
	}
	return b.now().Sub(b.lastFailure) > b.resetTimeout
}

func (b *exportBreaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = breakerClosed
}

func (b *exportBreaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.threshold || b.state == breakerOpen {
		b.state = breakerOpen
	}
}

// retryingExporter retries failed exports with exponential backoff.
type retryingExporter struct {
	exporter sdktrace.SpanExporter
	breaker  *exportBreaker

	attempts int
	initial  time.Duration
	max      time.Duration
}

func newRetryingExporter(exporter sdktrace.SpanExporter) *retryingExporter {
	return &retryingExporter{
		exporter: exporter,
		breaker:  newExportBreaker(),
		attempts: 4,
		initial:  100 * time.Millisecond,
		max:      2 * time.Second,
	}
}

func (r *retryingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if !r.breaker.allow() {
		return fmt.Errorf("span export suspended after repeated failures")
	}

	interval := r.initial
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				r.breaker.failure()
				return ctx.Err()
			}
			interval = min(interval*2, r.max)
		}

		if lastErr = r.exporter.ExportSpans(ctx, spans); lastErr == nil {
			r.breaker.success()
			return nil
		}
	}

	r.breaker.failure()
	return fmt.Errorf("span export failed after %d attempts: %w", r.attempts, lastErr)
}

func (r *retryingExporter) Shutdown(ctx context.Context) error {
	return r.exporter.Shutdown(ctx)
}

func createResource(cfg Config) (*resource.Resource, error) {
	return resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
}

// InitProvider installs the global tracer provider. With tracing disabled
// every span is a noop. The returned function flushes and shuts down.
func InitProvider(ctx context.Context, cfg Config, logger *log.Logger) (func(context.Context) error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.Component("telemetry")

	providerMu.Lock()
	defer providerMu.Unlock()

	if !cfg.Enabled {
		globalProvider = noop.NewTracerProvider()
		globalShutdown = func(context.Context) error { return nil }
		otel.SetTracerProvider(globalProvider)
		return globalShutdown, nil
	}

	res, err := createResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}

	if cfg.Endpoint != "" {
		exporter, err := otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(
			newRetryingExporter(exporter),
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	globalProvider = tp
	otel.SetTracerProvider(tp)
	globalShutdown = tp.Shutdown

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		logger.Warn("runtime instrumentation unavailable", "error", err)
	}

	logger.Info("tracing enabled", "endpoint", cfg.Endpoint, "sample_rate", cfg.SampleRate)
	return globalShutdown, nil
}

// Shutdown flushes and stops the installed provider.
func Shutdown(ctx context.Context) error {
	providerMu.RLock()
	shutdown := globalShutdown
	providerMu.RUnlock()

	if shutdown != nil {
		return shutdown(ctx)
	}
	return nil
}

// ForceFlush exports pending spans.
func ForceFlush(ctx context.Context) error {
	providerMu.RLock()
	provider := globalProvider
	providerMu.RUnlock()

	if tp, ok := provider.(*sdktrace.TracerProvider); ok {
		return tp.ForceFlush(ctx)
	}
	return nil
}

// GetTracerProvider returns the installed provider, or a noop one.
func GetTracerProvider() trace.TracerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()

	if globalProvider != nil {
		return globalProvider
	}
	return noop.NewTracerProvider()
}
