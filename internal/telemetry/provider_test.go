package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitProviderDisabled(t *testing.T) {
	ctx := context.Background()
	shutdown, err := InitProvider(ctx, DefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := StartCommandSpan(ctx, "version")
	assert.False(t, span.SpanContext().IsValid(), "disabled tracing yields noop spans")
	span.End()

	assert.NoError(t, shutdown(ctx))
}

func TestInitProviderEnabledWithoutEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	ctx := context.Background()
	shutdown, err := InitProvider(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = InitProvider(ctx, DefaultConfig(), nil) })

	_, span := StartStoreSpan(ctx, "ping")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, ForceFlush(ctx))
	assert.NoError(t, shutdown(ctx))
}

func TestInitProviderRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleRate = 2

	_, err := InitProvider(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestExportBreaker(t *testing.T) {
	now := time.Unix(0, 0)
	b := newExportBreaker()
	b.now = func() time.Time { return now }

	for i := 0; i < b.threshold-1; i++ {
		b.failure()
		assert.True(t, b.allow(), "below threshold after %d failures", i+1)
	}
	b.failure()
	assert.False(t, b.allow(), "threshold reached")

	now = now.Add(b.resetTimeout + time.Second)
	assert.True(t, b.allow(), "probe allowed after reset timeout")

	b.success()
	assert.True(t, b.allow())
}

type flakyExporter struct {
	failures int
	calls    int
}

func (f *flakyExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("collector unavailable")
	}
	return nil
}

func (f *flakyExporter) Shutdown(context.Context) error { return nil }

func TestRetryingExporter(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		inner := &flakyExporter{failures: 2}
		r := newRetryingExporter(inner)
		r.initial = time.Millisecond

		require.NoError(t, r.ExportSpans(context.Background(), nil))
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("gives up", func(t *testing.T) {
		inner := &flakyExporter{failures: 100}
		r := newRetryingExporter(inner)
		r.initial = time.Millisecond

		err := r.ExportSpans(context.Background(), nil)
		require.Error(t, err)
		assert.Equal(t, r.attempts, inner.calls)
		assert.Equal(t, 1, r.breaker.failures)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		inner := &flakyExporter{failures: 100}
		r := newRetryingExporter(inner)
		r.initial = time.Hour

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, r.ExportSpans(ctx, nil), context.Canceled)
		assert.Equal(t, 1, inner.calls)
	})
}
