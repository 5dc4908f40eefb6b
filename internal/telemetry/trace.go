package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCommandSpan creates a span for a CLI command execution.
//
// Usage:
//
//	ctx, span := telemetry.StartCommandSpan(ctx, "board")
//	defer span.End()
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("commands")
	ctx, span := tracer.Start(ctx, "command."+cmdName)

	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)

	return ctx, span
}

// StartHTTPSpan creates a server span for one API request. route is the
// mux pattern, not the raw path, so ids do not explode span names.
func StartHTTPSpan(ctx context.Context, method, route string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("http")
	ctx, span := tracer.Start(ctx, method+" "+route, trace.WithSpanKind(trace.SpanKindServer))

	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("component", "server"),
	)

	return ctx, span
}

// StartStoreSpan creates a span for a persistence operation.
func StartStoreSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("store")
	ctx, span := tracer.Start(ctx, "store."+operation, trace.WithSpanKind(trace.SpanKindClient))

	span.SetAttributes(
		attribute.String("operation", operation),
		attribute.String("component", "store"),
	)

	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
//
// Usage:
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	    return err
//	}
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.Bool("error", true),
	)
}

// RecordDuration records the duration of an operation as a span attribute.
func RecordDuration(span trace.Span, name string, duration time.Duration) {
	span.SetAttributes(
		attribute.Int64(name+"_ms", duration.Milliseconds()),
	)
}

// TraceFunction runs fn inside a span named name and records its outcome.
//
// Usage:
//
//	steps, err := telemetry.TraceFunction(ctx, "replay.run", func(ctx context.Context) (int, error) {
//	    return runner.Run(ctx, script)
//	})
func TraceFunction[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	tracer := GetTracerProvider().Tracer("general")
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	result, err := fn(ctx)
	if err != nil {
		RecordError(span, err)
		var zero T
		return zero, err
	}

	RecordSuccess(span)
	return result, nil
}
