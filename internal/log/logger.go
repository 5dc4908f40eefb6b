package log

import (
	"context"
	"log/slog"

	"github.com/felixgeelhaar/flowboard/internal/errors"
)

// Logger provides structured logging with slog
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     config.Level.ToSlogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == FormatText {
		handler = slog.NewTextHandler(config.Output.Writer(), opts)
	} else {
		handler = slog.NewJSONHandler(config.Output.Writer(), opts)
	}

	base := slog.New(handler)
	if config.ServiceName != "" {
		base = base.With("service", config.ServiceName, "version", config.ServiceVersion)
	}

	return &Logger{
		slog:   base,
		config: config,
	}
}

// Default creates a logger with default configuration
func Default() *Logger {
	return New(DefaultConfig())
}

// Nop returns a logger that discards everything. Used by tests and by
// components constructed without a logger.
func Nop() *Logger {
	return &Logger{
		slog:   slog.New(slog.DiscardHandler),
		config: DefaultConfig(),
	}
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
	}
}

// WithGroup returns a new Logger with a group name that prefixes all attributes
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		slog:   l.slog.WithGroup(name),
		config: l.config,
	}
}

// Component tags every entry with the emitting subsystem.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// WithError adds error details to the logger.
// Coded errors contribute error_code, suggestions and cause.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With(errorArgs(err, "error")...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// DebugContext logs a debug message with context
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slog.DebugContext(ctx, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// InfoContext logs an info message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// WarnContext logs a warning message with context
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// ErrorContext logs an error message with context
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slog.ErrorContext(ctx, msg, args...)
}

// LogError logs err with full details under the given message.
func (l *Logger) LogError(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	l.slog.ErrorContext(ctx, msg, errorArgs(err, "error_message")...)
}

// Enabled returns whether the logger is enabled for the given level
func (l *Logger) Enabled(ctx context.Context, level Level) bool {
	return l.slog.Enabled(ctx, level.ToSlogLevel())
}

// Handler returns the underlying slog.Handler
func (l *Logger) Handler() slog.Handler {
	return l.slog.Handler()
}

// Slog exposes the wrapped slog.Logger for libraries that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

func errorArgs(err error, messageKey string) []any {
	if flowErr, ok := err.(*errors.FlowError); ok {
		args := []any{
			messageKey, flowErr.Message,
			"error_code", string(flowErr.Code),
		}
		if len(flowErr.Suggestions) > 0 {
			args = append(args, "suggestions", flowErr.Suggestions)
		}
		if flowErr.DocsURL != "" {
			args = append(args, "docs_url", flowErr.DocsURL)
		}
		if flowErr.Cause != nil {
			args = append(args, "cause", flowErr.Cause.Error())
		}
		return args
	}
	return []any{messageKey, err.Error()}
}
