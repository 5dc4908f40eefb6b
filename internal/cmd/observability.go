package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/flowboard/internal/config"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/telemetry"
	"github.com/felixgeelhaar/flowboard/internal/version"
)

// logToStderr marks commands whose logs belong on stderr. Everything else
// logs to $FLOWBOARD_HOME/flowboard.log so terminal output stays clean and
// the board's screen is never overwritten.
const logToStderr = "log-stderr"

func setupLogging(cmd *cobra.Command, cfg *config.Config) (*log.Logger, func()) {
	logCfg := log.FromSettings(cfg.Log.Level, cfg.Log.Format, version.GetInfo().Version)
	logCfg.AddSource = false

	output, cleanup := configureLogOutput(cmd)
	logCfg.Output = output

	logger := log.New(logCfg)
	log.SetDefaultLogger(logger)
	return logger, cleanup
}

func configureLogOutput(cmd *cobra.Command) (log.Output, func()) {
	if cmd.Annotations[logToStderr] == "true" || os.Getenv(config.EnvPrefix+"_LOG_STDERR") == "true" {
		return log.NewOutput(cmd.ErrOrStderr()), func() {}
	}

	dir := config.Home()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return log.NewOutput(io.Discard), func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "flowboard.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return log.NewOutput(io.Discard), func() {}
	}
	return log.NewOutput(f), func() { _ = f.Close() }
}

// setupTelemetry starts tracing and OTel metrics when enabled and returns
// the function that flushes them.
func setupTelemetry(ctx context.Context, cfg *config.Config, logger *log.Logger) func() {
	if !telemetryRequested(cfg) {
		return func() {}
	}

	telemCfg := telemetry.Config{
		ServiceName:    "flowboard",
		ServiceVersion: version.GetInfo().Version,
		Environment:    telemetryEnvironment(),
		Enabled:        true,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRate:     telemetrySampleRate(cfg),
	}

	shutdownTraces, err := telemetry.InitProvider(ctx, telemCfg, logger)
	if err != nil {
		logger.Warn("Failed to initialize telemetry", "error", err)
		return func() {}
	}
	shutdownMetrics, err := telemetry.InitMetricsProvider(ctx, telemCfg)
	if err != nil {
		logger.Warn("Failed to initialize telemetry metrics", "error", err)
	}

	logger.Info("Telemetry enabled",
		"endpoint", telemCfg.Endpoint,
		"sample_rate", telemCfg.SampleRate,
	)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				logger.Warn("Failed to flush telemetry metrics", "error", err)
			}
		}
		if shutdownTraces != nil {
			if err := shutdownTraces(shutdownCtx); err != nil {
				logger.Warn("Failed to flush telemetry", "error", err)
			}
		}
	}
}

func telemetryRequested(cfg *config.Config) bool {
	if val := strings.ToLower(os.Getenv(config.EnvPrefix + "_TELEMETRY")); val != "" {
		return val == "on" || val == "true" || val == "1" || val == "enabled"
	}
	return cfg.Telemetry.Enabled
}

func telemetrySampleRate(cfg *config.Config) float64 {
	if env := os.Getenv(config.EnvPrefix + "_TELEMETRY_SAMPLE_RATE"); env != "" {
		if v, err := strconv.ParseFloat(env, 64); err == nil {
			return clampSampleRate(v)
		}
	}
	return clampSampleRate(cfg.Telemetry.SampleRate)
}

func telemetryEnvironment() string {
	if env := os.Getenv(config.EnvPrefix + "_ENV"); env != "" {
		return env
	}
	return "cli"
}

func clampSampleRate(value float64) float64 {
	switch {
	case value <= 0:
		return 0.0
	case value >= 1:
		return 1.0
	default:
		return value
	}
}
