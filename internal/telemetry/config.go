package telemetry

import (
	"fmt"
)

// Config holds configuration for tracing and OTel metrics.
type Config struct {
	// ServiceName is the name reported on every span
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (development, production)
	Environment string

	// Enabled determines whether tracing is enabled.
	// When false, a noop tracer is used
	Enabled bool

	// Endpoint is the OTLP HTTP collector endpoint (host:port).
	// If empty, spans are sampled but not exported
	Endpoint string

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64
}

// DefaultConfig returns the configuration used when nothing is set.
// Tracing is off for interactive use.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "flowboard",
		ServiceVersion: "dev",
		Environment:    "development",
		Enabled:        false,
		SampleRate:     1.0,
	}
}

// ProductionConfig exports to endpoint and samples a tenth of traces.
func ProductionConfig(endpoint string) Config {
	return Config{
		ServiceName:    "flowboard",
		ServiceVersion: "unknown",
		Environment:    "production",
		Enabled:        true,
		Endpoint:       endpoint,
		SampleRate:     0.1,
	}
}

// Validate rejects sample rates outside [0, 1].
func (c Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("telemetry sample rate must be between 0 and 1, got %v", c.SampleRate)
	}
	if c.ServiceName == "" {
		return fmt.Errorf("telemetry service name is required")
	}
	return nil
}
