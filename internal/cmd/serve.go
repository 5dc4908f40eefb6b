package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/flowboard/internal/errors"
	"github.com/felixgeelhaar/flowboard/internal/health"
	"github.com/felixgeelhaar/flowboard/internal/metrics"
	"github.com/felixgeelhaar/flowboard/internal/server"
	"github.com/felixgeelhaar/flowboard/internal/store"
	"github.com/felixgeelhaar/flowboard/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve projects over HTTP with live updates",
	Long: `Serve the project database over a JSON API and push change
notifications to open boards over socket.io.

Endpoints:
  /api/...          project, member and invitation API (X-User-ID names the user)
  /api/openapi.json API description
  /socket.io/       change notifications, one room per project
  /metrics          Prometheus metrics
  /health/live      liveness probe
  /health/ready     readiness probe (checks the database)
  /health/startup   startup probe

The server drains connections on SIGTERM or SIGINT.

Example:
  # Listen on server.address (default :8080)
  flowboard serve

  # Listen elsewhere with a longer drain
  flowboard serve --address 127.0.0.1:9090 --shutdown-timeout 60s`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{logToStderr: "true"},
	RunE:        runServe,
}

var (
	serveAddress         string
	serveShutdownTimeout time.Duration
	serveReadTimeout     time.Duration
	serveWriteTimeout    time.Duration
	serveIdleTimeout     time.Duration
)

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "address to listen on (default server.address)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 0, "maximum time to drain connections (default server.shutdown_timeout)")
	serveCmd.Flags().DurationVar(&serveReadTimeout, "read-timeout", 10*time.Second, "maximum duration for reading the entire request")
	serveCmd.Flags().DurationVar(&serveWriteTimeout, "write-timeout", 10*time.Second, "maximum duration before timing out writes of the response")
	serveCmd.Flags().DurationVar(&serveIdleTimeout, "idle-timeout", 60*time.Second, "maximum amount of time to wait for the next request")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, logger := current.cfg, current.logger
	info := version.GetInfo()

	address := cfg.Server.Address
	if serveAddress != "" {
		address = serveAddress
	}
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if serveShutdownTimeout > 0 {
		shutdownTimeout = serveShutdownTimeout
	}

	registry, m := metrics.NewRegistry()
	broadcaster := server.NewBroadcaster(logger, m)

	st, err := store.Open(cfg.Store.Path,
		store.WithPublisher(broadcaster),
		store.WithMetrics(m),
		store.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to close store", "error", err)
		}
	}()

	pm := health.NewProbeManager(info.Version)
	srv, err := server.New(st, pm, server.Config{
		Address:         address,
		ShutdownTimeout: shutdownTimeout,
		ReadTimeout:     serveReadTimeout,
		WriteTimeout:    serveWriteTimeout,
		IdleTimeout:     serveIdleTimeout,
		Version:         info.Version,
	},
		server.WithLogger(logger),
		server.WithMetrics(m, registry),
		server.WithBroadcaster(broadcaster),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "flowboard %s\n", info.Short())
	fmt.Fprintf(out, "Database:     %s\n", st.DBPath())
	fmt.Fprintf(out, "Listening on: %s\n", address)
	fmt.Fprintf(out, "Press Ctrl+C to stop the server\n\n")

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return errors.Wrap(errors.ErrCodeAPIRequest, "server error", err).
			WithSuggestion("Is another process listening on " + address + "? Try --address")

	case <-ctx.Done():
		fmt.Fprintln(out, "Initiating graceful shutdown...")

		// The signal cancelled ctx, so draining gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout+5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(errors.ErrCodeAPIRequest, "shutdown error", err)
		}

		fmt.Fprintln(out, "Server stopped gracefully")
		return nil
	}
}
