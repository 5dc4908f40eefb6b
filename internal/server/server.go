// Package server exposes the project store over HTTP, relays change
// notifications over socket.io and answers health probes.
//
// Graceful shutdown marks readiness as failing, stops keep-alives and
// drains in-flight requests for up to Config.ShutdownTimeout.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/flowboard/internal/collab"
	"github.com/felixgeelhaar/flowboard/internal/health"
	"github.com/felixgeelhaar/flowboard/internal/log"
	"github.com/felixgeelhaar/flowboard/internal/metrics"
	"github.com/felixgeelhaar/flowboard/internal/store"
)

// Server is flowboard serve.
type Server struct {
	httpServer      *http.Server
	probeManager    *health.ProbeManager
	store           *store.Store
	broadcaster     *Broadcaster
	logger          *log.Logger
	metrics         *metrics.Metrics
	gatherer        prometheus.Gatherer
	openapi         []byte
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration
}

// Config holds server configuration.
type Config struct {
	// Address is the listen address (e.g., ":8080")
	Address string

	// ShutdownTimeout bounds connection draining. Defaults to 30 seconds.
	ShutdownTimeout time.Duration

	// ReadTimeout defaults to 10 seconds.
	ReadTimeout time.Duration

	// WriteTimeout defaults to 10 seconds.
	WriteTimeout time.Duration

	// IdleTimeout defaults to 60 seconds.
	IdleTimeout time.Duration

	// Version is reported by probes and the OpenAPI document.
	Version string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l.Component("server") }
}

// WithMetrics records request metrics on m and serves gatherer at /metrics.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithBroadcaster mounts b at collab.DefaultSocketPath. The store should
// publish to the same broadcaster.
func WithBroadcaster(b *Broadcaster) Option {
	return func(s *Server) { s.broadcaster = b }
}

// New builds the server around st. The probe manager gets a store checker.
func New(st *store.Store, probeManager *health.ProbeManager, cfg Config, opts ...Option) (*Server, error) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		probeManager:    probeManager,
		store:           st,
		logger:          log.Nop(),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	probeManager.AddChecker(health.NewStoreChecker(st))

	doc, err := OpenAPIDocument(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}
	if s.openapi, err = json.Marshal(doc); err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	for _, rt := range apiRoutes {
		h := func(w http.ResponseWriter, r *http.Request) { rt.handler(s, w, r) }
		if !rt.anon {
			h = s.requireUser(h)
		}
		mux.HandleFunc(rt.pattern(), s.instrument(rt, h))
	}

	mux.HandleFunc("GET /api/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(s.openapi)
	})

	if s.gatherer != nil {
		mux.Handle("GET /metrics", metrics.HandlerFor(s.gatherer))
	}
	if s.broadcaster != nil {
		mux.Handle(collab.DefaultSocketPath, s.broadcaster.Handler())
	}

	mux.HandleFunc("GET /health/live", s.handleLiveness)
	mux.HandleFunc("GET /health/ready", s.handleReadiness)
	mux.HandleFunc("GET /health/startup", s.handleStartup)
	mux.HandleFunc("GET /healthz", s.handleReadiness)

	return mux
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until shutdown. It
// returns http.ErrServerClosed after a graceful Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.probeManager.MarkInitialized()
	s.logger.Info("listening", "address", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown fails readiness, disconnects socket.io clients and drains
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probeManager.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)
	if s.broadcaster != nil {
		s.broadcaster.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// IsShuttingDown reports whether Shutdown was called.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) writeProbeResponse(w http.ResponseWriter, result *health.ProbeResult, unhealthyStatus int) {
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = unhealthyStatus
	}
	writeJSON(w, status, result)
}

// handleLiveness always answers 200, degraded while draining.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckLiveness(r.Context()), http.StatusOK)
}

// handleReadiness answers 503 while shutting down or when the store is
// unreachable.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckReadiness(r.Context()), http.StatusServiceUnavailable)
}

func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckStartup(r.Context()), http.StatusServiceUnavailable)
}
