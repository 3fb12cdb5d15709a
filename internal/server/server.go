// Package server exposes the monitoring HTTP surface: telemetry ingestion,
// fleet and per-device views, analytics reports, health, and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldops.dev/tabletwatch/internal/analytics"
	"fieldops.dev/tabletwatch/internal/ingest"
	"fieldops.dev/tabletwatch/internal/store"
	"fieldops.dev/tabletwatch/pkg/metrics"
)

// Server represents the monitoring HTTP server.
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	store      store.Store
	gateway    *ingest.Gateway
	engine     *analytics.Engine
	metrics    *metrics.ServerMetrics // Optional metrics
	config     *ServerConfig

	tokens map[string]struct{}
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// HTTP server configuration
	HTTPPort int

	// Wired components
	Store   store.Store
	Gateway *ingest.Gateway
	Engine  *analytics.Engine
	Metrics *metrics.ServerMetrics

	// APITokens, when non-empty, gates every route except /health and
	// /metrics behind a bearer token.
	APITokens []string
}

// NewServer creates a new monitoring Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}

	tokens := make(map[string]struct{}, len(cfg.APITokens))
	for _, t := range cfg.APITokens {
		if t != "" {
			tokens[t] = struct{}{}
		}
	}

	return &Server{
		logger:  cfg.Logger,
		store:   cfg.Store,
		gateway: cfg.Gateway,
		engine:  cfg.Engine,
		metrics: cfg.Metrics,
		config:  cfg,
		tokens:  tokens,
	}, nil
}

// Run starts the monitoring server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting monitoring server")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start the background persistence worker
	s.gateway.Start(ctx)

	// Create HTTP router
	mux := s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	// Start HTTP server in goroutine
	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("monitoring server started successfully")

	// Wait for shutdown signal or HTTP error
	var runErr error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			runErr = err
		}
	}

	cancel()

	if err := s.Shutdown(); err != nil {
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// Shutdown gracefully shuts down the server: the HTTP listener first so no
// new submissions arrive, then the gateway drain, then storage.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down monitoring server")

	var shutdownErr error

	// Shutdown HTTP server, then wait for the persistence queue to drain.
	// The gateway worker only runs once the server has.
	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		s.logger.Info("HTTP server stopped")

		s.gateway.Stop()
	}

	// Close storage
	if err := s.store.Close(); err != nil {
		s.logger.Error("failed to close store", "error", err)
		if shutdownErr != nil {
			shutdownErr = fmt.Errorf("%w; store close error: %w", shutdownErr, err)
		} else {
			shutdownErr = fmt.Errorf("store close error: %w", err)
		}
	}

	if shutdownErr != nil {
		s.logger.Error("monitoring server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("monitoring server shutdown completed successfully")
	return nil
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Unauthenticated operational endpoints
	mux.Handle("GET /health", s.instrument("/health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /metrics", metrics.Handler())

	// Telemetry ingestion
	mux.Handle("POST /tablet-metrics",
		s.instrument("/tablet-metrics", s.requireToken(http.HandlerFunc(s.handleSubmit))))

	// Fleet views
	mux.Handle("GET /devices",
		s.instrument("/devices", s.requireToken(http.HandlerFunc(s.handleDevices))))
	mux.Handle("GET /devices/{id}/metrics",
		s.instrument("/devices/{id}/metrics", s.requireToken(http.HandlerFunc(s.handleDeviceMetrics))))

	// Analytics
	mux.Handle("GET /analytics",
		s.instrument("/analytics", s.requireToken(http.HandlerFunc(s.handleAnalytics))))
	mux.Handle("GET /analytics/summary",
		s.instrument("/analytics/summary", s.requireToken(http.HandlerFunc(s.handleAnalyticsSummary))))
	mux.Handle("GET /analytics/insights",
		s.instrument("/analytics/insights", s.requireToken(http.HandlerFunc(s.handleAnalyticsInsights))))

	return mux
}
