// Package api serves the fleetmon HTTP interface: sample ingestion, the
// read endpoints, the operator cleanup trigger, and the health and metrics
// probes. Handlers translate between HTTP and the monitor service; no
// domain logic lives here.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	defaults "fleetmon/config"
	"fleetmon/internal/config"
	"fleetmon/internal/logging"
	"fleetmon/internal/monitor"
)

var log = logging.Component("api")

// Server provides the fleetmon HTTP API.
type Server struct {
	config  config.ServerConfig
	monitor *monitor.Service
	http    *http.Server
}

// NewServer constructs the HTTP server around the monitor service.
// Zero config fields fall back to the documented defaults.
func NewServer(cfg config.ServerConfig, svc *monitor.Service) *Server {
	if cfg.Listen == "" {
		cfg.Listen = defaults.DefaultListenAddress
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.DefaultReadTimeoutSec * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.DefaultWriteTimeoutSec * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.DefaultIdleTimeoutSec * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.DefaultShutdownTimeoutSec * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.DefaultMaxBodyBytes
	}

	s := &Server{
		config:  cfg,
		monitor: svc,
	}

	s.http = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// routes builds the router.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.observeMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/samples", s.handleIngest).Methods("POST")
	api.HandleFunc("/sources", s.handleSources).Methods("GET")
	api.HandleFunc("/sources/{id}", s.handleSource).Methods("GET")
	api.HandleFunc("/sources/{id}/trend", s.handleSourceTrend).Methods("GET")
	api.HandleFunc("/trend", s.handleTrend).Methods("GET")
	api.HandleFunc("/overview", s.handleOverview).Methods("GET")
	api.HandleFunc("/distribution", s.handleDistribution).Methods("GET")
	api.HandleFunc("/liveness", s.handleLiveness).Methods("GET")
	api.HandleFunc("/cleanup", s.handleCleanup).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

// ListenAndServe serves until Shutdown is called or the listener fails.
// Returns http.ErrServerClosed after a clean shutdown.
func (s *Server) ListenAndServe() error {
	log.Info("http server listening", "addr", s.config.Listen)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.config.Listen
}

// Handler exposes the router for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
