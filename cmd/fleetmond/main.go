// fleetmond is the fleet telemetry server daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fleetmon/internal/api"
	"fleetmon/internal/config"
	"fleetmon/internal/logging"
	"fleetmon/internal/monitor"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "fleetmon.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "database path (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fleetmond %s\n", Version)
		return
	}

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	// CLI overrides
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logJSON {
		cfg.Logging.JSON = true
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Parse log level: %v", err)
	}
	logging.Init(level, cfg.Logging.JSON)
	slog.Info("fleetmond starting", "version", Version)

	// =========================================================================
	// Create and Start Monitor Service
	// =========================================================================

	svc, err := monitor.New(cfg)
	if err != nil {
		slog.Error("create service", "error", err)
		os.Exit(1)
	}
	if err := svc.Start(); err != nil {
		slog.Error("start service", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(cfg.Server, svc)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		slog.Info("shutting down", "signal", s.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			_ = svc.Stop()
			os.Exit(1)
		}
	}

	// Stop accepting requests first, then stop the service.
	if err := srv.Shutdown(context.Background()); err != nil {
		slog.Warn("server shutdown", "error", err)
	}
	if err := svc.Stop(); err != nil {
		slog.Warn("service stop", "error", err)
	}

	slog.Info("fleetmond stopped")
}
