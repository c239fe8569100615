// fleetmon-agent samples local resource usage and pushes it to a
// fleetmond server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fleetmon/internal/agent"
	"fleetmon/internal/config"
	"fleetmon/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "fleetmon.yaml", "config file path")
	server := flag.String("server", "", "server base URL, e.g. http://monitor:8787 (overrides config)")
	source := flag.String("source", "", "source ID (overrides config, defaults to hostname)")
	interval := flag.Duration("interval", 0, "push interval (overrides config)")
	diskPath := flag.String("disk", "", "mount to report disk usage for (overrides config)")
	once := flag.Bool("once", false, "push a single sample and exit")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fleetmon-agent %s\n", Version)
		return
	}

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	// CLI overrides
	if *server != "" {
		cfg.Agent.Server = *server
	}
	if *source != "" {
		cfg.Agent.SourceID = *source
	}
	if *interval > 0 {
		cfg.Agent.Interval = *interval
	}
	if *diskPath != "" {
		cfg.Agent.DiskPath = *diskPath
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

	a, err := agent.New(cfg.Agent)
	if err != nil {
		slog.Error("create agent", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		sample, err := a.PushOnce(ctx)
		if err != nil {
			slog.Error("push failed", "error", err)
			os.Exit(1)
		}
		slog.Info("sample pushed",
			"source_id", sample.SourceID,
			"observed_at", sample.ObservedAt)
		return
	}

	if err := a.Run(ctx); err != nil {
		slog.Error("agent error", "error", err)
		os.Exit(1)
	}
}
