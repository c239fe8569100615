// Package agent runs on monitored hosts. It samples local cpu, memory,
// disk, and uptime on an interval and pushes the readings to a fleetmon
// server.
package agent

import (
	"context"
	"math/rand"
	"time"

	defaults "fleetmon/config"
	"fleetmon/internal/api"
	"fleetmon/internal/config"
	"fleetmon/internal/errors"
	"fleetmon/internal/logging"
	"fleetmon/internal/telemetry"
)

var log = logging.Component("agent")

// Agent pushes local readings to a fleetmon server on an interval.
type Agent struct {
	client    *api.Client
	collector *Collector
	interval  time.Duration
	server    string
}

// New builds an agent from its config section.
func New(cfg config.AgentConfig) (*Agent, error) {
	if cfg.Server == "" {
		return nil, errors.NewMissingField("agent.server")
	}

	collector, err := NewCollector(cfg.SourceID, cfg.DiskPath)
	if err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaults.DefaultAgentIntervalSec * time.Second
	}

	return &Agent{
		client:    api.NewClient(cfg.Server, cfg.Timeout),
		collector: collector,
		interval:  interval,
		server:    cfg.Server,
	}, nil
}

// Run pushes one sample immediately, then keeps pushing on the
// configured interval until ctx is cancelled. A failed push is dropped
// and retried with fresh data on the next tick.
func (a *Agent) Run(ctx context.Context) error {
	log.Info("agent started",
		"server", a.server,
		"source_id", a.collector.SourceID(),
		"interval", a.interval)

	a.push(ctx)

	timer := time.NewTimer(a.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("agent stopped")
			return nil
		case <-timer.C:
			a.push(ctx)
			timer.Reset(a.nextInterval())
		}
	}
}

// PushOnce collects and pushes a single sample, returning the stored
// record with its server-assigned observation time.
func (a *Agent) PushOnce(ctx context.Context) (telemetry.Sample, error) {
	sample, err := a.collector.Collect(ctx)
	if err != nil {
		return telemetry.Sample{}, err
	}
	return a.client.PushSample(ctx, sample)
}

func (a *Agent) push(ctx context.Context) {
	stored, err := a.PushOnce(ctx)
	if err != nil {
		log.Warn("push failed", "server", a.server, "error", err)
		return
	}

	log.Debug("sample pushed",
		"source_id", stored.SourceID,
		"observed_at", stored.ObservedAt,
		"cpu", stored.CPU,
		"ram", stored.RAM,
		"disk", stored.Disk)
}

// nextInterval adds jitter: ±10% of the interval.
func (a *Agent) nextInterval() time.Duration {
	span := int64(float64(a.interval) * defaults.DefaultAgentJitter)
	if span <= 0 {
		return a.interval
	}
	jitter := time.Duration(rand.Int63n(span))
	if rand.Intn(2) == 0 {
		jitter = -jitter
	}
	return a.interval + jitter
}
