// Package monitor wires the store, the read components, and the retention
// worker into one service with a lifecycle. The HTTP layer talks to this
// service only; no handler reaches into a component directly.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fleetmon/internal/config"
	"fleetmon/internal/errors"
	"fleetmon/internal/ingest"
	"fleetmon/internal/latest"
	"fleetmon/internal/liveness"
	"fleetmon/internal/logging"
	"fleetmon/internal/observability"
	"fleetmon/internal/retention"
	"fleetmon/internal/rollup"
	"fleetmon/internal/store"
	"fleetmon/internal/telemetry"
)

var log = logging.Component("monitor")

// Service owns every core component and the retention worker.
type Service struct {
	mu sync.RWMutex

	config *config.Config

	// Components
	store      *store.Store
	ingest     *ingest.Service
	latest     *latest.Resolver
	classifier *liveness.Classifier
	rollup     *rollup.Engine
	retention  *retention.Manager

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	startTime time.Time
}

// New creates the monitor service: opens the store, migrates the schema,
// and builds the components. Nothing runs until Start.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	st, err := store.New(store.Config{
		DSN:             cfg.Storage.Path,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
		QueryTimeout:    cfg.Storage.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	resolver := latest.NewResolver(st)

	classifier, err := liveness.NewClassifier(resolver, liveness.Thresholds{
		OfflineAfter:  cfg.Liveness.OfflineAfter,
		InactiveAfter: cfg.Liveness.InactiveAfter,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create classifier: %w", err)
	}

	ret, err := retention.New(st, classifier, retention.Config{
		MaxSampleAge:       cfg.Retention.MaxSampleAge,
		MaxInactiveAge:     cfg.Retention.MaxInactiveAge,
		ArchiveDir:         cfg.Retention.ArchiveDir,
		ArchiveCompression: cfg.Retention.ArchiveCompression,
		ArchiveMaxAge:      cfg.Retention.ArchiveMaxAge,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create retention: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		config:     cfg,
		store:      st,
		ingest:     ingest.New(st),
		latest:     resolver,
		classifier: classifier,
		rollup:     rollup.NewEngine(st),
		retention:  ret,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches the retention worker.
func (s *Service) Start() error {
	if s.running.Load() {
		return errors.ErrAlreadyRunning
	}

	s.running.Store(true)

	s.mu.Lock()
	s.startTime = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.retentionWorker()

	log.Info("service started",
		"db", s.config.Storage.Path,
		"cleanup_interval", s.config.Retention.Interval)
	return nil
}

// Stop cancels the worker, waits for it, and closes the store.
func (s *Service) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()
	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	log.Info("service stopped")
	return nil
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Config returns the current configuration.
func (s *Service) Config() *config.Config {
	return s.config
}

// Store exposes the underlying store. Tests and the health check use it;
// handlers go through the service methods.
func (s *Service) Store() *store.Store {
	return s.store
}

// retentionWorker runs cleanup on a fixed period until the service stops.
func (s *Service) retentionWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Retention.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunCleanup(s.ctx, time.Now()); err != nil {
				log.Error("scheduled cleanup failed", "error", err)
			}
		}
	}
}

// =============================================================================
// Operations
// =============================================================================

// Ingest validates and persists one sample.
func (s *Service) Ingest(ctx context.Context, in telemetry.NewSample) (telemetry.Sample, error) {
	if !s.running.Load() {
		return telemetry.Sample{}, errors.ErrNotRunning
	}
	return s.ingest.Ingest(ctx, in)
}

// LatestAll returns the newest sample per source.
func (s *Service) LatestAll(ctx context.Context) (map[string]telemetry.Sample, error) {
	if !s.running.Load() {
		return nil, errors.ErrNotRunning
	}
	return s.latest.LatestAll(ctx)
}

// LatestOne returns the newest sample for one source.
func (s *Service) LatestOne(ctx context.Context, sourceID string) (telemetry.Sample, error) {
	if !s.running.Load() {
		return telemetry.Sample{}, errors.ErrNotRunning
	}
	return s.latest.LatestOne(ctx, sourceID)
}

// Liveness classifies every known source as of now.
func (s *Service) Liveness(ctx context.Context, now time.Time) ([]telemetry.LivenessRecord, error) {
	if !s.running.Load() {
		return nil, errors.ErrNotRunning
	}

	records, err := s.classifier.Snapshot(ctx, now)
	if err != nil {
		return nil, err
	}

	counts := liveness.CountByState(records)
	observability.SetSourcesByState(
		counts[telemetry.StateOnline],
		counts[telemetry.StateOffline],
		counts[telemetry.StateInactive])

	return records, nil
}

// StateFor returns the liveness state for a sample of the given age.
func (s *Service) StateFor(age time.Duration) telemetry.LivenessState {
	return s.classifier.StateFor(age)
}

// Trend returns bucketed averages for the requested window.
func (s *Service) Trend(ctx context.Context, opts rollup.TrendOptions) ([]telemetry.Bucket, error) {
	if !s.running.Load() {
		return nil, errors.ErrNotRunning
	}
	return s.rollup.Trend(ctx, opts)
}

// Overview returns the fleet-wide stats over the trailing window.
func (s *Service) Overview(ctx context.Context, now time.Time, window time.Duration) (telemetry.OverviewStats, error) {
	if !s.running.Load() {
		return telemetry.OverviewStats{}, errors.ErrNotRunning
	}
	return s.rollup.Overview(ctx, now, window)
}

// Distribution returns sketch-estimated percentiles for one metric.
func (s *Service) Distribution(ctx context.Context, now time.Time, window time.Duration, metric telemetry.Metric) (telemetry.Distribution, error) {
	if !s.running.Load() {
		return telemetry.Distribution{}, errors.ErrNotRunning
	}
	return s.rollup.Distribution(ctx, now, window, metric)
}

// RunCleanup triggers a cleanup run and records its outcome. Scheduled and
// operator-triggered runs both land here, so a coalesced run is counted
// exactly once.
func (s *Service) RunCleanup(ctx context.Context, now time.Time) (retention.CleanupResult, error) {
	if !s.running.Load() {
		return retention.CleanupResult{}, errors.ErrNotRunning
	}

	result, err := s.retention.RunCleanup(ctx, now)
	if err != nil {
		observability.RecordCleanup("error", 0, 0, 0)
		return retention.CleanupResult{}, err
	}
	if !result.Coalesced {
		observability.RecordCleanup("success",
			result.SamplesDeleted, result.SourcesPurged, result.Duration)
	}
	return result, nil
}

// DryRunCleanup reports what a cleanup at now would delete.
func (s *Service) DryRunCleanup(ctx context.Context, now time.Time) (retention.CleanupResult, error) {
	if !s.running.Load() {
		return retention.CleanupResult{}, errors.ErrNotRunning
	}
	return s.retention.DryRun(ctx, now)
}

// Health pings the store.
func (s *Service) Health(ctx context.Context) error {
	if !s.running.Load() {
		return errors.ErrNotRunning
	}
	return s.store.Health(ctx)
}

// =============================================================================
// Stats
// =============================================================================

// ServiceStats holds combined statistics.
type ServiceStats struct {
	Running   bool
	Uptime    time.Duration
	Ingestion ingest.ServiceStats
	Retention retention.ManagerStats
}

// Stats returns combined statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	startTime := s.startTime
	s.mu.RUnlock()

	var uptime time.Duration
	if !startTime.IsZero() {
		uptime = time.Since(startTime)
	}

	return ServiceStats{
		Running:   s.running.Load(),
		Uptime:    uptime,
		Ingestion: s.ingest.Stats(),
		Retention: s.retention.Stats(),
	}
}
