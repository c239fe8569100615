package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fleetmon/internal/config"
	fleeterrors "fleetmon/internal/errors"
	"fleetmon/internal/rollup"
	"fleetmon/internal/telemetry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "fleet.db")
	// Keep the scheduled worker quiet during tests.
	cfg.Retention.Interval = time.Hour
	return cfg
}

func newRunningService(t *testing.T) *Service {
	t.Helper()

	svc, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(func() { svc.Stop() })
	return svc
}

func newInput(source string) telemetry.NewSample {
	return telemetry.NewSample{
		SourceID:      source,
		CPU:           42.5,
		RAM:           63.1,
		Disk:          80,
		OS:            "debian 12",
		UptimeSeconds: 3600,
	}
}

func TestService_Lifecycle(t *testing.T) {
	svc, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if svc.IsRunning() {
		t.Error("service must not run before Start")
	}

	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !svc.IsRunning() {
		t.Error("service must run after Start")
	}

	if err := svc.Start(); !errors.Is(err, fleeterrors.ErrAlreadyRunning) {
		t.Errorf("second start must fail with ErrAlreadyRunning, got %v", err)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if svc.IsRunning() {
		t.Error("service must not run after Stop")
	}

	if err := svc.Stop(); err != nil {
		t.Errorf("second stop must be a no-op, got %v", err)
	}
}

func TestService_OpsRequireRunning(t *testing.T) {
	svc, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	// Stop is a no-op before Start; close the store directly.
	defer svc.Store().Close()

	ctx := context.Background()
	now := time.Now()

	checks := []struct {
		name string
		call func() error
	}{
		{"Ingest", func() error { _, err := svc.Ingest(ctx, newInput("web-01")); return err }},
		{"LatestAll", func() error { _, err := svc.LatestAll(ctx); return err }},
		{"LatestOne", func() error { _, err := svc.LatestOne(ctx, "web-01"); return err }},
		{"Liveness", func() error { _, err := svc.Liveness(ctx, now); return err }},
		{"Trend", func() error {
			_, err := svc.Trend(ctx, rollup.TrendOptions{
				WindowStart: now.Add(-time.Hour), WindowEnd: now, BucketWidth: time.Minute,
			})
			return err
		}},
		{"Overview", func() error { _, err := svc.Overview(ctx, now, time.Hour); return err }},
		{"Distribution", func() error { _, err := svc.Distribution(ctx, now, time.Hour, telemetry.MetricCPU); return err }},
		{"RunCleanup", func() error { _, err := svc.RunCleanup(ctx, now); return err }},
		{"DryRunCleanup", func() error { _, err := svc.DryRunCleanup(ctx, now); return err }},
		{"Health", func() error { return svc.Health(ctx) }},
	}

	for _, c := range checks {
		if err := c.call(); !errors.Is(err, fleeterrors.ErrNotRunning) {
			t.Errorf("%s before Start: expected ErrNotRunning, got %v", c.name, err)
		}
	}
}

func TestService_IngestToLatest(t *testing.T) {
	svc := newRunningService(t)
	ctx := context.Background()

	web, err := svc.Ingest(ctx, newInput("web-01"))
	if err != nil {
		t.Fatalf("ingest web-01: %v", err)
	}
	if _, err := svc.Ingest(ctx, newInput("db-01")); err != nil {
		t.Fatalf("ingest db-01: %v", err)
	}

	all, err := svc.LatestAll(ctx)
	if err != nil {
		t.Fatalf("latest all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(all))
	}
	if all["web-01"] != web {
		t.Errorf("latest web-01 mismatch:\n  got  %+v\n  want %+v", all["web-01"], web)
	}

	one, err := svc.LatestOne(ctx, "web-01")
	if err != nil {
		t.Fatalf("latest one: %v", err)
	}
	if one != web {
		t.Errorf("latest one mismatch: %+v", one)
	}

	if _, err := svc.LatestOne(ctx, "ghost"); !fleeterrors.IsNotFound(err) {
		t.Errorf("expected not found for unknown source, got %v", err)
	}
}

func TestService_Ingest_RejectsInvalid(t *testing.T) {
	svc := newRunningService(t)

	in := newInput("web-01")
	in.Disk = -1

	if _, err := svc.Ingest(context.Background(), in); !fleeterrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_Liveness(t *testing.T) {
	svc := newRunningService(t)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, newInput("web-01")); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	records, err := svc.Liveness(ctx, time.Now())
	if err != nil {
		t.Fatalf("liveness: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].State != telemetry.StateOnline {
		t.Errorf("a just-ingested source must be online, got %v", records[0].State)
	}

	if got := svc.StateFor(0); got != telemetry.StateOnline {
		t.Errorf("StateFor(0) = %v, want online", got)
	}
	if got := svc.StateFor(48 * time.Hour); got != telemetry.StateInactive {
		t.Errorf("StateFor(48h) = %v, want inactive", got)
	}
}

func TestService_TrendAndOverview(t *testing.T) {
	svc := newRunningService(t)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, newInput("web-01")); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := svc.Ingest(ctx, newInput("db-01")); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	now := time.Now()
	buckets, err := svc.Trend(ctx, rollup.TrendOptions{
		WindowStart: now.Add(-time.Hour),
		WindowEnd:   now.Add(time.Minute),
		BucketWidth: 2 * time.Hour,
	})
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(buckets) != 1 || buckets[0].SampleCount != 2 {
		t.Errorf("expected one bucket with 2 samples, got %+v", buckets)
	}

	overview, err := svc.Overview(ctx, now, time.Hour)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.TotalSources != 2 || overview.SampleCount != 2 {
		t.Errorf("expected 2 sources over 2 samples, got %+v", overview)
	}

	dist, err := svc.Distribution(ctx, now, time.Hour, telemetry.MetricCPU)
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}
	if dist.Count != 2 || dist.Min != 42.5 || dist.Max != 42.5 {
		t.Errorf("unexpected distribution: %+v", dist)
	}
}

func TestService_Cleanup(t *testing.T) {
	svc := newRunningService(t)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, newInput("web-01")); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	dry, err := svc.DryRunCleanup(ctx, time.Now())
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !dry.DryRun {
		t.Error("dry run result must be marked")
	}
	if dry.SamplesDeleted != 0 {
		t.Errorf("fresh sample must not be doomed, got %d", dry.SamplesDeleted)
	}

	result, err := svc.RunCleanup(ctx, time.Now())
	if err != nil {
		t.Fatalf("run cleanup: %v", err)
	}
	if result.SamplesDeleted != 0 || result.SourcesPurged != 0 {
		t.Errorf("fresh sample must survive cleanup, got %+v", result)
	}

	if _, err := svc.LatestOne(ctx, "web-01"); err != nil {
		t.Errorf("source must survive cleanup: %v", err)
	}
}

func TestService_StatsAndHealth(t *testing.T) {
	svc := newRunningService(t)
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, newInput("web-01")); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	stats := svc.Stats()
	if !stats.Running {
		t.Error("stats must report running")
	}
	if stats.Ingestion.SamplesIngested != 1 {
		t.Errorf("expected 1 ingested sample, got %d", stats.Ingestion.SamplesIngested)
	}

	if err := svc.Health(ctx); err != nil {
		t.Errorf("health: %v", err)
	}
}
