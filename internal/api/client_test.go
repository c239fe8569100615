package api

import (
	"context"
	"testing"
	"time"

	"fleetmon/internal/errors"
	"fleetmon/internal/telemetry"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	ts, _ := newTestServer(t)
	return NewClient(ts.URL, 5*time.Second)
}

func clientInput(source string) telemetry.NewSample {
	return telemetry.NewSample{
		SourceID:      source,
		CPU:           42.5,
		RAM:           63.1,
		Disk:          80,
		OS:            "debian 12",
		UptimeSeconds: 86400,
	}
}

func TestClient_PushSample(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	sample, err := c.PushSample(ctx, clientInput("web-01"))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if sample.SourceID != "web-01" || sample.ObservedAt <= 0 {
		t.Errorf("unexpected sample: %+v", sample)
	}
}

func TestClient_PushSample_Invalid(t *testing.T) {
	c := newTestClient(t)

	in := clientInput("web-01")
	in.RAM = 200

	_, err := c.PushSample(context.Background(), in)
	if !errors.IsValidation(err) {
		t.Errorf("expected validation error after round trip, got %v", err)
	}
}

func TestClient_SourcesAndSource(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.PushSample(ctx, clientInput("web-01")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := c.PushSample(ctx, clientInput("db-01")); err != nil {
		t.Fatalf("push: %v", err)
	}

	sources, err := c.Sources(ctx)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].SourceID != "db-01" {
		t.Errorf("expected sorted sources, got %s first", sources[0].SourceID)
	}
	if sources[0].State != telemetry.StateOnline {
		t.Errorf("expected online state after decode, got %v", sources[0].State)
	}

	one, err := c.Source(ctx, "web-01")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if one.SourceID != "web-01" || one.CPU != 42.5 {
		t.Errorf("unexpected source: %+v", one)
	}
}

func TestClient_Source_NotFound(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Source(context.Background(), "ghost")
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found after round trip, got %v", err)
	}
}

func TestClient_TrendAndOverview(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.PushSample(ctx, clientInput("web-01")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := c.PushSample(ctx, clientInput("db-01")); err != nil {
		t.Fatalf("push: %v", err)
	}
	// The window end is exclusive; step past the ingest millisecond.
	time.Sleep(5 * time.Millisecond)

	fleet, err := c.Trend(ctx, "", 1, 60)
	if err != nil {
		t.Fatalf("fleet trend: %v", err)
	}
	if len(fleet) != 1 || fleet[0].SampleCount != 2 {
		t.Errorf("expected one bucket with 2 samples, got %+v", fleet)
	}

	scoped, err := c.Trend(ctx, "web-01", 1, 60)
	if err != nil {
		t.Fatalf("scoped trend: %v", err)
	}
	if len(scoped) != 1 || scoped[0].SampleCount != 1 {
		t.Errorf("expected only web-01's sample, got %+v", scoped)
	}

	overview, err := c.Overview(ctx, 1)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if overview.TotalSources != 2 {
		t.Errorf("expected 2 sources, got %d", overview.TotalSources)
	}
}

func TestClient_Distribution(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.PushSample(ctx, clientInput("web-01")); err != nil {
		t.Fatalf("push: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	dist, err := c.Distribution(ctx, telemetry.MetricCPU, 1)
	if err != nil {
		t.Fatalf("distribution: %v", err)
	}
	if dist.Metric != telemetry.MetricCPU || dist.Count != 1 {
		t.Errorf("unexpected distribution: %+v", dist)
	}

	if _, err := c.Distribution(ctx, telemetry.Metric("network"), 1); !errors.IsValidation(err) {
		t.Errorf("expected validation error for bad metric, got %v", err)
	}
}

func TestClient_Liveness(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.PushSample(ctx, clientInput("web-01")); err != nil {
		t.Fatalf("push: %v", err)
	}

	summary, err := c.Liveness(ctx)
	if err != nil {
		t.Fatalf("liveness: %v", err)
	}
	if len(summary.Sources) != 1 || summary.Online != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.Sources[0].State != telemetry.StateOnline {
		t.Errorf("expected online after decode, got %v", summary.Sources[0].State)
	}
}

func TestClient_TriggerCleanup(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.PushSample(ctx, clientInput("web-01")); err != nil {
		t.Fatalf("push: %v", err)
	}

	report, err := c.TriggerCleanup(ctx, false)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if report.SamplesDeleted != 0 || report.DryRun {
		t.Errorf("unexpected report: %+v", report)
	}

	dry, err := c.TriggerCleanup(ctx, true)
	if err != nil {
		t.Fatalf("dry cleanup: %v", err)
	}
	if !dry.DryRun {
		t.Error("expected dry run marker")
	}
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t)

	if err := c.Health(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}
}

func TestClient_TrimsBaseURL(t *testing.T) {
	ts, _ := newTestServer(t)
	c := NewClient(ts.URL+"/", 0)

	if err := c.Health(context.Background()); err != nil {
		t.Errorf("health with trailing slash base: %v", err)
	}
}
