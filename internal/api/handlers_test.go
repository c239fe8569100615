package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fleetmon/internal/config"
	"fleetmon/internal/monitor"
	"fleetmon/internal/telemetry"
)

func newTestServer(t *testing.T) (*httptest.Server, *monitor.Service) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "fleet.db")
	// Keep the scheduled worker quiet during tests.
	cfg.Retention.Interval = time.Hour

	svc, err := monitor.New(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(func() { svc.Stop() })

	srv := NewServer(cfg.Server, svc)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, svc
}

func sampleBody(source string) string {
	return fmt.Sprintf(`{"sourceId":%q,"cpu":42.5,"ram":63.1,"disk":80,"os":"debian 12","uptimeSeconds":86400}`, source)
}

func pushSample(t *testing.T, ts *httptest.Server, source string) telemetry.Sample {
	t.Helper()

	resp, err := http.Post(ts.URL+"/api/v1/samples", "application/json", strings.NewReader(sampleBody(source)))
	if err != nil {
		t.Fatalf("post sample: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}

	var sample telemetry.Sample
	if err := json.NewDecoder(resp.Body).Decode(&sample); err != nil {
		t.Fatalf("decode sample: %v", err)
	}
	return sample
}

// getJSON fetches path and decodes a 200 response into out. The body stays
// open for error-payload inspection; test cleanup closes it.
func getJSON(t *testing.T, ts *httptest.Server, path string, out any) *http.Response {
	t.Helper()

	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

func errorPayload(t *testing.T, resp *http.Response) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Error == "" {
		t.Fatal("error payload is empty")
	}
	return payload.Error
}

func TestServer_Ingest(t *testing.T) {
	ts, _ := newTestServer(t)

	before := time.Now().UnixMilli()
	sample := pushSample(t, ts, "web-01")

	if sample.SourceID != "web-01" {
		t.Errorf("expected sourceId echo, got %q", sample.SourceID)
	}
	if sample.CPU != 42.5 {
		t.Errorf("expected cpu echo, got %v", sample.CPU)
	}
	if sample.ObservedAt < before {
		t.Errorf("observedAt %d predates the request", sample.ObservedAt)
	}
}

func TestServer_Ingest_Invalid(t *testing.T) {
	ts, _ := newTestServer(t)

	body := `{"sourceId":"web-01","cpu":130,"ram":50,"disk":50,"os":"debian 12","uptimeSeconds":1}`
	resp, err := http.Post(ts.URL+"/api/v1/samples", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if msg := errorPayload(t, resp); !strings.Contains(msg, "cpu") {
		t.Errorf("error must name the bad field, got %q", msg)
	}
}

func TestServer_Ingest_MalformedJSON(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/samples", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestServer_Ingest_RejectsClientTimestamp(t *testing.T) {
	ts, _ := newTestServer(t)

	// observedAt is server-assigned; a client sending one is an error,
	// not a silent overwrite.
	body := `{"sourceId":"web-01","cpu":10,"ram":20,"disk":30,"os":"debian 12","uptimeSeconds":1,"observedAt":12345}`
	resp, err := http.Post(ts.URL+"/api/v1/samples", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func TestServer_Sources(t *testing.T) {
	ts, _ := newTestServer(t)

	pushSample(t, ts, "web-01")
	pushSample(t, ts, "db-01")

	var page sourcesResponse
	resp := getJSON(t, ts, "/api/v1/sources", &page)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if page.Count != 2 || len(page.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %+v", page)
	}
	if page.Sources[0].SourceID != "db-01" || page.Sources[1].SourceID != "web-01" {
		t.Errorf("sources must be sorted by id, got %s, %s",
			page.Sources[0].SourceID, page.Sources[1].SourceID)
	}
	for _, src := range page.Sources {
		if src.State != telemetry.StateOnline {
			t.Errorf("%s: expected online, got %v", src.SourceID, src.State)
		}
		if src.AgeMs < 0 {
			t.Errorf("%s: negative age %d", src.SourceID, src.AgeMs)
		}
	}
}

func TestServer_Source_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := getJSON(t, ts, "/api/v1/sources/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if msg := errorPayload(t, resp); !strings.Contains(msg, "ghost") {
		t.Errorf("error must name the source, got %q", msg)
	}
}

func TestServer_Trend(t *testing.T) {
	ts, _ := newTestServer(t)

	pushSample(t, ts, "web-01")
	pushSample(t, ts, "db-01")
	// The window end is exclusive; step past the ingest millisecond.
	time.Sleep(5 * time.Millisecond)

	var page trendResponse
	resp := getJSON(t, ts, "/api/v1/trend?hours=1&bucket=60", &page)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(page.Buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %+v", page)
	}
	if page.Buckets[0].SampleCount != 2 {
		t.Errorf("expected 2 samples in bucket, got %d", page.Buckets[0].SampleCount)
	}
	if page.Buckets[0].AvgCPU != 42.5 {
		t.Errorf("expected avg cpu 42.5, got %v", page.Buckets[0].AvgCPU)
	}
}

func TestServer_SourceTrend(t *testing.T) {
	ts, _ := newTestServer(t)

	pushSample(t, ts, "web-01")
	pushSample(t, ts, "db-01")
	time.Sleep(5 * time.Millisecond)

	var page trendResponse
	resp := getJSON(t, ts, "/api/v1/sources/web-01/trend?hours=1&bucket=60", &page)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if page.SourceID != "web-01" {
		t.Errorf("expected sourceId in response, got %q", page.SourceID)
	}
	if len(page.Buckets) != 1 || page.Buckets[0].SampleCount != 1 {
		t.Errorf("expected only web-01's sample, got %+v", page.Buckets)
	}
}

func TestServer_Trend_ExplicitWindow(t *testing.T) {
	ts, _ := newTestServer(t)

	pushSample(t, ts, "web-01")

	start := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(time.Minute).UTC().Format(time.RFC3339)

	var page trendResponse
	resp := getJSON(t, ts, "/api/v1/trend?start="+start+"&end="+end+"&bucket=120", &page)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(page.Buckets) != 1 || page.Buckets[0].SampleCount != 1 {
		t.Errorf("expected 1 bucket with 1 sample, got %+v", page.Buckets)
	}
}

func TestServer_Trend_BadParams(t *testing.T) {
	ts, _ := newTestServer(t)

	paths := []string{
		"/api/v1/trend?bucket=0",
		"/api/v1/trend?bucket=abc",
		"/api/v1/trend?hours=-2",
		"/api/v1/trend?start=2026-03-01T00:00:00Z",
		"/api/v1/trend?start=yesterday&end=today",
	}
	for _, path := range paths {
		resp := getJSON(t, ts, path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestServer_Overview(t *testing.T) {
	ts, _ := newTestServer(t)

	pushSample(t, ts, "web-01")
	pushSample(t, ts, "db-01")
	time.Sleep(5 * time.Millisecond)

	var stats telemetry.OverviewStats
	resp := getJSON(t, ts, "/api/v1/overview?hours=1", &stats)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if stats.TotalSources != 2 {
		t.Errorf("expected 2 sources, got %d", stats.TotalSources)
	}
	if stats.AvgCPU != 42.5 {
		t.Errorf("expected avg cpu 42.5, got %v", stats.AvgCPU)
	}
}

func TestServer_Distribution(t *testing.T) {
	ts, _ := newTestServer(t)

	pushSample(t, ts, "web-01")
	pushSample(t, ts, "db-01")
	time.Sleep(5 * time.Millisecond)

	var dist telemetry.Distribution
	resp := getJSON(t, ts, "/api/v1/distribution?metric=cpu&hours=1", &dist)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if dist.Metric != telemetry.MetricCPU || dist.Count != 2 {
		t.Errorf("unexpected distribution: %+v", dist)
	}

	for _, path := range []string{
		"/api/v1/distribution",
		"/api/v1/distribution?metric=network",
	} {
		resp := getJSON(t, ts, path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestServer_Liveness(t *testing.T) {
	ts, _ := newTestServer(t)

	pushSample(t, ts, "web-01")
	pushSample(t, ts, "db-01")

	var summary LivenessSummary
	resp := getJSON(t, ts, "/api/v1/liveness", &summary)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(summary.Sources) != 2 {
		t.Errorf("expected 2 records, got %d", len(summary.Sources))
	}
	if summary.Online != 2 || summary.Offline != 0 || summary.Inactive != 0 {
		t.Errorf("expected 2/0/0 states, got %d/%d/%d",
			summary.Online, summary.Offline, summary.Inactive)
	}
}

func TestServer_Cleanup(t *testing.T) {
	ts, _ := newTestServer(t)

	pushSample(t, ts, "web-01")

	resp, err := http.Post(ts.URL+"/api/v1/cleanup", "application/json", nil)
	if err != nil {
		t.Fatalf("post cleanup: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var report CleanupReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.SamplesDeleted != 0 || report.SourcesPurged != 0 {
		t.Errorf("fresh sample must survive, got %+v", report)
	}
	if report.DryRun {
		t.Error("real run must not be marked dry")
	}
}

func TestServer_Cleanup_DryRun(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/cleanup?dry_run=true", "application/json", nil)
	if err != nil {
		t.Fatalf("post cleanup: %v", err)
	}
	defer resp.Body.Close()

	var report CleanupReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.DryRun {
		t.Error("expected dry run marker")
	}
}

func TestServer_Stats(t *testing.T) {
	ts, _ := newTestServer(t)

	pushSample(t, ts, "web-01")

	var stats statsResponse
	resp := getJSON(t, ts, "/api/v1/stats", &stats)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !stats.Running {
		t.Error("expected running")
	}
	if stats.Ingestion.Ingested != 1 {
		t.Errorf("expected 1 ingested, got %d", stats.Ingestion.Ingested)
	}
}

func TestServer_Health(t *testing.T) {
	ts, _ := newTestServer(t)

	var status map[string]string
	resp := getJSON(t, ts, "/healthz", &status)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if status["status"] != "ok" {
		t.Errorf("expected ok, got %v", status)
	}
}

func TestServer_Metrics(t *testing.T) {
	ts, _ := newTestServer(t)

	pushSample(t, ts, "web-01")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "fleetmon_samples_ingested_total") {
		t.Error("metrics output missing ingestion counter")
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/samples")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}
