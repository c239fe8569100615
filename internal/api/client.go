package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	defaults "fleetmon/config"
	"fleetmon/internal/errors"
	"fleetmon/internal/telemetry"
)

// Client is a typed HTTP client for the fleetmon API. The agent uses it
// to push samples; operator tooling uses it for queries.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the server at baseURL. A non-positive
// timeout falls back to the default agent timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaults.DefaultAgentTimeoutSec * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// PushSample submits a reading and returns the stored sample with its
// server-assigned observation time.
func (c *Client) PushSample(ctx context.Context, in telemetry.NewSample) (telemetry.Sample, error) {
	var sample telemetry.Sample
	err := c.postJSON(ctx, "/api/v1/samples", in, &sample)
	return sample, err
}

// Sources returns every known source with its latest sample and state.
func (c *Client) Sources(ctx context.Context) ([]SourceStatus, error) {
	var page sourcesResponse
	if err := c.getJSON(ctx, "/api/v1/sources", &page); err != nil {
		return nil, err
	}
	return page.Sources, nil
}

// Source returns a single source's latest sample and state.
func (c *Client) Source(ctx context.Context, id string) (SourceStatus, error) {
	var status SourceStatus
	err := c.getJSON(ctx, "/api/v1/sources/"+url.PathEscape(id), &status)
	return status, err
}

// Trend returns bucketed averages over the trailing window. An empty
// sourceID aggregates across the whole fleet.
func (c *Client) Trend(ctx context.Context, sourceID string, hours, bucketMin int) ([]telemetry.Bucket, error) {
	path := "/api/v1/trend"
	if sourceID != "" {
		path = "/api/v1/sources/" + url.PathEscape(sourceID) + "/trend"
	}

	q := url.Values{}
	if hours > 0 {
		q.Set("hours", strconv.Itoa(hours))
	}
	if bucketMin > 0 {
		q.Set("bucket", strconv.Itoa(bucketMin))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp trendResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Buckets, nil
}

// Overview returns fleet-wide averages over the trailing window.
func (c *Client) Overview(ctx context.Context, hours int) (telemetry.OverviewStats, error) {
	path := "/api/v1/overview"
	if hours > 0 {
		path += "?hours=" + strconv.Itoa(hours)
	}
	var stats telemetry.OverviewStats
	err := c.getJSON(ctx, path, &stats)
	return stats, err
}

// Distribution returns percentile statistics for one metric.
func (c *Client) Distribution(ctx context.Context, metric telemetry.Metric, hours int) (telemetry.Distribution, error) {
	q := url.Values{"metric": {string(metric)}}
	if hours > 0 {
		q.Set("hours", strconv.Itoa(hours))
	}
	var dist telemetry.Distribution
	err := c.getJSON(ctx, "/api/v1/distribution?"+q.Encode(), &dist)
	return dist, err
}

// Liveness returns every source's state with per-state totals.
func (c *Client) Liveness(ctx context.Context) (LivenessSummary, error) {
	var summary LivenessSummary
	err := c.getJSON(ctx, "/api/v1/liveness", &summary)
	return summary, err
}

// TriggerCleanup runs a retention cleanup on the server. With dryRun the
// server reports what would be removed without deleting anything.
func (c *Client) TriggerCleanup(ctx context.Context, dryRun bool) (CleanupReport, error) {
	path := "/api/v1/cleanup"
	if dryRun {
		path += "?dry_run=true"
	}
	var report CleanupReport
	err := c.postJSON(ctx, path, nil, &report)
	return report, err
}

// Health probes the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/healthz", nil)
}

// =============================================================================
// Transport helpers
// =============================================================================

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeAPIError rebuilds a typed failure from an error payload so
// callers can branch on the error kind instead of the status text.
func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Error == "" {
		return fmt.Errorf("request failed: %s", resp.Status)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.Wrap(errors.ErrNotFound, payload.Error)
	case http.StatusBadRequest:
		return errors.Wrap(errors.ErrValidation, payload.Error)
	case http.StatusServiceUnavailable:
		return errors.Wrap(errors.ErrStoreUnavailable, payload.Error)
	default:
		return fmt.Errorf("request failed: %s: %s", resp.Status, payload.Error)
	}
}
