package telemetry

import (
	"time"

	"fleetmon/internal/errors"
)

// Bucket is one fixed-width time window of averaged metrics, scoped to a
// single source or blended across the fleet. Buckets with zero samples are
// never emitted.
type Bucket struct {
	Start       int64   `json:"start"` // Unix ms, inclusive
	End         int64   `json:"end"`   // Unix ms, exclusive
	AvgCPU      float64 `json:"avgCpu"`
	AvgRAM      float64 `json:"avgRam"`
	AvgDisk     float64 `json:"avgDisk"`
	SampleCount int64   `json:"sampleCount"`
}

// StartTime returns the bucket start as a time.Time.
func (b *Bucket) StartTime() time.Time {
	return time.UnixMilli(b.Start)
}

// EndTime returns the bucket end as a time.Time.
func (b *Bucket) EndTime() time.Time {
	return time.UnixMilli(b.End)
}

// Duration returns the bucket span. The final bucket of a window may be
// shorter than the requested width.
func (b *Bucket) Duration() time.Duration {
	return time.Duration(b.End-b.Start) * time.Millisecond
}

// OverviewStats is the fleet-wide snapshot over a trailing window.
// TotalSources counts distinct sources contributing at least one sample in
// the window, not currently-online sources.
type OverviewStats struct {
	AvgCPU       float64 `json:"avgCpu"`
	AvgRAM       float64 `json:"avgRam"`
	AvgDisk      float64 `json:"avgDisk"`
	TotalSources int     `json:"totalSources"`
	SampleCount  int64   `json:"sampleCount"`
	WindowStart  int64   `json:"windowStart"` // Unix ms, inclusive
	WindowEnd    int64   `json:"windowEnd"`   // Unix ms, exclusive
}

// Metric identifies one of the sampled resource percentages.
type Metric string

const (
	MetricCPU  Metric = "cpu"
	MetricRAM  Metric = "ram"
	MetricDisk Metric = "disk"
)

// ParseMetric validates a metric name from a query parameter.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCPU, MetricRAM, MetricDisk:
		return Metric(s), nil
	default:
		return "", errors.NewRange("metric", "must be one of cpu, ram, disk")
	}
}

// Distribution describes how one metric is spread across all samples in a
// trailing window. Quantiles are sketch-estimated; Count of zero means the
// window held no samples and the remaining fields are zero.
type Distribution struct {
	Metric      Metric  `json:"metric"`
	Count       int64   `json:"count"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Avg         float64 `json:"avg"`
	P50         float64 `json:"p50"`
	P90         float64 `json:"p90"`
	P99         float64 `json:"p99"`
	WindowStart int64   `json:"windowStart"`
	WindowEnd   int64   `json:"windowEnd"`
}
