// Package rollup computes time-bucketed averages and fleet-wide statistics
// from the sample store.
//
// Every result is recomputed from the store on each call. Nothing here is
// cached or incrementally maintained: a rollup is always the current truth
// of the persisted samples. Percentages are carried at full precision and
// rounded to two decimals only when a result is materialized.
package rollup

import (
	"context"
	"math"
	"time"

	"fleetmon/internal/errors"
	"fleetmon/internal/store"
	"fleetmon/internal/telemetry"
)

// Engine answers trend, overview, and distribution queries.
type Engine struct {
	store *store.Store
}

// NewEngine creates an engine bound to the store.
func NewEngine(st *store.Store) *Engine {
	return &Engine{store: st}
}

// TrendOptions describes one rollup request over the half-open window
// [WindowStart, WindowEnd).
type TrendOptions struct {
	SourceID    string // empty blends all sources into one fleet average
	WindowStart time.Time
	WindowEnd   time.Time
	BucketWidth time.Duration
}

// validate rejects malformed windows before any store work happens.
func (o TrendOptions) validate() error {
	if o.BucketWidth < time.Millisecond {
		return errors.NewRange("bucketWidth", "must be at least one millisecond")
	}
	if o.WindowEnd.UnixMilli() <= o.WindowStart.UnixMilli() {
		return errors.NewRange("window", "windowEnd must be after windowStart")
	}
	return nil
}

// Trend returns the bucketed averages for the window, earliest bucket
// first. Buckets are aligned to WindowStart; the final bucket keeps its
// actual (possibly shorter) span when the window is not a width multiple.
// Buckets without samples are omitted, never emitted as zero entries.
func (e *Engine) Trend(ctx context.Context, opts TrendOptions) ([]telemetry.Bucket, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	startMs := opts.WindowStart.UnixMilli()
	endMs := opts.WindowEnd.UnixMilli()
	widthMs := opts.BucketWidth.Milliseconds()

	rows, err := e.store.BucketStats(ctx, store.BucketQuery{
		SourceID:    opts.SourceID,
		WindowStart: startMs,
		WindowEnd:   endMs,
		WidthMs:     widthMs,
	})
	if err != nil {
		return nil, err
	}

	buckets := make([]telemetry.Bucket, 0, len(rows))
	for _, row := range rows {
		bucketStart := startMs + row.Index*widthMs
		bucketEnd := bucketStart + widthMs
		if bucketEnd > endMs {
			bucketEnd = endMs
		}

		buckets = append(buckets, telemetry.Bucket{
			Start:       bucketStart,
			End:         bucketEnd,
			AvgCPU:      round2(row.AvgCPU),
			AvgRAM:      round2(row.AvgRAM),
			AvgDisk:     round2(row.AvgDisk),
			SampleCount: row.Count,
		})
	}
	return buckets, nil
}

// Overview returns the fleet-wide snapshot over the trailing window ending
// at now. TotalSources counts distinct sources with at least one sample in
// the window, regardless of their liveness state.
func (e *Engine) Overview(ctx context.Context, now time.Time, window time.Duration) (telemetry.OverviewStats, error) {
	if window <= 0 {
		return telemetry.OverviewStats{}, errors.NewRange("window", "must be positive")
	}

	endMs := now.UnixMilli()
	startMs := endMs - window.Milliseconds()

	agg, err := e.store.WindowStats(ctx, startMs, endMs)
	if err != nil {
		return telemetry.OverviewStats{}, err
	}

	return telemetry.OverviewStats{
		AvgCPU:       round2(agg.AvgCPU),
		AvgRAM:       round2(agg.AvgRAM),
		AvgDisk:      round2(agg.AvgDisk),
		TotalSources: agg.SourceCount,
		SampleCount:  agg.SampleCount,
		WindowStart:  startMs,
		WindowEnd:    endMs,
	}, nil
}

// Distribution streams one metric's values from the trailing window
// through an accumulator and reports sketch-estimated quantiles. An empty
// window yields a zero distribution with Count 0.
func (e *Engine) Distribution(ctx context.Context, now time.Time, window time.Duration, metric telemetry.Metric) (telemetry.Distribution, error) {
	if window <= 0 {
		return telemetry.Distribution{}, errors.NewRange("window", "must be positive")
	}
	if _, err := telemetry.ParseMetric(string(metric)); err != nil {
		return telemetry.Distribution{}, err
	}

	endMs := now.UnixMilli()
	startMs := endMs - window.Milliseconds()

	values, err := e.store.MetricValues(ctx, metric, startMs, endMs)
	if err != nil {
		return telemetry.Distribution{}, err
	}

	dist := telemetry.Distribution{
		Metric:      metric,
		WindowStart: startMs,
		WindowEnd:   endMs,
	}
	if len(values) == 0 {
		return dist, nil
	}

	acc := NewAccumulator()
	for _, v := range values {
		acc.Add(v)
	}

	summary := acc.Result()
	dist.Count = summary.Count
	dist.Min = round2(summary.Min)
	dist.Max = round2(summary.Max)
	dist.Avg = round2(summary.Avg)
	dist.P50 = round2(summary.P50)
	dist.P90 = round2(summary.P90)
	dist.P99 = round2(summary.P99)
	return dist, nil
}

// round2 rounds to two decimal digits, half away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
