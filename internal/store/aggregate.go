package store

import (
	"context"
	"database/sql"

	"fleetmon/internal/errors"
	"fleetmon/internal/telemetry"
)

// BucketQuery describes one bucketed aggregation pass over a half-open
// window. Buckets are aligned to WindowStart, not to the epoch.
type BucketQuery struct {
	SourceID    string // empty blends all sources
	WindowStart int64  // Unix ms, inclusive
	WindowEnd   int64  // Unix ms, exclusive
	WidthMs     int64  // bucket width, > 0
}

// BucketRow is one non-empty bucket as the engine returns it: the bucket
// index relative to WindowStart plus the per-metric means.
type BucketRow struct {
	Index   int64
	AvgCPU  float64
	AvgRAM  float64
	AvgDisk float64
	Count   int64
}

// WindowAgg aggregates a whole window in one pass.
type WindowAgg struct {
	SampleCount int64
	SourceCount int
	AvgCPU      float64
	AvgRAM      float64
	AvgDisk     float64
}

// BucketStats computes per-bucket arithmetic means in a single GROUP BY.
// Only buckets that hold at least one sample come back; callers translate
// Index into absolute bucket bounds. Results are ordered by Index.
func (s *Store) BucketStats(ctx context.Context, q BucketQuery) ([]BucketRow, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `
		SELECT (observed_at - ?) // ? AS bucket_idx,
		       AVG(cpu_pct), AVG(ram_pct), AVG(disk_pct), COUNT(*)
		FROM samples
		WHERE observed_at >= ? AND observed_at < ?`
	args := []interface{}{q.WindowStart, q.WidthMs, q.WindowStart, q.WindowEnd}

	if q.SourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, q.SourceID)
	}
	query += ` GROUP BY bucket_idx ORDER BY bucket_idx`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapUnavailable("query bucket stats", err)
	}
	defer rows.Close()

	buckets := make([]BucketRow, 0, 32)
	for rows.Next() {
		var b BucketRow
		if err := rows.Scan(&b.Index, &b.AvgCPU, &b.AvgRAM, &b.AvgDisk, &b.Count); err != nil {
			return nil, errors.WrapUnavailable("scan bucket stats", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapUnavailable("iterate bucket stats", err)
	}
	return buckets, nil
}

// WindowStats aggregates all samples in [startMs, endMs) across every
// source: blended means plus the distinct-source count.
func (s *Store) WindowStats(ctx context.Context, startMs, endMs int64) (WindowAgg, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var agg WindowAgg
	var avgCPU, avgRAM, avgDisk sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT source_id),
		       AVG(cpu_pct), AVG(ram_pct), AVG(disk_pct)
		FROM samples
		WHERE observed_at >= ? AND observed_at < ?
	`, startMs, endMs).Scan(&agg.SampleCount, &agg.SourceCount, &avgCPU, &avgRAM, &avgDisk)
	if err != nil {
		return WindowAgg{}, errors.WrapUnavailable("query window stats", err)
	}

	// AVG over zero rows is NULL; the zero value is the right answer then.
	agg.AvgCPU = avgCPU.Float64
	agg.AvgRAM = avgRAM.Float64
	agg.AvgDisk = avgDisk.Float64
	return agg, nil
}

// metricColumn maps a metric to its column. The mapping is fixed, so metric
// names never reach the SQL text as user input.
func metricColumn(metric telemetry.Metric) string {
	switch metric {
	case telemetry.MetricRAM:
		return "ram_pct"
	case telemetry.MetricDisk:
		return "disk_pct"
	default:
		return "cpu_pct"
	}
}

// MetricValues streams one metric's raw values inside [startMs, endMs),
// feeding sketch-based distribution estimates.
func (s *Store) MetricValues(ctx context.Context, metric telemetry.Metric, startMs, endMs int64) ([]float64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+metricColumn(metric)+` FROM samples WHERE observed_at >= ? AND observed_at < ?`,
		startMs, endMs)
	if err != nil {
		return nil, errors.WrapUnavailable("query metric values", err)
	}
	defer rows.Close()

	values := make([]float64, 0, 256)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, errors.WrapUnavailable("scan metric value", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapUnavailable("iterate metric values", err)
	}
	return values, nil
}
