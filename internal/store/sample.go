package store

import (
	"context"
	"database/sql"
	"strings"

	"fleetmon/internal/errors"
	"fleetmon/internal/telemetry"
)

// sampleColumns is the column list shared by every sample query.
const sampleColumns = `source_id, observed_at, cpu_pct, ram_pct, disk_pct, os, uptime_sec`

// Filter selects samples by source and observation time.
// Zero values leave the corresponding bound open.
type Filter struct {
	SourceID string // empty matches all sources
	Since    int64  // Unix ms, inclusive lower bound
	Until    int64  // Unix ms, exclusive upper bound
}

// where renders the filter as a WHERE clause with its arguments.
func (f Filter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.SourceID != "" {
		conds = append(conds, "source_id = ?")
		args = append(args, f.SourceID)
	}
	if f.Since > 0 {
		conds = append(conds, "observed_at >= ?")
		args = append(args, f.Since)
	}
	if f.Until > 0 {
		conds = append(conds, "observed_at < ?")
		args = append(args, f.Until)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ============================================================================
// Writes
// ============================================================================

// Append persists a single sample. The row is fully written or absent;
// a single INSERT never leaves a partial sample behind.
func (s *Store) Append(ctx context.Context, sample telemetry.Sample) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO samples (source_id, observed_at, cpu_pct, ram_pct, disk_pct, os, uptime_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sample.SourceID, sample.ObservedAt, sample.CPU, sample.RAM, sample.Disk,
		sample.OS, sample.UptimeSeconds)
	if err != nil {
		return errors.WrapUnavailable("insert sample", err)
	}
	return nil
}

// maxSamplesPerInsert bounds the parameters per multi-row INSERT.
// 7 columns * 100 rows = 700 parameters per statement.
const maxSamplesPerInsert = 100

// AppendBatch persists multiple samples with multi-row INSERTs, chunked so
// no statement exceeds the parameter limit. Large batches run inside one
// transaction so the batch is all-or-nothing.
func (s *Store) AppendBatch(ctx context.Context, samples []telemetry.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	if len(samples) <= maxSamplesPerInsert {
		query, args := buildMultiRowInsert(samples)
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return errors.WrapUnavailable("insert samples", err)
		}
		return nil
	}

	return s.TransactionContext(ctx, func(tx *sql.Tx) error {
		for i := 0; i < len(samples); i += maxSamplesPerInsert {
			end := i + maxSamplesPerInsert
			if end > len(samples) {
				end = len(samples)
			}
			query, args := buildMultiRowInsert(samples[i:end])
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return errors.WrapUnavailable("insert samples", err)
			}
		}
		return nil
	})
}

// buildMultiRowInsert builds a multi-row INSERT statement.
func buildMultiRowInsert(samples []telemetry.Sample) (string, []interface{}) {
	const columnsPerRow = 7

	args := make([]interface{}, 0, len(samples)*columnsPerRow)

	var query strings.Builder
	query.Grow(120 + len(samples)*20)
	query.WriteString(`INSERT INTO samples (` + sampleColumns + `) VALUES `)

	for i := range samples {
		if i > 0 {
			query.WriteByte(',')
		}
		query.WriteString("(?,?,?,?,?,?,?)")

		args = append(args,
			samples[i].SourceID,
			samples[i].ObservedAt,
			samples[i].CPU,
			samples[i].RAM,
			samples[i].Disk,
			samples[i].OS,
			samples[i].UptimeSeconds,
		)
	}

	return query.String(), args
}

// ============================================================================
// Reads
// ============================================================================

// QuerySamples returns samples matching the filter, ordered ascending by
// observed_at so windowing consumers can stream them.
func (s *Store) QuerySamples(ctx context.Context, f Filter) ([]telemetry.Sample, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	where, args := f.where()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM samples`+where+` ORDER BY observed_at ASC`, args...)
	if err != nil {
		return nil, errors.WrapUnavailable("query samples", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// CountSamples returns the number of samples matching the filter.
func (s *Store) CountSamples(ctx context.Context, f Filter) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	where, args := f.where()
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM samples`+where, args...).Scan(&count)
	if err != nil {
		return 0, errors.WrapUnavailable("count samples", err)
	}
	return count, nil
}

// LatestAll returns the most recent sample per source, one row per distinct
// source_id. Ties on observed_at resolve to the latest inserted row (rowid
// order), which keeps the projection deterministic.
func (s *Store) LatestAll(ctx context.Context) ([]telemetry.Sample, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sampleColumns+`
		FROM (
			SELECT `+sampleColumns+`,
			       row_number() OVER (PARTITION BY source_id ORDER BY observed_at DESC, rowid DESC) AS rn
			FROM samples
		) AS latest
		WHERE rn = 1
		ORDER BY source_id
	`)
	if err != nil {
		return nil, errors.WrapUnavailable("query latest samples", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// LatestOne returns the most recent sample for one source. Ties resolve the
// same way as LatestAll. Returns a source not-found error when the source
// has no samples.
func (s *Store) LatestOne(ctx context.Context, sourceID string) (telemetry.Sample, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var sample telemetry.Sample
	err := s.db.QueryRowContext(ctx, `
		SELECT `+sampleColumns+`
		FROM samples
		WHERE source_id = ?
		ORDER BY observed_at DESC, rowid DESC
		LIMIT 1
	`, sourceID).Scan(
		&sample.SourceID, &sample.ObservedAt, &sample.CPU, &sample.RAM,
		&sample.Disk, &sample.OS, &sample.UptimeSeconds,
	)
	if err == sql.ErrNoRows {
		return telemetry.Sample{}, errors.NewSourceNotFound(sourceID)
	}
	if err != nil {
		return telemetry.Sample{}, errors.WrapUnavailable("query latest sample", err)
	}
	return sample, nil
}

// LastSeen returns the latest observation timestamp per source.
func (s *Store) LastSeen(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, MAX(observed_at) FROM samples GROUP BY source_id
	`)
	if err != nil {
		return nil, errors.WrapUnavailable("query last seen", err)
	}
	defer rows.Close()

	seen := make(map[string]int64)
	for rows.Next() {
		var id string
		var ts int64
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, errors.WrapUnavailable("scan last seen", err)
		}
		seen[id] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapUnavailable("iterate last seen", err)
	}
	return seen, nil
}

// LatestAllTx is LatestAll inside a caller-owned transaction. Retention
// selects purge candidates from the transaction's own view so the selection
// and the deletes see the same data.
func (s *Store) LatestAllTx(ctx context.Context, tx *sql.Tx) ([]telemetry.Sample, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+sampleColumns+`
		FROM (
			SELECT `+sampleColumns+`,
			       row_number() OVER (PARTITION BY source_id ORDER BY observed_at DESC, rowid DESC) AS rn
			FROM samples
		) AS latest
		WHERE rn = 1
		ORDER BY source_id
	`)
	if err != nil {
		return nil, errors.WrapUnavailable("query latest samples", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// scanSamples drains a sample row set.
func scanSamples(rows *sql.Rows) ([]telemetry.Sample, error) {
	samples := make([]telemetry.Sample, 0, 64)
	for rows.Next() {
		var sample telemetry.Sample
		if err := rows.Scan(
			&sample.SourceID, &sample.ObservedAt, &sample.CPU, &sample.RAM,
			&sample.Disk, &sample.OS, &sample.UptimeSeconds,
		); err != nil {
			return nil, errors.WrapUnavailable("scan sample", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapUnavailable("iterate samples", err)
	}
	return samples, nil
}

// ============================================================================
// Deletes
// ============================================================================

// DeleteWhere deletes samples matching the filter and reports how many
// rows went away.
func (s *Store) DeleteWhere(ctx context.Context, f Filter) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	where, args := f.where()
	result, err := s.db.ExecContext(ctx, `DELETE FROM samples`+where, args...)
	if err != nil {
		return 0, errors.WrapUnavailable("delete samples", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.WrapUnavailable("delete samples", err)
	}
	return n, nil
}

// DeleteWhereTx is DeleteWhere inside a caller-owned transaction. Retention
// uses it to make its multi-step sweep all-or-nothing.
func (s *Store) DeleteWhereTx(ctx context.Context, tx *sql.Tx, f Filter) (int64, error) {
	where, args := f.where()
	result, err := tx.ExecContext(ctx, `DELETE FROM samples`+where, args...)
	if err != nil {
		return 0, errors.WrapUnavailable("delete samples", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.WrapUnavailable("delete samples", err)
	}
	return n, nil
}

// QuerySamplesTx is QuerySamples inside a caller-owned transaction, used to
// snapshot rows that are about to be deleted by the same transaction.
func (s *Store) QuerySamplesTx(ctx context.Context, tx *sql.Tx, f Filter) ([]telemetry.Sample, error) {
	where, args := f.where()
	rows, err := tx.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM samples`+where+` ORDER BY observed_at ASC`, args...)
	if err != nil {
		return nil, errors.WrapUnavailable("query samples", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}
