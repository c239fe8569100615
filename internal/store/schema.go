package store

import (
	"context"
	"database/sql"
	"fmt"
)

// =============================================================================
// Schema Migration
// =============================================================================

// migrateSchema creates the samples table and its indexes.
//
// This is idempotent - safe to run multiple times. Both access patterns,
// (source_id, observed_at) for per-source scans and observed_at alone for
// retention sweeps, are load-bearing and get an index.
func migrateSchema(ctx context.Context, db *sql.DB) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "samples",
			sql: `CREATE TABLE IF NOT EXISTS samples (
				source_id   VARCHAR NOT NULL,
				observed_at BIGINT  NOT NULL,
				cpu_pct     DOUBLE  NOT NULL,
				ram_pct     DOUBLE  NOT NULL,
				disk_pct    DOUBLE  NOT NULL,
				os          VARCHAR NOT NULL,
				uptime_sec  BIGINT  NOT NULL
			)`,
		},
		{
			name: "samples.idx_source_time",
			sql:  `CREATE INDEX IF NOT EXISTS idx_samples_source_time ON samples(source_id, observed_at)`,
		},
		{
			name: "samples.idx_time",
			sql:  `CREATE INDEX IF NOT EXISTS idx_samples_time ON samples(observed_at)`,
		},
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}

	return nil
}
