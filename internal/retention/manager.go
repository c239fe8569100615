// Package retention bounds storage growth by deleting expired samples and
// purging sources that have gone silent for good.
//
// Cleanup is two phases inside one store transaction:
//
//  1. Age sweep: delete every sample observed before now - MaxSampleAge,
//     regardless of the source's liveness state.
//  2. Source purge: for sources classified Inactive whose latest sample is
//     older than MaxInactiveAge, delete all remaining samples, removing the
//     source from every derived view.
//
// Either both phases commit or neither does. Running cleanup twice with the
// same now deletes nothing the second time. Overlapping invocations coalesce
// into a single run.
package retention

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"fleetmon/internal/archive"
	"fleetmon/internal/errors"
	"fleetmon/internal/liveness"
	"fleetmon/internal/logging"
	"fleetmon/internal/store"
	"fleetmon/internal/telemetry"
)

var log = logging.Component("retention")

// =============================================================================
// Configuration
// =============================================================================

// Config holds the retention thresholds and the optional archive settings.
type Config struct {
	// MaxSampleAge is the age sweep horizon. Samples observed before
	// now - MaxSampleAge are deleted on every run.
	MaxSampleAge time.Duration

	// MaxInactiveAge is the source purge horizon. It must exceed
	// MaxSampleAge so a silent source stays visible as Inactive for a
	// while before it disappears.
	MaxInactiveAge time.Duration

	// ArchiveDir, when set, receives a Parquet export of the rows each run
	// deletes. Empty disables archiving.
	ArchiveDir string

	// ArchiveCompression names the Parquet codec: zstd, snappy, lz4, gzip,
	// or none.
	ArchiveCompression string

	// ArchiveMaxAge prunes archive files older than this after each run.
	// Zero keeps archives forever.
	ArchiveMaxAge time.Duration
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() Config {
	return Config{
		MaxSampleAge:       24 * time.Hour,
		MaxInactiveAge:     72 * time.Hour,
		ArchiveCompression: "zstd",
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	verrs := errors.NewValidationErrors()

	if c.MaxSampleAge <= 0 {
		verrs.AddField("maxSampleAge", "must be positive")
	}
	if c.MaxInactiveAge <= 0 {
		verrs.AddField("maxInactiveAge", "must be positive")
	}
	if c.MaxSampleAge > 0 && c.MaxInactiveAge > 0 && c.MaxInactiveAge <= c.MaxSampleAge {
		verrs.AddField("maxInactiveAge", "must be greater than maxSampleAge")
	}
	if c.ArchiveMaxAge < 0 {
		verrs.AddField("archiveMaxAge", "must not be negative")
	}

	return verrs.Err()
}

// =============================================================================
// Manager
// =============================================================================

// CleanupResult reports what a single cleanup run did.
type CleanupResult struct {
	SamplesDeleted int64
	SourcesPurged  int
	ArchivedRows   int64
	ArchivePath    string
	Duration       time.Duration
	DryRun         bool
	Coalesced      bool
}

// Manager runs the cleanup policy against the store.
type Manager struct {
	store      *store.Store
	classifier *liveness.Classifier
	config     Config

	// Overlapping RunCleanup calls coalesce into one run.
	group singleflight.Group

	stats struct {
		runs           atomic.Int64
		failures       atomic.Int64
		samplesDeleted atomic.Int64
		sourcesPurged  atomic.Int64
		archivedRows   atomic.Int64
		lastRunUnix    atomic.Int64
	}
}

// New creates a retention manager. The classifier is the same instance the
// presentation layer uses, so retention and liveness badges can never
// disagree about a source's state.
func New(st *store.Store, classifier *liveness.Classifier, cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		store:      st,
		classifier: classifier,
		config:     cfg,
	}, nil
}

// Config returns the manager's configuration.
func (m *Manager) Config() Config {
	return m.config
}

// RunCleanup executes both cleanup phases for the given now. Concurrent
// callers coalesce onto one run and all receive its result; Coalesced marks
// the callers that did not own the run.
func (m *Manager) RunCleanup(ctx context.Context, now time.Time) (CleanupResult, error) {
	v, err, shared := m.group.Do("cleanup", func() (interface{}, error) {
		return m.runCleanup(ctx, now)
	})
	if err != nil {
		return CleanupResult{}, err
	}

	result := v.(CleanupResult)
	result.Coalesced = shared
	return result, nil
}

// runCleanup does the actual work. Both phases and the archive export run
// against one transaction: any failure rolls every delete back.
func (m *Manager) runCleanup(ctx context.Context, now time.Time) (CleanupResult, error) {
	start := time.Now()
	cutoff := now.Add(-m.config.MaxSampleAge).UnixMilli()
	maxInactiveMs := m.config.MaxInactiveAge.Milliseconds()

	var result CleanupResult
	var archivePath string

	err := m.store.TransactionContext(ctx, func(tx *sql.Tx) error {
		// Purge candidates come from the transaction's own view. A source
		// that wakes up after this point cannot lose its fresh samples.
		latest, err := m.store.LatestAllTx(ctx, tx)
		if err != nil {
			return err
		}
		states := make(map[string]telemetry.Sample, len(latest))
		for _, s := range latest {
			states[s.SourceID] = s
		}

		var purge []string
		for _, rec := range m.classifier.Classify(now, states) {
			if rec.State == telemetry.StateInactive && rec.AgeMs > maxInactiveMs {
				purge = append(purge, rec.SourceID)
			}
		}

		if m.config.ArchiveDir != "" {
			archived, path, err := m.archiveDoomed(ctx, tx, now, cutoff, purge)
			if err != nil {
				return errors.Wrap(err, "archive expired samples")
			}
			result.ArchivedRows = archived
			archivePath = path
		}

		if cutoff > 0 {
			swept, err := m.store.DeleteWhereTx(ctx, tx, store.Filter{Until: cutoff})
			if err != nil {
				return err
			}
			result.SamplesDeleted = swept
		}

		for _, id := range purge {
			n, err := m.store.DeleteWhereTx(ctx, tx, store.Filter{SourceID: id})
			if err != nil {
				return err
			}
			result.SamplesDeleted += n
		}
		result.SourcesPurged = len(purge)
		return nil
	})
	if err != nil {
		m.stats.failures.Add(1)
		if archivePath != "" {
			// The export is orphaned once the deletes roll back.
			os.Remove(archivePath)
		}
		return CleanupResult{}, err
	}

	result.ArchivePath = archivePath
	result.Duration = time.Since(start)

	m.stats.runs.Add(1)
	m.stats.samplesDeleted.Add(result.SamplesDeleted)
	m.stats.sourcesPurged.Add(int64(result.SourcesPurged))
	m.stats.archivedRows.Add(result.ArchivedRows)
	m.stats.lastRunUnix.Store(now.Unix())

	if m.config.ArchiveDir != "" && m.config.ArchiveMaxAge > 0 {
		m.pruneArchives(now)
	}

	log.Info("cleanup complete",
		"samples_deleted", result.SamplesDeleted,
		"sources_purged", result.SourcesPurged,
		"archived_rows", result.ArchivedRows,
		"duration", result.Duration)

	return result, nil
}

// archiveDoomed exports every row the current run is about to delete. With
// no doomed rows, no file is written.
func (m *Manager) archiveDoomed(ctx context.Context, tx *sql.Tx, now time.Time, cutoff int64, purge []string) (int64, string, error) {
	var doomed []telemetry.Sample

	if cutoff > 0 {
		swept, err := m.store.QuerySamplesTx(ctx, tx, store.Filter{Until: cutoff})
		if err != nil {
			return 0, "", err
		}
		doomed = swept
	}

	// Rows of purged sources not already below the cutoff.
	for _, id := range purge {
		rest, err := m.store.QuerySamplesTx(ctx, tx, store.Filter{SourceID: id, Since: cutoff})
		if err != nil {
			return 0, "", err
		}
		doomed = append(doomed, rest...)
	}

	if len(doomed) == 0 {
		return 0, "", nil
	}

	opts := archive.DefaultOptions()
	opts.Compression = archive.ParseCompressionType(m.config.ArchiveCompression)

	path := filepath.Join(m.config.ArchiveDir, archive.FileName(now))
	w, err := archive.NewWriter(path, opts)
	if err != nil {
		return 0, "", err
	}
	if err := w.Write(doomed); err != nil {
		w.Close()
		os.Remove(path)
		return 0, "", err
	}
	if err := w.Close(); err != nil {
		os.Remove(path)
		return 0, "", err
	}

	return w.RowCount(), path, nil
}

// pruneArchives removes archive files older than ArchiveMaxAge. Pruning is
// best-effort and never fails a cleanup run.
func (m *Manager) pruneArchives(now time.Time) {
	cutoff := now.Add(-m.config.ArchiveMaxAge)

	entries, err := os.ReadDir(m.config.ArchiveDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("list archives", "error", err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".parquet" {
			continue
		}
		fileTime, err := archive.ParseFileTime(entry.Name())
		if err != nil {
			continue
		}
		if fileTime.After(cutoff) {
			continue
		}

		path := filepath.Join(m.config.ArchiveDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Warn("prune archive", "path", path, "error", err)
		}
	}
}

// DryRun reports what a cleanup at now would delete without deleting
// anything or writing archives.
func (m *Manager) DryRun(ctx context.Context, now time.Time) (CleanupResult, error) {
	start := time.Now()
	cutoff := now.Add(-m.config.MaxSampleAge).UnixMilli()
	maxInactiveMs := m.config.MaxInactiveAge.Milliseconds()

	result := CleanupResult{DryRun: true}

	if cutoff > 0 {
		n, err := m.store.CountSamples(ctx, store.Filter{Until: cutoff})
		if err != nil {
			return CleanupResult{}, err
		}
		result.SamplesDeleted = n
	}

	records, err := m.classifier.Snapshot(ctx, now)
	if err != nil {
		return CleanupResult{}, err
	}
	for _, rec := range records {
		if rec.State != telemetry.StateInactive || rec.AgeMs <= maxInactiveMs {
			continue
		}
		result.SourcesPurged++

		n, err := m.store.CountSamples(ctx, store.Filter{SourceID: rec.SourceID, Since: cutoff})
		if err != nil {
			return CleanupResult{}, err
		}
		result.SamplesDeleted += n
	}

	result.Duration = time.Since(start)
	return result, nil
}

// =============================================================================
// Stats
// =============================================================================

// ManagerStats is a point-in-time view of the manager's counters.
type ManagerStats struct {
	Runs           int64
	Failures       int64
	SamplesDeleted int64
	SourcesPurged  int64
	ArchivedRows   int64
	LastRun        time.Time
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	s := ManagerStats{
		Runs:           m.stats.runs.Load(),
		Failures:       m.stats.failures.Load(),
		SamplesDeleted: m.stats.samplesDeleted.Load(),
		SourcesPurged:  m.stats.sourcesPurged.Load(),
		ArchivedRows:   m.stats.archivedRows.Load(),
	}
	if unix := m.stats.lastRunUnix.Load(); unix > 0 {
		s.LastRun = time.Unix(unix, 0)
	}
	return s
}
