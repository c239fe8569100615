// Package config provides configuration defaults and utilities
// for the fleetmon application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default server listen address.
	// Override via config: server.listen
	DefaultListenAddress = "0.0.0.0:8787"

	// DefaultMaxBodyBytes limits request body size.
	// A sample payload is a few hundred bytes; 1 MiB leaves headroom.
	// Override via config: server.max_body_bytes
	DefaultMaxBodyBytes = 1 * 1024 * 1024

	// DefaultReadTimeoutSec bounds reading one request, header included.
	// Override via config: server.read_timeout
	DefaultReadTimeoutSec = 15

	// DefaultWriteTimeoutSec bounds writing one response.
	// Override via config: server.write_timeout
	DefaultWriteTimeoutSec = 30

	// DefaultIdleTimeoutSec closes keep-alive connections after inactivity.
	// Override via config: server.idle_timeout
	DefaultIdleTimeoutSec = 120
)

// =============================================================================
// Shutdown Defaults
// =============================================================================

const (
	// DefaultShutdownTimeoutSec is how long in-flight requests may drain
	// during shutdown. After this timeout, remaining connections are dropped.
	// Override via config: server.shutdown_timeout
	DefaultShutdownTimeoutSec = 30
)

// =============================================================================
// Storage Defaults
// =============================================================================

const (
	// DefaultDatabasePath is the DuckDB database file.
	// Empty string runs fully in-memory (testing only: no durability).
	// Override via config: storage.path
	DefaultDatabasePath = "/var/lib/fleetmon/fleetmon.db"

	// DefaultMaxOpenConns caps concurrent database connections.
	// Override via config: storage.max_open_conns
	DefaultMaxOpenConns = 25

	// DefaultMaxIdleConns is the idle connection pool size.
	// Override via config: storage.max_idle_conns
	DefaultMaxIdleConns = 5

	// DefaultConnMaxLifetime recycles connections after this age.
	// Override via config: storage.conn_max_lifetime
	DefaultConnMaxLifetime = 5 * time.Minute

	// DefaultQueryTimeoutSec bounds any single store operation.
	// Override via config: storage.query_timeout
	DefaultQueryTimeoutSec = 30
)

// =============================================================================
// Liveness Defaults
// =============================================================================

const (
	// DefaultOfflineAfterMin is how long a source may be silent before it
	// is reported Offline. Must be shorter than the Inactive horizon.
	// Override via config: liveness.offline_after
	DefaultOfflineAfterMin = 5

	// DefaultInactiveAfterHours is how long a source may be silent before
	// it is reported Inactive and becomes a purge candidate.
	// Override via config: liveness.inactive_after
	DefaultInactiveAfterHours = 24
)

// =============================================================================
// Retention Defaults
// =============================================================================

const (
	// DefaultCleanupIntervalMin is how often the retention worker runs.
	// Override via config: retention.interval
	DefaultCleanupIntervalMin = 60

	// DefaultMaxSampleAgeHours is the age sweep horizon. Samples older
	// than this are deleted on every cleanup run.
	// Override via config: retention.max_sample_age
	DefaultMaxSampleAgeHours = 24

	// DefaultMaxInactiveAgeHours is the source purge horizon. Must exceed
	// the sample age so a silent source stays visible before it is purged.
	// Override via config: retention.max_inactive_age
	DefaultMaxInactiveAgeHours = 72

	// DefaultArchiveCompression is the Parquet codec for archived samples.
	// One of: zstd, snappy, lz4, gzip, none.
	// Override via config: retention.archive_compression
	DefaultArchiveCompression = "zstd"
)

// =============================================================================
// Rollup Defaults
// =============================================================================

const (
	// DefaultBucketWidthMin is the trend bucket width.
	// Override via query parameter: bucket
	DefaultBucketWidthMin = 60

	// DefaultTrendWindowHours is the trend window when none is requested.
	// Override via query parameter: hours
	DefaultTrendWindowHours = 24

	// DefaultOverviewWindowHours is the overview and distribution window.
	// Override via query parameter: hours
	DefaultOverviewWindowHours = 24
)

// =============================================================================
// Agent Defaults
// =============================================================================

const (
	// DefaultAgentIntervalSec is the sample push interval.
	// Override via config: agent.interval
	DefaultAgentIntervalSec = 60

	// DefaultAgentJitter spreads push ticks by this fraction of the
	// interval so a fleet restarted together does not thundering-herd.
	DefaultAgentJitter = 0.10

	// DefaultAgentTimeoutSec bounds one push request.
	// Override via config: agent.timeout
	DefaultAgentTimeoutSec = 10

	// DefaultAgentDiskPath is the mount point whose usage is reported.
	// Override via config: agent.disk_path
	DefaultAgentDiskPath = "/"
)
