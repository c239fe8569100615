// Package config loads and validates the fleetmon configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	defaults "fleetmon/config"
)

// Config represents the complete fleetmon configuration.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Storage configures the sample store.
	Storage StorageConfig `yaml:"storage"`

	// Liveness holds the classification thresholds.
	Liveness LivenessConfig `yaml:"liveness"`

	// Retention configures the cleanup policy.
	Retention RetentionConfig `yaml:"retention"`

	// Agent configures the per-host collector.
	Agent AgentConfig `yaml:"agent"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`

	// ReadTimeout bounds reading one request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout closes idle keep-alive connections.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the drain window during shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes limits request body size.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// StorageConfig configures the sample store.
type StorageConfig struct {
	// Path is the DuckDB database file. Empty runs in-memory.
	Path string `yaml:"path"`

	// MaxOpenConns caps concurrent database connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the idle connection pool size.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// ConnMaxLifetime recycles connections after this age.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// QueryTimeout bounds any single store operation.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// LivenessConfig holds the classification thresholds.
type LivenessConfig struct {
	// OfflineAfter is the silence after which a source is Offline.
	OfflineAfter time.Duration `yaml:"offline_after"`

	// InactiveAfter is the silence after which a source is Inactive.
	// Must be greater than OfflineAfter.
	InactiveAfter time.Duration `yaml:"inactive_after"`
}

// RetentionConfig configures the cleanup policy.
type RetentionConfig struct {
	// Interval is how often the retention worker runs.
	Interval time.Duration `yaml:"interval"`

	// MaxSampleAge is the age sweep horizon.
	MaxSampleAge time.Duration `yaml:"max_sample_age"`

	// MaxInactiveAge is the source purge horizon.
	// Must be greater than MaxSampleAge.
	MaxInactiveAge time.Duration `yaml:"max_inactive_age"`

	// ArchiveDir receives Parquet exports of deleted samples.
	// Empty disables archiving.
	ArchiveDir string `yaml:"archive_dir"`

	// ArchiveCompression is the Parquet codec:
	// zstd, snappy, lz4, gzip, none.
	ArchiveCompression string `yaml:"archive_compression"`

	// ArchiveMaxAge prunes archive files older than this.
	// Zero keeps archives forever.
	ArchiveMaxAge time.Duration `yaml:"archive_max_age"`
}

// AgentConfig configures the per-host collector.
type AgentConfig struct {
	// Server is the fleetmond base URL, e.g. http://monitor:8787.
	Server string `yaml:"server"`

	// SourceID identifies this host. Empty uses the hostname.
	SourceID string `yaml:"source_id"`

	// Interval is the sample push interval.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds one push request.
	Timeout time.Duration `yaml:"timeout"`

	// DiskPath is the mount point whose usage is reported.
	DiskPath string `yaml:"disk_path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches output from text to JSON.
	JSON bool `yaml:"json"`
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment references ($VAR, ${VAR}) expand before parsing.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          defaults.DefaultListenAddress,
			ReadTimeout:     defaults.DefaultReadTimeoutSec * time.Second,
			WriteTimeout:    defaults.DefaultWriteTimeoutSec * time.Second,
			IdleTimeout:     defaults.DefaultIdleTimeoutSec * time.Second,
			ShutdownTimeout: defaults.DefaultShutdownTimeoutSec * time.Second,
			MaxBodyBytes:    defaults.DefaultMaxBodyBytes,
		},
		Storage: StorageConfig{
			Path:            defaults.DefaultDatabasePath,
			MaxOpenConns:    defaults.DefaultMaxOpenConns,
			MaxIdleConns:    defaults.DefaultMaxIdleConns,
			ConnMaxLifetime: defaults.DefaultConnMaxLifetime,
			QueryTimeout:    defaults.DefaultQueryTimeoutSec * time.Second,
		},
		Liveness: LivenessConfig{
			OfflineAfter:  defaults.DefaultOfflineAfterMin * time.Minute,
			InactiveAfter: defaults.DefaultInactiveAfterHours * time.Hour,
		},
		Retention: RetentionConfig{
			Interval:           defaults.DefaultCleanupIntervalMin * time.Minute,
			MaxSampleAge:       defaults.DefaultMaxSampleAgeHours * time.Hour,
			MaxInactiveAge:     defaults.DefaultMaxInactiveAgeHours * time.Hour,
			ArchiveCompression: defaults.DefaultArchiveCompression,
		},
		Agent: AgentConfig{
			Interval: defaults.DefaultAgentIntervalSec * time.Second,
			Timeout:  defaults.DefaultAgentTimeoutSec * time.Second,
			DiskPath: defaults.DefaultAgentDiskPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
