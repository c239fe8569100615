package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := c.Liveness.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("liveness: %w", err))
	}
	if err := c.Retention.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retention: %w", err))
	}
	if err := c.Agent.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("agent: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("read_timeout must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("write_timeout must be positive"))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, errors.New("idle_timeout must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max_body_bytes must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the storage configuration.
func (c *StorageConfig) Validate() error {
	var errs []error

	if c.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("max_open_conns must be positive"))
	}
	if c.MaxIdleConns < 0 {
		errs = append(errs, errors.New("max_idle_conns must be non-negative"))
	}
	if c.ConnMaxLifetime <= 0 {
		errs = append(errs, errors.New("conn_max_lifetime must be positive"))
	}
	if c.QueryTimeout <= 0 {
		errs = append(errs, errors.New("query_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the liveness thresholds.
func (c *LivenessConfig) Validate() error {
	var errs []error

	if c.OfflineAfter <= 0 {
		errs = append(errs, errors.New("offline_after must be positive"))
	}
	if c.InactiveAfter <= 0 {
		errs = append(errs, errors.New("inactive_after must be positive"))
	}
	if c.OfflineAfter > 0 && c.InactiveAfter > 0 && c.OfflineAfter >= c.InactiveAfter {
		errs = append(errs, errors.New("offline_after must be less than inactive_after"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the retention configuration.
func (c *RetentionConfig) Validate() error {
	var errs []error

	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.MaxSampleAge <= 0 {
		errs = append(errs, errors.New("max_sample_age must be positive"))
	}
	if c.MaxInactiveAge <= 0 {
		errs = append(errs, errors.New("max_inactive_age must be positive"))
	}
	if c.MaxSampleAge > 0 && c.MaxInactiveAge > 0 && c.MaxInactiveAge <= c.MaxSampleAge {
		errs = append(errs, errors.New("max_inactive_age must be greater than max_sample_age"))
	}

	validCodecs := map[string]bool{
		"snappy": true,
		"zstd":   true,
		"lz4":    true,
		"gzip":   true,
		"none":   true,
		"":       true, // Empty defaults to zstd
	}
	if !validCodecs[c.ArchiveCompression] {
		errs = append(errs, errors.New("archive_compression must be one of: snappy, zstd, lz4, gzip, none"))
	}

	if c.ArchiveMaxAge < 0 {
		errs = append(errs, errors.New("archive_max_age must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the agent configuration. The server URL is checked by the
// agent binary at startup, not here: the daemon never needs it.
func (c *AgentConfig) Validate() error {
	var errs []error

	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.DiskPath == "" {
		errs = append(errs, errors.New("disk_path is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"":      true, // Empty defaults to info
	}
	if !validLevels[c.Level] {
		return errors.New("level must be one of: debug, info, warn, error")
	}
	return nil
}

// EnsureDirectories creates the directories the configuration refers to.
func (c *Config) EnsureDirectories() error {
	var dirs []string

	if c.Storage.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}
	if c.Retention.ArchiveDir != "" {
		dirs = append(dirs, c.Retention.ArchiveDir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
