package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds arcbox runtime configuration.
type Config struct {
	// WorkDir is the working directory containers and staged files live in.
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`

	// Extension is the file extension for new containers.
	Extension string `yaml:"extension" mapstructure:"extension"`

	// Compression is the method for newly written entries:
	// "store", "deflate" (default) or "zstd".
	Compression string `yaml:"compression" mapstructure:"compression"`

	// CompressionLevel is passed to the codec. Zero keeps the codec default.
	CompressionLevel int `yaml:"compression_level,omitempty" mapstructure:"compression_level"`

	// FileMode is the octal permission for new container and staged files,
	// written as a quoted string ("0640"). Existing files keep their own.
	FileMode string `yaml:"file_mode" mapstructure:"file_mode"`

	// Encoding is the on-disk text encoding for staged text files.
	Encoding string `yaml:"encoding" mapstructure:"encoding"`

	// CatalogPath is the path to the SQLite catalog of registered containers.
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`

	// LockDir holds one lock file per container.
	LockDir string `yaml:"lock_dir" mapstructure:"lock_dir"`

	// LogLevel is the minimum zap level: debug, info, warn or error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	// StaleTempAge is how old a leftover temp file must be before gc removes it.
	StaleTempAge time.Duration `yaml:"stale_temp_age" mapstructure:"stale_temp_age"`

	// EventRetention is how long catalog events are kept by gc. Zero keeps
	// them forever.
	EventRetention time.Duration `yaml:"event_retention,omitempty" mapstructure:"event_retention"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	arcDir := filepath.Join(homeDir, ".arcbox")

	return &Config{
		WorkDir:      filepath.Join(arcDir, "work"),
		Extension:    "zip",
		Compression:  "deflate",
		FileMode:     "0644",
		Encoding:     "utf-8",
		CatalogPath:  filepath.Join(arcDir, "catalog.db"),
		LockDir:      filepath.Join(arcDir, "locks"),
		LogLevel:     "warn",
		StaleTempAge: time.Hour,
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".arcbox", "config.yaml")
}

// EnsureDirs creates all required directories.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.WorkDir,
		filepath.Dir(c.CatalogPath),
		c.LockDir,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	if c.CatalogPath == "" {
		return fmt.Errorf("catalog_path is required")
	}
	if c.Extension == "" {
		return fmt.Errorf("extension is required")
	}
	switch c.Compression {
	case "", "store", "deflate", "zstd":
	default:
		return fmt.Errorf("compression %q: want store, deflate or zstd", c.Compression)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	if _, err := c.Perm(); err != nil {
		return err
	}
	if c.StaleTempAge < 0 {
		return fmt.Errorf("stale_temp_age must not be negative")
	}
	return nil
}

// Perm parses FileMode. Empty means 0644.
func (c *Config) Perm() (os.FileMode, error) {
	if c.FileMode == "" {
		return 0644, nil
	}
	mode, err := strconv.ParseUint(c.FileMode, 8, 32)
	if err != nil || mode == 0 || mode > 0777 {
		return 0, fmt.Errorf("file_mode %q: want an octal permission such as 0644", c.FileMode)
	}
	return os.FileMode(mode), nil
}
