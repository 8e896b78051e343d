package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// API configuration
	API APIConfig `json:"api" mapstructure:"api"`

	// Authentication configuration
	Auth AuthConfig `json:"auth" mapstructure:"auth"`

	// Storage paths
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Autosave behavior
	Autosave AutosaveConfig `json:"autosave" mapstructure:"autosave"`

	// Realtime update stream
	Updates UpdatesConfig `json:"updates" mapstructure:"updates"`

	// Usage analytics
	Analytics AnalyticsConfig `json:"analytics" mapstructure:"analytics"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`

	// Development options
	Dev DevConfig `json:"dev,omitempty" mapstructure:"dev"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
	UserAgent  string        `json:"user_agent" mapstructure:"user_agent"`
}

// AuthConfig for authentication settings.
type AuthConfig struct {
	// Account credentials; normally the CLI prompts, these exist for
	// non-interactive use.
	Email    string `json:"email,omitempty" mapstructure:"email"`
	Password string `json:"password,omitempty" mapstructure:"password"`

	// Token persistence
	TokenFile string `json:"token_file" mapstructure:"token_file"`
}

// StorageConfig for local file paths.
type StorageConfig struct {
	DataDir      string `json:"data_dir" mapstructure:"data_dir"`           // Base directory for all data
	DraftsDir    string `json:"drafts_dir" mapstructure:"drafts_dir"`      // Draft journal (json backend)
	WorkDir      string `json:"work_dir" mapstructure:"work_dir"`          // Working files for edit sessions
	PrefsFile    string `json:"prefs_file" mapstructure:"prefs_file"`      // Local preference copy
	Backend      string `json:"backend" mapstructure:"backend"`            // Draft backend: json or sqlite
	DatabaseFile string `json:"database_file" mapstructure:"database_file"` // sqlite backend path
}

// AutosaveConfig for save scheduling behavior.
type AutosaveConfig struct {
	DebounceInterval time.Duration `json:"debounce_interval" mapstructure:"debounce_interval"` // Quiet period after the last edit
	RetryInterval    time.Duration `json:"retry_interval" mapstructure:"retry_interval"`       // Delay before re-attempting a failed save
	FlushTimeout     time.Duration `json:"flush_timeout" mapstructure:"flush_timeout"`         // How long Close waits for the final save
}

// UpdatesConfig for the realtime update stream.
type UpdatesConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	PingInterval time.Duration `json:"ping_interval" mapstructure:"ping_interval"`
	Buffer       int           `json:"buffer" mapstructure:"buffer"` // Channel depth before frames drop
}

// AnalyticsConfig for the usage event batcher.
type AnalyticsConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	BatchSize     int           `json:"batch_size" mapstructure:"batch_size"`         // Events per delivery
	FlushInterval time.Duration `json:"flush_interval" mapstructure:"flush_interval"` // Max time an event waits in the queue
	QueueSize     int           `json:"queue_size" mapstructure:"queue_size"`         // Bounded queue; overflow drops
	MaxElapsed    time.Duration `json:"max_elapsed" mapstructure:"max_elapsed"`       // Delivery retry budget per batch
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`             // debug, info, warn, error
	Format     string `json:"format" mapstructure:"format"`           // text, json
	File       string `json:"file" mapstructure:"file"`               // Log file path (empty = stdout)
	MaxSize    int    `json:"max_size" mapstructure:"max_size"`       // Max log file size in MB
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"` // Max number of old logs
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`         // Max age in days
	Color      bool   `json:"color" mapstructure:"color"`             // Enable colored output
	Timestamp  bool   `json:"timestamp" mapstructure:"timestamp"`     // Include timestamps
}

// DevConfig for development/debugging.
type DevConfig struct {
	InsecureSkipVerify bool `json:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// Draft storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".scribe"

	return &Config{
		API: APIConfig{
			BaseURL:    "https://api.daybook.app",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			UserAgent:  "scribe/0.3.0 (daybook-cli)",
		},
		Auth: AuthConfig{
			TokenFile: filepath.Join(dataDir, "token.json"),
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			DraftsDir:    filepath.Join(dataDir, "drafts"),
			WorkDir:      filepath.Join(dataDir, "work"),
			PrefsFile:    filepath.Join(dataDir, "preferences.json"),
			Backend:      BackendJSON,
			DatabaseFile: filepath.Join(dataDir, "drafts.db"),
		},
		Autosave: AutosaveConfig{
			DebounceInterval: 1500 * time.Millisecond,
			RetryInterval:    5 * time.Second,
			FlushTimeout:     10 * time.Second,
		},
		Updates: UpdatesConfig{
			Enabled:      true,
			PingInterval: 30 * time.Second,
			Buffer:       64,
		},
		Analytics: AnalyticsConfig{
			Enabled:       true,
			BatchSize:     20,
			FlushInterval: 30 * time.Second,
			QueueSize:     256,
			MaxElapsed:    2 * time.Minute,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Color:      true,
			Timestamp:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.Autosave.DebounceInterval <= 0 {
		return errors.New("autosave.debounce_interval must be positive")
	}

	if c.Autosave.RetryInterval <= 0 {
		return errors.New("autosave.retry_interval must be positive")
	}

	if c.Autosave.FlushTimeout <= 0 {
		return errors.New("autosave.flush_timeout must be positive")
	}

	switch c.Storage.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Analytics.BatchSize <= 0 {
		return errors.New("analytics.batch_size must be positive")
	}

	if c.Analytics.QueueSize < c.Analytics.BatchSize {
		return errors.New("analytics.queue_size must be at least batch_size")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.Storage.DraftsDir,
		c.Storage.WorkDir,
		filepath.Dir(c.Auth.TokenFile),
		filepath.Dir(c.Storage.PrefsFile),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
