package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources. Precedence is
// environment over file over defaults, with a SCRIBE_ prefix on environment
// keys (SCRIBE_API_BASE_URL overrides api.base_url).
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty configPath searches the
// default locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetEnvPrefix("SCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		configPath: configPath,
		v:          v,
	}
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.seedDefaults(cfg)

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		l.v.SetConfigName("scribe")
		l.v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(homeDir, ".config", "scribe"))
			l.v.AddConfigPath(filepath.Join(homeDir, ".scribe"))
		}

		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file: %w", err)
			}
			// No file found; defaults plus environment apply.
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// A custom data_dir moves the dependent paths unless they were set
	// explicitly.
	l.resolvePaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFileUsed returns the path of the loaded file, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// seedDefaults registers every key with viper so environment-only overrides
// resolve without a config file.
func (l *Loader) seedDefaults(cfg *Config) {
	l.v.SetDefault("api.base_url", cfg.API.BaseURL)
	l.v.SetDefault("api.timeout", cfg.API.Timeout)
	l.v.SetDefault("api.max_retries", cfg.API.MaxRetries)
	l.v.SetDefault("api.user_agent", cfg.API.UserAgent)

	l.v.SetDefault("auth.email", cfg.Auth.Email)
	l.v.SetDefault("auth.password", cfg.Auth.Password)
	l.v.SetDefault("auth.token_file", cfg.Auth.TokenFile)

	l.v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	l.v.SetDefault("storage.drafts_dir", cfg.Storage.DraftsDir)
	l.v.SetDefault("storage.work_dir", cfg.Storage.WorkDir)
	l.v.SetDefault("storage.prefs_file", cfg.Storage.PrefsFile)
	l.v.SetDefault("storage.backend", cfg.Storage.Backend)
	l.v.SetDefault("storage.database_file", cfg.Storage.DatabaseFile)

	l.v.SetDefault("autosave.debounce_interval", cfg.Autosave.DebounceInterval)
	l.v.SetDefault("autosave.retry_interval", cfg.Autosave.RetryInterval)
	l.v.SetDefault("autosave.flush_timeout", cfg.Autosave.FlushTimeout)

	l.v.SetDefault("updates.enabled", cfg.Updates.Enabled)
	l.v.SetDefault("updates.ping_interval", cfg.Updates.PingInterval)
	l.v.SetDefault("updates.buffer", cfg.Updates.Buffer)

	l.v.SetDefault("analytics.enabled", cfg.Analytics.Enabled)
	l.v.SetDefault("analytics.batch_size", cfg.Analytics.BatchSize)
	l.v.SetDefault("analytics.flush_interval", cfg.Analytics.FlushInterval)
	l.v.SetDefault("analytics.queue_size", cfg.Analytics.QueueSize)
	l.v.SetDefault("analytics.max_elapsed", cfg.Analytics.MaxElapsed)

	l.v.SetDefault("log.level", cfg.Log.Level)
	l.v.SetDefault("log.format", cfg.Log.Format)
	l.v.SetDefault("log.file", cfg.Log.File)
	l.v.SetDefault("log.max_size", cfg.Log.MaxSize)
	l.v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	l.v.SetDefault("log.max_age", cfg.Log.MaxAge)
	l.v.SetDefault("log.color", cfg.Log.Color)
	l.v.SetDefault("log.timestamp", cfg.Log.Timestamp)

	l.v.SetDefault("dev.insecure_skip_verify", cfg.Dev.InsecureSkipVerify)
}

// resolvePaths rebases dependent paths when only data_dir changed.
func (l *Loader) resolvePaths(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Storage.DataDir == defaults.Storage.DataDir {
		return
	}

	if cfg.Storage.DraftsDir == defaults.Storage.DraftsDir {
		cfg.Storage.DraftsDir = filepath.Join(cfg.Storage.DataDir, "drafts")
	}
	if cfg.Storage.WorkDir == defaults.Storage.WorkDir {
		cfg.Storage.WorkDir = filepath.Join(cfg.Storage.DataDir, "work")
	}
	if cfg.Storage.PrefsFile == defaults.Storage.PrefsFile {
		cfg.Storage.PrefsFile = filepath.Join(cfg.Storage.DataDir, "preferences.json")
	}
	if cfg.Storage.DatabaseFile == defaults.Storage.DatabaseFile {
		cfg.Storage.DatabaseFile = filepath.Join(cfg.Storage.DataDir, "drafts.db")
	}
	if cfg.Auth.TokenFile == defaults.Auth.TokenFile {
		cfg.Auth.TokenFile = filepath.Join(cfg.Storage.DataDir, "token.json")
	}
}

// SaveExample writes an example config file.
func SaveExample(path string) error {
	cfg := DefaultConfig()

	example := fmt.Sprintf(`# scribe configuration file
# Environment variables override these settings using the SCRIBE_ prefix,
# for example: SCRIBE_LOG_LEVEL=debug

api:
  base_url: %s
  timeout: %s
  max_retries: %d

storage:
  data_dir: %s
  backend: %s

autosave:
  debounce_interval: %s
  retry_interval: %s
  flush_timeout: %s

updates:
  enabled: %t

analytics:
  enabled: %t
  batch_size: %d
  flush_interval: %s

log:
  level: %s
  format: %s
`,
		cfg.API.BaseURL,
		cfg.API.Timeout,
		cfg.API.MaxRetries,
		cfg.Storage.DataDir,
		cfg.Storage.Backend,
		cfg.Autosave.DebounceInterval,
		cfg.Autosave.RetryInterval,
		cfg.Autosave.FlushTimeout,
		cfg.Updates.Enabled,
		cfg.Analytics.Enabled,
		cfg.Analytics.BatchSize,
		cfg.Analytics.FlushInterval,
		cfg.Log.Level,
		cfg.Log.Format,
	)

	if err := os.WriteFile(path, []byte(example), 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
