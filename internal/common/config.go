package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the price sync service
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Database    DatabaseConfig `toml:"database"`
	Clients     ClientsConfig  `toml:"clients"`
	Sync        SyncConfig     `toml:"sync"`
	Logging     LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DatabaseConfig holds Postgres connection configuration.
type DatabaseConfig struct {
	DSN         string `toml:"dsn"`
	MaxConns    int    `toml:"max_conns"`
	LockTimeout string `toml:"lock_timeout"` // per-symbol advisory lock wait bound
}

// GetLockTimeout parses and returns the lock wait bound
func (c *DatabaseConfig) GetLockTimeout() time.Duration {
	d, err := time.ParseDuration(c.LockTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	EODHD EODHDConfig `toml:"eodhd"`
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	RateLimit   int    `toml:"rate_limit"`  // requests per second
	Concurrency int    `toml:"concurrency"` // global in-flight fetch bound
	Timeout     string `toml:"timeout"`     // per-attempt timeout
	MaxAttempts int    `toml:"max_attempts"`
	BaseDelay   string `toml:"base_delay"`
	MaxDelay    string `toml:"max_delay"`
}

// GetTimeout parses and returns the per-attempt timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetBaseDelay parses and returns the initial retry backoff delay
func (c *EODHDConfig) GetBaseDelay() time.Duration {
	d, err := time.ParseDuration(c.BaseDelay)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetMaxDelay parses and returns the backoff delay ceiling
func (c *EODHDConfig) GetMaxDelay() time.Duration {
	d, err := time.ParseDuration(c.MaxDelay)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// SyncConfig tunes the coverage-assurance engine.
type SyncConfig struct {
	Freshness         string `toml:"freshness"`           // how stale the latest bar may be before a refetch
	RefetchWindowDays int    `toml:"refetch_window_days"` // trailing re-fetch window for late adjustments
	MaxConcurrency    int    `toml:"max_concurrency"`     // symbols processed in parallel per request
	RequestTimeout    string `toml:"request_timeout"`     // overall deadline for one EnsureAndRead run
}

// GetFreshness parses and returns the freshness threshold
func (c *SyncConfig) GetFreshness() time.Duration {
	d, err := time.ParseDuration(c.Freshness)
	if err != nil {
		return FreshnessEOD
	}
	return d
}

// GetRequestTimeout parses and returns the orchestration deadline
func (c *SyncConfig) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MaxConns:    10,
			LockTimeout: "30s",
		},
		Clients: ClientsConfig{
			EODHD: EODHDConfig{
				BaseURL:     "https://eodhd.com/api",
				RateLimit:   10,
				Concurrency: 4,
				Timeout:     "30s",
				MaxAttempts: 4,
				BaseDelay:   "500ms",
				MaxDelay:    "30s",
			},
		},
		Sync: SyncConfig{
			Freshness:         "6h",
			RefetchWindowDays: 7,
			MaxConcurrency:    5,
			RequestTimeout:    "2m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PRICESYNC_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("PRICESYNC_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("PRICESYNC_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if dsn := os.Getenv("PRICESYNC_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if key := os.Getenv("EODHD_API_KEY"); key != "" {
		config.Clients.EODHD.APIKey = key
	}

	if level := os.Getenv("PRICESYNC_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}
