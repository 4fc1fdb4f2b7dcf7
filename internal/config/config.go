// Package config loads shipyard configuration from the project TOML file
// and environment variables. Secrets (signing keys, explorer API keys) are
// never stored in the file; network entries name the environment variables
// that hold them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"shipyard.toml", "sy.toml"}

// Config holds all configuration for the orchestrator
type Config struct {
	Networks  map[string]Network `toml:"networks"`
	Build     BuildConfig        `toml:"build"`
	Verify    VerifyConfig       `toml:"verify"`
	Broadcast BroadcastConfig    `toml:"broadcast"`
	Metrics   MetricsConfig      `toml:"metrics"`
	Storage   StorageConfig      `toml:"-"`
	Server    ServerConfig       `toml:"-"`
	Logging   LoggingConfig      `toml:"-"`
	RateLimit RateLimitConfig    `toml:"-"`
}

// Network describes one deployment target. The signing key and explorer API
// key are resolved from the named environment variables at network selection
// time, never loaded here.
type Network struct {
	RPCURL         string `toml:"rpc_url"`
	ChainID        int64  `toml:"chain_id"`
	KeyEnv         string `toml:"key_env"`
	ExplorerURL    string `toml:"explorer_url,omitempty"`
	ExplorerKeyEnv string `toml:"explorer_key_env,omitempty"`
}

// BuildConfig holds build step configuration
type BuildConfig struct {
	Builder       string   `toml:"builder,omitempty"` // "foundry" or "solc" (auto-detected when empty)
	SolcPath      string   `toml:"solc_path,omitempty"`
	SolcVersion   string   `toml:"solc_version,omitempty"`
	Sources       []string `toml:"sources,omitempty"`
	OptimizerRuns int      `toml:"optimizer_runs,omitempty"`
	CacheDir      string   `toml:"cache_dir,omitempty"`
}

// VerifyConfig holds explorer verification polling configuration
type VerifyConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds,omitempty"`
	MaxAttempts         int `toml:"max_attempts,omitempty"`
}

// BroadcastConfig holds transaction broadcast configuration
type BroadcastConfig struct {
	ReceiptTimeoutSeconds int     `toml:"receipt_timeout_seconds,omitempty"`
	GasLimitMultiplier    float64 `toml:"gas_limit_multiplier,omitempty"`
}

// MetricsConfig holds pipeline metrics settings. The record server exposes a
// scrape endpoint; CLI runs are short-lived, so their counters are pushed to
// a Prometheus push gateway when one is configured.
type MetricsConfig struct {
	PushURL string `toml:"push_url,omitempty"`
	Job     string `toml:"job,omitempty"`
}

// StorageConfig holds deployment record storage configuration
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// ServerConfig holds the record server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds record server rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// Defaults applied when the TOML file omits a value
const (
	DefaultPollIntervalSeconds   = 5
	DefaultMaxAttempts           = 24
	DefaultReceiptTimeoutSeconds = 300
	DefaultOptimizerRuns         = 200
)

// Load loads configuration from the project TOML file (if present) and
// environment variables. An empty path searches the working directory for
// shipyard.toml / sy.toml; a missing file is not an error, only an
// explicitly named file that cannot be read is.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Networks: make(map[string]Network),
		Storage: StorageConfig{
			Type: getEnv("SHIPYARD_STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SHIPYARD_SQLITE_PATH", "./.shipyard/shipyard.db"),
			},
		},
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
	}

	resolved, explicit := resolveConfigPath(path)
	if resolved != "" {
		if _, err := toml.DecodeFile(resolved, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", resolved, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	applyDefaults(cfg)

	return cfg, nil
}

// resolveConfigPath returns the config file to load and whether the caller
// named it explicitly.
func resolveConfigPath(path string) (string, bool) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", true
		}
		return path, true
	}
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			return name, false
		}
	}
	return "", false
}

func applyDefaults(cfg *Config) {
	if cfg.Verify.PollIntervalSeconds <= 0 {
		cfg.Verify.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if cfg.Verify.MaxAttempts <= 0 {
		cfg.Verify.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Broadcast.ReceiptTimeoutSeconds <= 0 {
		cfg.Broadcast.ReceiptTimeoutSeconds = DefaultReceiptTimeoutSeconds
	}
	if cfg.Broadcast.GasLimitMultiplier <= 0 {
		cfg.Broadcast.GasLimitMultiplier = 1.2
	}
	if cfg.Build.OptimizerRuns <= 0 {
		cfg.Build.OptimizerRuns = DefaultOptimizerRuns
	}
	if cfg.Build.CacheDir == "" {
		cfg.Build.CacheDir = "./.shipyard/cache"
	}
	if cfg.Build.SolcPath == "" {
		cfg.Build.SolcPath = "solc"
	}
	if cfg.Metrics.PushURL == "" {
		cfg.Metrics.PushURL = getEnv("SHIPYARD_METRICS_PUSH_URL", "")
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "shipyard"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
