// Package config loads the daemon's configuration from a YAML file with
// environment variable overrides, in the teacher's idiom of small typed
// Config structs handed to constructors rather than a global singleton.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig describes the shared in-memory store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// PostgresConfig describes the relational source-of-truth connection used
// by the SQL projection store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// Config is the daemon's top-level configuration.
type Config struct {
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`

	// CacheTTLSeconds is the TTL applied to confirmed and pending counters
	// on every write (spec default 10-60s).
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// CacheMaxAgeMS bounds how old a family's staleness stamp may be
	// before a cache-hit path treats it as a miss (spec default 1h).
	CacheMaxAgeMS int64 `yaml:"cache_max_age_ms"`

	// LockTTLSeconds bounds how long a distributed lock may be held
	// before it auto-expires (spec: <= 60s).
	LockTTLSeconds int `yaml:"lock_ttl_seconds"`

	// LockWaitTimeout bounds how long a caller waits to acquire a lock
	// before the read fails with a LockTimeoutError.
	LockWaitTimeout   time.Duration `yaml:"-"`
	LockWaitTimeoutMS int64         `yaml:"lock_wait_timeout_ms"`

	HealthAddr  string `yaml:"health_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns a Config populated with the spec's suggested defaults.
func Default() Config {
	return Config{
		Redis:             RedisConfig{Addr: "localhost:6379"},
		CacheTTLSeconds:   30,
		CacheMaxAgeMS:     3600_000,
		LockTTLSeconds:    30,
		LockWaitTimeoutMS: 5_000,
		HealthAddr:        ":8080",
		MetricsAddr:       ":9090",
		LogLevel:          "info",
		LogJSON:           true,
	}
}

// Load reads a YAML file at path into Default(), then applies environment
// variable overrides, and returns the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.LockWaitTimeout = time.Duration(cfg.LockWaitTimeoutMS) * time.Millisecond

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUOTALEDGER_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("QUOTALEDGER_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("QUOTALEDGER_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("QUOTALEDGER_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CacheTTLSeconds = n
		}
	}
	if v := os.Getenv("QUOTALEDGER_CACHE_MAX_AGE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.CacheMaxAgeMS = n
		}
	}
	if v := os.Getenv("QUOTALEDGER_LOCK_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LockTTLSeconds = n
		}
	}
	if v := os.Getenv("QUOTALEDGER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
