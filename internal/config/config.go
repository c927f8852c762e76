// Package config loads server configuration.
//
// Values are layered: defaults, then an optional YAML file, then a .env
// file in the working directory, then process environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Storage  StorageConfig `yaml:"storage"`
	Auth     AuthConfig    `yaml:"auth"`
	Ledger   LedgerConfig  `yaml:"ledger"`
	NATS     NATSConfig    `yaml:"nats"`
	LogLevel string        `yaml:"log_level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address (default :8080)
	Addr string `yaml:"addr"`
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	// Driver is one of sqlite, postgres or memory.
	Driver string `yaml:"driver"`
	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `yaml:"sqlite_path"`
	// PostgresURL is the connection string for the postgres driver.
	PostgresURL string `yaml:"postgres_url"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// LedgerConfig tunes the reconciliation coordinator.
type LedgerConfig struct {
	// MaxAttempts bounds tries per operation on concurrent modification.
	MaxAttempts int `yaml:"max_attempts"`
	// RetryBase is the first backoff interval.
	RetryBase time.Duration `yaml:"retry_base"`
}

// NATSConfig configures change notifications. An empty URL disables them.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "./data/settleup.db",
		},
		Auth: AuthConfig{
			JWTSecret:     "dev-only-change-me",
			TokenDuration: 24 * time.Hour,
		},
		Ledger: LedgerConfig{
			MaxAttempts: 3,
			RetryBase:   10 * time.Millisecond,
		},
		NATS:     NATSConfig{SubjectPrefix: "settleup"},
		LogLevel: "info",
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "SETTLEUP_ADDR")
	setString(&c.Storage.Driver, "SETTLEUP_STORAGE")
	setString(&c.Storage.SQLitePath, "DB_PATH")
	setString(&c.Storage.PostgresURL, "DATABASE_URL")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("SETTLEUP_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SETTLEUP_MAX_ATTEMPTS: %w", err)
		}
		c.Ledger.MaxAttempts = n
	}
	if v := os.Getenv("SETTLEUP_RETRY_BASE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SETTLEUP_RETRY_BASE: %w", err)
		}
		c.Ledger.RetryBase = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required"))
		}
	case DriverPostgres:
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("storage.postgres_url is required"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Ledger.MaxAttempts < 1 {
		errs = append(errs, errors.New("ledger.max_attempts must be at least 1"))
	}
	if c.Ledger.RetryBase <= 0 {
		errs = append(errs, errors.New("ledger.retry_base must be positive"))
	}
	return errors.Join(errs...)
}
