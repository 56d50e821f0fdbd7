// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and CROWDFUND_* env vars over the defaults.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"strings"
)

// Supported record store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects "text" or "json" output.
	LogFormat string `koanf:"log_format"`

	// LogFile switches output to a rotated file when set.
	LogFile       string `koanf:"log_file"`
	LogMaxSizeMB  int    `koanf:"log_max_size_mb"`
	LogMaxBackups int    `koanf:"log_max_backups"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver picks the record store adapter: memory, postgres, sqlite, supabase.
	StoreDriver string `koanf:"store_driver"`

	// DatabaseURL is the Postgres DSN or the SQLite file path.
	DatabaseURL string `koanf:"database_url"`

	// TableName is the participant score table.
	TableName string `koanf:"table_name"`

	// SupabaseURL and SupabaseKey configure the PostgREST adapter.
	SupabaseURL string `koanf:"supabase_url"`
	SupabaseKey string `koanf:"supabase_key"`

	// StoreTimeoutMS bounds every record store round trip.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// CatalogPath points at the milestone/tier button catalog (JSON or YAML).
	// Empty means the built-in catalog.
	CatalogPath string `koanf:"catalog_path"`

	// ValidateSelections rejects scores and tiers that match no active catalog option.
	ValidateSelections bool `koanf:"validate_selections"`

	// StrictWallet requires 0x-prefixed 20 byte hex wallet addresses.
	StrictWallet bool `koanf:"strict_wallet"`

	// AllowedOrigins lists CORS origins for the browser client.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// StaleCacheSize caps how many wallets keep a last known-good record
	// for the store-unavailable fallback.
	StaleCacheSize int `koanf:"stale_cache_size"`

	// RateLimitRPS and RateLimitBurst bound participant requests per client.
	// RateLimitRPS <= 0 disables the limiter.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		LogMaxSizeMB:       100,
		LogMaxBackups:      3,
		Addr:               ":9080",
		StoreDriver:        DriverMemory,
		TableName:          "milestone_scores",
		StoreTimeoutMS:     5000,
		ValidateSelections: true,
		StrictWallet:       true,
		StaleCacheSize:     10000,
		AllowedOrigins:     []string{"*"},
		RateLimitRPS:       10,
		RateLimitBurst:     20,
	}
}

// Validate checks field combinations that Load cannot express as defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.TableName) == "" {
		return fmt.Errorf("%w: table_name must not be empty", ErrInvalidConfig)
	}
	if c.StoreTimeoutMS <= 0 {
		return fmt.Errorf("%w: store_timeout_ms must be positive", ErrInvalidConfig)
	}
	if c.StaleCacheSize <= 0 {
		return fmt.Errorf("%w: stale_cache_size must be positive", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("%w: database_url is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	case DriverSupabase:
		if strings.TrimSpace(c.SupabaseURL) == "" || strings.TrimSpace(c.SupabaseKey) == "" {
			return fmt.Errorf("%w: supabase_url and supabase_key are required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
