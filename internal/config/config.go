/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly
typed Go struct, the same way the rest of the pack loads configuration, so
the set of values spec.md §6 names ("read once at startup") is validated
before the server accepts its first request.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every value spec.md §6 names as "read once at startup".
type Config struct {
	// DatabaseURL is the pgx-compatible connection string for the database
	// being exposed over HTTP.
	DatabaseURL string `env:"DB_URL,required"`

	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// ScopeName is the path prefix under which the table routes are mounted
	// (spec.md §6: "relative to configurable scope, default /api").
	ScopeName string `env:"SCOPE_NAME" envDefault:"/api"`

	// IsCacheTableStats enables the Stats Cache. When false, every request
	// consults the Catalog Client directly (spec.md §4.2 "Disabled mode").
	IsCacheTableStats bool `env:"IS_CACHE_TABLE_STATS" envDefault:"true"`

	// IsCacheResetEndpointEnabled toggles POST /reset_table_stats_cache.
	IsCacheResetEndpointEnabled bool `env:"IS_CACHE_RESET_ENDPOINT_ENABLED" envDefault:"true"`

	// CacheResetIntervalSeconds is the background refresh period; a
	// cached entry older than this is replaced on the next sweep.
	CacheResetIntervalSeconds int `env:"CACHE_RESET_INTERVAL_SECONDS" envDefault:"300"`

	// StatementTimeoutSeconds bounds every query issued against the pool
	// (spec.md §5 "each request carries a statement timeout").
	StatementTimeoutSeconds int `env:"STATEMENT_TIMEOUT_SECONDS" envDefault:"30"`

	// MaxFKDepth bounds the FK tree (spec.md §3 "depth bounded by
	// configuration, default 5").
	MaxFKDepth int `env:"MAX_FK_DEPTH" envDefault:"5"`

	// PoolAcquireTimeoutSeconds bounds how long a request waits for a
	// pooled connection before the adapter reports ServiceUnavailable
	// rather than hanging behind an exhausted pool (SPEC_FULL §5).
	PoolAcquireTimeoutSeconds int `env:"POOL_ACQUIRE_TIMEOUT_SECONDS" envDefault:"5"`

	// DefaultLimit is the SELECT row limit used when a request gives no
	// limit (spec.md §4.5/§6).
	DefaultLimit int `env:"DEFAULT_LIMIT" envDefault:"10000"`
}

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

// CacheResetInterval is CacheResetIntervalSeconds as a [time.Duration].
func (c *Config) CacheResetInterval() time.Duration {
	return time.Duration(c.CacheResetIntervalSeconds) * time.Second
}

// StatementTimeout is StatementTimeoutSeconds as a [time.Duration].
func (c *Config) StatementTimeout() time.Duration {
	return time.Duration(c.StatementTimeoutSeconds) * time.Second
}

// PoolAcquireTimeout is PoolAcquireTimeoutSeconds as a [time.Duration].
func (c *Config) PoolAcquireTimeout() time.Duration {
	return time.Duration(c.PoolAcquireTimeoutSeconds) * time.Second
}
