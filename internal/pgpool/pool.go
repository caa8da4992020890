/*
Package pgpool opens and tunes the [pgxpool.Pool] shared by every request.

Adapted from the connection-pool discipline of the pack's
taibuivan-yomira/internal/platform/postgres package: bounded size, idle
and lifetime limits, a background health check, and a per-connection
statement_timeout derived from [config.Config] (spec.md §5 "each request
carries a statement timeout derived from server config").
*/
package pgpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pgrest/pgrest/internal/config"
)

const (
	maxConns          = 25
	minConns          = 2
	maxConnLifetime   = 60 * time.Minute
	maxConnIdleTime   = 10 * time.Minute
	healthCheckPeriod = 1 * time.Minute
	connectTimeout    = 5 * time.Second
	pingTimeout       = 2 * time.Second
)

// Open creates and validates a new pool against cfg.DatabaseURL.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgpool: invalid DSN: %w", err)
	}

	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = minConns
	poolConfig.MaxConnLifetime = maxConnLifetime
	poolConfig.MaxConnIdleTime = maxConnIdleTime
	poolConfig.HealthCheckPeriod = healthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	timeout := cfg.StatementTimeout()
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, fmt.Sprintf("SET statement_timeout = '%ds'", int(timeout.Seconds()))); err != nil {
			return err
		}
		return registerHstore(ctx, conn)
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgpool: failed to create pool: %w", err)
	}

	if err := Ping(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	stats := pool.Stat()
	logger.Info("postgres pool connected",
		zap.Int32("max_conns", stats.MaxConns()),
		zap.Int32("total_conns", stats.TotalConns()),
	)

	return pool, nil
}

// registerHstore teaches this connection's type map how to decode hstore
// values. hstore has no fixed OID (it ships as a contrib extension, so its
// OID is assigned per-database by CREATE EXTENSION) — the Row Decoder can
// only recognize pgtype.Hstore values if the OID is looked up and
// registered here first. Databases without the extension installed simply
// never see a query row typed hstore, so a lookup miss is not an error.
func registerHstore(ctx context.Context, conn *pgx.Conn) error {
	var oid uint32
	err := conn.QueryRow(ctx, `SELECT oid FROM pg_type WHERE typname = 'hstore'`).Scan(&oid)
	if err != nil {
		return nil
	}
	conn.TypeMap().RegisterType(&pgtype.Type{Name: "hstore", OID: oid, Codec: pgtype.HstoreCodec{}})
	return nil
}

// Ping verifies that the pool can reach PostgreSQL.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("pgpool: ping failed: %w", err)
	}
	return nil
}
