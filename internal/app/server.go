/*
Package app wires the compiler pipeline (catalog, stats cache, pool) to
the HTTP router and owns the process's graceful-shutdown lifecycle.

Adapted from the teacher's internal/app/server.go: the same
goroutine-plus-signal-channel Run loop, with the WAL-listener/reactive
broadcast goroutine dropped (this system has no live-query subsystem) and
the background Stats Cache refresh loop started in its place.
*/
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pgrest/pgrest/internal/api"
	"github.com/pgrest/pgrest/internal/catalog"
	"github.com/pgrest/pgrest/internal/config"
	"github.com/pgrest/pgrest/internal/pgpool"
	"github.com/pgrest/pgrest/internal/statscache"
)

const shutdownTimeout = 10 * time.Second

// Server owns the HTTP listener, the connection pool, and the Stats
// Cache's background refresh loop.
type Server struct {
	httpServer  *http.Server
	pool        *pgxpool.Pool
	cache       *statscache.Cache
	logger      *zap.Logger
	stopRefresh func()
}

// NewServer opens the connection pool, builds the Catalog Client and
// Stats Cache, and mounts the Request Adapter's routes.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	pool, err := pgpool.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	client := catalog.NewClient(pool)
	cache := statscache.New(client, cfg.IsCacheTableStats, statscache.WithLogger(func(format string, args ...any) {
		logger.Sugar().Warnf(format, args...)
	}))

	mux := api.SetupRoutes(pool, cache, cfg, logger)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: mux,
		},
		pool:        pool,
		cache:       cache,
		logger:      logger,
		stopRefresh: cache.StartRefresh(ctx, cfg.CacheResetInterval()),
	}, nil
}

// Run starts the HTTP listener and blocks until a termination signal
// arrives, then drains in-flight requests and releases the pool.
func (s *Server) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serveErr:
		return fmt.Errorf("app: http server error: %w", err)
	}

	s.stopRefresh()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}

	s.pool.Close()
	return nil
}
