// Command pgrestd is the entry point for the pgrest HTTP server: it loads
// configuration, wires the connection pool and compiler pipeline, and
// runs the server until a termination signal arrives.
package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/pgrest/pgrest/internal/app"
	"github.com/pgrest/pgrest/internal/config"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	srv, err := app.NewServer(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to construct server", zap.Error(err))
	}

	if err := srv.Run(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
