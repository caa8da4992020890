// routes.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pgrest/pgrest/internal/config"
)

// SetupRoutes mounts the HTTP surface of spec.md §6 under cfg.ScopeName.
func SetupRoutes(pool *pgxpool.Pool, cache StatsGetter, cfg *config.Config, logger *zap.Logger) http.Handler {
	h := NewHandler(pool, cache, cfg, logger)

	r := chi.NewRouter()
	r.Use(LoggingMiddleware(logger))

	r.Route(cfg.ScopeName, func(r chi.Router) {
		r.Get("/", h.ListEndpoints)
		r.Post("/sql", h.PostSQL)
		r.Post("/reset_table_stats_cache", h.PostResetCache)
		r.Get("/{table}", h.GetTable)
		r.Post("/{table}", h.PostTable)
		r.Put("/{table}", h.PutTable)
		r.Delete("/{table}", h.DeleteTable)
	})

	return r
}
