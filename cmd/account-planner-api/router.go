// Package main provides the API router setup.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/account-planner/cmd/account-planner-api/handlers"
	"github.com/spherical/account-planner/cmd/account-planner-api/middleware"
	"github.com/spherical/account-planner/internal/app"
)

// pinger is implemented by caches with a remote backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(a *app.App) http.Handler {
	cfg := a.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"account-planner"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := a.Cache.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				a.Logger.Warn().Err(err).Msg("readiness check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable","cache":"unreachable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	plans := handlers.NewPlanHandler(a.Logger, a.Planner, a.Extractor, cfg.Server.MaxUploadBytes, cfg.Render.Enrich)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/plans", func(r chi.Router) {
			r.Post("/", plans.Generate)
			r.Post("/extract", plans.Extract)
			r.Post("/repair", plans.Repair)
		})
		r.Get("/schema", plans.Schema)
	})

	return r
}
