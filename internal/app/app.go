// Package app wires the planner and its collaborators from configuration.
package app

import (
	"context"
	"errors"

	"github.com/spherical/account-planner/internal/cache"
	"github.com/spherical/account-planner/internal/config"
	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/enrich"
	"github.com/spherical/account-planner/internal/extract"
	"github.com/spherical/account-planner/internal/llm"
	"github.com/spherical/account-planner/internal/observability"
	"github.com/spherical/account-planner/internal/planner"
	"github.com/spherical/account-planner/internal/render"
	"github.com/spherical/account-planner/internal/repair"
	"github.com/spherical/account-planner/internal/sanitize"
	"github.com/spherical/account-planner/internal/schema"
)

// App holds the long-lived components of a running binary.
type App struct {
	Config    *config.Config
	Planner   *planner.Service
	Extractor *extract.Extractor
	Cache     cache.Client
	Logger    *observability.Logger
}

// New builds the application from cfg. A nil provider builds one from
// cfg.LLM; tests pass a fake.
func New(ctx context.Context, cfg *config.Config, provider llm.Provider, logger *observability.Logger) (*App, error) {
	if logger == nil {
		logger = observability.Nop()
	}

	s, err := schema.LoadFile(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}
	skeleton, err := s.Skeleton()
	if err != nil {
		return nil, domain.ConfigError("render schema skeleton", err)
	}
	instruction, err := llm.LoadInstruction(cfg.LLM.PromptPath, skeleton)
	if err != nil {
		return nil, err
	}

	if provider == nil {
		if provider, err = llm.New(ctx, cfg.LLM, logger); err != nil {
			return nil, err
		}
	}

	c, err := cache.Open(cfg.Cache)
	if err != nil {
		return nil, domain.ConfigError("open cache", err)
	}

	extractor := extract.New(extract.Config{
		MaxFileSize: cfg.Extraction.MaxFileSize,
		PDFBackend:  cfg.Extraction.PDFBackend,
	}, logger)

	svc, err := planner.NewService(planner.Config{
		MinInputLength: cfg.Extraction.MinInputLength,
		CacheTTL:       cfg.Cache.TTL,
		TemplatePath:   cfg.Render.TemplatePath,
		Instruction:    instruction,
	}, planner.Deps{
		Texts:     extractor,
		Model:     provider,
		Renderer:  render.NewDocxRenderer(logger),
		Cache:     c,
		Schema:    s,
		Sanitizer: sanitize.New(cfg.Sanitize),
		Repairer:  repair.New(repair.Options{Junk: cfg.Sanitize.Junk, Placeholder: cfg.Sanitize.Placeholder}),
		Enricher:  enrich.New(enrich.Config{Placeholder: cfg.Sanitize.Placeholder}),
	}, logger)
	if err != nil {
		return nil, errors.Join(err, c.Close())
	}

	logger.Info().
		Str("provider", provider.Name()).
		Str("model", provider.Model()).
		Str("cache", cfg.Cache.Driver).
		Str("pdf_backend", cfg.Extraction.PDFBackend).
		Msg("planner ready")

	return &App{
		Config:    cfg,
		Planner:   svc,
		Extractor: extractor,
		Cache:     c,
		Logger:    logger,
	}, nil
}

// Close releases the cache connection.
func (a *App) Close() error {
	return a.Cache.Close()
}
