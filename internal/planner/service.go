// Package planner runs a document through extraction, repair and rendering.
package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/account-planner/internal/cache"
	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/enrich"
	"github.com/spherical/account-planner/internal/llm"
	"github.com/spherical/account-planner/internal/observability"
	"github.com/spherical/account-planner/internal/repair"
	"github.com/spherical/account-planner/internal/sanitize"
	"github.com/spherical/account-planner/internal/schema"
)

// Config tunes a Service.
type Config struct {
	MinInputLength int
	CacheTTL       time.Duration
	TemplatePath   string
	// Instruction overrides the system instruction built from the schema.
	Instruction string
}

// Deps are the collaborators a Service needs. Cache, Renderer and the
// transforms are optional.
type Deps struct {
	Texts    domain.TextExtractor
	Model    llm.Provider
	Renderer domain.Renderer
	Cache    cache.Client
	Schema   *schema.Node

	Sanitizer *sanitize.Sanitizer
	Repairer  *repair.Engine
	Enricher  *enrich.Enricher
}

// Options control a single run.
type Options struct {
	Enrich bool
	// Events receives stage events. Sends never block; a full channel
	// drops the event.
	Events chan<- domain.StreamEvent
}

// Service orchestrates the account plan pipeline. It is safe for
// concurrent use.
type Service struct {
	cfg         Config
	deps        Deps
	instruction string
	logger      *observability.Logger
}

// NewService creates a planner service.
func NewService(cfg Config, deps Deps, logger *observability.Logger) (*Service, error) {
	if deps.Model == nil {
		return nil, domain.ConfigError("planner needs a model provider", nil)
	}
	if deps.Schema == nil {
		deps.Schema = schema.Get()
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = sanitize.New(sanitize.Config{})
	}
	if deps.Repairer == nil {
		deps.Repairer = repair.New(repair.Options{})
	}
	if deps.Enricher == nil {
		deps.Enricher = enrich.New(enrich.Config{})
	}
	if cfg.MinInputLength <= 0 {
		cfg.MinInputLength = domain.MinInputLength
	}
	if logger == nil {
		logger = observability.Nop()
	}

	instruction := cfg.Instruction
	if instruction == "" {
		skeleton, err := deps.Schema.Skeleton()
		if err != nil {
			return nil, domain.ConfigError("render schema skeleton", err)
		}
		instruction = llm.BuildInstruction(skeleton)
	}

	return &Service{
		cfg:         cfg,
		deps:        deps,
		instruction: instruction,
		logger:      logger.WithOperation("planner"),
	}, nil
}

// Schema returns the schema plans are repaired against.
func (s *Service) Schema() *schema.Node { return s.deps.Schema }

// Extract turns a source document into a repaired plan tree. With
// opts.Enrich the returned plan is the narrative form.
func (s *Service) Extract(ctx context.Context, src domain.Source, opts Options) (*domain.PlanResult, error) {
	start := time.Now()
	result := &domain.PlanResult{RequestID: requestID(ctx)}
	logger := s.logger.WithContext(ctx).WithField("source", src.Filename)

	s.emitEvent(opts.Events, domain.EventStart, fmt.Sprintf("Starting account plan for %s", src.Filename))

	text := src.Text
	if text == "" && src.Path != "" {
		if s.deps.Texts == nil {
			err := domain.ConfigError("no text extractor configured", nil)
			s.emitError(opts.Events, err)
			return nil, err
		}
		text = s.deps.Texts.Text(ctx, src.Path)
	}
	text = strings.TrimSpace(text)
	if n := len([]rune(text)); n < s.cfg.MinInputLength {
		err := domain.InputTooShortError(n, s.cfg.MinInputLength)
		logger.Warn().Int("chars", n).Msg("input rejected")
		s.emitError(opts.Events, err)
		return nil, err
	}
	logger.Debug().Int("chars", len(text)).Msg("text extracted")
	s.emitEvent(opts.Events, domain.EventTextExtracted, len(text))

	raw, hit, err := s.complete(ctx, text)
	if err != nil {
		logger.Error().Err(err).Msg("structured extraction failed")
		s.emitError(opts.Events, err)
		return nil, err
	}
	result.CacheHit = hit
	s.emitEvent(opts.Events, domain.EventLLMComplete, map[string]any{"chars": len(raw), "cache_hit": hit})

	parsed, err := llm.ParseObject(raw)
	if err != nil {
		logger.Error().Err(err).Msg("model output rejected")
		s.emitError(opts.Events, err)
		if hit {
			// A bad cached reply would be served forever otherwise.
			_ = s.deps.Cache.Delete(ctx, s.cacheKey(text))
		}
		return nil, err
	}

	plan, report, err := s.repair(parsed)
	if err != nil {
		s.emitError(opts.Events, err)
		return nil, err
	}
	logger.Info().
		Int("inserted_keys", report.InsertedKeys).
		Int("replaced_values", report.ReplacedValues).
		Int("synthesized_lists", report.SynthesizedLists).
		Int("replaced_elements", report.ReplacedElements).
		Int("placeholder_leaves", report.PlaceholderLeaves).
		Msg("plan repaired")
	s.emitEvent(opts.Events, domain.EventRepaired, report)

	result.AccountName = domain.AccountName(plan)
	result.Filename = domain.OutputFilename(result.AccountName, s.deps.Sanitizer.Placeholder())
	if opts.Enrich {
		plan = s.deps.Enricher.Enrich(plan)
	}
	result.Plan = plan
	result.Duration = time.Since(start)
	return result, nil
}

// Generate runs Extract and renders the plan into w with the configured
// template.
func (s *Service) Generate(ctx context.Context, src domain.Source, w io.Writer, opts Options) (*domain.PlanResult, error) {
	if s.deps.Renderer == nil {
		return nil, domain.ConfigError("no renderer configured", nil)
	}
	start := time.Now()

	result, err := s.Extract(ctx, src, opts)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Renderer.Render(ctx, s.cfg.TemplatePath, result.Plan, w); err != nil {
		s.logger.WithContext(ctx).Error().Err(err).Str("template", s.cfg.TemplatePath).Msg("render failed")
		s.emitError(opts.Events, err)
		return nil, err
	}
	s.emitEvent(opts.Events, domain.EventRendered, result.Filename)

	result.Duration = time.Since(start)
	s.emitEvent(opts.Events, domain.EventComplete,
		fmt.Sprintf("Account plan %s ready in %v", result.Filename, result.Duration.Round(time.Millisecond)))
	return result, nil
}

// Repair sanitizes and repairs an already structured tree. No model is
// involved.
func (s *Service) Repair(data any) (map[string]any, repair.Report, error) {
	return s.repair(data)
}

// Enrich returns the narrative form of a repaired plan.
func (s *Service) Enrich(plan map[string]any) map[string]any {
	return s.deps.Enricher.Enrich(plan)
}

func (s *Service) repair(data any) (map[string]any, repair.Report, error) {
	obj, ok := data.(map[string]any)
	if !ok {
		_, rep, err := s.deps.Repairer.RepairWithReport(data, s.deps.Schema)
		return nil, rep, err
	}
	return s.deps.Repairer.RepairWithReport(s.deps.Sanitizer.SanitizeObject(obj), s.deps.Schema)
}

// complete returns the model reply for text, from the cache when possible.
func (s *Service) complete(ctx context.Context, text string) (string, bool, error) {
	key := s.cacheKey(text)
	cached, err := s.deps.Cache.Get(ctx, key)
	switch {
	case err == nil:
		s.logger.Debug().Str("key", key).Msg("cache hit")
		return string(cached), true, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		s.logger.Warn().Err(err).Msg("cache read failed")
	}

	raw, err := s.deps.Model.Complete(ctx, s.instruction, text)
	if err != nil {
		return "", false, err
	}
	if err := s.deps.Cache.Set(ctx, key, []byte(raw), s.cfg.CacheTTL); err != nil {
		s.logger.Warn().Err(err).Msg("cache write failed")
	}
	return raw, false, nil
}

func (s *Service) cacheKey(text string) string {
	return cache.Key(s.deps.Model.Name(), s.deps.Model.Model(), s.instruction, text)
}

func requestID(ctx context.Context) string {
	if id := observability.RequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, typ domain.EventType, payload any) {
	if eventCh == nil {
		return
	}
	select {
	case eventCh <- domain.StreamEvent{Type: typ, Payload: payload, Timestamp: time.Now()}:
	default:
		s.logger.Warn().Str("event", string(typ)).Msg("event channel full, dropping event")
	}
}

// emitError emits an error event
func (s *Service) emitError(eventCh chan<- domain.StreamEvent, err error) {
	s.emitEvent(eventCh, domain.EventError, err.Error())
}
