package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"techassist/internal/adapter/llm"
	"techassist/internal/adapter/store"
	"techassist/internal/adapter/tokenizer"
	"techassist/internal/domain"
	"techassist/internal/infra/config"
	"techassist/internal/infra/logger"
	"techassist/internal/infra/metrics"
	"techassist/internal/infra/tracer"
	"techassist/internal/usecase/modelselect"
	"techassist/internal/usecase/orchestrator"
)

// app holds the wired process components.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    *store.Store
	provider domain.LLMProvider
	orch     *orchestrator.Orchestrator

	closers []func(context.Context) error
}

// buildApp wires storage, LLM providers and the orchestrator from cfg.
// Seed entries from the config are upserted when seed is set.
func buildApp(ctx context.Context, cfg *config.Config, seed bool) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	a.logger = log
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, func(context.Context) error { return st.Close() })

	if seed && len(cfg.Agents) > 0 {
		n, err := store.Seed(ctx, st, cfg.Agents)
		if err != nil {
			return nil, fmt.Errorf("seed agents: %w", err)
		}
		log.Info("agent configurations seeded", "count", n)
	}

	registry, primary, err := llm.Build(cfg.LLM, logger.Component(log, "llm"), a.metrics)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	a.provider = primary
	generator, err := newGenerator(cfg.LLM, registry, primary, logger.Component(log, "generator"))
	if err != nil {
		return nil, err
	}

	selector := modelselect.New(tokenizer.New(tokenizer.DefaultEncoding, log), logger.Component(log, "modelselect"))

	orch, err := orchestrator.New(orchestrator.Deps{
		Configs:       st,
		Conversations: st,
		Generator:     generator,
		Selector:      selector,
	}, orchestrator.OptionsFromConfig(cfg.Orchestrator), logger.Component(log, "orchestrator"), a.metrics)
	if err != nil {
		return nil, err
	}
	a.orch = orch
	return a, nil
}

// newGenerator builds the text generator with the orchestrator's named
// prompts registered.
func newGenerator(cfg config.LLMConfig, registry *llm.Registry, primary domain.LLMProvider, log *slog.Logger) (*llm.Generator, error) {
	templates := llm.NewTemplates()
	for name, text := range orchestrator.PromptTemplates() {
		if err := templates.Register(name, text); err != nil {
			return nil, fmt.Errorf("prompt templates: %w", err)
		}
	}
	return llm.NewGenerator(llm.NewTierRouter(cfg.Tiers, registry, primary), templates, log), nil
}

// Close releases components in reverse order of construction.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// loadApp loads the config at flags.ConfigPath and builds the app.
func loadApp(ctx context.Context, flags cliFlags, seed bool) (*app, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, seed)
}
