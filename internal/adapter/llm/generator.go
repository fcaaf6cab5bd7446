package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"techassist/internal/domain"
)

var _ domain.TextGenerator = (*Generator)(nil)

// Generator is the text-generation capability used by the orchestrator.
// It picks a provider per model tier and normalizes failures to
// domain.ErrGenerationFailed.
type Generator struct {
	router    *TierRouter
	templates *Templates
	logger    *slog.Logger
}

func NewGenerator(router *TierRouter, templates *Templates, logger *slog.Logger) *Generator {
	if templates == nil {
		templates = NewTemplates()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{router: router, templates: templates, logger: logger}
}

// Generate sends req.Messages to the provider for req.Tier.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	if len(req.Messages) == 0 {
		return nil, domain.NewDomainError("Generator.Generate", domain.ErrInvalidInput, "no messages")
	}
	tier := req.Tier
	if tier == "" {
		tier = domain.TierMedium
	}
	provider, err := g.router.Route(tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	start := time.Now()
	resp, err := provider.Chat(ctx, domain.ChatRequest{
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		JSONMode:    req.JSONMode,
	})
	if err != nil {
		g.logger.Warn("generation failed", "provider", provider.Name(), "tier", tier, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	g.logger.Debug("generation completed",
		"provider", provider.Name(),
		"tier", tier,
		"duration", time.Since(start),
		"tokens", resp.Usage.TotalTokens,
	)
	return &domain.GenerationResponse{
		Content: resp.Message.Content,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}, nil
}

// GenerateTemplate renders req.Template with req.Variables and sends it as
// a single user turn, preceded by req.System when set.
func (g *Generator) GenerateTemplate(ctx context.Context, req domain.TemplateRequest) (*domain.GenerationResponse, error) {
	prompt, err := g.templates.Render(req.Template, req.Variables)
	if err != nil {
		return nil, domain.NewDomainError("Generator.GenerateTemplate", domain.ErrTemplateNotFound, err.Error())
	}
	msgs := make([]domain.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: req.System})
	}
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: prompt})

	return g.Generate(ctx, domain.GenerationRequest{
		Messages:    msgs,
		Tier:        req.Tier,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		JSONMode:    req.JSONMode,
	})
}

// Templates exposes the template set so callers can register named prompts.
func (g *Generator) Templates() *Templates { return g.templates }
