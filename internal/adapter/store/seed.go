package store

import (
	"context"
	"fmt"
	"strings"

	"techassist/internal/domain"
	"techassist/internal/infra/config"
)

// AgentConfigFromSeed converts a seed entry into an agent configuration.
// Active defaults to true; the agent type goes through the enum boundary.
func AgentConfigFromSeed(seed config.AgentSeedConfig) (domain.AgentConfig, error) {
	agentType, ok := domain.ParseAgentType(seed.AgentType)
	if !ok {
		return domain.AgentConfig{}, fmt.Errorf("agent %s: unknown agent type %q", seed.ID, seed.AgentType)
	}
	active := true
	if seed.Active != nil {
		active = *seed.Active
	}

	caps := make([]domain.AgentCapability, 0, len(seed.Capabilities))
	for _, c := range seed.Capabilities {
		caps = append(caps, domain.AgentCapability{
			Name:        c.Name,
			Description: c.Description,
			Keywords:    c.Keywords,
			Examples:    c.Examples,
		})
	}

	return domain.AgentConfig{
		ID:           strings.TrimSpace(seed.ID),
		AgentType:    agentType,
		Name:         seed.Name,
		Description:  seed.Description,
		SystemPrompt: seed.SystemPrompt,
		ModelSize:    domain.ParseModelTier(seed.ModelSize),
		Temperature:  seed.Temperature,
		MaxTokens:    seed.MaxTokens,
		Active:       active,
		Metadata: domain.AgentConfigMetadata{
			Capabilities: caps,
			IsDefault:    seed.IsDefault,
		},
	}, nil
}

// Seed upserts every seed entry into repo and returns how many were written.
// It stops at the first failure.
func Seed(ctx context.Context, repo domain.AgentConfigRepository, seeds []config.AgentSeedConfig) (int, error) {
	n := 0
	for _, s := range seeds {
		cfg, err := AgentConfigFromSeed(s)
		if err != nil {
			return n, err
		}
		if existing, err := repo.GetByID(ctx, cfg.ID); err == nil {
			cfg.CreatedAt = existing.CreatedAt
		}
		if err := repo.Upsert(ctx, &cfg); err != nil {
			return n, fmt.Errorf("seed agent %s: %w", cfg.ID, err)
		}
		n++
	}
	return n, nil
}
