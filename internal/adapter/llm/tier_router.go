package llm

import (
	"fmt"

	"techassist/internal/domain"
)

// TierRouter maps model tiers to providers. Tiers that are unmapped, or
// mapped to "default", use the fallback provider.
type TierRouter struct {
	mapping  map[domain.ModelTier]string
	registry *Registry
	fallback domain.LLMProvider
}

// NewTierRouter builds a router from a tier name → provider name mapping.
// Unknown tier names parse to medium.
func NewTierRouter(mapping map[string]string, registry *Registry, fallback domain.LLMProvider) *TierRouter {
	m := make(map[domain.ModelTier]string, len(mapping))
	for tier, provider := range mapping {
		m[domain.ParseModelTier(tier)] = provider
	}
	return &TierRouter{mapping: m, registry: registry, fallback: fallback}
}

// Route resolves tier to a provider.
func (r *TierRouter) Route(tier domain.ModelTier) (domain.LLMProvider, error) {
	name := r.mapping[tier]
	if name == "" || name == "default" {
		if r.fallback == nil {
			return nil, domain.NewDomainError("TierRouter.Route", domain.ErrProviderNotFound,
				fmt.Sprintf("tier %s has no provider and no default", tier))
		}
		return r.fallback, nil
	}
	if r.registry == nil {
		return nil, domain.NewDomainError("TierRouter.Route", domain.ErrProviderNotFound, name)
	}
	p, err := r.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("tier %s: %w", tier, err)
	}
	return p, nil
}
