package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"techassist/internal/domain"
	"techassist/internal/infra/config"
	"techassist/internal/infra/metrics"
)

// HealthChecker is implemented by providers that can probe their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]domain.LLMProvider)}
}

// Register adds a provider. Names must be unique.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Get returns the named provider or ErrProviderNotFound.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider constructs the concrete provider for one config entry.
func NewProvider(cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch cfg.Type {
	case "openai", "":
		return NewOpenAIProvider(cfg, logger), nil
	case "ollama":
		return NewOllamaProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}

// Build creates every configured provider, wrapped innermost to outermost
// with rate limiting, metrics and a circuit breaker, and registers them.
// It returns the registry and the default provider, itself wrapped with
// failover when configured.
func Build(cfg config.LLMConfig, logger *slog.Logger, m *metrics.Metrics) (*Registry, domain.LLMProvider, error) {
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		if cfg.RateLimit.Enabled {
			p = NewRateLimitedProvider(p, cfg.RateLimit)
		}
		p = NewInstrumentedProvider(p, m)
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, nil, err
		}
	}

	primary, err := reg.Get(cfg.DefaultProvider)
	if err != nil {
		return nil, nil, fmt.Errorf("default provider: %w", err)
	}

	if cfg.Failover.Enabled && len(cfg.Failover.Fallbacks) > 0 {
		fallbacks := make([]domain.LLMProvider, 0, len(cfg.Failover.Fallbacks))
		for _, name := range cfg.Failover.Fallbacks {
			fb, err := reg.Get(name)
			if err != nil {
				return nil, nil, fmt.Errorf("failover: %w", err)
			}
			if name != cfg.DefaultProvider {
				fallbacks = append(fallbacks, fb)
			}
		}
		primary = NewFailoverProvider(primary, fallbacks, logger)
	}
	return reg, primary, nil
}

// HealthCheck probes p, looking through wrappers for a HealthChecker.
// Providers without a probe report nil.
func HealthCheck(ctx context.Context, p domain.LLMProvider) error {
	for p != nil {
		if hc, ok := p.(HealthChecker); ok {
			return hc.HealthCheck(ctx)
		}
		u, ok := p.(interface{ Unwrap() domain.LLMProvider })
		if !ok {
			return nil
		}
		p = u.Unwrap()
	}
	return nil
}
