package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"techassist/internal/domain"
	"techassist/internal/infra/config"
)

var _ domain.LLMProvider = (*RateLimitedProvider)(nil)

// RateLimitedProvider holds outbound calls to a token bucket. Calls wait
// for a token until the context is done.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

func NewRateLimitedProvider(inner domain.LLMProvider, cfg config.RateLimitConfig) *RateLimitedProvider {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// Chat implements domain.LLMProvider.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: provider %q: %v", domain.ErrRateLimit, p.inner.Name(), err)
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

// Unwrap returns the limited provider.
func (p *RateLimitedProvider) Unwrap() domain.LLMProvider { return p.inner }
