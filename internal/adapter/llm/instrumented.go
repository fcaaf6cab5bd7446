package llm

import (
	"context"

	"techassist/internal/domain"
	"techassist/internal/infra/metrics"
)

var _ domain.LLMProvider = (*InstrumentedProvider)(nil)

// InstrumentedProvider records call outcomes and token usage.
type InstrumentedProvider struct {
	inner   domain.LLMProvider
	metrics *metrics.Metrics
}

func NewInstrumentedProvider(inner domain.LLMProvider, m *metrics.Metrics) *InstrumentedProvider {
	return &InstrumentedProvider{inner: inner, metrics: m}
}

// Chat implements domain.LLMProvider.
func (p *InstrumentedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.inner.Chat(ctx, req)
	var prompt, completion int
	if resp != nil {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	p.metrics.ObserveLLMCall(p.inner.Name(), err, prompt, completion)
	return resp, err
}

// Name implements domain.LLMProvider.
func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

// Unwrap returns the instrumented provider.
func (p *InstrumentedProvider) Unwrap() domain.LLMProvider { return p.inner }
