package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techassist/internal/domain"
	"techassist/internal/infra/config"
	"techassist/internal/infra/metrics"
)

func TestCircuitBreakerPassesThrough(t *testing.T) {
	cb := NewCircuitBreakerProvider(&mockProvider{name: "openai"}, config.CircuitBreakerConfig{}, discardLogger())
	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "reply from openai", resp.Message.Content)
	assert.Equal(t, "openai", cb.Name())
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	inner := failing("flaky", domain.ErrUpstream)
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Hour}, discardLogger())

	for i := 0; i < 3; i++ {
		_, err := cb.Chat(context.Background(), domain.ChatRequest{})
		require.ErrorIs(t, err, domain.ErrUpstream)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(3), inner.calls.Load(), "open circuit must not reach the provider")
}

func TestCircuitBreakerIgnoresCallerErrors(t *testing.T) {
	inner := failing("p", domain.ErrAuthInvalid)
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{MaxFailures: 1}, discardLogger())
	for i := 0; i < 3; i++ {
		_, err := cb.Chat(context.Background(), domain.ChatRequest{})
		assert.ErrorIs(t, err, domain.ErrAuthInvalid)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestFailoverPrimarySuccess(t *testing.T) {
	fb := &mockProvider{name: "backup"}
	f := NewFailoverProvider(&mockProvider{name: "main"}, []domain.LLMProvider{fb}, discardLogger())
	resp, err := f.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "reply from main", resp.Message.Content)
	assert.Zero(t, fb.calls.Load())
	assert.Equal(t, "main+failover", f.Name())
}

func TestFailoverFallsBack(t *testing.T) {
	f := NewFailoverProvider(failing("main", domain.ErrUpstream), []domain.LLMProvider{
		failing("b1", domain.ErrRateLimit),
		&mockProvider{name: "b2"},
	}, discardLogger())
	resp, err := f.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "reply from b2", resp.Message.Content)
}

func TestFailoverAllFailJoinsErrors(t *testing.T) {
	f := NewFailoverProvider(failing("main", domain.ErrUpstream), []domain.LLMProvider{
		failing("b1", domain.ErrRateLimit),
	}, discardLogger())
	_, err := f.Chat(context.Background(), domain.ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Contains(t, err.Error(), "main:")
	assert.Contains(t, err.Error(), "b1:")
}

func TestFailoverStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fb := &mockProvider{name: "backup"}
	f := NewFailoverProvider(failing("main", context.Canceled), []domain.LLMProvider{fb}, discardLogger())
	_, err := f.Chat(ctx, domain.ChatRequest{})
	require.Error(t, err)
	assert.Zero(t, fb.calls.Load())
}

func TestRateLimitedProviderWaitsAndCancels(t *testing.T) {
	inner := &mockProvider{name: "p"}
	rl := NewRateLimitedProvider(inner, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	_, err := rl.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rl.Chat(ctx, domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestInstrumentedProviderRecords(t *testing.T) {
	m := metrics.New()
	ok := NewInstrumentedProvider(&mockProvider{name: "p", chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return &domain.ChatResponse{Usage: domain.Usage{PromptTokens: 7, CompletionTokens: 3}}, nil
	}}, m)
	_, _ = ok.Chat(context.Background(), domain.ChatRequest{})
	bad := NewInstrumentedProvider(failing("p", errors.New("x")), m)
	_, _ = bad.Chat(context.Background(), domain.ChatRequest{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("p", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("p", "error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.LLMTokens.WithLabelValues("p", "prompt")))
}

type healthyMock struct {
	mockProvider
	err error
}

func (h *healthyMock) HealthCheck(context.Context) error { return h.err }

func TestHealthCheckUnwraps(t *testing.T) {
	base := &healthyMock{mockProvider: mockProvider{name: "h"}, err: domain.ErrAuthInvalid}
	wrapped := NewCircuitBreakerProvider(NewInstrumentedProvider(base, nil), config.CircuitBreakerConfig{}, discardLogger())
	assert.ErrorIs(t, HealthCheck(context.Background(), wrapped), domain.ErrAuthInvalid)
	assert.NoError(t, HealthCheck(context.Background(), &mockProvider{name: "plain"}))
}
