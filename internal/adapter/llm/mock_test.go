package llm

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"techassist/internal/domain"
)

type mockProvider struct {
	name     string
	calls    atomic.Int32
	chatFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.calls.Add(1)
	if m.chatFunc != nil {
		return m.chatFunc(ctx, req)
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: "reply from " + m.name}}, nil
}

func (m *mockProvider) Name() string { return m.name }

func failing(name string, err error) *mockProvider {
	return &mockProvider{name: name, chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, err
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
