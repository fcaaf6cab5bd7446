package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"techassist/internal/domain"
)

// --- agent config repository ---

type mockConfigRepo struct {
	mu        sync.Mutex
	configs   []domain.AgentConfig
	typeCalls atomic.Int64
	typeErr   error
	hideByID  bool
}

func newMockConfigRepo(cfgs ...domain.AgentConfig) *mockConfigRepo {
	return &mockConfigRepo{configs: cfgs}
}

func (m *mockConfigRepo) GetByAgentType(_ context.Context, t domain.AgentType, activeOnly bool) ([]domain.AgentConfig, error) {
	m.typeCalls.Add(1)
	if m.typeErr != nil {
		return nil, m.typeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AgentConfig
	for _, c := range m.configs {
		if c.AgentType == t && (!activeOnly || c.Active) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockConfigRepo) GetByID(_ context.Context, id string) (*domain.AgentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hideByID {
		for _, c := range m.configs {
			if c.ID == id {
				cp := c
				return &cp, nil
			}
		}
	}
	return nil, domain.NewDomainError("mock.GetByID", domain.ErrAgentConfigNotFound, id)
}

func (m *mockConfigRepo) Upsert(_ context.Context, cfg *domain.AgentConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.configs {
		if m.configs[i].ID == cfg.ID {
			m.configs[i] = *cfg
			return nil
		}
	}
	m.configs = append(m.configs, *cfg)
	return nil
}

// --- conversation repository ---

type mockConversations struct {
	mu       sync.Mutex
	messages map[string][]domain.ConversationMessage
	getErr   error
	addErr   error
}

func newMockConversations() *mockConversations {
	return &mockConversations{messages: make(map[string][]domain.ConversationMessage)}
}

func (m *mockConversations) GetMessages(_ context.Context, id string) ([]domain.ConversationMessage, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ConversationMessage, len(m.messages[id]))
	copy(out, m.messages[id])
	return out, nil
}

func (m *mockConversations) AddMessage(_ context.Context, msg domain.NewMessage) (*domain.ConversationMessage, error) {
	if m.addErr != nil {
		return nil, m.addErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cm := domain.ConversationMessage{
		ID:             fmt.Sprintf("m%d", len(m.messages[msg.ConversationID])+1),
		ConversationID: msg.ConversationID,
		UserID:         msg.UserID,
		Role:           msg.Role,
		Content:        msg.Content,
		AgentType:      msg.AgentType,
		Metadata:       msg.Metadata,
		Timestamp:      time.Now(),
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], cm)
	return &cm, nil
}

func (m *mockConversations) DeleteConversation(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.messages[id]
	delete(m.messages, id)
	return ok, nil
}

// --- text generator ---

type mockGenerator struct {
	generateFn func(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error)
	templateFn func(ctx context.Context, req domain.TemplateRequest) (*domain.GenerationResponse, error)

	calls         atomic.Int64
	templateCalls atomic.Int64

	mu       sync.Mutex
	requests []domain.GenerationRequest
}

func (m *mockGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.generateFn != nil {
		return m.generateFn(ctx, req)
	}
	return &domain.GenerationResponse{Content: "ok"}, nil
}

func (m *mockGenerator) GenerateTemplate(ctx context.Context, req domain.TemplateRequest) (*domain.GenerationResponse, error) {
	m.templateCalls.Add(1)
	if m.templateFn != nil {
		return m.templateFn(ctx, req)
	}
	return &domain.GenerationResponse{Content: "secondary"}, nil
}

// answerRequests returns the non-classification requests seen so far.
func (m *mockGenerator) answerRequests() []domain.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GenerationRequest
	for _, r := range m.requests {
		if !r.JSONMode {
			out = append(out, r)
		}
	}
	return out
}

func replyJSON(agentType string, confidence float64) func(context.Context, domain.GenerationRequest) (*domain.GenerationResponse, error) {
	return func(_ context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
		if req.JSONMode {
			return &domain.GenerationResponse{Content: fmt.Sprintf(`{"agent_type": %q, "confidence": %v, "reasoning": "test"}`, agentType, confidence)}, nil
		}
		return &domain.GenerationResponse{Content: "Here is the answer."}, nil
	}
}

func failing() func(context.Context, domain.GenerationRequest) (*domain.GenerationResponse, error) {
	return func(context.Context, domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return nil, errors.New("upstream unavailable")
	}
}

// --- model selector ---

type mockSelector struct {
	tier domain.ModelTier
	err  error
	got  atomic.Pointer[domain.ModelSelectionRequest]
}

func (m *mockSelector) SelectModel(_ context.Context, req domain.ModelSelectionRequest) (*domain.ModelSelection, error) {
	m.got.Store(&req)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ModelSelection{Tier: m.tier, ComplexityScore: 0.9, Reason: "mock"}, nil
}

// --- fixtures ---

func boolPtr(b bool) *bool { return &b }

func docConfig() domain.AgentConfig {
	return domain.AgentConfig{
		ID:          "doc-1",
		AgentType:   domain.AgentDocumentation,
		Name:        "Documentation Agent",
		ModelSize:   domain.TierMedium,
		Temperature: 0.2,
		MaxTokens:   800,
		Active:      true,
		Metadata: domain.AgentConfigMetadata{
			Capabilities: []domain.AgentCapability{{
				Name:     "documentation_lookup",
				Keywords: []string{"manual", "document", "find", "documentation"},
			}},
		},
	}
}

func troubleshootingConfig() domain.AgentConfig {
	return domain.AgentConfig{
		ID:        "ts-1",
		AgentType: domain.AgentTroubleshooting,
		Name:      "Troubleshooting Agent",
		ModelSize: domain.TierLarge,
		Active:    true,
	}
}

func maintenanceConfig() domain.AgentConfig {
	return domain.AgentConfig{
		ID:        "mnt-1",
		AgentType: domain.AgentMaintenance,
		Name:      "Maintenance Agent",
		ModelSize: domain.TierMedium,
		Active:    true,
	}
}

func fullCatalog() *mockConfigRepo {
	return newMockConfigRepo(docConfig(), troubleshootingConfig(), maintenanceConfig())
}

func initializedRegistry(t *testing.T, repo domain.AgentConfigRepository) *Registry {
	t.Helper()
	r := NewRegistry(repo, time.Minute, nil, nil)
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return r
}
