package gateway

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"techassist/internal/domain"
)

type fakeService struct {
	mu        sync.Mutex
	requests  []domain.OrchestratorRequest
	history   map[string][]domain.ConversationMessage
	routeErr  error
	countsErr error
	counts    map[domain.AgentType]int
}

func newFakeService() *fakeService {
	return &fakeService{
		history: map[string][]domain.ConversationMessage{
			"c1": {{ID: "m1", ConversationID: "c1", Role: domain.RoleUser, Content: "hi"}},
		},
		counts: map[domain.AgentType]int{
			domain.AgentDocumentation:   1,
			domain.AgentTroubleshooting: 1,
			domain.AgentMaintenance:     0,
		},
	}
}

func (f *fakeService) ProcessRequest(_ context.Context, req domain.OrchestratorRequest) domain.OrchestratorResponse {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return domain.OrchestratorResponse{
		Response:       "answer to " + req.Query,
		AgentType:      domain.AgentTroubleshooting,
		AgentName:      "Troubleshooting Agent",
		Confidence:     0.8,
		ConversationID: req.ConversationID,
	}
}

func (f *fakeService) RoutingInfo(_ context.Context, query, conversationID string) (*domain.RoutingInfo, error) {
	if f.routeErr != nil {
		return nil, f.routeErr
	}
	if query == "" {
		return nil, domain.NewDomainError("fake.RoutingInfo", domain.ErrInvalidInput, "empty query")
	}
	cls := domain.RequestClassification{AgentType: domain.AgentMaintenance, Confidence: 0.9}
	return &domain.RoutingInfo{
		Classification: cls,
		Routing:        domain.RoutingResult{AgentType: domain.AgentMaintenance, AgentConfigID: "mnt-1", Classification: cls},
	}, nil
}

func (f *fakeService) ConversationHistory(_ context.Context, id string) ([]domain.ConversationMessage, error) {
	if id == "" {
		return nil, domain.ErrInvalidInput
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[id], nil
}

func (f *fakeService) DeleteConversationHistory(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.history[id]
	delete(f.history, id)
	return ok, nil
}

func (f *fakeService) AgentCounts(context.Context) (map[domain.AgentType]int, error) {
	if f.countsErr != nil {
		return nil, f.countsErr
	}
	return f.counts, nil
}

func (f *fakeService) lastRequest() domain.OrchestratorRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
