package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"techassist/internal/domain"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Service is the orchestrator surface exposed by the gateway.
type Service interface {
	ProcessRequest(ctx context.Context, req domain.OrchestratorRequest) domain.OrchestratorResponse
	RoutingInfo(ctx context.Context, query, conversationID string) (*domain.RoutingInfo, error)
	ConversationHistory(ctx context.Context, conversationID string) ([]domain.ConversationMessage, error)
	DeleteConversationHistory(ctx context.Context, conversationID string) (bool, error)
	AgentCounts(ctx context.Context) (map[domain.AgentType]int, error)
}

type routeRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type conversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type historyResponse struct {
	ConversationID string                       `json:"conversation_id"`
	Messages       []domain.ConversationMessage `json:"messages"`
}

type deleteResponse struct {
	ConversationID string `json:"conversation_id"`
	Deleted        bool   `json:"deleted"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- REST ---

func queryHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.OrchestratorRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, processQuery(r.Context(), svc, ClientFrom(r.Context()), req))
	}
}

func routeHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req routeRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		info, err := svc.RoutingInfo(r.Context(), req.Query, req.ConversationID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func getConversationHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		msgs, err := svc.ConversationHistory(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, historyResponse{ConversationID: id, Messages: nonNil(msgs)})
	}
}

func deleteConversationHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		deleted, err := svc.DeleteConversationHistory(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if !deleted {
			status = http.StatusNotFound
		}
		writeJSON(w, status, deleteResponse{ConversationID: id, Deleted: deleted})
	}
}

// processQuery takes the user id from an authenticated client, ignoring any
// id in the request body. Anonymous callers keep their own id or fall back to
// the client name.
func processQuery(ctx context.Context, svc Service, client *ClientInfo, req domain.OrchestratorRequest) domain.OrchestratorResponse {
	switch {
	case client == nil:
	case client.Authenticated:
		req.UserID = client.Name
	case req.UserID == "":
		req.UserID = client.Name
	}
	return svc.ProcessRequest(ctx, req)
}

// --- RPC ---

// RegisterDefaultHandlers wires the orchestrator operations as RPC methods.
func RegisterDefaultHandlers(s *Server, svc Service) {
	s.RegisterHandler("query.process", func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req domain.OrchestratorRequest
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		return json.Marshal(processQuery(ctx, svc, client, req))
	})
	s.RegisterHandler("query.route", func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req routeRequest
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		info, err := svc.RoutingInfo(ctx, req.Query, req.ConversationID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(info)
	})
	s.RegisterHandler("conversation.get", func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req conversationRequest
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		msgs, err := svc.ConversationHistory(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(historyResponse{ConversationID: req.ConversationID, Messages: nonNil(msgs)})
	})
	s.RegisterHandler("conversation.delete", func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req conversationRequest
		if err := unmarshalPayload(payload, &req); err != nil {
			return nil, err
		}
		deleted, err := svc.DeleteConversationHistory(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(deleteResponse{ConversationID: req.ConversationID, Deleted: deleted})
	})
	s.RegisterHandler("agents.counts", func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		counts, err := svc.AgentCounts(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(countsByName(counts))
	})
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewDomainError("gateway.decode", domain.ErrInvalidInput, "empty body")
		}
		return domain.NewDomainError("gateway.decode", domain.ErrInvalidInput, err.Error())
	}
	return nil
}

func unmarshalPayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return domain.NewDomainError("gateway.rpc", domain.ErrInvalidInput, err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCodeOf(err)
	writeJSON(w, statusFor(code), errorBody{Error: err.Error(), Code: string(code)})
}

// statusFor maps a domain error code onto an HTTP status.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput, domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeAuthInvalid:
		return http.StatusUnauthorized
	case domain.CodeNotFound, domain.CodeAgentConfigNotFound:
		return http.StatusNotFound
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeNoAgentAvailable, domain.CodeRegistryNotInitialized:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func countsByName(counts map[domain.AgentType]int) map[string]int {
	out := make(map[string]int, len(counts))
	for t, n := range counts {
		out[string(t)] = n
	}
	return out
}

func nonNil(msgs []domain.ConversationMessage) []domain.ConversationMessage {
	if msgs == nil {
		return []domain.ConversationMessage{}
	}
	return msgs
}
