package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn sent to a text-generation provider.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	JSONMode    bool      `json:"json_mode,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ConversationMessage is one persisted turn of a conversation. Turns are
// append-only and owned by the conversation store.
type ConversationMessage struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id,omitempty"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	AgentType      AgentType      `json:"agent_type,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// OrchestratorRequest is the input to the coordinator.
type OrchestratorRequest struct {
	Query          string         `json:"query"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// MaxFollowupQuestions caps the follow-up list on every response.
const MaxFollowupQuestions = 5

// OrchestratorResponse is the normalized answer returned to callers.
type OrchestratorResponse struct {
	Response          string         `json:"response"`
	AgentType         AgentType      `json:"agent_type"`
	AgentName         string         `json:"agent_name"`
	Confidence        float64        `json:"confidence"`
	ConversationID    string         `json:"conversation_id"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	FollowupQuestions []string       `json:"followup_questions,omitempty"`
}
