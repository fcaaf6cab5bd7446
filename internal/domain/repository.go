package domain

import "context"

// AgentConfigRepository is the configuration store for agent definitions.
type AgentConfigRepository interface {
	GetByAgentType(ctx context.Context, agentType AgentType, activeOnly bool) ([]AgentConfig, error)
	// GetByID returns ErrAgentConfigNotFound when id is unknown.
	GetByID(ctx context.Context, id string) (*AgentConfig, error)
	Upsert(ctx context.Context, cfg *AgentConfig) error
}

// NewMessage is the input to ConversationRepository.AddMessage.
type NewMessage struct {
	ConversationID string
	UserID         string
	Role           string
	Content        string
	AgentType      AgentType
	Metadata       map[string]any
}

// ConversationRepository stores conversation turns keyed by conversation id.
type ConversationRepository interface {
	// GetMessages returns turns oldest first. Unknown ids yield an empty slice.
	GetMessages(ctx context.Context, conversationID string) ([]ConversationMessage, error)
	AddMessage(ctx context.Context, msg NewMessage) (*ConversationMessage, error)
	// DeleteConversation reports whether anything was deleted.
	DeleteConversation(ctx context.Context, conversationID string) (bool, error)
}
