package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "ollama").
	Name() string
}

// GenerationRequest is a chat-style request to the text-generation capability.
type GenerationRequest struct {
	Messages    []Message
	Tier        ModelTier
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// TemplateRequest is a template-style request: a named prompt template
// rendered with Variables, sent as a single user turn.
type TemplateRequest struct {
	Template    string
	Variables   map[string]any
	System      string
	Tier        ModelTier
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// GenerationResponse is the reply of the text-generation capability.
type GenerationResponse struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}

// TextGenerator is the opaque text-generation capability. Any call may fail;
// callers degrade instead of treating failure as fatal.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResponse, error)
	GenerateTemplate(ctx context.Context, req TemplateRequest) (*GenerationResponse, error)
}

// TokenCounter counts tokens for budgeting and complexity estimation.
type TokenCounter interface {
	Count(text string) int
}
