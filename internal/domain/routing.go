package domain

import "context"

// RoutingResult is the concrete routing decision for one request.
//
// AgentConfigID always identifies an active configuration of AgentType.
// When a continuity override applies, Classification describes the agent
// actually used and SuggestedClassification keeps the classifier's verdict.
type RoutingResult struct {
	AgentType               AgentType              `json:"agent_type"`
	AgentConfigID           string                 `json:"agent_config_id"`
	Classification          RequestClassification  `json:"classification"`
	SuggestedClassification *RequestClassification `json:"suggested_classification,omitempty"`
	FallbackAgentConfigID   string                 `json:"fallback_agent_config_id,omitempty"`
	RequiresFollowup        bool                   `json:"requires_followup"`
	RequiresMultipleAgents  bool                   `json:"requires_multiple_agents"`
	AdditionalAgentTypes    []AgentType            `json:"additional_agent_types,omitempty"`
	ContinuityOverride      bool                   `json:"continuity_override,omitempty"`
}

// RoutingInfo is the diagnostic view returned without generating an answer.
type RoutingInfo struct {
	Classification RequestClassification `json:"classification"`
	Routing        RoutingResult         `json:"routing"`
}

// ModelSelectionRequest carries the inputs for best-effort model-tier selection.
type ModelSelectionRequest struct {
	Query         string
	History       []ConversationMessage
	DefaultTier   ModelTier
	PreferCost    bool
	PreferQuality bool
}

// ModelSelection is the outcome of model-tier selection.
type ModelSelection struct {
	Tier            ModelTier `json:"tier"`
	ComplexityScore float64   `json:"complexity_score"`
	Reason          string    `json:"reason"`
}

// ModelSelector suggests a model tier for a query. Failures are non-fatal to callers.
type ModelSelector interface {
	SelectModel(ctx context.Context, req ModelSelectionRequest) (*ModelSelection, error)
}
