package domain

import (
	"strings"
	"time"
)

// AgentType identifies one of the specialized answer-producing agents.
type AgentType string

// Agent types. The set is closed; anything else is parsed through
// ParseAgentType / AgentTypeOrDefault.
const (
	AgentDocumentation   AgentType = "documentation"
	AgentTroubleshooting AgentType = "troubleshooting"
	AgentMaintenance     AgentType = "maintenance"
)

// DefaultAgentType is used whenever an agent type cannot be determined.
const DefaultAgentType = AgentDocumentation

var agentTypes = []AgentType{AgentDocumentation, AgentTroubleshooting, AgentMaintenance}

// AllAgentTypes returns every known agent type in a stable order.
func AllAgentTypes() []AgentType {
	out := make([]AgentType, len(agentTypes))
	copy(out, agentTypes)
	return out
}

// ParseAgentType maps free text (typically LLM output) onto the closed enum.
// Matching is case-insensitive and tolerates surrounding whitespace and an
// optional "_agent" suffix.
func ParseAgentType(s string) (AgentType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "_agent")
	s = strings.TrimSuffix(s, " agent")
	for _, t := range agentTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// AgentTypeOrDefault parses s and falls back to DefaultAgentType.
func AgentTypeOrDefault(s string) AgentType {
	if t, ok := ParseAgentType(s); ok {
		return t
	}
	return DefaultAgentType
}

// Valid reports whether t is a member of the closed set.
func (t AgentType) Valid() bool {
	for _, k := range agentTypes {
		if t == k {
			return true
		}
	}
	return false
}

func (t AgentType) String() string { return string(t) }

// ModelTier is the size class requested from the text-generation capability.
type ModelTier string

const (
	TierSmall  ModelTier = "small"
	TierMedium ModelTier = "medium"
	TierLarge  ModelTier = "large"
)

// ParseModelTier maps a string onto a tier, defaulting to TierMedium.
func ParseModelTier(s string) ModelTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small", "fast", "mini":
		return TierSmall
	case "large", "powerful", "big":
		return TierLarge
	default:
		return TierMedium
	}
}

// AgentCapability is a named skill descriptor used for keyword matching.
type AgentCapability struct {
	Name        string   `json:"name"        yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Keywords    []string `json:"keywords"    yaml:"keywords"`
	Examples    []string `json:"examples"    yaml:"examples"`
}

// AgentMetadata describes one routable agent configuration.
// IsDefault is advisory: lookups pick the first flagged entry.
type AgentMetadata struct {
	AgentType      AgentType         `json:"agent_type"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Capabilities   []AgentCapability `json:"capabilities"`
	ConfigID       string            `json:"config_id"`
	IsDefault      bool              `json:"is_default"`
	AdditionalInfo map[string]any    `json:"additional_info,omitempty"`
}

// Keywords returns the union of all capability keywords, lowercased.
func (m AgentMetadata) Keywords() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range m.Capabilities {
		for _, k := range c.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// AgentConfigMetadata is the free-form metadata column of an agent configuration.
type AgentConfigMetadata struct {
	Capabilities []AgentCapability `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	IsDefault    *bool             `json:"is_default,omitempty"   yaml:"is_default,omitempty"`
	Extra        map[string]any    `json:"extra,omitempty"        yaml:"extra,omitempty"`
}

// AgentConfig is a persisted agent configuration.
type AgentConfig struct {
	ID           string              `json:"id"            yaml:"id"`
	AgentType    AgentType           `json:"agent_type"    yaml:"agent_type"`
	Name         string              `json:"name"          yaml:"name"`
	Description  string              `json:"description"   yaml:"description"`
	SystemPrompt string              `json:"system_prompt" yaml:"system_prompt"`
	ModelSize    ModelTier           `json:"model_size"    yaml:"model_size"`
	Temperature  float64             `json:"temperature"   yaml:"temperature"`
	MaxTokens    int                 `json:"max_tokens"    yaml:"max_tokens"`
	Active       bool                `json:"active"        yaml:"active"`
	Metadata     AgentConfigMetadata `json:"metadata"      yaml:"metadata"`
	CreatedAt    time.Time           `json:"created_at"    yaml:"-"`
	UpdatedAt    time.Time           `json:"updated_at"    yaml:"-"`
}
