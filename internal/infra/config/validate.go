package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateOrchestrator(cfg, ve)
	validateLLM(cfg, ve)
	validateStore(cfg, ve)
	validateAgents(cfg, ve)
	validateLogger(cfg, ve)
	validateGateway(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateOrchestrator(cfg *Config, ve *ValidationError) {
	o := cfg.Orchestrator
	if o.RegistryTTL <= 0 {
		ve.Add("orchestrator.registry_ttl must be > 0")
	}
	if o.ClassifierCacheSize <= 0 {
		ve.Add("orchestrator.classifier_cache_size must be > 0")
	}
	if o.RoutingHistorySize <= 0 {
		ve.Add("orchestrator.routing_history_size must be > 0")
	}
	if o.GenerationTimeout <= 0 {
		ve.Add("orchestrator.generation_timeout must be > 0")
	}
	if o.MaxSecondaryAgents < 0 {
		ve.Add("orchestrator.max_secondary_agents must be >= 0")
	}
	if o.QuickConfidenceThreshold < 0 || o.QuickConfidenceThreshold > 1 {
		ve.Add("orchestrator.quick_confidence_threshold must be within [0, 1]")
	}
	if o.HistoryTurns < 0 {
		ve.Add("orchestrator.history_turns must be >= 0")
	}
}

var validProviderTypes = map[string]bool{
	"openai": true,
	"ollama": true,
}

var validTiers = map[string]bool{"small": true, "medium": true, "large": true}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, ollama)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "ollama" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via TECHASSIST_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, strings.ToUpper(p.Name))
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	for tier, provider := range cfg.LLM.Tiers {
		if !validTiers[tier] {
			ve.Add("llm.tiers: unknown tier %q (want: small, medium, large)", tier)
		}
		if provider != "" && provider != "default" && !seen[provider] {
			ve.Add("llm.tiers.%s: provider %q is not configured", tier, provider)
		}
	}
	for _, fb := range cfg.LLM.Failover.Fallbacks {
		if !seen[fb] {
			ve.Add("llm.failover.fallbacks: provider %q is not configured", fb)
		}
	}
	if cfg.LLM.RateLimit.Enabled && cfg.LLM.RateLimit.RequestsPerSecond <= 0 {
		ve.Add("llm.rate_limit.requests_per_second must be > 0 when rate limiting is enabled")
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
}

var validAgentTypes = map[string]bool{"documentation": true, "troubleshooting": true, "maintenance": true}

func validateAgents(cfg *Config, ve *ValidationError) {
	ids := make(map[string]bool)
	for i, a := range cfg.Agents {
		if a.ID == "" {
			ve.Add("agents[%d].id must not be empty", i)
		} else if ids[a.ID] {
			ve.Add("agents[%d]: duplicate id %q", i, a.ID)
		}
		ids[a.ID] = true
		if !validAgentTypes[strings.ToLower(a.AgentType)] {
			ve.Add("agents[%d].agent_type %q is invalid (want: documentation, troubleshooting, maintenance)", i, a.AgentType)
		}
		if a.Name == "" {
			ve.Add("agents[%d].name must not be empty", i)
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			ve.Add("agents[%d].temperature must be within [0, 2]", i)
		}
		if a.MaxTokens < 0 {
			ve.Add("agents[%d].max_tokens must be >= 0", i)
		}
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if cfg.Gateway.Addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is invalid: %v", cfg.Gateway.Addr, err)
	}
	if cfg.Gateway.RequestsPerMin < 0 || cfg.Gateway.BurstSize < 0 {
		ve.Add("gateway rate limits must be >= 0")
	}
	for i, tok := range cfg.Gateway.Tokens {
		if len(tok.Token) < 16 {
			ve.Add("gateway.tokens[%d] must be at least 16 characters", i)
		}
	}
}
