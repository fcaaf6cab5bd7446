package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"techassist/internal/domain"
	"techassist/internal/infra/metrics"
	"techassist/internal/infra/tracer"
)

// Router defaults.
const (
	DefaultRoutingHistorySize = 10
	maxTrackedConversations   = 10000
)

// Routing reasons, recorded in metrics and logs.
const (
	reasonCapability = "capability_match"
	reasonDefault    = "default_agent"
	reasonTypeFall   = "type_fallback"
	reasonContinuity = "continuity"
	reasonRecovered  = "recovered"
)

// Router turns a classification into a concrete routing decision.
type Router struct {
	registry    *Registry
	historySize int
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu      sync.Mutex
	history *lru.Cache[string, []domain.RoutingResult]
}

// NewRouter creates a router that keeps up to historySize routing decisions
// per conversation.
func NewRouter(registry *Registry, historySize int, logger *slog.Logger, m *metrics.Metrics) (*Router, error) {
	if historySize <= 0 {
		historySize = DefaultRoutingHistorySize
	}
	if logger == nil {
		logger = discardLogger()
	}
	h, err := lru.New[string, []domain.RoutingResult](maxTrackedConversations)
	if err != nil {
		return nil, fmt.Errorf("routing history: %w", err)
	}
	return &Router{registry: registry, historySize: historySize, logger: logger, metrics: m, history: h}, nil
}

// Route selects the agent for cls and appends the decision to the
// conversation's routing history. Only ErrNoAgentAvailable is returned;
// every other failure degrades to the documentation agent. The request
// context map is accepted for callers that carry one and does not affect
// the decision.
func (r *Router) Route(ctx context.Context, cls domain.RequestClassification, conversationID, query string, _ map[string]any) (domain.RoutingResult, error) {
	return r.routeSafely(ctx, cls, conversationID, query, true)
}

// Preview computes the routing decision without recording it.
func (r *Router) Preview(ctx context.Context, cls domain.RequestClassification, conversationID, query string) (domain.RoutingResult, error) {
	return r.routeSafely(ctx, cls, conversationID, query, false)
}

func (r *Router) routeSafely(ctx context.Context, cls domain.RequestClassification, conversationID, query string, record bool) (res domain.RoutingResult, err error) {
	ctx, span := tracer.StartSpan(ctx, tracer.SpanRoute)
	defer span.End()

	reason := ""
	defer func() {
		if p := recover(); p != nil {
			res, reason, err = r.recoverRoute(ctx, cls, fmt.Errorf("panic: %v", p))
		}
		if err != nil {
			tracer.RecordError(span, err)
			return
		}
		if record {
			r.record(conversationID, res)
		}
		r.metrics.IncRouting(string(res.AgentType), reason)
		span.SetAttributes(
			tracer.StringAttr("routing.agent_type", string(res.AgentType)),
			tracer.StringAttr("routing.reason", reason),
			tracer.BoolAttr("routing.multi_agent", res.RequiresMultipleAgents),
		)
		r.logger.Debug("request routed", "conversation_id", conversationID, "agent_type", res.AgentType,
			"config_id", res.AgentConfigID, "reason", reason, "multi_agent", res.RequiresMultipleAgents)
	}()

	res, reason, err = r.route(ctx, cls, conversationID, query)
	if err != nil && !errors.Is(err, domain.ErrNoAgentAvailable) {
		r.logger.Warn("routing failed, falling back to documentation agent", "error", err)
		res, reason, err = r.recoverRoute(ctx, cls, err)
	}
	return res, err
}

func (r *Router) route(ctx context.Context, cls domain.RequestClassification, conversationID, query string) (domain.RoutingResult, string, error) {
	classified := cls.AgentType
	if !classified.Valid() {
		classified = domain.DefaultAgentType
	}
	level := cls.ConfidenceLevel()

	keywords := ExtractKeywords(query)
	var matches []CapabilityMatch
	if len(keywords) > 0 {
		var err error
		matches, err = r.registry.FindAgentsByCapability(ctx, keywords)
		if err != nil {
			return domain.RoutingResult{}, "", err
		}
	}

	reason := reasonDefault
	primary := topMatchOfType(matches, classified)
	if primary != nil {
		reason = reasonCapability
	} else {
		var err error
		if primary, err = r.registry.DefaultAgent(ctx, classified); err != nil {
			return domain.RoutingResult{}, "", err
		}
	}
	if primary == nil {
		doc, err := r.registry.DefaultAgent(ctx, domain.AgentDocumentation)
		if err != nil {
			return domain.RoutingResult{}, "", err
		}
		if doc == nil {
			return domain.RoutingResult{}, "", domain.NewDomainError("Router.Route", domain.ErrNoAgentAvailable,
				fmt.Sprintf("no %s or documentation agent configured", classified))
		}
		primary = doc
		reason = reasonTypeFall
	}

	res := domain.RoutingResult{
		AgentType:      primary.AgentType,
		AgentConfigID:  primary.ConfigID,
		Classification: cls,
	}

	if level == domain.ConfidenceLow {
		fb, err := r.fallbackAgent(ctx, primary.AgentType, matches)
		if err != nil {
			return domain.RoutingResult{}, "", err
		}
		if fb != nil {
			res.FallbackAgentConfigID = fb.ConfigID
		}
		res.RequiresFollowup = true
	}

	if prev, ok := r.last(conversationID); ok &&
		(level == domain.ConfidenceLow || level == domain.ConfidenceMedium) &&
		prev.AgentType != classified && IsFollowup(query) {
		cont, err := r.continuityAgent(ctx, prev)
		if err != nil {
			return domain.RoutingResult{}, "", err
		}
		if cont != nil {
			res.FallbackAgentConfigID = primary.ConfigID
			res.AgentType = cont.AgentType
			res.AgentConfigID = cont.ConfigID
			res.RequiresFollowup = true
			res.ContinuityOverride = true
			reason = reasonContinuity
		}
	}

	if level == domain.ConfidenceMedium || IsComplexQuery(query) {
		res.RequiresMultipleAgents = true
		res.AdditionalAgentTypes = additionalTypes(res.AgentType, matches)
	}

	retarget(&res, cls)
	return res, reason, nil
}

// recoverRoute is the safe route used after an unexpected failure.
func (r *Router) recoverRoute(ctx context.Context, cls domain.RequestClassification, cause error) (domain.RoutingResult, string, error) {
	doc, err := r.registry.DefaultAgent(ctx, domain.AgentDocumentation)
	if err != nil {
		return domain.RoutingResult{}, "", fmt.Errorf("%w: %w", domain.ErrNoAgentAvailable, err)
	}
	if doc == nil {
		return domain.RoutingResult{}, "", domain.NewDomainError("Router.Route", domain.ErrNoAgentAvailable,
			"no documentation agent after: "+cause.Error())
	}
	res := domain.RoutingResult{
		AgentType:        doc.AgentType,
		AgentConfigID:    doc.ConfigID,
		Classification:   cls,
		RequiresFollowup: true,
	}
	retarget(&res, cls)
	return res, reasonRecovered, nil
}

// retarget makes the attached classification describe the agent actually
// used. The classifier's own verdict is kept in SuggestedClassification.
func retarget(res *domain.RoutingResult, cls domain.RequestClassification) {
	if res.AgentType == cls.AgentType {
		return
	}
	suggested := cls
	res.SuggestedClassification = &suggested
	res.Classification = domain.RequestClassification{
		AgentType:  res.AgentType,
		Confidence: cls.Confidence,
		Reasoning:  fmt.Sprintf("routed to %s instead of %s: %s", res.AgentType, cls.AgentType, cls.Reasoning),
	}
}

func (r *Router) fallbackAgent(ctx context.Context, primary domain.AgentType, matches []CapabilityMatch) (*domain.AgentMetadata, error) {
	if ranked := rankOtherTypes(matches, primary); len(ranked) > 0 {
		return topMatchOfType(matches, ranked[0]), nil
	}
	return r.registry.DefaultAgent(ctx, fallbackPairing[primary])
}

// continuityAgent resolves the agent of a previous routing decision,
// preferring the same configuration when it is still active.
func (r *Router) continuityAgent(ctx context.Context, prev domain.RoutingResult) (*domain.AgentMetadata, error) {
	a, err := r.registry.AgentByID(ctx, prev.AgentConfigID)
	if err != nil {
		return nil, err
	}
	if a != nil && a.AgentType == prev.AgentType {
		return a, nil
	}
	return r.registry.DefaultAgent(ctx, prev.AgentType)
}

func topMatchOfType(matches []CapabilityMatch, t domain.AgentType) *domain.AgentMetadata {
	for _, m := range matches {
		if m.Agent.AgentType == t {
			a := m.Agent
			return &a
		}
	}
	return nil
}

// rankOtherTypes orders the agent types other than exclude by their total
// keyword overlap, dropping types with none.
func rankOtherTypes(matches []CapabilityMatch, exclude domain.AgentType) []domain.AgentType {
	scores := make(map[domain.AgentType]int)
	for _, m := range matches {
		if m.Agent.AgentType != exclude {
			scores[m.Agent.AgentType] += m.MatchCount
		}
	}
	var ranked []domain.AgentType
	for _, t := range domain.AllAgentTypes() {
		if scores[t] > 0 {
			ranked = append(ranked, t)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return scores[ranked[i]] > scores[ranked[j]] })
	return ranked
}

func additionalTypes(primary domain.AgentType, matches []CapabilityMatch) []domain.AgentType {
	ranked := rankOtherTypes(matches, primary)
	if len(ranked) == 0 {
		ranked = append([]domain.AgentType(nil), adjacentTypes[primary]...)
	}
	if len(ranked) > maxAdditionalAgents {
		ranked = ranked[:maxAdditionalAgents]
	}
	return ranked
}

func (r *Router) record(conversationID string, res domain.RoutingResult) {
	if conversationID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, _ := r.history.Get(conversationID)
	entries = append(entries, res)
	if len(entries) > r.historySize {
		entries = append([]domain.RoutingResult(nil), entries[len(entries)-r.historySize:]...)
	}
	r.history.Add(conversationID, entries)
}

func (r *Router) last(conversationID string) (domain.RoutingResult, bool) {
	if conversationID == "" {
		return domain.RoutingResult{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, ok := r.history.Peek(conversationID)
	if !ok || len(entries) == 0 {
		return domain.RoutingResult{}, false
	}
	return entries[len(entries)-1], true
}

// History returns the recorded routing decisions of a conversation, oldest first.
func (r *Router) History(conversationID string) []domain.RoutingResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, _ := r.history.Peek(conversationID)
	out := make([]domain.RoutingResult, len(entries))
	copy(out, entries)
	return out
}

// ClearHistory forgets the routing decisions of a conversation.
func (r *Router) ClearHistory(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history.Remove(conversationID)
}
