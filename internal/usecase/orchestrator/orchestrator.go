// Package orchestrator routes technical-assistance queries to specialized
// agents: it classifies the query, picks an agent configuration, generates
// an answer, optionally consults secondary agents, and normalizes the result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"techassist/internal/domain"
	"techassist/internal/infra/config"
	"techassist/internal/infra/metrics"
	"techassist/internal/infra/tracer"
)

// Coordinator defaults.
const (
	DefaultGenerationTimeout  = 60 * time.Second
	DefaultMaxSecondaryAgents = 2
	DefaultHistoryTurns       = 10
)

// Options tunes an Orchestrator. Zero values select defaults.
type Options struct {
	RegistryTTL              time.Duration
	ClassifierCacheSize      int
	QuickConfidenceThreshold float64
	RoutingHistorySize       int
	GenerationTimeout        time.Duration
	MaxSecondaryAgents       int
	HistoryTurns             int
	ModelSelection           bool
	MultiAgent               bool
}

// OptionsFromConfig maps the orchestrator config section onto Options.
func OptionsFromConfig(cfg config.OrchestratorConfig) Options {
	return Options{
		RegistryTTL:              cfg.RegistryTTL,
		ClassifierCacheSize:      cfg.ClassifierCacheSize,
		QuickConfidenceThreshold: cfg.QuickConfidenceThreshold,
		RoutingHistorySize:       cfg.RoutingHistorySize,
		GenerationTimeout:        cfg.GenerationTimeout,
		MaxSecondaryAgents:       cfg.MaxSecondaryAgents,
		HistoryTurns:             cfg.HistoryTurns,
		ModelSelection:           cfg.ModelSelection,
		MultiAgent:               cfg.MultiAgent,
	}
}

// Deps are the external collaborators of an Orchestrator. Conversations and
// Selector are optional.
type Deps struct {
	Configs       domain.AgentConfigRepository
	Conversations domain.ConversationRepository
	Generator     domain.TextGenerator
	Selector      domain.ModelSelector
}

// Orchestrator coordinates registry, classifier, router and formatter. All
// caches are owned by the instance.
type Orchestrator struct {
	registry   *Registry
	classifier *Classifier
	router     *Router
	formatter  *Formatter

	configs       domain.AgentConfigRepository
	conversations domain.ConversationRepository
	gen           domain.TextGenerator
	selector      domain.ModelSelector

	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New wires an Orchestrator. Configs and Generator are required.
func New(deps Deps, opts Options, logger *slog.Logger, m *metrics.Metrics) (*Orchestrator, error) {
	if deps.Configs == nil {
		return nil, domain.NewDomainError("orchestrator.New", domain.ErrInvalidInput, "agent config repository is required")
	}
	if deps.Generator == nil {
		return nil, domain.NewDomainError("orchestrator.New", domain.ErrInvalidInput, "text generator is required")
	}
	if logger == nil {
		logger = discardLogger()
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = DefaultGenerationTimeout
	}
	if opts.MaxSecondaryAgents < 0 {
		opts.MaxSecondaryAgents = 0
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = DefaultHistoryTurns
	}

	registry := NewRegistry(deps.Configs, opts.RegistryTTL, logger.With("component", "registry"), m)
	classifier, err := NewClassifier(deps.Generator, opts.ClassifierCacheSize, opts.QuickConfidenceThreshold, logger.With("component", "classifier"), m)
	if err != nil {
		return nil, err
	}
	router, err := NewRouter(registry, opts.RoutingHistorySize, logger.With("component", "router"), m)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		registry:      registry,
		classifier:    classifier,
		router:        router,
		formatter:     NewFormatter(logger.With("component", "formatter")),
		configs:       deps.Configs,
		conversations: deps.Conversations,
		gen:           deps.Generator,
		selector:      deps.Selector,
		opts:          opts,
		logger:        logger,
		metrics:       m,
	}, nil
}

// Registry exposes the agent registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Classifier exposes the request classifier.
func (o *Orchestrator) Classifier() *Classifier { return o.classifier }

// Router exposes the router.
func (o *Orchestrator) Router() *Router { return o.router }

// ProcessRequest answers req. Business failures never surface as errors:
// they produce an apology response with zero confidence and an "error"
// metadata entry.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req domain.OrchestratorRequest) domain.OrchestratorResponse {
	start := time.Now()
	ctx, span := tracer.StartSpan(ctx, tracer.SpanProcess)
	defer span.End()

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = newConversationID()
	}
	span.SetAttributes(tracer.StringAttr("conversation.id", conversationID))

	resp, err := o.process(ctx, req, conversationID)
	status := "ok"
	if err != nil {
		status = "error"
		tracer.RecordError(span, err)
		o.logger.Error("request failed", "conversation_id", conversationID, "error", err)
		resp = o.formatter.ErrorResponse(conversationID, err)
	} else {
		tracer.SetOK(span)
	}
	span.SetAttributes(
		tracer.StringAttr("agent.type", string(resp.AgentType)),
		tracer.Float64Attr("response.confidence", resp.Confidence),
	)
	o.metrics.ObserveRequest(string(resp.AgentType), status, time.Since(start))
	return resp
}

func (o *Orchestrator) process(ctx context.Context, req domain.OrchestratorRequest, conversationID string) (resp domain.OrchestratorResponse, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected failure: %v", p)
		}
	}()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return resp, domain.NewDomainError("Orchestrator.ProcessRequest", domain.ErrInvalidInput, "empty query")
	}
	if err := o.ensureRegistry(ctx); err != nil {
		return resp, err
	}

	history := o.history(ctx, conversationID)
	agents, err := o.registry.AllAgents(ctx)
	if err != nil {
		return resp, err
	}
	cls := o.classifier.Classify(ctx, query, agents, history)

	routing, err := o.router.Route(ctx, cls, conversationID, query, req.Context)
	if err != nil {
		return resp, err
	}

	cfg, err := o.configs.GetByID(ctx, routing.AgentConfigID)
	if err != nil {
		return resp, fmt.Errorf("resolve agent %s: %w", routing.AgentConfigID, err)
	}

	tier, selection := o.selectTier(ctx, cfg, query, history, req.Metadata)
	answer, err := o.generate(ctx, cfg, tier, o.buildMessages(cfg, query, history, req.Context))
	if err != nil {
		return resp, err
	}

	meta := map[string]any{
		"agent_config_id":   cfg.ID,
		"classification":    cls,
		"confidence_level":  string(routing.Classification.ConfidenceLevel()),
		"model_tier":        string(tier),
		"requires_followup": routing.RequiresFollowup,
	}
	if selection != nil {
		meta["complexity_score"] = selection.ComplexityScore
	}
	if routing.ContinuityOverride {
		meta["continuity_override"] = true
	}
	for k, v := range req.Metadata {
		meta["request_"+k] = v
	}

	resp = o.formatter.FormatResponse(FormatInput{
		Text:           answer.Content,
		AgentType:      cfg.AgentType,
		AgentName:      cfg.Name,
		Confidence:     routing.Classification.Confidence,
		ConversationID: conversationID,
		Metadata:       meta,
		Sources:        sourcesFromContext(req.Context),
	})

	if routing.RequiresMultipleAgents && o.opts.MultiAgent && o.opts.MaxSecondaryAgents > 0 {
		if secondaries := o.consultSecondaries(ctx, query, routing, resp); len(secondaries) > 0 {
			resp = o.formatter.FormatMultiAgentResponse(resp, secondaries, routing)
		}
	}

	o.persist(ctx, req, conversationID, resp)
	return resp, nil
}

// RoutingInfo classifies and routes query without generating an answer or
// recording the decision.
func (o *Orchestrator) RoutingInfo(ctx context.Context, query, conversationID string) (*domain.RoutingInfo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewDomainError("Orchestrator.RoutingInfo", domain.ErrInvalidInput, "empty query")
	}
	if err := o.ensureRegistry(ctx); err != nil {
		return nil, err
	}
	history := o.history(ctx, conversationID)
	agents, err := o.registry.AllAgents(ctx)
	if err != nil {
		return nil, err
	}
	cls := o.classifier.Classify(ctx, query, agents, history)
	routing, err := o.router.Preview(ctx, cls, conversationID, query)
	if err != nil {
		return nil, err
	}
	return &domain.RoutingInfo{Classification: cls, Routing: routing}, nil
}

// ConversationHistory returns the stored turns of a conversation, oldest first.
func (o *Orchestrator) ConversationHistory(ctx context.Context, conversationID string) ([]domain.ConversationMessage, error) {
	if conversationID == "" {
		return nil, domain.NewDomainError("Orchestrator.ConversationHistory", domain.ErrInvalidInput, "conversation id is required")
	}
	if o.conversations == nil {
		return []domain.ConversationMessage{}, nil
	}
	return o.conversations.GetMessages(ctx, conversationID)
}

// DeleteConversationHistory removes a conversation and its routing history.
// It reports whether any stored turns were deleted.
func (o *Orchestrator) DeleteConversationHistory(ctx context.Context, conversationID string) (bool, error) {
	if conversationID == "" {
		return false, domain.NewDomainError("Orchestrator.DeleteConversationHistory", domain.ErrInvalidInput, "conversation id is required")
	}
	o.router.ClearHistory(conversationID)
	if o.conversations == nil {
		return false, nil
	}
	return o.conversations.DeleteConversation(ctx, conversationID)
}

// AgentCounts returns the number of active agents per type, initializing
// the registry if needed.
func (o *Orchestrator) AgentCounts(ctx context.Context) (map[domain.AgentType]int, error) {
	if err := o.ensureRegistry(ctx); err != nil {
		return nil, err
	}
	return o.registry.Snapshot(ctx)
}

func (o *Orchestrator) ensureRegistry(ctx context.Context) error {
	if o.registry.Initialized() {
		return nil
	}
	return o.registry.Initialize(ctx)
}

// history fetches recent turns. Failures are logged and yield no history.
func (o *Orchestrator) history(ctx context.Context, conversationID string) []domain.ConversationMessage {
	if o.conversations == nil || conversationID == "" {
		return nil
	}
	msgs, err := o.conversations.GetMessages(ctx, conversationID)
	if err != nil {
		o.logger.Warn("conversation history unavailable", "conversation_id", conversationID, "error", err)
		return nil
	}
	if len(msgs) > o.opts.HistoryTurns {
		msgs = msgs[len(msgs)-o.opts.HistoryTurns:]
	}
	return msgs
}

// selectTier returns the agent's configured tier, overridden by the model
// selector when enabled. Selector failures are ignored.
func (o *Orchestrator) selectTier(ctx context.Context, cfg *domain.AgentConfig, query string, history []domain.ConversationMessage, meta map[string]any) (domain.ModelTier, *domain.ModelSelection) {
	tier := cfg.ModelSize
	if tier == "" {
		tier = domain.TierMedium
	}
	if !o.opts.ModelSelection || o.selector == nil {
		return tier, nil
	}
	sel, err := o.selector.SelectModel(ctx, domain.ModelSelectionRequest{
		Query:         query,
		History:       history,
		DefaultTier:   tier,
		PreferCost:    boolMeta(meta, "prefer_cost"),
		PreferQuality: boolMeta(meta, "prefer_quality"),
	})
	if err != nil || sel == nil {
		o.logger.Debug("model selection skipped", "error", err)
		return tier, nil
	}
	return sel.Tier, sel
}

func (o *Orchestrator) buildMessages(cfg *domain.AgentConfig, query string, history []domain.ConversationMessage, reqCtx map[string]any) []domain.Message {
	system := cfg.SystemPrompt
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt(cfg.AgentType)
	}
	if block := contextBlock(reqCtx); block != "" {
		system += "\n\n" + block
	}
	msgs := []domain.Message{{Role: domain.RoleSystem, Content: system}}
	msgs = append(msgs, historyMessages(history, o.opts.HistoryTurns)...)
	return append(msgs, domain.Message{Role: domain.RoleUser, Content: query})
}

// generate calls the text generator under the per-request deadline.
func (o *Orchestrator) generate(ctx context.Context, cfg *domain.AgentConfig, tier domain.ModelTier, msgs []domain.Message) (*domain.GenerationResponse, error) {
	ctx, span := tracer.StartSpan(ctx, tracer.SpanGenerate)
	defer span.End()
	span.SetAttributes(tracer.StringAttr("agent.type", string(cfg.AgentType)), tracer.StringAttr("model.tier", string(tier)))

	ctx, cancel := context.WithTimeout(ctx, o.opts.GenerationTimeout)
	defer cancel()

	resp, err := o.gen.Generate(ctx, domain.GenerationRequest{
		Messages:    msgs,
		Tier:        tier,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		tracer.RecordError(span, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, domain.ErrTimeout)
		}
		if !errors.Is(err, domain.ErrGenerationFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
		}
		return nil, err
	}
	return resp, nil
}

// consultSecondaries asks the additional agent types for complementary
// answers concurrently. Failed consultations are omitted.
func (o *Orchestrator) consultSecondaries(ctx context.Context, query string, routing domain.RoutingResult, primary domain.OrchestratorResponse) []domain.OrchestratorResponse {
	types := make([]domain.AgentType, 0, len(routing.AdditionalAgentTypes))
	for _, t := range routing.AdditionalAgentTypes {
		if t != routing.AgentType && t.Valid() {
			types = append(types, t)
		}
	}
	if len(types) > o.opts.MaxSecondaryAgents {
		types = types[:o.opts.MaxSecondaryAgents]
	}
	if len(types) == 0 {
		return nil
	}

	results := make([]*domain.OrchestratorResponse, len(types))
	var g errgroup.Group
	g.SetLimit(o.opts.MaxSecondaryAgents)
	for i, t := range types {
		g.Go(func() error {
			resp, err := o.consult(ctx, query, routing.AgentType, t, primary)
			if err != nil {
				o.logger.Warn("secondary agent failed", "agent_type", t, "error", err)
				return nil
			}
			results[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.OrchestratorResponse, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (o *Orchestrator) consult(ctx context.Context, query string, primaryType, t domain.AgentType, primary domain.OrchestratorResponse) (resp *domain.OrchestratorResponse, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("secondary %s: %v", t, p)
		}
	}()

	agent, err := o.registry.DefaultAgent(ctx, t)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, domain.NewDomainError("Orchestrator.consult", domain.ErrNoAgentAvailable, string(t))
	}
	cfg, err := o.configs.GetByID(ctx, agent.ConfigID)
	if err != nil {
		return nil, err
	}
	system := cfg.SystemPrompt
	if strings.TrimSpace(system) == "" {
		system = DefaultSystemPrompt(t)
	}
	tier := cfg.ModelSize
	if tier == "" {
		tier = domain.TierMedium
	}

	gctx, cancel := context.WithTimeout(ctx, o.opts.GenerationTimeout)
	defer cancel()
	out, err := o.gen.GenerateTemplate(gctx, domain.TemplateRequest{
		Template:    InterAgentTemplateName,
		Variables:   InterAgentVariables(query, primaryType, t, primary.Response),
		System:      system,
		Tier:        tier,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	formatted := o.formatter.FormatResponse(FormatInput{
		Text:           out.Content,
		AgentType:      cfg.AgentType,
		AgentName:      cfg.Name,
		Confidence:     primary.Confidence,
		ConversationID: primary.ConversationID,
		Metadata:       map[string]any{"agent_config_id": cfg.ID},
	})
	if strings.TrimSpace(formatted.Response) == "" {
		return nil, domain.NewDomainError("Orchestrator.consult", domain.ErrGenerationFailed, "empty answer")
	}
	return &formatted, nil
}

// persist stores the exchange. Failures are logged and swallowed.
func (o *Orchestrator) persist(ctx context.Context, req domain.OrchestratorRequest, conversationID string, resp domain.OrchestratorResponse) {
	if o.conversations == nil {
		return
	}
	if _, err := o.conversations.AddMessage(ctx, domain.NewMessage{
		ConversationID: conversationID,
		UserID:         req.UserID,
		Role:           domain.RoleUser,
		Content:        req.Query,
		Metadata:       req.Metadata,
	}); err != nil {
		o.logger.Warn("persist user message failed", "conversation_id", conversationID, "error", err)
		return
	}
	if _, err := o.conversations.AddMessage(ctx, domain.NewMessage{
		ConversationID: conversationID,
		UserID:         req.UserID,
		Role:           domain.RoleAssistant,
		Content:        resp.Response,
		AgentType:      resp.AgentType,
		Metadata: map[string]any{
			"agent_name": resp.AgentName,
			"confidence": resp.Confidence,
		},
	}); err != nil {
		o.logger.Warn("persist assistant message failed", "conversation_id", conversationID, "error", err)
	}
}

// contextBlock renders the request context map as a sorted key/value list.
func contextBlock(reqCtx map[string]any) string {
	keys := make([]string, 0, len(reqCtx))
	for k := range reqCtx {
		if k == "sources" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString("Context:")
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n- %s: %v", k, reqCtx[k])
	}
	return sb.String()
}

// sourcesFromContext reads cited documents passed under the "sources" key,
// either as titles or as objects with title and location fields.
func sourcesFromContext(reqCtx map[string]any) []SourceReference {
	raw, ok := reqCtx["sources"].([]any)
	if !ok {
		if ss, ok := reqCtx["sources"].([]string); ok {
			out := make([]SourceReference, 0, len(ss))
			for _, s := range ss {
				out = append(out, SourceReference{Title: s})
			}
			return out
		}
		return nil
	}
	var out []SourceReference
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			out = append(out, SourceReference{Title: v})
		case map[string]any:
			title, _ := v["title"].(string)
			loc, _ := v["location"].(string)
			if title != "" {
				out = append(out, SourceReference{Title: title, Location: loc})
			}
		}
	}
	return out
}

func boolMeta(meta map[string]any, key string) bool {
	v, _ := meta[key].(bool)
	return v
}

func newConversationID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
