package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"techassist/internal/domain"
	"techassist/internal/infra/metrics"
)

// DefaultRegistryTTL is how long a registry snapshot is served before it is rebuilt.
const DefaultRegistryTTL = 300 * time.Second

// CapabilityMatch is an agent together with the number of query keywords
// that hit its capability index.
type CapabilityMatch struct {
	Agent      domain.AgentMetadata
	MatchCount int
}

// registrySnapshot is an immutable view of the agent catalog. A new snapshot
// is built in full and then published, so readers never observe a partially
// populated index.
type registrySnapshot struct {
	agents  []domain.AgentMetadata
	byType  map[domain.AgentType][]int
	byID    map[string]int
	index   map[string]map[string]struct{} // keyword -> config ids
	builtAt time.Time
}

// Registry catalogs agent configurations and their capability keywords.
type Registry struct {
	repo    domain.AgentConfigRepository
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex // serializes rebuilds
	initialized atomic.Bool
	snap        atomic.Pointer[registrySnapshot]
}

// NewRegistry creates a Registry backed by repo. A non-positive ttl selects
// DefaultRegistryTTL.
func NewRegistry(repo domain.AgentConfigRepository, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Registry {
	if ttl <= 0 {
		ttl = DefaultRegistryTTL
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Registry{repo: repo, ttl: ttl, now: time.Now, logger: logger, metrics: m}
}

// Initialize loads every active configuration and builds the capability
// index. It is a no-op while the current snapshot is younger than the TTL.
func (r *Registry) Initialize(ctx context.Context) error {
	_, err := r.load(ctx)
	return err
}

// load returns the current snapshot, rebuilding it first when it is missing
// or older than the TTL.
func (r *Registry) load(ctx context.Context) (*registrySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.snap.Load(); s != nil && r.now().Sub(s.builtAt) < r.ttl {
		return s, nil
	}
	s, err := r.build(ctx)
	r.metrics.IncRegistryRefresh(err)
	if err != nil {
		return nil, err
	}
	r.snap.Store(s)
	r.initialized.Store(true)
	r.logger.Info("agent registry initialized", "agents", len(s.agents), "keywords", len(s.index))
	return s, nil
}

// Initialized reports whether Initialize has completed at least once.
func (r *Registry) Initialized() bool { return r.initialized.Load() }

// Refresh drops the current snapshot. The next read rebuilds it.
func (r *Registry) Refresh() {
	r.mu.Lock()
	r.snap.Store(nil)
	r.mu.Unlock()
	r.logger.Debug("agent registry refresh requested")
}

func (r *Registry) build(ctx context.Context) (*registrySnapshot, error) {
	s := &registrySnapshot{
		byType:  make(map[domain.AgentType][]int),
		byID:    make(map[string]int),
		index:   make(map[string]map[string]struct{}),
		builtAt: r.now(),
	}
	for _, t := range domain.AllAgentTypes() {
		cfgs, err := r.repo.GetByAgentType(ctx, t, true)
		if err != nil {
			return nil, domain.WrapOp("Registry.Initialize", err)
		}
		for i := range cfgs {
			meta := metadataFromConfig(&cfgs[i])
			if _, dup := s.byID[meta.ConfigID]; dup {
				continue
			}
			idx := len(s.agents)
			s.agents = append(s.agents, meta)
			s.byType[t] = append(s.byType[t], idx)
			s.byID[meta.ConfigID] = idx
			for _, kw := range meta.Keywords() {
				ids, ok := s.index[kw]
				if !ok {
					ids = make(map[string]struct{})
					s.index[kw] = ids
				}
				ids[meta.ConfigID] = struct{}{}
			}
		}
	}
	return s, nil
}

func metadataFromConfig(cfg *domain.AgentConfig) domain.AgentMetadata {
	caps := cfg.Metadata.Capabilities
	if len(caps) == 0 {
		caps = DefaultCapabilities(cfg.AgentType)
	}
	isDefault := strings.Contains(strings.ToLower(cfg.Name), "default")
	if cfg.Metadata.IsDefault != nil {
		isDefault = *cfg.Metadata.IsDefault
	}
	info := map[string]any{
		"model_size":  string(cfg.ModelSize),
		"temperature": cfg.Temperature,
		"max_tokens":  cfg.MaxTokens,
	}
	for k, v := range cfg.Metadata.Extra {
		info[k] = v
	}
	return domain.AgentMetadata{
		AgentType:      cfg.AgentType,
		Name:           cfg.Name,
		Description:    cfg.Description,
		Capabilities:   caps,
		ConfigID:       cfg.ID,
		IsDefault:      isDefault,
		AdditionalInfo: info,
	}
}

// current returns a fresh snapshot, rebuilding it when the TTL has elapsed
// or after Refresh. Reads before the first Initialize fail fast.
func (r *Registry) current(ctx context.Context, op string) (*registrySnapshot, error) {
	if !r.initialized.Load() {
		return nil, domain.NewDomainError(op, domain.ErrRegistryNotInitialized, "")
	}
	if s := r.snap.Load(); s != nil && r.now().Sub(s.builtAt) < r.ttl {
		return s, nil
	}
	return r.load(ctx)
}

// AllAgents returns every active agent, grouped by type in AllAgentTypes order.
func (r *Registry) AllAgents(ctx context.Context) ([]domain.AgentMetadata, error) {
	s, err := r.current(ctx, "Registry.AllAgents")
	if err != nil {
		return nil, err
	}
	out := make([]domain.AgentMetadata, len(s.agents))
	copy(out, s.agents)
	return out, nil
}

// AgentsByType returns the active agents of type t in repository order.
func (r *Registry) AgentsByType(ctx context.Context, t domain.AgentType) ([]domain.AgentMetadata, error) {
	s, err := r.current(ctx, "Registry.AgentsByType")
	if err != nil {
		return nil, err
	}
	return s.ofType(t), nil
}

// DefaultAgent returns the first agent of type t flagged as default, else the
// first agent of that type, else nil.
func (r *Registry) DefaultAgent(ctx context.Context, t domain.AgentType) (*domain.AgentMetadata, error) {
	s, err := r.current(ctx, "Registry.DefaultAgent")
	if err != nil {
		return nil, err
	}
	return s.defaultOf(t), nil
}

// AgentByID returns the agent with the given configuration id, or nil.
func (r *Registry) AgentByID(ctx context.Context, configID string) (*domain.AgentMetadata, error) {
	s, err := r.current(ctx, "Registry.AgentByID")
	if err != nil {
		return nil, err
	}
	idx, ok := s.byID[configID]
	if !ok {
		return nil, nil
	}
	a := s.agents[idx]
	return &a, nil
}

// FindAgentsByCapability tallies keyword hits per agent and returns the
// matching agents ordered by descending hit count. Ties keep catalog order.
func (r *Registry) FindAgentsByCapability(ctx context.Context, keywords []string) ([]CapabilityMatch, error) {
	s, err := r.current(ctx, "Registry.FindAgentsByCapability")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, kw := range keywords {
		for id := range s.index[strings.ToLower(strings.TrimSpace(kw))] {
			counts[id]++
		}
	}
	matches := make([]CapabilityMatch, 0, len(counts))
	for id, n := range counts {
		matches = append(matches, CapabilityMatch{Agent: s.agents[s.byID[id]], MatchCount: n})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].MatchCount != matches[j].MatchCount {
			return matches[i].MatchCount > matches[j].MatchCount
		}
		return s.byID[matches[i].Agent.ConfigID] < s.byID[matches[j].Agent.ConfigID]
	})
	return matches, nil
}

// Snapshot returns the number of active agents per type.
func (r *Registry) Snapshot(ctx context.Context) (map[domain.AgentType]int, error) {
	s, err := r.current(ctx, "Registry.Snapshot")
	if err != nil {
		return nil, err
	}
	out := make(map[domain.AgentType]int, len(domain.AllAgentTypes()))
	for _, t := range domain.AllAgentTypes() {
		out[t] = len(s.byType[t])
	}
	return out, nil
}

func (s *registrySnapshot) ofType(t domain.AgentType) []domain.AgentMetadata {
	idxs := s.byType[t]
	out := make([]domain.AgentMetadata, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.agents[i])
	}
	return out
}

func (s *registrySnapshot) defaultOf(t domain.AgentType) *domain.AgentMetadata {
	idxs := s.byType[t]
	if len(idxs) == 0 {
		return nil
	}
	for _, i := range idxs {
		if s.agents[i].IsDefault {
			a := s.agents[i]
			return &a
		}
	}
	a := s.agents[idxs[0]]
	return &a
}
