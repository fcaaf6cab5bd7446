package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techassist/internal/domain"
)

func newTestRouter(t *testing.T, repo domain.AgentConfigRepository) *Router {
	t.Helper()
	r, err := NewRouter(initializedRegistry(t, repo), 0, nil, nil)
	require.NoError(t, err)
	return r
}

func cls(t domain.AgentType, c float64) domain.RequestClassification {
	return domain.RequestClassification{AgentType: t, Confidence: c, Reasoning: "test"}
}

func TestRouteMediumConfidenceMaintenanceFansOut(t *testing.T) {
	r := newTestRouter(t, fullCatalog())
	res, err := r.Route(context.Background(), cls(domain.AgentMaintenance, 0.65), "", "", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.AgentMaintenance, res.AgentType)
	assert.Equal(t, "mnt-1", res.AgentConfigID)
	assert.True(t, res.RequiresMultipleAgents)
	assert.Contains(t, res.AdditionalAgentTypes, domain.AgentDocumentation)
	assert.False(t, res.RequiresFollowup)
}

func TestRouteContinuityOverride(t *testing.T) {
	r := newTestRouter(t, fullCatalog())
	ctx := context.Background()

	first, err := r.Route(ctx, cls(domain.AgentTroubleshooting, 0.95), "conv-1", "The pump is leaking hydraulic fluid", nil)
	require.NoError(t, err)
	require.Equal(t, domain.AgentTroubleshooting, first.AgentType)

	newCls := cls(domain.AgentDocumentation, 0.7)
	res, err := r.Route(ctx, newCls, "conv-1", "What about it?", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.AgentTroubleshooting, res.AgentType)
	assert.Equal(t, "ts-1", res.AgentConfigID)
	assert.Equal(t, "doc-1", res.FallbackAgentConfigID)
	assert.True(t, res.RequiresFollowup)
	assert.True(t, res.ContinuityOverride)

	assert.Equal(t, domain.AgentTroubleshooting, res.Classification.AgentType, "attached classification describes the agent used")
	assert.Equal(t, 0.7, res.Classification.Confidence)
	require.NotNil(t, res.SuggestedClassification)
	assert.Equal(t, newCls, *res.SuggestedClassification)
}

func TestRouteNoContinuityForHighConfidenceOrNewTopic(t *testing.T) {
	r := newTestRouter(t, fullCatalog())
	ctx := context.Background()
	_, err := r.Route(ctx, cls(domain.AgentTroubleshooting, 0.95), "conv-2", "pump leaking", nil)
	require.NoError(t, err)

	res, err := r.Route(ctx, cls(domain.AgentDocumentation, 0.95), "conv-2", "What about it?", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentDocumentation, res.AgentType, "high confidence is not overridden")

	res, err = r.Route(ctx, cls(domain.AgentMaintenance, 0.7), "conv-2", "Replace the landing gear actuator seals on the aircraft", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentMaintenance, res.AgentType, "non-followup queries are not overridden")
	assert.False(t, res.ContinuityOverride)
}

func TestRouteNoAgentsAnywhere(t *testing.T) {
	r := newTestRouter(t, newMockConfigRepo())
	_, err := r.Route(context.Background(), cls(domain.AgentMaintenance, 0.95), "c", "replace filter", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoAgentAvailable))
	assert.Empty(t, r.History("c"))
}

func TestRouteMissingTypeFallsBackToDocumentation(t *testing.T) {
	r := newTestRouter(t, newMockConfigRepo(docConfig()))
	for _, typ := range domain.AllAgentTypes() {
		res, err := r.Route(context.Background(), cls(typ, 0.95), "", "replace the filter", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.AgentDocumentation, res.AgentType)
		assert.Equal(t, "doc-1", res.AgentConfigID)
		if typ != domain.AgentDocumentation {
			require.NotNil(t, res.SuggestedClassification)
			assert.Equal(t, typ, res.SuggestedClassification.AgentType)
		}
	}
}

func TestRouteLowConfidenceFallbackAgent(t *testing.T) {
	r := newTestRouter(t, fullCatalog())
	ctx := context.Background()

	res, err := r.Route(ctx, cls(domain.AgentDocumentation, 0.3), "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", res.AgentConfigID)
	assert.Equal(t, "ts-1", res.FallbackAgentConfigID, "pairing table")
	assert.True(t, res.RequiresFollowup)

	res, err = r.Route(ctx, cls(domain.AgentMaintenance, 0.3), "", "grinding noise from the pump", nil)
	require.NoError(t, err)
	assert.Equal(t, "mnt-1", res.AgentConfigID)
	assert.Equal(t, "ts-1", res.FallbackAgentConfigID, "keyword overlap beats the pairing table")
}

func TestRouteCapabilityMatchSelectsPrimary(t *testing.T) {
	wiring := domain.AgentConfig{
		ID: "doc-2", AgentType: domain.AgentDocumentation, Name: "Wiring Docs", Active: true,
		Metadata: domain.AgentConfigMetadata{Capabilities: []domain.AgentCapability{{
			Name: "wiring", Keywords: []string{"wiring", "diagram", "wiring diagram"},
		}}},
	}
	def := docConfig()
	def.Metadata.IsDefault = boolPtr(true)
	r := newTestRouter(t, newMockConfigRepo(def, wiring))
	ctx := context.Background()

	res, err := r.Route(ctx, cls(domain.AgentDocumentation, 0.95), "", "Show me the wiring diagram for the starter", nil)
	require.NoError(t, err)
	assert.Equal(t, "doc-2", res.AgentConfigID)

	res, err = r.Route(ctx, cls(domain.AgentDocumentation, 0.95), "", "starter motor", nil)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", res.AgentConfigID, "no match falls back to the default agent")
}

func TestRouteComplexQueryRequiresMultipleAgents(t *testing.T) {
	r := newTestRouter(t, fullCatalog())
	res, err := r.Route(context.Background(), cls(domain.AgentDocumentation, 0.95), "",
		"Compare the manual guidance with what to do when the pump is not working", nil)
	require.NoError(t, err)
	assert.True(t, res.RequiresMultipleAgents)
	require.NotEmpty(t, res.AdditionalAgentTypes)
	assert.Equal(t, domain.AgentTroubleshooting, res.AdditionalAgentTypes[0])
	assert.NotContains(t, res.AdditionalAgentTypes, domain.AgentDocumentation)
	assert.LessOrEqual(t, len(res.AdditionalAgentTypes), 2)
}

func TestRouteHighConfidenceSimpleQueryIsSingleAgent(t *testing.T) {
	r := newTestRouter(t, fullCatalog())
	res, err := r.Route(context.Background(), cls(domain.AgentDocumentation, 0.95), "", "Where is the manual?", nil)
	require.NoError(t, err)
	assert.False(t, res.RequiresMultipleAgents)
	assert.Empty(t, res.AdditionalAgentTypes)
	assert.False(t, res.RequiresFollowup)
	assert.Nil(t, res.SuggestedClassification)
}

// Whatever the classification, the routed config is an active config of
// the routed type.
func TestRouteConfigIDMatchesRoutedType(t *testing.T) {
	repo := fullCatalog()
	inactive := maintenanceConfig()
	inactive.ID = "mnt-old"
	inactive.Active = false
	repo.configs = append(repo.configs, inactive)
	r := newTestRouter(t, repo)
	ctx := context.Background()

	queries := []string{"", "What about it?", "replace the pump seal", "error code 42 on the manual page", strings.Repeat("long query ", 20)}
	for _, typ := range domain.AllAgentTypes() {
		for _, c := range []float64{0.2, 0.65, 0.95} {
			for _, q := range queries {
				res, err := r.Route(ctx, cls(typ, c), "prop", q, nil)
				require.NoError(t, err)
				cfg, err := repo.GetByID(ctx, res.AgentConfigID)
				require.NoError(t, err)
				assert.True(t, cfg.Active)
				assert.Equal(t, res.AgentType, cfg.AgentType)
				assert.Equal(t, res.AgentType, res.Classification.AgentType)
				if res.FallbackAgentConfigID != "" {
					fb, err := repo.GetByID(ctx, res.FallbackAgentConfigID)
					require.NoError(t, err)
					assert.True(t, fb.Active)
				}
			}
		}
	}
}

func TestRouteHistoryBounded(t *testing.T) {
	r := newTestRouter(t, fullCatalog())
	for i := 0; i < 12; i++ {
		_, err := r.Route(context.Background(), cls(domain.AgentDocumentation, 0.95), "conv", "manual", nil)
		require.NoError(t, err)
	}
	assert.Len(t, r.History("conv"), DefaultRoutingHistorySize)

	r.ClearHistory("conv")
	assert.Empty(t, r.History("conv"))
}

func TestPreviewDoesNotRecord(t *testing.T) {
	r := newTestRouter(t, fullCatalog())
	_, err := r.Preview(context.Background(), cls(domain.AgentDocumentation, 0.95), "conv", "manual")
	require.NoError(t, err)
	assert.Empty(t, r.History("conv"))
}

func TestRouteUninitializedRegistry(t *testing.T) {
	r, err := NewRouter(NewRegistry(fullCatalog(), 0, nil, nil), 0, nil, nil)
	require.NoError(t, err)
	_, err = r.Route(context.Background(), cls(domain.AgentDocumentation, 0.95), "", "manual", nil)
	assert.ErrorIs(t, err, domain.ErrNoAgentAvailable)
	assert.ErrorIs(t, err, domain.ErrRegistryNotInitialized)
}

func TestExtractKeywords(t *testing.T) {
	kws := ExtractKeywords("Where can I find the manual for landing gear?")
	require.GreaterOrEqual(t, len(kws), 4)
	assert.Equal(t, []string{"find", "manual", "landing", "gear"}, kws[:4])
	assert.Contains(t, kws, "landing gear")
	assert.Contains(t, kws, "the manual")
	assert.NotContains(t, kws, "where can")
	assert.NotContains(t, kws, "can")

	assert.Empty(t, ExtractKeywords("What about it?"))
	assert.Empty(t, ExtractKeywords(""))
	assert.Contains(t, ExtractKeywords("it is not working"), "not working")
}

func TestIsComplexQuery(t *testing.T) {
	tests := []struct {
		q    string
		want bool
	}{
		{"Where is the manual?", false},
		{strings.Repeat("a", 151), true},
		{"Why? And how?", true},
		{"Check the filter and also the pump", true},
		{"Compare the two hydraulic pumps", true},
		{"Give me a step-by-step overhaul", true},
		{"Check the filter and the pump", false},
		{strings.Repeat("ü", 80), false},
		{strings.Repeat("ü", 151), true},
	}
	for _, tt := range tests {
		if got := IsComplexQuery(tt.q); got != tt.want {
			t.Errorf("IsComplexQuery(%q) = %v, want %v", tt.q, got, tt.want)
		}
	}
}

func TestIsFollowup(t *testing.T) {
	tests := []struct {
		q    string
		want bool
	}{
		{"What about it?", true},
		{"ok", true},
		{"Can you give more detail on the torque values", true},
		{"How do I remove those bolts safely", true},
		{"The landing gear actuator shows hydraulic fluid residue", false},
	}
	for _, tt := range tests {
		if got := IsFollowup(tt.q); got != tt.want {
			t.Errorf("IsFollowup(%q) = %v, want %v", tt.q, got, tt.want)
		}
	}
}
