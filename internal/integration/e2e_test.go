//go:build integration

package integration

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techassist/internal/adapter/llm"
	"techassist/internal/adapter/store"
	"techassist/internal/adapter/tokenizer"
	"techassist/internal/domain"
	"techassist/internal/infra/config"
	"techassist/internal/usecase/modelselect"
	"techassist/internal/usecase/orchestrator"
)

var seedAgents = []config.AgentSeedConfig{
	{
		ID: "doc-1", AgentType: "documentation", Name: "Manual Reader",
		SystemPrompt: "You answer questions from equipment manuals. Be brief.",
		Temperature:  0.2, MaxTokens: 300,
	},
	{
		ID: "ts-1", AgentType: "troubleshooting", Name: "Diagnostician",
		SystemPrompt: "You diagnose equipment faults step by step. Be brief.",
		Temperature:  0.2, MaxTokens: 300,
	},
	{
		ID: "mnt-1", AgentType: "maintenance", Name: "Maintenance Planner",
		SystemPrompt: "You explain maintenance procedures and schedules. Be brief.",
		Temperature:  0.2, MaxTokens: 300,
	},
}

// newStack wires a real store and provider behind the orchestrator.
func newStack(t *testing.T, ctx context.Context, pc config.ProviderConfig) (*orchestrator.Orchestrator, *store.Store) {
	t.Helper()
	log := slog.Default()

	st, err := store.Open(filepath.Join(t.TempDir(), "techassist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	_, err = store.Seed(ctx, st, seedAgents)
	require.NoError(t, err)

	llmCfg := config.LLMConfig{DefaultProvider: pc.Name, Providers: []config.ProviderConfig{pc}}
	registry, primary, err := llm.Build(llmCfg, log, nil)
	require.NoError(t, err)
	templates := llm.NewTemplates()
	for name, text := range orchestrator.PromptTemplates() {
		require.NoError(t, templates.Register(name, text))
	}
	gen := llm.NewGenerator(llm.NewTierRouter(nil, registry, primary), templates, log)

	opts := orchestrator.OptionsFromConfig(config.Defaults().Orchestrator)
	orch, err := orchestrator.New(orchestrator.Deps{
		Configs:       st,
		Conversations: st,
		Generator:     gen,
		Selector:      modelselect.New(tokenizer.New(tokenizer.DefaultEncoding, log), log),
	}, opts, log, nil)
	require.NoError(t, err)
	return orch, st
}

func openAIStack(t *testing.T, ctx context.Context) *orchestrator.Orchestrator {
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.OpenAIKey, "OPENAI")
	orch, _ := newStack(t, ctx, config.ProviderConfig{
		Name: "openai", Type: "openai", APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel,
	})
	return orch
}

func TestE2E_SingleAgentAnswer(t *testing.T) {
	SkipIfShort(t)
	ctx := NewTestContext(t, LoadConfig().TestTimeout)
	orch := openAIStack(t, ctx)

	resp := orch.ProcessRequest(ctx, domain.OrchestratorRequest{
		Query:  "How often should I replace the hydraulic filter on a standard excavator?",
		UserID: "e2e",
	})
	require.NotContains(t, resp.Metadata, "error_code", "response: %s", resp.Response)
	assert.Equal(t, domain.AgentMaintenance, resp.AgentType)
	assert.NotEmpty(t, resp.Response)
	assert.LessOrEqual(t, len(resp.FollowupQuestions), domain.MaxFollowupQuestions)
	t.Logf("maintenance answer: %s", resp.Response)
}

func TestE2E_MultiAgentFanOut(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	if cfg.SkipSlow {
		t.Skip("Skipping slow multi-agent test")
	}
	ctx := NewTestContext(t, 2*cfg.TestTimeout)
	orch := openAIStack(t, ctx)

	resp := orch.ProcessRequest(ctx, domain.OrchestratorRequest{
		Query: "I have a problem with the hydraulic system, it's not working",
	})
	require.NotContains(t, resp.Metadata, "error_code", "response: %s", resp.Response)
	assert.Equal(t, domain.AgentTroubleshooting, resp.AgentType)
	if resp.Metadata["multi_agent"] == true {
		assert.Contains(t, resp.Response, "## Additional information")
	}
}

func TestE2E_ConversationContinuity(t *testing.T) {
	SkipIfShort(t)
	ctx := NewTestContext(t, 2*LoadConfig().TestTimeout)
	orch := openAIStack(t, ctx)

	first := orch.ProcessRequest(ctx, domain.OrchestratorRequest{
		Query: "What is the recommended maintenance schedule for the generator?",
	})
	require.NotContains(t, first.Metadata, "error_code")

	second := orch.ProcessRequest(ctx, domain.OrchestratorRequest{
		Query:          "And what about the oil?",
		ConversationID: first.ConversationID,
	})
	require.NotContains(t, second.Metadata, "error_code")
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, first.AgentType, second.AgentType)

	history, err := orch.ConversationHistory(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestE2E_OllamaDocumentation(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	if cfg.OllamaURL == "" {
		t.Skip("Skipping Ollama integration test: OLLAMA_URL not set")
	}
	ctx := NewTestContext(t, cfg.TestTimeout)
	orch, _ := newStack(t, ctx, config.ProviderConfig{
		Name: "local", Type: "ollama", BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel,
	})

	resp := orch.ProcessRequest(ctx, domain.OrchestratorRequest{
		Query: "Where can I find the wiring diagram in the manual?",
	})
	require.NotContains(t, resp.Metadata, "error_code", "response: %s", resp.Response)
	assert.Equal(t, domain.AgentDocumentation, resp.AgentType)
	assert.False(t, strings.Contains(resp.Response, "```json"))
}
