package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Orchestrator.RegistryTTL != 300*time.Second {
		t.Errorf("RegistryTTL = %v, want 300s", cfg.Orchestrator.RegistryTTL)
	}
	if cfg.Orchestrator.GenerationTimeout != 60*time.Second {
		t.Errorf("GenerationTimeout = %v, want 60s", cfg.Orchestrator.GenerationTimeout)
	}
	if cfg.Orchestrator.RoutingHistorySize != 10 {
		t.Errorf("RoutingHistorySize = %d, want 10", cfg.Orchestrator.RoutingHistorySize)
	}
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("DefaultProvider = %q, want %q", cfg.LLM.DefaultProvider, "openai")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Orchestrator.ClassifierCacheSize != 1000 {
		t.Errorf("expected defaults, got ClassifierCacheSize=%d", cfg.Orchestrator.ClassifierCacheSize)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
orchestrator:
  registry_ttl: 2m
  max_secondary_agents: 1
llm:
  default_provider: "groq"
  providers:
    - name: "groq"
      type: "openai"
      base_url: "https://api.groq.com/openai/v1"
      api_key: "test-key"
      model: "llama3-8b"
  tiers:
    small: groq
agents:
  - id: docs-default
    agent_type: documentation
    name: Docs
    system_prompt: "You explain."
    model_size: medium
    temperature: 0.3
    max_tokens: 800
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Orchestrator.RegistryTTL != 2*time.Minute {
		t.Errorf("RegistryTTL = %v, want 2m", cfg.Orchestrator.RegistryTTL)
	}
	if cfg.Orchestrator.MaxSecondaryAgents != 1 {
		t.Errorf("MaxSecondaryAgents = %d, want 1", cfg.Orchestrator.MaxSecondaryAgents)
	}
	if cfg.LLM.DefaultProvider != "groq" {
		t.Errorf("DefaultProvider = %q, want %q", cfg.LLM.DefaultProvider, "groq")
	}
	if len(cfg.LLM.Providers) != 1 || cfg.LLM.Providers[0].APIKey != "test-key" {
		t.Errorf("Providers mismatch: %+v", cfg.LLM.Providers)
	}
	if cfg.LLM.Tiers["small"] != "groq" {
		t.Errorf("Tiers = %v", cfg.LLM.Tiers)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].MaxTokens != 800 {
		t.Errorf("Agents mismatch: %+v", cfg.Agents)
	}
	// Untouched sections keep defaults.
	if cfg.Orchestrator.GenerationTimeout != 60*time.Second {
		t.Errorf("GenerationTimeout = %v, want default", cfg.Orchestrator.GenerationTimeout)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("orchestrator: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected permissions error for 0666")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TECHASSIST_LLM_DEFAULT_PROVIDER", "ollama")
	t.Setenv("TECHASSIST_LOGGER_LEVEL", "debug")
	t.Setenv("TECHASSIST_REGISTRY_TTL", "45s")
	t.Setenv("TECHASSIST_CLASSIFIER_CACHE_SIZE", "50")
	t.Setenv("TECHASSIST_METRICS_ENABLED", "false")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.LLM.DefaultProvider != "ollama" {
		t.Errorf("DefaultProvider = %q, want %q", cfg.LLM.DefaultProvider, "ollama")
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "debug")
	}
	if cfg.Orchestrator.RegistryTTL != 45*time.Second {
		t.Errorf("RegistryTTL = %v, want 45s", cfg.Orchestrator.RegistryTTL)
	}
	if cfg.Orchestrator.ClassifierCacheSize != 50 {
		t.Errorf("ClassifierCacheSize = %d, want 50", cfg.Orchestrator.ClassifierCacheSize)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false")
	}
}

func TestEnvOverrideProviderAPIKey(t *testing.T) {
	t.Setenv("TECHASSIST_LLM_PROVIDER_LOCAL_GROQ_API_KEY", "from-env")

	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{{Name: "local-groq"}}
	ApplyEnvOverrides(cfg)

	if cfg.LLM.Providers[0].APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.LLM.Providers[0].APIKey)
	}
}

func TestEnvOverrideBadDurationIgnored(t *testing.T) {
	t.Setenv("TECHASSIST_GENERATION_TIMEOUT", "soon")
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Orchestrator.GenerationTimeout != 60*time.Second {
		t.Errorf("GenerationTimeout = %v, want unchanged", cfg.Orchestrator.GenerationTimeout)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-passphrase-123"
	plaintext := "sk-abcdef123456"

	encrypted, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}

	if decrypted != plaintext {
		t.Errorf("got %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}

	if _, err = DecryptValue(encrypted, "wrong-pass"); err == nil {
		t.Error("expected error with wrong passphrase")
	}
}

func TestDecryptMalformed(t *testing.T) {
	for _, in := range []string{"no-colon", "zz:00", "00:zz", "00:00"} {
		if _, err := DecryptValue(in, "pass"); err == nil {
			t.Errorf("DecryptValue(%q) expected error", in)
		}
	}
}

func TestDecryptSecrets(t *testing.T) {
	passphrase := "test-config-key"
	plainAPIKey := "sk-secret123456"

	encrypted, err := EncryptValue(plainAPIKey, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{
		{Name: "openai", APIKey: "enc:" + encrypted},
		{Name: "plain", APIKey: "sk-plain"},
	}

	if err := decryptSecrets(cfg, passphrase); err != nil {
		t.Fatalf("decryptSecrets: %v", err)
	}

	if cfg.LLM.Providers[0].APIKey != plainAPIKey {
		t.Errorf("APIKey = %q, want %q", cfg.LLM.Providers[0].APIKey, plainAPIKey)
	}
	if cfg.LLM.Providers[1].APIKey != "sk-plain" {
		t.Errorf("plain key changed: %q", cfg.LLM.Providers[1].APIKey)
	}
}

func TestLoadDecryptsWithConfigKey(t *testing.T) {
	encrypted, err := EncryptValue("sk-real", "pass")
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("TECHASSIST_CONFIG_KEY", "pass")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "llm:\n  default_provider: openai\n  providers:\n    - name: openai\n      api_key: \"enc:" + encrypted + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Providers[0].APIKey != "sk-real" {
		t.Errorf("APIKey = %q, want sk-real", cfg.LLM.Providers[0].APIKey)
	}
}
