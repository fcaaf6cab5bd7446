package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	LLM          LLMConfig          `yaml:"llm"`
	Store        StoreConfig        `yaml:"store"`
	Agents       []AgentSeedConfig  `yaml:"agents,omitempty"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Gateway      GatewayConfig      `yaml:"gateway"`
}

// OrchestratorConfig tunes the routing pipeline.
type OrchestratorConfig struct {
	RegistryTTL         time.Duration `yaml:"registry_ttl"`
	ClassifierCacheSize int           `yaml:"classifier_cache_size"`
	RoutingHistorySize  int           `yaml:"routing_history_size"`
	GenerationTimeout   time.Duration `yaml:"generation_timeout"`
	MaxSecondaryAgents  int           `yaml:"max_secondary_agents"`
	// QuickConfidenceThreshold is the minimum pattern-pass confidence that
	// skips the model classification call.
	QuickConfidenceThreshold float64 `yaml:"quick_confidence_threshold"`
	HistoryTurns             int     `yaml:"history_turns"`
	ModelSelection           bool    `yaml:"model_selection"`
	MultiAgent               bool    `yaml:"multi_agent"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
	// Tiers maps a model tier (small, medium, large) to a provider name.
	Tiers map[string]string `yaml:"tiers,omitempty"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// PoolConfig sizes the HTTP connection pool of a provider.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// FailoverConfig lists providers tried in order when the default fails.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig configures per-provider circuit breakers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig bounds outbound requests per provider.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// CapabilitySeedConfig is a capability descriptor in the seed file.
type CapabilitySeedConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Examples    []string `yaml:"examples"`
}

// AgentSeedConfig defines an agent configuration upserted into the store at startup.
type AgentSeedConfig struct {
	ID           string                 `yaml:"id"`
	AgentType    string                 `yaml:"agent_type"`
	Name         string                 `yaml:"name"`
	Description  string                 `yaml:"description"`
	SystemPrompt string                 `yaml:"system_prompt"`
	ModelSize    string                 `yaml:"model_size"`
	Temperature  float64                `yaml:"temperature"`
	MaxTokens    int                    `yaml:"max_tokens"`
	Active       *bool                  `yaml:"active,omitempty"`
	IsDefault    *bool                  `yaml:"is_default,omitempty"`
	Capabilities []CapabilitySeedConfig `yaml:"capabilities,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// MetricsConfig toggles Prometheus collectors.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Addr           string   `yaml:"addr"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	BurstSize      int      `yaml:"burst_size"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
	// Tokens enables bearer-token auth on every endpoint except health
	// and metrics. Empty means the gateway is open.
	Tokens []GatewayTokenConfig `yaml:"tokens,omitempty"`
}

// GatewayTokenConfig is a static client credential.
type GatewayTokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".techassist")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			RegistryTTL:              300 * time.Second,
			ClassifierCacheSize:      1000,
			RoutingHistorySize:       10,
			GenerationTimeout:        60 * time.Second,
			MaxSecondaryAgents:       2,
			QuickConfidenceThreshold: 0.7,
			HistoryTurns:             10,
			ModelSelection:           true,
			MultiAgent:               true,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 5,
				Burst:             10,
			},
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultDataDir(), "techassist.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Gateway: GatewayConfig{
			Addr:           ":8080",
			RequestsPerMin: 120,
			BurstSize:      20,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("TECHASSIST_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps TECHASSIST_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TECHASSIST_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("TECHASSIST_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("TECHASSIST_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("TECHASSIST_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("TECHASSIST_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("TECHASSIST_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TECHASSIST_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("TECHASSIST_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Tokens = append(cfg.Gateway.Tokens, GatewayTokenConfig{Token: v, Name: "env"})
	}
	if v := os.Getenv("TECHASSIST_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	if v := os.Getenv("TECHASSIST_REGISTRY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Orchestrator.RegistryTTL = d
		}
	}
	if v := os.Getenv("TECHASSIST_GENERATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Orchestrator.GenerationTimeout = d
		}
	}
	if v := os.Getenv("TECHASSIST_CLASSIFIER_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.ClassifierCacheSize = n
		}
	}

	// Per-provider API keys: TECHASSIST_LLM_PROVIDER_<NAME>_API_KEY.
	for i := range cfg.LLM.Providers {
		name := strings.ToUpper(strings.ReplaceAll(cfg.LLM.Providers[i].Name, "-", "_"))
		if v := os.Getenv("TECHASSIST_LLM_PROVIDER_" + name + "_API_KEY"); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
