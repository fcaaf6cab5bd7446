package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"techassist/internal/adapter/llm"
	"techassist/internal/adapter/store"
	"techassist/internal/domain"
	"techassist/internal/infra/config"
	"techassist/internal/infra/logger"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

const doctorTimeout = 15 * time.Second

// runDoctor executes all health checks and reports results.
func runDoctor(flags cliFlags, _ []string) error {
	cfg, cfgErr := config.Load(flags.ConfigPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(flags.ConfigPath, cfgErr)},
		{Name: "LLM API key", Fn: checkLLMAPIKey},
		{Name: "LLM connectivity", Fn: checkLLMConnectivity},
		{Name: "Agent store", Fn: checkStore},
		{Name: "Agents", Fn: checkAgents},
	}

	fmt.Fprintln(stdout, "techassist doctor")
	fmt.Fprintln(stdout, strings.Repeat("=", 50))
	fmt.Fprintln(stdout)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(stdout, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(stdout, "      Fix: %s\n", result.Fix)
		}
		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, strings.Repeat("-", 50))
	fmt.Fprintf(stdout, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)
	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

func configNotLoaded() CheckResult {
	return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
}

// checkConfigFile returns a check that verifies the config file exists and parses correctly.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("config file not found at %s, using defaults", cfgPath),
				Fix:     "Create techassist.yaml or pass --config",
			}
		}
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check the YAML syntax and the fields named above",
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

// checkLLMAPIKey verifies every non-local provider has an API key.
func checkLLMAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return configNotLoaded()
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no LLM providers configured",
			Fix:     "Add at least one provider under llm.providers",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		switch {
		case p.APIKey != "", p.Type == "ollama":
			withKey = append(withKey, p.Name)
		default:
			withoutKey = append(withoutKey, p.Name)
		}
	}
	if len(withKey) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no API keys found for providers: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set keys via TECHASSIST_LLM_PROVIDER_<NAME>_API_KEY",
		}
	}
	if len(withoutKey) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("credentials configured for: %s", strings.Join(withKey, ", "))}
}

// checkLLMConnectivity pings the default provider.
func checkLLMConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return configNotLoaded()
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{Status: StatusFail, Message: "no provider to contact"}
	}
	_, primary, err := llm.Build(cfg.LLM, logger.Discard(), nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()
	if err := llm.HealthCheck(ctx, primary); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s unreachable: %v", cfg.LLM.DefaultProvider, err),
			Fix:     "Check base_url, the API key and network access",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s reachable", cfg.LLM.DefaultProvider)}
}

// checkStore opens the SQLite database and runs a ping.
func checkStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return configNotLoaded()
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Check that the directory of store.path is writable",
		}
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("database ready at %s", cfg.Store.Path)}
}

// checkAgents counts active agent configurations per type. Documentation
// is the fallback type, so its absence fails the check.
func checkAgents(cfg *config.Config) CheckResult {
	if cfg == nil {
		return configNotLoaded()
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()
	return agentCoverage(ctx, st, len(cfg.Agents))
}

func agentCoverage(ctx context.Context, repo domain.AgentConfigRepository, seeds int) CheckResult {
	counts := make([]string, 0, 3)
	var missing []string
	docs := 0
	for _, t := range domain.AllAgentTypes() {
		cfgs, err := repo.GetByAgentType(ctx, t, true)
		if err != nil {
			return CheckResult{Status: StatusFail, Message: err.Error()}
		}
		counts = append(counts, fmt.Sprintf("%s=%d", t, len(cfgs)))
		if len(cfgs) == 0 {
			missing = append(missing, string(t))
		}
		if t == domain.AgentDocumentation {
			docs = len(cfgs)
		}
	}

	fix := "Run 'techassist seed' to load the agents section of the config"
	if seeds == 0 {
		fix = "Define agents in the config file, then run 'techassist seed'"
	}
	switch {
	case docs == 0:
		return CheckResult{Status: StatusFail, Message: "no active documentation agent (" + strings.Join(counts, ", ") + ")", Fix: fix}
	case len(missing) > 0:
		return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("no active agent for %s (%s)", strings.Join(missing, ", "), strings.Join(counts, ", ")), Fix: fix}
	}
	return CheckResult{Status: StatusPass, Message: strings.Join(counts, ", ")}
}
