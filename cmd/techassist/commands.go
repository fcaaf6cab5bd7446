package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"techassist/internal/adapter/store"
	"techassist/internal/domain"
	"techassist/internal/infra/config"
)

// cliTimeout bounds one-shot commands.
const cliTimeout = 3 * time.Minute

var stdout io.Writer = os.Stdout

func withApp(flags cliFlags, seed bool, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	a, err := loadApp(ctx, flags, seed)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

func queryArg(args []string) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" {
		return "", errors.New("a query is required")
	}
	return q, nil
}

func runAsk(flags cliFlags, args []string) error {
	query, err := queryArg(args)
	if err != nil {
		return err
	}
	return withApp(flags, false, func(ctx context.Context, a *app) error {
		resp := a.orch.ProcessRequest(ctx, domain.OrchestratorRequest{
			Query:          query,
			UserID:         flags.UserID,
			ConversationID: flags.ConversationID,
		})
		if flags.JSON {
			return printJSON(resp)
		}
		printResponse(stdout, resp)
		return nil
	})
}

func runRoute(flags cliFlags, args []string) error {
	query, err := queryArg(args)
	if err != nil {
		return err
	}
	return withApp(flags, false, func(ctx context.Context, a *app) error {
		info, err := a.orch.RoutingInfo(ctx, query, flags.ConversationID)
		if err != nil {
			return err
		}
		if flags.JSON {
			return printJSON(info)
		}
		printRouting(stdout, info)
		return nil
	})
}

func runHistory(flags cliFlags, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: techassist history CONVERSATION")
	}
	return withApp(flags, false, func(ctx context.Context, a *app) error {
		msgs, err := a.orch.ConversationHistory(ctx, args[0])
		if err != nil {
			return err
		}
		if flags.JSON {
			return printJSON(msgs)
		}
		if len(msgs) == 0 {
			fmt.Fprintln(stdout, "no messages")
			return nil
		}
		for _, m := range msgs {
			who := m.Role
			if m.AgentType != "" {
				who += " (" + string(m.AgentType) + ")"
			}
			fmt.Fprintf(stdout, "[%s] %s:\n%s\n\n", m.Timestamp.Format(time.RFC3339), who, m.Content)
		}
		return nil
	})
}

func runForget(flags cliFlags, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: techassist forget CONVERSATION")
	}
	return withApp(flags, false, func(ctx context.Context, a *app) error {
		deleted, err := a.orch.DeleteConversationHistory(ctx, args[0])
		if err != nil {
			return err
		}
		if deleted {
			fmt.Fprintf(stdout, "conversation %s deleted\n", args[0])
		} else {
			fmt.Fprintf(stdout, "conversation %s not found\n", args[0])
		}
		return nil
	})
}

// runSeed only needs the store, so it skips LLM provider setup.
func runSeed(flags cliFlags, _ []string) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}
	if len(cfg.Agents) == 0 {
		return fmt.Errorf("no agents defined in %s", flags.ConfigPath)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()
	n, err := store.Seed(ctx, st, cfg.Agents)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "seeded %d agent configuration(s) into %s\n", n, cfg.Store.Path)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResponse(w io.Writer, resp domain.OrchestratorResponse) {
	fmt.Fprintf(w, "%s\n\n", resp.Response)
	name := resp.AgentName
	if name == "" {
		name = string(resp.AgentType)
	}
	fmt.Fprintf(w, "-- %s, confidence %.2f, conversation %s\n", name, resp.Confidence, resp.ConversationID)
	if code, ok := resp.Metadata["error_code"]; ok {
		fmt.Fprintf(w, "-- error: %v (%v)\n", resp.Metadata["error"], code)
	}
	if len(resp.FollowupQuestions) > 0 {
		fmt.Fprintln(w, "\nFollow-up questions:")
		for _, q := range resp.FollowupQuestions {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}
}

func printRouting(w io.Writer, info *domain.RoutingInfo) {
	r := info.Routing
	fmt.Fprintf(w, "classified: %s\n", info.Classification)
	if info.Classification.Reasoning != "" {
		fmt.Fprintf(w, "reasoning:  %s\n", info.Classification.Reasoning)
	}
	fmt.Fprintf(w, "routed to:  %s (config %s)\n", r.AgentType, r.AgentConfigID)
	if r.ContinuityOverride {
		fmt.Fprintln(w, "continuity: kept the previous agent for a follow-up")
	}
	if r.FallbackAgentConfigID != "" {
		fmt.Fprintf(w, "fallback:   %s\n", r.FallbackAgentConfigID)
	}
	if r.RequiresMultipleAgents {
		types := make([]string, len(r.AdditionalAgentTypes))
		for i, t := range r.AdditionalAgentTypes {
			types[i] = string(t)
		}
		fmt.Fprintf(w, "consults:   %s\n", strings.Join(types, ", "))
	}
	fmt.Fprintf(w, "follow-up:  %t\n", r.RequiresFollowup)
}
