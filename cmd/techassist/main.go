package main

import (
	"fmt"
	"os"
	"strings"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(2)
	}

	cmd, rest := os.Args[1], os.Args[2:]
	flags, args, err := parseFlags(rest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(2)
	}

	var run func(cliFlags, []string) error
	switch cmd {
	case "--help", "-h", "help":
		showUsage()
		return
	case "version":
		fmt.Println("techassist", version)
		return
	case "serve":
		run = runServe
	case "ask":
		run = runAsk
	case "route":
		run = runRoute
	case "history":
		run = runHistory
	case "forget":
		run = runForget
	case "seed":
		run = runSeed
	case "doctor":
		run = runDoctor
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'techassist --help' for usage information.\n", cmd)
		os.Exit(2)
	}

	if err := run(flags, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`techassist - technical assistance query orchestrator

USAGE:
    techassist COMMAND [FLAGS] [ARGS]

COMMANDS:
    serve                   Run the HTTP/WebSocket gateway
    ask QUERY               Answer a query and print the response
    route QUERY             Show how a query would be classified and routed
    history CONVERSATION    Print the stored turns of a conversation
    forget CONVERSATION     Delete a conversation and its routing history
    seed                    Upsert the agents from the config file into the store
    doctor                  Run health checks on your setup
    version                 Print the version

FLAGS:
    -h, --help              Show this help message
    --config PATH           Config file path (default: ./techassist.yaml)
    --conversation ID       Conversation id for ask and route
    --user ID               User id recorded with ask
    --json                  Print machine-readable JSON

CONFIGURATION:
    Environment: TECHASSIST_* variables override the config file`)
}

// cliFlags are the flags shared by every command.
type cliFlags struct {
	ConfigPath     string
	ConversationID string
	UserID         string
	JSON           bool
}

// parseFlags splits args into known flags and positional arguments.
func parseFlags(args []string) (cliFlags, []string, error) {
	var flags cliFlags
	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "--config", "--conversation", "--user":
			if !hasValue {
				if i+1 >= len(args) {
					return flags, nil, fmt.Errorf("flag %s needs a value", name)
				}
				i++
				value = args[i]
			}
			switch name {
			case "--config":
				flags.ConfigPath = value
			case "--conversation":
				flags.ConversationID = value
			case "--user":
				flags.UserID = value
			}
		case "--json":
			flags.JSON = true
		default:
			if strings.HasPrefix(arg, "--") {
				return flags, nil, fmt.Errorf("unknown flag %s", arg)
			}
			positional = append(positional, arg)
		}
	}
	if flags.ConfigPath == "" {
		flags.ConfigPath = defaultConfigPath()
	}
	return flags, positional, nil
}

func defaultConfigPath() string {
	if p := os.Getenv("TECHASSIST_CONFIG"); p != "" {
		return p
	}
	return "techassist.yaml"
}
