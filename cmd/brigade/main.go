// Command brigade runs the kafeAI daily operating pipeline: start a run,
// review the paused snapshot, inject feedback, and resume to completion.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

const version = "0.3.0"

type globalFlags struct {
	ConfigPath string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		runStart(ctx, global, args[1:])
	case "resume":
		runResume(ctx, global, args[1:])
	case "state":
		runState(ctx, global, args[1:])
	case "memory":
		runMemory(ctx, global, args[1:])
	case "stock":
		ensureNoArgs(args[1:])
		runStock(ctx, global)
	case "version":
		fmt.Printf("brigade %s\n", version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		ConfigPath: os.Getenv("BRIGADE_CONFIG"),
		Timeout:    5 * time.Minute,
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func ensureNoArgs(args []string) {
	if len(args) > 0 {
		fatal(fmt.Errorf("unexpected arguments: %s", strings.Join(args, " ")))
	}
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(data))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "brigade: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`brigade - kafeAI daily operations pipeline

Usage:
  brigade [global flags] <command> [args]

Commands:
  run --issue <text> [--run-id <id>]   start a run; pauses for human review
  resume <run-id> [--feedback <text>]  resume a paused run to completion
  state <run-id>                       show the stored snapshot for a run
  memory lessons                       show recent lessons from past mistakes
  memory episodes                      show all recorded episodes
  memory evaluate [date]               judge a pending episode against actuals
  stock                                show the current stock ledger
  version                              print version
  help                                 print this help

Global flags:
  --config <path>     config file (default $BRIGADE_CONFIG)
  --timeout <dur>     command timeout (default 5m)
  --json              JSON output
`)
}
