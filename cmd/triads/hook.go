package main

import (
	"fmt"
	"os"

	"github.com/reliable-agents-ai/triads-sub002/internal/config"
	"github.com/reliable-agents-ai/triads-sub002/internal/hooks"
)

// hookEventNames maps CLI spellings to the host's event names.
var hookEventNames = map[string]string{
	"session-start":      "SessionStart",
	"session-end":        "SessionEnd",
	"user-prompt-submit": "UserPromptSubmit",
	"pre-tool-use":       "PreToolUse",
	"post-tool-use":      "PostToolUse",
	"permission-request": "PermissionRequest",
	"stop":               "Stop",
	"subagent-stop":      "SubagentStop",
	"pre-compact":        "PreCompact",
	"notification":       "Notification",
}

func hookCmd(args []string) {
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}
	event, ok := hookEventNames[args[0]]
	if !ok {
		// The host must never see a hard failure from a typoed
		// registration; log and exit clean.
		fmt.Fprintf(os.Stderr, "triads: unknown hook event %q\n", args[0])
		os.Exit(0)
	}
	rt := hooks.NewRuntime(os.Stdout, os.Stderr)
	os.Exit(rt.Run(event, os.Stdin))
}

func initCmd(args []string) {
	binary := "triads hook"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--binary":
			binary = argValue(args, &i, "--binary")
		default:
			fatal("unknown arg: %s", args[i])
		}
	}

	paths := config.ResolvePaths()
	if err := config.InstallHooks(paths.Settings, binary); err != nil {
		fatal("install hooks: %v", err)
	}
	if missing := config.VerifyHooks(paths.Settings); len(missing) > 0 {
		fatal("events still unregistered after install: %v", missing)
	}
	fmt.Printf("registered %d hook events in %s\n", len(config.HookEvents), paths.Settings)
}
