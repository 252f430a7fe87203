package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/reliable-agents-ai/triads-sub002/internal/config"
	"github.com/reliable-agents-ai/triads-sub002/internal/workflow"
)

func workflowCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	paths := config.ResolvePaths()
	store := workflow.NewStore(paths.WorkflowState)

	switch args[0] {
	case "status":
		st := store.Load()
		b, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(b))

	case "complete":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		if err := store.MarkCompleted(args[1], nil); err != nil {
			fatal("complete: %v", err)
		}
		fmt.Printf("%s completed\n", args[1])

	case "enforce":
		baseRef := ""
		bypass := ""
		for i := 1; i < len(args); i++ {
			switch args[i] {
			case "--base-ref":
				baseRef = argValue(args, &i, "--base-ref")
			case "--bypass":
				bypass = argValue(args, &i, "--bypass")
			default:
				fatal("unknown arg: %s", args[i])
			}
		}

		registry := workflow.NewRegistry()
		registry.Register(workflow.CodeProvider{Dir: paths.ProjectDir})
		enforcer := &workflow.Enforcer{
			Store:    store,
			Registry: registry,
			Audit:    workflow.NewAuditLog(paths.WorkflowAudit, paths.ProjectDir),
			BaseRef:  baseRef,
		}
		res := enforcer.Enforce(context.Background(), bypass)
		if res.Message != "" {
			fmt.Fprintln(os.Stderr, res.Message)
		}
		if !res.Allowed {
			os.Exit(1)
		}
		if !res.Bypassed {
			fmt.Println("deployment gate: pass")
		}

	default:
		usage()
		os.Exit(1)
	}
}
