package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/reliable-agents-ai/triads-sub002/internal/config"
	"github.com/reliable-agents-ai/triads-sub002/internal/workspace"
)

func workspaceCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	paths := config.ResolvePaths()
	mgr := workspace.NewManager(paths.TriadsDir)

	switch args[0] {
	case "create":
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		ws, err := mgr.Create(strings.Join(args[1:], " "), nil)
		if err != nil {
			fatal("create: %v", err)
		}
		fmt.Println(ws.ID)

	case "list":
		ids, err := mgr.List()
		if err != nil {
			fatal("list: %v", err)
		}
		activeID := ""
		if active, err := mgr.GetActive(); err == nil {
			activeID = active.ID
		}
		for _, id := range ids {
			ws, err := mgr.Load(id)
			status := "?"
			if err == nil {
				status = ws.State.Status
			}
			marker := " "
			if id == activeID {
				marker = "*"
			}
			fmt.Printf("%s %s\t%s\n", marker, id, status)
		}

	case "activate":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		err := mgr.SetActive(args[1])
		var conflict *workspace.ErrActiveConflict
		if errors.As(err, &conflict) {
			// The operator asked for it; take the marker over.
			err = mgr.ForceActive(args[1])
		}
		if err != nil {
			fatal("activate: %v", err)
		}
		fmt.Printf("%s active\n", args[1])

	case "pause":
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		id := args[1]
		reason := "Paused by operator"
		for i := 2; i < len(args); i++ {
			switch args[i] {
			case "--reason":
				reason = argValue(args, &i, "--reason")
			default:
				fatal("unknown arg: %s", args[i])
			}
		}
		if err := mgr.MarkPaused(id, reason); err != nil {
			fatal("pause: %v", err)
		}
		fmt.Printf("%s paused\n", id)

	case "complete":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		if err := mgr.MarkCompleted(args[1]); err != nil {
			fatal("complete: %v", err)
		}
		fmt.Printf("%s completed\n", args[1])

	default:
		usage()
		os.Exit(1)
	}
}
