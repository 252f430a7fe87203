package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/reliable-agents-ai/triads-sub002/internal/config"
	"github.com/reliable-agents-ai/triads-sub002/internal/events"
	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
)

func eventsCmd(args []string) {
	if len(args) < 1 || args[0] != "query" {
		usage()
		os.Exit(1)
	}
	args = args[1:]

	var f events.Filters
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--workspace":
			f.WorkspaceID = argValue(args, &i, "--workspace")
		case "--subject":
			f.Subject = argValue(args, &i, "--subject")
		case "--predicate":
			f.Predicate = argValue(args, &i, "--predicate")
		case "--search":
			f.Search = argValue(args, &i, "--search")
		case "--limit":
			n, err := strconv.Atoi(argValue(args, &i, "--limit"))
			if err != nil {
				fatal("--limit: %v", err)
			}
			f.Limit = n
		case "--offset":
			n, err := strconv.Atoi(argValue(args, &i, "--offset"))
			if err != nil {
				fatal("--offset: %v", err)
			}
			f.Offset = n
		default:
			fatal("unknown arg: %s", args[i])
		}
	}

	paths := config.ResolvePaths()
	repo := events.NewFileRepository(paths.Events)
	results, err := repo.Query(f)
	if err != nil {
		fatal("query: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, ev := range results {
		if err := enc.Encode(ev); err != nil {
			fatal("encode: %v", err)
		}
	}
}

func graphCmd(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	paths := config.ResolvePaths()
	store := graph.NewStore(paths.GraphsDir)

	switch args[0] {
	case "list":
		triads, err := store.ListTriads()
		if err != nil {
			fatal("list: %v", err)
		}
		for _, triad := range triads {
			g, err := store.Load(triad)
			if err != nil {
				fmt.Printf("%s\t(unreadable: %v)\n", triad, err)
				continue
			}
			fmt.Printf("%s\t%d nodes\t%d edges\n", triad, len(g.Nodes), len(g.Edges))
		}

	case "validate":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		g, err := store.Load(args[1])
		if err != nil {
			fatal("load: %v", err)
		}
		if err := graph.Validate(g); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s: valid (%d nodes, %d edges)\n", args[1], len(g.Nodes), len(g.Edges))

	case "repair":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		report, err := store.Repair(args[1])
		if err != nil {
			fatal("repair: %v", err)
		}
		if !report.Changed() {
			fmt.Printf("%s: nothing to repair\n", args[1])
			return
		}
		b, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(b))

	case "search":
		if len(args) < 3 {
			usage()
			os.Exit(1)
		}
		triad, query := args[1], args[2]
		minConfidence := 0.0
		for i := 3; i < len(args); i++ {
			switch args[i] {
			case "--min-confidence":
				v, err := strconv.ParseFloat(argValue(args, &i, "--min-confidence"), 64)
				if err != nil {
					fatal("--min-confidence: %v", err)
				}
				minConfidence = v
			default:
				fatal("unknown arg: %s", args[i])
			}
		}
		nodes, err := store.Search(triad, query, minConfidence)
		if err != nil {
			fatal("search: %v", err)
		}
		for _, n := range nodes {
			fmt.Printf("%s\t%.2f\t%s\n", n.ID, n.Confidence, n.Label)
		}

	default:
		usage()
		os.Exit(1)
	}
}
