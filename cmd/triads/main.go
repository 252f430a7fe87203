package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "hook":
		hookCmd(os.Args[2:])
	case "init":
		initCmd(os.Args[2:])
	case "events":
		eventsCmd(os.Args[2:])
	case "graph":
		graphCmd(os.Args[2:])
	case "workflow":
		workflowCmd(os.Args[2:])
	case "workspace":
		workspaceCmd(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  triads hook <event>                       run one hook (reads stdin JSON)")
	fmt.Fprintln(os.Stderr, "  triads init [--binary <invocation>]       register hooks in .claude/settings.json")
	fmt.Fprintln(os.Stderr, "  triads events query [--workspace <id>] [--subject <s>] [--predicate <p>] [--search <text>] [--limit <n>] [--offset <n>]")
	fmt.Fprintln(os.Stderr, "  triads graph list")
	fmt.Fprintln(os.Stderr, "  triads graph validate <triad>")
	fmt.Fprintln(os.Stderr, "  triads graph repair <triad>")
	fmt.Fprintln(os.Stderr, "  triads graph search <triad> <query> [--min-confidence <c>]")
	fmt.Fprintln(os.Stderr, "  triads workflow status")
	fmt.Fprintln(os.Stderr, "  triads workflow complete <triad>")
	fmt.Fprintln(os.Stderr, "  triads workflow enforce [--base-ref <ref>] [--bypass <justification>]")
	fmt.Fprintln(os.Stderr, "  triads workspace create <slug>")
	fmt.Fprintln(os.Stderr, "  triads workspace list")
	fmt.Fprintln(os.Stderr, "  triads workspace activate <id>")
	fmt.Fprintln(os.Stderr, "  triads workspace pause <id> [--reason <text>]")
	fmt.Fprintln(os.Stderr, "  triads workspace complete <id>")
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func argValue(args []string, i *int, flag string) string {
	*i++
	if *i >= len(args) {
		fatal("%s requires a value", flag)
	}
	return args[*i]
}
