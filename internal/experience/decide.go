package experience

import (
	"strings"
)

// Options are the only recognized cancellation knobs, surfaced through the
// environment (TRIADS_DISABLE_BLOCK, TRIADS_DISABLE_EXPERIENCE,
// TRIADS_BLOCK_THRESHOLD) and the project config file.
type Options struct {
	DisableBlock      bool
	DisableExperience bool
	BlockThreshold    float64 // default 0.85

	// Extra point-of-no-return command patterns, merged with the defaults.
	RiskyCommands []string
}

const defaultBlockThreshold = 0.85

func (o Options) blockThreshold() float64 {
	if o.BlockThreshold > 0 {
		return o.BlockThreshold
	}
	return defaultBlockThreshold
}

// Tools whose runs mutate files.
var writeTools = map[string]bool{
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// Commands that are hard to walk back once run. Substring match against the
// Bash tool's command input.
var defaultRiskyCommands = []string{
	"git commit",
	"git push",
	"rm ",
	"npm publish",
	"cargo publish",
	"terraform apply",
	"kubectl delete",
}

type Mode int

const (
	// ModeSilent: nothing relevant; the hook exits without output.
	ModeSilent Mode = iota
	// ModeInject: relevant items ride along as additional context, exit 0.
	ModeInject
	// ModeBlock: interjection to stderr, exit 2. Mostly silent, rarely block.
	ModeBlock
)

type Decision struct {
	Mode  Mode
	Top   Scored
	Items []Scored
}

// Decide picks the injection mode for the ranked items. Blocking requires
// all of: top priority CRITICAL, confidence at or above the block threshold,
// and a risky operation (a write-class tool on a file the item covers, a
// point-of-no-return command, or confidence at or above 0.95).
func Decide(scored []Scored, ctx ToolContext, opts Options) Decision {
	if opts.DisableExperience || len(scored) == 0 {
		return Decision{Mode: ModeSilent}
	}
	d := Decision{Mode: ModeInject, Top: scored[0], Items: scored}
	if opts.DisableBlock {
		return d
	}
	top := scored[0]
	if !strings.EqualFold(top.Node.Priority, "CRITICAL") {
		return d
	}
	if top.Node.Confidence < opts.blockThreshold() {
		return d
	}
	if riskyOperation(top, ctx, opts) {
		d.Mode = ModeBlock
	}
	return d
}

func riskyOperation(top Scored, ctx ToolContext, opts Options) bool {
	if top.Node.Confidence >= 0.95 {
		return true
	}
	if writeTools[ctx.ToolName] && fileCovered(top, ctx) {
		return true
	}
	return riskyCommand(ctx, opts)
}

func fileCovered(top Scored, ctx ToolContext) bool {
	path := ctx.FilePath()
	if path == "" || top.Node.TriggerConditions == nil {
		return false
	}
	for _, pattern := range top.Node.TriggerConditions.FilePatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

func riskyCommand(ctx ToolContext, opts Options) bool {
	if !strings.EqualFold(ctx.ToolName, "Bash") {
		return false
	}
	cmd, _ := ctx.ToolInput["command"].(string)
	if cmd == "" {
		return false
	}
	for _, pattern := range defaultRiskyCommands {
		if strings.Contains(cmd, pattern) {
			return true
		}
	}
	for _, pattern := range opts.RiskyCommands {
		if pattern != "" && strings.Contains(cmd, pattern) {
			return true
		}
	}
	return false
}
