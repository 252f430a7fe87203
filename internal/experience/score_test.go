package experience

import (
	"math"
	"strings"
	"testing"

	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
)

func pkItem(priority string, confidence float64, tc graph.TriggerConditions) Item {
	return Item{
		Triad: "design",
		Node: graph.Node{
			ID:                "lesson_1",
			Label:             "Validate plugin manifests before writing",
			Type:              "finding",
			Confidence:        confidence,
			ProcessType:       "checklist",
			Priority:          priority,
			TriggerConditions: &tc,
		},
	}
}

func writeCtx(path string) ToolContext {
	return ToolContext{ToolName: "Write", ToolInput: map[string]any{"file_path": path}}
}

func TestScoreToolAndFileMatch(t *testing.T) {
	item := pkItem("MEDIUM", 0.9, graph.TriggerConditions{
		ToolNames:    []string{"Write"},
		FilePatterns: []string{"**/plugin.json"},
	})
	got := Score(item, writeCtx("/x/plugin.json"))
	want := 0.40 + 0.40 // tool + file, MEDIUM multiplier 1.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestScoreDeclaredToolListGates(t *testing.T) {
	item := pkItem("CRITICAL", 0.95, graph.TriggerConditions{
		ToolNames:    []string{"Write"},
		FilePatterns: []string{"**/plugin.json"},
	})
	ctx := ToolContext{ToolName: "Read", ToolInput: map[string]any{"file_path": "/x/plugin.json"}}
	if got := Score(item, ctx); got != 0 {
		t.Errorf("Read scored %v against a Write-scoped item", got)
	}
	if ranked := Rank([]Item{item}, ctx); len(ranked) != 0 {
		t.Errorf("Write-scoped item surfaced for Read: %+v", ranked)
	}
}

func TestScorePriorityMultiplier(t *testing.T) {
	tc := graph.TriggerConditions{ToolNames: []string{"Write"}}
	base := Score(pkItem("MEDIUM", 0.9, tc), writeCtx("/a.txt"))
	critical := Score(pkItem("CRITICAL", 0.9, tc), writeCtx("/a.txt"))
	low := Score(pkItem("LOW", 0.9, tc), writeCtx("/a.txt"))
	if math.Abs(critical-2*base) > 1e-9 {
		t.Errorf("CRITICAL multiplier: %v vs base %v", critical, base)
	}
	if math.Abs(low-0.5*base) > 1e-9 {
		t.Errorf("LOW multiplier: %v vs base %v", low, base)
	}
}

func TestScoreKeywordFractions(t *testing.T) {
	item := pkItem("MEDIUM", 0.9, graph.TriggerConditions{
		ActionKeywords: []string{"delete", "migrate"},
	})
	ctx := ToolContext{
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "scripts/delete-stale.sh"},
	}
	// One of two action keywords present, word-boundary matched
	// ("delete-stale" splits into delete and stale).
	got := Score(item, ctx)
	want := 0.10 * 0.5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("score = %v, want %v", got, want)
	}

	// "deleted" must not match "delete" on a word boundary.
	ctx.ToolInput = map[string]any{"command": "echo deleted"}
	if got := Score(item, ctx); got != 0 {
		t.Errorf("substring leak: %v", got)
	}
}

func TestRankThresholdAndOrder(t *testing.T) {
	strong := pkItem("HIGH", 0.9, graph.TriggerConditions{ToolNames: []string{"Write"}, FilePatterns: []string{"**/*.go"}})
	weak := pkItem("LOW", 0.2, graph.TriggerConditions{ToolNames: []string{"Write"}})
	weak.Node.ID = "lesson_2"

	ranked := Rank([]Item{weak, strong}, writeCtx("/repo/main.go"))
	if len(ranked) != 1 {
		t.Fatalf("ranked %d items, want 1 (weak scores 0.40*0.5 = 0.2, below threshold)", len(ranked))
	}
	if ranked[0].Node.ID != "lesson_1" {
		t.Errorf("wrong top item: %s", ranked[0].Node.ID)
	}
}

func TestMatchPatternAbsolutePaths(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"**/plugin.json", "/x/plugin.json", true},
		{"**/plugin.json", "plugin.json", true},
		{"*.go", "/repo/cmd/main.go", true}, // base-name fallback
		{"docs/**", "/repo/src/main.go", false},
	}
	for _, tc := range cases {
		if got := matchPattern(tc.pattern, tc.path); got != tc.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestDecideBlockPath(t *testing.T) {
	item := pkItem("CRITICAL", 0.95, graph.TriggerConditions{
		ToolNames:    []string{"Write"},
		FilePatterns: []string{"**/plugin.json"},
	})
	ctx := writeCtx("/x/plugin.json")
	ranked := Rank([]Item{item}, ctx)
	if len(ranked) != 1 {
		t.Fatalf("ranked = %d", len(ranked))
	}

	d := Decide(ranked, ctx, Options{})
	if d.Mode != ModeBlock {
		t.Errorf("mode = %v, want block", d.Mode)
	}

	// Knobs: disable_block downgrades to injection.
	d = Decide(ranked, ctx, Options{DisableBlock: true})
	if d.Mode != ModeInject {
		t.Errorf("disable_block: mode = %v, want inject", d.Mode)
	}
	// disable_experience silences entirely.
	d = Decide(ranked, ctx, Options{DisableExperience: true})
	if d.Mode != ModeSilent {
		t.Errorf("disable_experience: mode = %v, want silent", d.Mode)
	}
	// A raised threshold keeps the same item advisory.
	d = Decide(ranked, ctx, Options{BlockThreshold: 0.97})
	if d.Mode != ModeInject {
		t.Errorf("raised threshold: mode = %v, want inject", d.Mode)
	}
}

func TestDecideNonCriticalNeverBlocks(t *testing.T) {
	item := pkItem("HIGH", 0.99, graph.TriggerConditions{
		ToolNames:    []string{"Write"},
		FilePatterns: []string{"**/plugin.json"},
	})
	ctx := writeCtx("/x/plugin.json")
	d := Decide(Rank([]Item{item}, ctx), ctx, Options{})
	if d.Mode != ModeInject {
		t.Errorf("mode = %v, want inject for non-CRITICAL", d.Mode)
	}
}

func TestDecideRiskyCommand(t *testing.T) {
	item := pkItem("CRITICAL", 0.90, graph.TriggerConditions{ToolNames: []string{"Bash"}})
	ctx := ToolContext{ToolName: "Bash", ToolInput: map[string]any{"command": "git commit -m wip"}}
	d := Decide(Rank([]Item{item}, ctx), ctx, Options{})
	if d.Mode != ModeBlock {
		t.Errorf("git commit with CRITICAL lesson: mode = %v, want block", d.Mode)
	}

	ctx.ToolInput = map[string]any{"command": "git status"}
	d = Decide(Rank([]Item{item}, ctx), ctx, Options{})
	if d.Mode != ModeInject {
		t.Errorf("git status: mode = %v, want inject", d.Mode)
	}
}

func TestInterjectionNamesLesson(t *testing.T) {
	item := pkItem("CRITICAL", 0.95, graph.TriggerConditions{ToolNames: []string{"Write"}})
	item.Node.Content = "Check the schema version field first."
	d := Decision{Mode: ModeBlock, Top: Scored{Item: item, Score: 1.6}}
	msg := Interjection(d)
	if !strings.HasPrefix(msg, "WARNING:") {
		t.Errorf("interjection does not begin with a warning: %q", msg)
	}
	if !strings.Contains(msg, item.Node.Label) {
		t.Error("interjection omits the lesson label")
	}
	if !strings.Contains(msg, "TRIADS_DISABLE_BLOCK") {
		t.Error("interjection omits the override")
	}
}
