package hooks

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/reliable-agents-ai/triads-sub002/internal/config"
	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
)

type testEnv struct {
	rt     *Runtime
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvProjectDir, dir)
	t.Setenv(config.EnvDisableBlock, "")
	t.Setenv(config.EnvDisableExperience, "")
	t.Setenv(config.EnvBlockThreshold, "")
	var stdout, stderr bytes.Buffer
	return &testEnv{rt: NewRuntime(&stdout, &stderr), stdout: &stdout, stderr: &stderr}
}

func (e *testEnv) run(t *testing.T, event, stdin string) int {
	t.Helper()
	e.stdout.Reset()
	e.stderr.Reset()
	return e.rt.Run(event, strings.NewReader(stdin))
}

func seedCriticalLesson(t *testing.T, e *testEnv) {
	t.Helper()
	g := &graph.Graph{Nodes: []graph.Node{{
		ID:          "pk_manifest",
		Label:       "Validate plugin manifests before writing",
		Type:        "finding",
		Confidence:  0.95,
		Content:     "Run the manifest validator first.",
		ProcessType: "warning",
		Priority:    "CRITICAL",
		TriggerConditions: &graph.TriggerConditions{
			ToolNames:    []string{"Write"},
			FilePatterns: []string{"**/plugin.json"},
		},
	}}}
	if err := e.rt.Graphs.Save("design", g); err != nil {
		t.Fatal(err)
	}
}

func TestPreToolUseBlocksAndReadsPass(t *testing.T) {
	e := newTestEnv(t)
	seedCriticalLesson(t, e)

	code := e.run(t, "PreToolUse", `{"tool_name":"Write","tool_input":{"file_path":"/x/plugin.json"}}`)
	if code != 2 {
		t.Fatalf("exit = %d, want 2; stderr=%q", code, e.stderr.String())
	}
	if !strings.HasPrefix(e.stderr.String(), "WARNING:") {
		t.Errorf("stderr = %q", e.stderr.String())
	}
	if !strings.Contains(e.stderr.String(), "Validate plugin manifests before writing") {
		t.Error("interjection omits the lesson label")
	}

	// Same graph, Read instead of Write: exit 0 and the lesson is omitted.
	code = e.run(t, "PreToolUse", `{"tool_name":"Read","tool_input":{"file_path":"/x/plugin.json"}}`)
	if code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if strings.Contains(e.stdout.String(), "pk_manifest") ||
		strings.Contains(e.stdout.String(), "Validate plugin manifests") {
		t.Errorf("Write-scoped lesson surfaced for Read: %s", e.stdout.String())
	}

	// The block was recorded as an injection for outcome tracking.
	st := e.rt.Tracker.Load()
	if len(st.Injections) != 1 || st.Injections[0].LessonID != "pk_manifest" {
		t.Errorf("injections: %+v", st.Injections)
	}
}

func TestPreToolUseDisableKnobs(t *testing.T) {
	e := newTestEnv(t)
	seedCriticalLesson(t, e)
	input := `{"tool_name":"Write","tool_input":{"file_path":"/x/plugin.json"}}`

	t.Setenv(config.EnvDisableBlock, "1")
	if code := e.run(t, "PreToolUse", input); code != 0 {
		t.Fatalf("disable_block: exit = %d", code)
	}
	// Downgraded to injection: the lesson rides along as context.
	var envelope struct {
		HookSpecificOutput struct {
			HookEventName     string `json:"hookEventName"`
			AdditionalContext string `json:"additionalContext"`
		} `json:"hookSpecificOutput"`
	}
	if err := json.Unmarshal(e.stdout.Bytes(), &envelope); err != nil {
		t.Fatalf("stdout not an envelope: %v: %s", err, e.stdout.String())
	}
	if envelope.HookSpecificOutput.HookEventName != "PreToolUse" {
		t.Errorf("event name = %q", envelope.HookSpecificOutput.HookEventName)
	}
	if !strings.Contains(envelope.HookSpecificOutput.AdditionalContext, "Validate plugin manifests") {
		t.Errorf("context = %q", envelope.HookSpecificOutput.AdditionalContext)
	}

	t.Setenv(config.EnvDisableBlock, "")
	t.Setenv(config.EnvDisableExperience, "1")
	if code := e.run(t, "PreToolUse", input); code != 0 || e.stdout.Len() != 0 {
		t.Errorf("disable_experience: exit=%d stdout=%q", code, e.stdout.String())
	}
}

func TestEnvelopeNeverCrashes(t *testing.T) {
	e := newTestEnv(t)

	if code := e.run(t, "PreToolUse", "this is not json {"); code != 0 {
		t.Errorf("malformed stdin: exit = %d", code)
	}
	if code := e.run(t, "NoSuchEvent", "{}"); code != 0 {
		t.Errorf("unknown event: exit = %d", code)
	}
	if code := e.run(t, "Stop", ""); code != 0 {
		t.Errorf("empty stdin: exit = %d", code)
	}
}

func TestStopDispatchesAndUpdatesConfidence(t *testing.T) {
	e := newTestEnv(t)
	seedCriticalLesson(t, e)

	// A prior injection this session; the stop hook will find its outcome.
	if code := e.run(t, "SessionStart", `{"session_id":"sess-1"}`); code != 0 {
		t.Fatal("session start failed")
	}
	e.run(t, "PreToolUse", `{"tool_name":"Write","tool_input":{"file_path":"/x/plugin.json"}}`)

	response := `Good catch - I stopped to validate plugin manifests before writing and fixed the stale entry.

[GRAPH_UPDATE]
triad: design
update_type: add_node
node_id: n_loader
label: Plugin loader
type: concept
[/GRAPH_UPDATE]`

	payload, _ := json.Marshal(map[string]any{"response": response})
	if code := e.run(t, "Stop", string(payload)); code != 0 {
		t.Fatalf("stop: exit = %d", code)
	}

	g, err := e.rt.Graphs.Load("design")
	if err != nil {
		t.Fatal(err)
	}
	if !g.HasNode("n_loader") {
		t.Errorf("graph update not applied: %+v", g.Nodes)
	}
	lesson, _ := g.Node("pk_manifest")
	if lesson.Confidence != 0.99 { // 0.95 * 1.10 capped
		t.Errorf("confidence = %v", lesson.Confidence)
	}
	if lesson.SuccessCount != 1 {
		t.Errorf("success count = %d", lesson.SuccessCount)
	}

	st := e.rt.Tracker.Load()
	if len(st.Injections) != 1 || st.Injections[0].Outcome != "confirmation" {
		t.Errorf("tracker: %+v", st.Injections)
	}
}

func TestSessionEndAutoPauses(t *testing.T) {
	e := newTestEnv(t)
	ws, err := e.rt.Workspaces.Create("demo task", nil)
	if err != nil {
		t.Fatal(err)
	}
	if code := e.run(t, "SessionEnd", `{"reason":"exit"}`); code != 0 {
		t.Fatalf("exit = %d", code)
	}
	got, err := e.rt.Workspaces.Load(ws.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State.Status != "paused" || got.State.PauseReason != "Session ended (auto-pause)" {
		t.Errorf("state = %+v", got.State)
	}
}

func TestHooksRecordEvents(t *testing.T) {
	e := newTestEnv(t)
	events := map[string]string{
		"UserPromptSubmit":  `{"prompt":"hello"}`,
		"PostToolUse":       `{"tool_name":"Bash","tool_use_id":"t1"}`,
		"PermissionRequest": `{"tool_name":"Write","tool_use_id":"t2"}`,
		"SubagentStop":      `{"stop_hook_active":true}`,
		"PreCompact":        `{"trigger":"auto"}`,
		"Notification":      `{"notification_type":"info","message":"hi"}`,
	}
	for event, stdin := range events {
		if code := e.run(t, event, stdin); code != 0 {
			t.Errorf("%s: exit = %d", event, code)
		}
	}

	// Every run above appended one execution event.
	b, err := os.ReadFile(e.rt.Paths.Events)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != len(events) {
		t.Fatalf("%d event lines, want %d", len(lines), len(events))
	}
	seen := map[string]bool{}
	for _, line := range lines {
		var ev struct {
			HookName  string `json:"hook_name"`
			Predicate string `json:"predicate"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad event line %q: %v", line, err)
		}
		seen[ev.HookName] = true
	}
	for event := range events {
		if !seen[event] {
			t.Errorf("no event recorded for %s", event)
		}
	}
}
