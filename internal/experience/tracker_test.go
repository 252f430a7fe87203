package experience

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
)

func TestApplyOutcomeTable(t *testing.T) {
	cases := []struct {
		outcome Outcome
		in      float64
		want    float64
	}{
		{OutcomeSuccess, 0.80, 0.92},
		{OutcomeConfirmation, 0.80, 0.88},
		{OutcomeFailure, 0.80, 0.48},
		{OutcomeContradiction, 0.80, 0.32},
		{OutcomeSuccess, 0.95, 0.99},      // capped
		{OutcomeContradiction, 0.20, 0.10}, // floored
		{Outcome("unknown"), 0.80, 0.80},   // no-op
	}
	for _, tc := range cases {
		if got := ApplyOutcome(tc.in, tc.outcome); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ApplyOutcome(%v, %s) = %v, want %v", tc.in, tc.outcome, got, tc.want)
		}
	}
}

func TestInitialConfidence(t *testing.T) {
	cases := []struct {
		source      string
		priority    string
		reps        int
		conflicting bool
		want        float64
	}{
		{"user_correction", "", 0, false, 0.95},
		{"process_knowledge_block", "", 0, false, 0.90},
		{"repeated_mistake", "", 1, false, 0.75},
		{"repeated_mistake", "", 3, false, 0.85},
		{"repeated_mistake", "", 10, false, 0.90}, // boost capped at +0.15
		{"agent_inference", "", 0, false, 0.65},
		{"suggestion", "", 0, false, 0.50},
		{"something_else", "", 0, false, 0.50},
		{"agent_inference", "CRITICAL", 0, false, 0.65 * 1.05},
		{"agent_inference", "", 0, true, 0.65 * 0.85},
		{"user_correction", "CRITICAL", 0, false, 0.95},      // clamped to 0.95
		{"suggestion", "", 0, true, 0.50},                    // clamped to 0.50
	}
	for _, tc := range cases {
		got := InitialConfidence(tc.source, tc.priority, tc.reps, tc.conflicting)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("InitialConfidence(%q, %q, %d, %v) = %v, want %v",
				tc.source, tc.priority, tc.reps, tc.conflicting, got, tc.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		conf     float64
		priority string
		want     string
	}{
		{0.85, "LOW", StatusActive},
		{0.75, "CRITICAL", StatusActive},
		{0.75, "HIGH", StatusActive},
		{0.75, "MEDIUM", StatusActiveLow},
		{0.60, "CRITICAL", StatusNeedsValidation},
		{0.40, "HIGH", StatusArchived},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.conf, tc.priority); got != tc.want {
			t.Errorf("StatusFor(%v, %s) = %s, want %s", tc.conf, tc.priority, got, tc.want)
		}
	}
}

func TestShouldDeprecate(t *testing.T) {
	cases := []struct {
		name string
		node graph.Node
		want bool
	}{
		{"low confidence", graph.Node{Confidence: 0.25}, true},
		{"failures without success", graph.Node{Confidence: 0.8, FailureCount: 3}, true},
		{"failures with success", graph.Node{Confidence: 0.8, FailureCount: 3, SuccessCount: 1}, false},
		{"contradicted twice", graph.Node{Confidence: 0.8, ContradictionCount: 2}, true},
		{"healthy", graph.Node{Confidence: 0.8, SuccessCount: 5}, false},
	}
	for _, tc := range cases {
		if got := ShouldDeprecate(tc.node); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTrackerRecordAndOutcomes(t *testing.T) {
	tr := &Tracker{Path: filepath.Join(t.TempDir(), "experience_state.json")}

	if err := tr.Reset("sess-1"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Record(InjectionRecord{LessonID: "l1", LessonLabel: "Check manifests", ToolName: "Write"}); err != nil {
		t.Fatal(err)
	}
	if err := tr.Record(InjectionRecord{LessonID: "l2", LessonLabel: "Pin versions", ToolName: "Bash"}); err != nil {
		t.Fatal(err)
	}

	st := tr.Load()
	if st.SessionID != "sess-1" || len(st.Injections) != 2 {
		t.Fatalf("state: %+v", st)
	}
	if st.Injections[0].Outcome != "" {
		t.Error("outcome set before detection")
	}
	if st.Injections[0].Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}

	if err := tr.SetOutcomes([]OutcomeEvent{{LessonID: "l1", Outcome: OutcomeSuccess}}); err != nil {
		t.Fatal(err)
	}
	st = tr.Load()
	if st.Injections[0].Outcome != "success" {
		t.Errorf("outcome = %q", st.Injections[0].Outcome)
	}
	if st.Injections[1].Outcome != "" {
		t.Error("untouched record gained an outcome")
	}
}

func TestDetectOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		label    string
		response string
		want     Outcome
	}{
		{
			name:     "confirmation near label",
			label:    "Validate plugin manifests",
			response: "Good catch - I stopped to validate plugin manifests first and it surfaced a stale entry.",
			want:     OutcomeConfirmation,
		},
		{
			name:     "correction near label",
			label:    "Pin dependency versions",
			response: "Actually, you should not pin dependency versions in a library; leave ranges open.",
			want:     OutcomeContradiction,
		},
		{
			name:     "revert near label",
			label:    "Apply the schema change",
			response: "I went ahead to apply the schema change but it broke CI, so I reverted it.",
			want:     OutcomeFailure,
		},
		{
			name:     "no signal defaults to success",
			label:    "Quote shell variables",
			response: "All done; the scripts pass shellcheck now.",
			want:     OutcomeSuccess,
		},
	}
	for _, tc := range cases {
		injections := []InjectionRecord{{LessonID: "l1", LessonLabel: tc.label}}
		got := DetectOutcomes(tc.response, injections)
		if len(got) != 1 {
			t.Fatalf("%s: %d events", tc.name, len(got))
		}
		if got[0].Outcome != tc.want {
			t.Errorf("%s: outcome = %s, want %s", tc.name, got[0].Outcome, tc.want)
		}
	}
}

func TestDetectOutcomesContradictsBlock(t *testing.T) {
	injections := []InjectionRecord{
		{LessonID: "l3", LessonLabel: "Run migrations in order"},
		{LessonID: "l9", LessonLabel: "Unrelated lesson", Outcome: "success"},
	}
	response := `[PROCESS_KNOWLEDGE]
label: Migrations can run in any order with this tool
contradicts: l3
source: user_correction
[/PROCESS_KNOWLEDGE]`

	got := DetectOutcomes(response, injections)
	// The record with a settled outcome is skipped.
	if len(got) != 1 {
		t.Fatalf("%d events, want 1", len(got))
	}
	if got[0].LessonID != "l3" || got[0].Outcome != OutcomeContradiction {
		t.Errorf("got %+v, want l3 contradiction", got[0])
	}
}

func TestCollectUsesCache(t *testing.T) {
	dir := t.TempDir()
	store := graph.NewStore(filepath.Join(dir, "graphs"))
	g := &graph.Graph{Nodes: []graph.Node{
		{ID: "pk1", Label: "Lesson", Type: "finding", Confidence: 0.9,
			ProcessType: "warning", Priority: "HIGH",
			TriggerConditions: &graph.TriggerConditions{ToolNames: []string{"Write"}}},
		{ID: "plain", Label: "Not process knowledge", Type: "concept"},
		{ID: "pk2", Label: "Old lesson", Type: "finding", Confidence: 0.2,
			ProcessType: "warning", Deprecated: true},
	}}
	if err := store.Save("design", g); err != nil {
		t.Fatal(err)
	}

	cache := &SessionCache{Path: filepath.Join(dir, "cache.msgpack")}
	items, err := Collect(store, cache)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Node.ID != "pk1" {
		t.Fatalf("items: %+v", items)
	}

	// Second collect takes the cached path and must agree.
	again, err := Collect(store, cache)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 1 || again[0].Node.ID != "pk1" || again[0].Triad != "design" {
		t.Fatalf("cached items: %+v", again)
	}
}
