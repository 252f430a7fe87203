package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "graphs"))
}

func sampleGraph() *Graph {
	return &Graph{
		Nodes: []Node{
			{ID: "n1", Label: "Initial", Type: "concept", Confidence: 0.8},
			{ID: "n2", Label: "Decision", Type: "decision", Confidence: 0.9, Rationale: "simplest thing"},
		},
		Edges: []Edge{{Source: "n1", Target: "n2", Key: "informs"}},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	in := sampleGraph()
	if err := s.Save("design", in); err != nil {
		t.Fatal(err)
	}

	s.Refresh()
	out, err := s.Load("design")
	if err != nil {
		t.Fatal(err)
	}
	// Structural equality modulo _meta.
	out.Meta = nil
	in.Meta = nil
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestSaveRejectsInvalidGraphAndPreservesFile(t *testing.T) {
	s := testStore(t)
	if err := s.Save("design", sampleGraph()); err != nil {
		t.Fatal(err)
	}
	path, _ := s.Path("design")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	bad := &Graph{
		Nodes: []Node{{ID: "n1", Label: "ok", Type: "concept"}},
		Edges: []Edge{{Source: "n1", Target: "ghost"}},
	}
	err = s.Save("design", bad)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if ve.Path != "edges[0].target" {
		t.Errorf("field path = %q", ve.Path)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("failed save mutated the file")
	}
}

func TestLoadIsolatesCallersFromCache(t *testing.T) {
	s := testStore(t)
	if err := s.Save("design", sampleGraph()); err != nil {
		t.Fatal(err)
	}

	first, err := s.Load("design")
	if err != nil {
		t.Fatal(err)
	}
	n, _ := first.Node("n1")
	n.Confidence = 1.5
	if err := s.Save("design", first); err == nil {
		t.Fatal("out-of-range confidence saved")
	}

	// The failed save must not leak the mutation into later loads.
	second, err := s.Load("design")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := second.Node("n1"); got.Confidence != 0.8 {
		t.Errorf("load shows never-persisted confidence %v", got.Confidence)
	}

	// Loads do not share memory with each other either.
	second.Nodes[0].Label = "Mutated"
	third, err := s.Load("design")
	if err != nil {
		t.Fatal(err)
	}
	if third.Nodes[0].Label != "Initial" {
		t.Errorf("loads share node storage: %q", third.Nodes[0].Label)
	}
}

func TestSaveValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		g    *Graph
		path string
	}{
		{"missing label", &Graph{Nodes: []Node{{ID: "a", Type: "concept"}}}, "nodes[0].label"},
		{"unknown type", &Graph{Nodes: []Node{{ID: "a", Label: "A", Type: "sorcery"}}}, "nodes[0].type"},
		{"confidence high", &Graph{Nodes: []Node{{ID: "a", Label: "A", Type: "concept", Confidence: 1.2}}}, "nodes[0].confidence"},
		{"duplicate id", &Graph{Nodes: []Node{
			{ID: "a", Label: "A", Type: "concept"},
			{ID: "a", Label: "B", Type: "concept"},
		}}, "nodes[1].id"},
	}
	s := testStore(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Save("test", tc.g)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if ve.Path != tc.path {
				t.Errorf("path = %q, want %q", ve.Path, tc.path)
			}
		})
	}
}

func TestNodeTypeCaseInsensitive(t *testing.T) {
	s := testStore(t)
	g := &Graph{Nodes: []Node{{ID: "a", Label: "A", Type: "Concept"}}}
	if err := s.Save("test", g); err != nil {
		t.Fatal(err)
	}
	s.Refresh()
	out, err := s.Load("test")
	if err != nil {
		t.Fatal(err)
	}
	if out.Nodes[0].Type != "concept" {
		t.Errorf("type not canonicalized: %q", out.Nodes[0].Type)
	}
}

func TestConcurrentSaves(t *testing.T) {
	s := testStore(t)
	const writers = 3
	const rounds = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				g := &Graph{Nodes: []Node{{
					ID:    fmt.Sprintf("n_%d", w),
					Label: fmt.Sprintf("N_%d", w),
					Type:  "concept",
				}}}
				if err := s.Save("test", g); err != nil {
					t.Errorf("writer %d: %v", w, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	path, _ := s.Path("test")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateBytes(b); err != nil {
		t.Fatalf("final file fails schema: %v", err)
	}
	var g Graph
	if err := json.Unmarshal(b, &g); err != nil {
		t.Fatalf("final file torn: %v", err)
	}
	if err := Validate(&g); err != nil {
		t.Fatalf("final file fails invariants: %v", err)
	}
}

func TestLegacyLinksAndRelationshipAccepted(t *testing.T) {
	s := testStore(t)
	raw := `{
	  "nodes": [
	    {"id": "a", "label": "A", "type": "concept"},
	    {"id": "b", "label": "B", "type": "finding"}
	  ],
	  "links": [{"source": "a", "target": "b", "relationship": "supports"}]
	}`
	path, _ := s.Path("legacy")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := s.Load("legacy")
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Edges) != 1 || g.Edges[0].Key != "supports" {
		t.Errorf("legacy edges: %+v", g.Edges)
	}

	// One canonical form on write.
	if err := s.Save("legacy", g); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(path)
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	if _, hasLinks := doc["links"]; hasLinks {
		t.Error("links survived a save")
	}
	if _, hasEdges := doc["edges"]; !hasEdges {
		t.Error("edges missing after save")
	}
}

func TestBackupRotationAndNoOpSave(t *testing.T) {
	s := testStore(t)
	s.BackupKeep = 3

	g := sampleGraph()
	if err := s.Save("test", g); err != nil {
		t.Fatal(err)
	}

	// Repeated saves of identical content must not create backups.
	for i := 0; i < 3; i++ {
		if err := s.Save("test", sampleGraph()); err != nil {
			t.Fatal(err)
		}
	}
	backups, _ := filepath.Glob(filepath.Join(s.Dir, "backups", "test_graph_*.json.backup"))
	if len(backups) != 0 {
		t.Errorf("no-op saves produced %d backups", len(backups))
	}

	// Real changes back up the prior version, pruned to BackupKeep.
	for i := 0; i < 6; i++ {
		g := sampleGraph()
		g.Nodes[0].Label = fmt.Sprintf("Revision %d", i)
		if err := s.Save("test", g); err != nil {
			t.Fatal(err)
		}
	}
	backups, _ = filepath.Glob(filepath.Join(s.Dir, "backups", "test_graph_*.json.backup"))
	if len(backups) != 3 {
		t.Errorf("kept %d backups, want 3", len(backups))
	}
}

func TestInvalidTriadNames(t *testing.T) {
	s := testStore(t)
	for _, triad := range []string{"../evil", "UPPER", "", ".hidden", "has space"} {
		if _, err := s.Path(triad); err == nil {
			t.Errorf("triad %q accepted", triad)
		}
	}
}

func TestListTriads(t *testing.T) {
	s := testStore(t)
	for _, triad := range []string{"design", "implementation"} {
		if err := s.Save(triad, sampleGraph()); err != nil {
			t.Fatal(err)
		}
	}
	// Files that do not match the naming contract are ignored.
	if err := os.WriteFile(filepath.Join(s.Dir, "NOT-A_graph.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, "readme.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	triads, err := s.ListTriads()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"design", "implementation"}
	if !reflect.DeepEqual(triads, want) {
		t.Errorf("triads = %v, want %v", triads, want)
	}
}

func TestRepair(t *testing.T) {
	s := testStore(t)
	raw := `{
	  "nodes": [
	    {"id": "good", "label": "Good", "type": "concept", "confidence": 0.7},
	    {"id": "bad", "label": "Bad", "type": "concept", "confidence": "high"}
	  ],
	  "edges": [
	    {"source": "good", "target": "bad"},
	    {"source": "good", "target": "missing"},
	    {"source": "good", "target": "good", "key": "self"}
	  ]
	}`
	path, _ := s.Path("broken")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := s.Repair("broken")
	if err != nil {
		t.Fatal(err)
	}
	if !report.BackupCreated {
		t.Error("repair did not back up first")
	}
	if len(report.RemovedNodes) != 1 || report.RemovedNodes[0] != "bad" {
		t.Errorf("removed nodes: %v", report.RemovedNodes)
	}
	if len(report.RemovedEdges) != 2 {
		t.Errorf("removed edges: %v", report.RemovedEdges)
	}

	s.Refresh()
	g, err := s.Load("broken")
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(g); err != nil {
		t.Errorf("repaired graph still invalid: %v", err)
	}
	// The valid self-loop survives: cycles are allowed.
	if len(g.Edges) != 1 || g.Edges[0].Key != "self" {
		t.Errorf("surviving edges: %+v", g.Edges)
	}
}

func TestSearch(t *testing.T) {
	s := testStore(t)
	g := &Graph{Nodes: []Node{
		{ID: "a", Label: "Cache invalidation strategy", Type: "decision", Confidence: 0.9},
		{ID: "b", Label: "Other", Type: "finding", Confidence: 0.95, Content: "uses the cache heavily"},
		{ID: "c", Label: "Cache sizing", Type: "concept", Confidence: 0.3},
	}}
	if err := s.Save("design", g); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Search("design", "CACHE", 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	// Sorted by confidence descending.
	if hits[0].ID != "b" || hits[1].ID != "a" {
		t.Errorf("order: %s, %s", hits[0].ID, hits[1].ID)
	}
}

func TestLoadMissingGraphIsEmpty(t *testing.T) {
	s := testStore(t)
	g, err := s.Load("nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Errorf("expected empty graph, got %+v", g)
	}
}
