package graph

import (
	"encoding/json"
	"fmt"
	"os"
)

// RepairReport lists every action the auto-repair pass took.
type RepairReport struct {
	Triad         string   `json:"triad"`
	RemovedNodes  []string `json:"removed_nodes,omitempty"`
	RemovedEdges  []string `json:"removed_edges,omitempty"`
	Actions       []string `json:"actions,omitempty"`
	BackupCreated bool     `json:"backup_created"`
}

func (r RepairReport) Changed() bool {
	return len(r.RemovedNodes) > 0 || len(r.RemovedEdges) > 0
}

// Repair walks the raw graph file for triad and removes nodes with malformed
// confidence and edges whose endpoints no longer exist. It operates on the
// raw JSON rather than the typed model so that exactly the damage the typed
// loader would choke on can be excised. The original file is backed up
// before anything is rewritten.
func (s *Store) Repair(triad string) (RepairReport, error) {
	report := RepairReport{Triad: triad}
	path, err := s.Path(triad)
	if err != nil {
		return report, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return report, fmt.Errorf("repair %s graph: %w", triad, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return report, fmt.Errorf("repair %s graph: not valid JSON: %w", triad, err)
	}

	if _, err := s.backup(triad, raw); err != nil {
		return report, fmt.Errorf("repair %s graph: backup: %w", triad, err)
	}
	report.BackupCreated = true

	nodes, _ := doc["nodes"].([]any)
	keptIDs := make(map[string]bool)
	var keptNodes []any
	for _, item := range nodes {
		node, ok := item.(map[string]any)
		if !ok {
			report.Actions = append(report.Actions, "removed non-object node entry")
			continue
		}
		id, _ := node["id"].(string)
		if !confidenceWellFormed(node["confidence"]) {
			report.RemovedNodes = append(report.RemovedNodes, id)
			report.Actions = append(report.Actions, fmt.Sprintf("removed node %q: malformed confidence", id))
			continue
		}
		keptNodes = append(keptNodes, node)
		if id != "" {
			keptIDs[id] = true
		}
	}

	edges, edgeKey := rawEdges(doc)
	var keptEdges []any
	for _, item := range edges {
		edge, ok := item.(map[string]any)
		if !ok {
			report.Actions = append(report.Actions, "removed non-object edge entry")
			continue
		}
		src, _ := edge["source"].(string)
		dst, _ := edge["target"].(string)
		if !keptIDs[src] || !keptIDs[dst] {
			report.RemovedEdges = append(report.RemovedEdges, fmt.Sprintf("%s->%s", src, dst))
			report.Actions = append(report.Actions, fmt.Sprintf("removed edge %s->%s: missing endpoint", src, dst))
			continue
		}
		keptEdges = append(keptEdges, edge)
	}

	if !report.Changed() {
		return report, nil
	}

	doc["nodes"] = nonNil(keptNodes)
	// Canonical form on write: edges, never links.
	delete(doc, edgeKey)
	delete(doc, "links")
	doc["edges"] = nonNil(keptEdges)

	// Round-trip through the typed model so the rewrite follows the same
	// save protocol (validation, _meta refresh) as any other write.
	b, err := json.Marshal(doc)
	if err != nil {
		return report, fmt.Errorf("repair %s graph: %w", triad, err)
	}
	var g Graph
	if err := json.Unmarshal(b, &g); err != nil {
		return report, fmt.Errorf("repair %s graph: %w", triad, err)
	}
	if err := s.Save(triad, &g); err != nil {
		return report, fmt.Errorf("repair %s graph: %w", triad, err)
	}
	return report, nil
}

func confidenceWellFormed(v any) bool {
	switch c := v.(type) {
	case nil:
		return true
	case float64:
		return c >= 0 && c <= 1
	case json.Number:
		f, err := c.Float64()
		return err == nil && f >= 0 && f <= 1
	default:
		return false
	}
}

func rawEdges(doc map[string]any) ([]any, string) {
	if edges, ok := doc["edges"].([]any); ok && len(edges) > 0 {
		return edges, "edges"
	}
	if links, ok := doc["links"].([]any); ok {
		return links, "links"
	}
	edges, _ := doc["edges"].([]any)
	return edges, "edges"
}

func nonNil(items []any) []any {
	if items == nil {
		return []any{}
	}
	return items
}
