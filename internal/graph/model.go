// Package graph holds the per-triad knowledge graphs: the data model, schema
// validation, and a file store with the save protocol the stop hook depends
// on (validate, backup, atomic write, restore on failure). One graph file per
// triad; the stop hook writes, everything else reads.
package graph

import (
	"encoding/json"
	"strings"
	"time"
)

// NodeTypes is the closed set of node types, matched case-insensitively.
var NodeTypes = []string{"concept", "decision", "entity", "finding", "task", "workflow", "uncertainty"}

func ValidNodeType(t string) bool {
	t = strings.ToLower(strings.TrimSpace(t))
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Process-knowledge classification values.
var (
	ProcessTypes = []string{"checklist", "pattern", "warning", "requirement"}
	Priorities   = []string{"CRITICAL", "HIGH", "MEDIUM", "LOW"}
)

type TriggerConditions struct {
	ToolNames       []string `json:"tool_names,omitempty"`
	FilePatterns    []string `json:"file_patterns,omitempty"`
	ActionKeywords  []string `json:"action_keywords,omitempty"`
	ContextKeywords []string `json:"context_keywords,omitempty"`
}

type Node struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Confidence  float64  `json:"confidence,omitempty"`
	Content     string   `json:"content,omitempty"`
	Description string   `json:"description,omitempty"`
	Evidence    []string `json:"evidence,omitempty"`

	// Decision-node properties.
	Alternatives []string `json:"alternatives,omitempty"`
	Rationale    string   `json:"rationale,omitempty"`
	Assumptions  []string `json:"assumptions,omitempty"`

	// Process-knowledge properties, used by the experience engine.
	ProcessType        string             `json:"process_type,omitempty"`
	Priority           string             `json:"priority,omitempty"`
	TriggerConditions  *TriggerConditions `json:"trigger_conditions,omitempty"`
	NeedsValidation    bool               `json:"needs_validation,omitempty"`
	Deprecated         bool               `json:"deprecated,omitempty"`
	Source             string             `json:"source,omitempty"`
	SuccessCount       int                `json:"success_count,omitempty"`
	FailureCount       int                `json:"failure_count,omitempty"`
	ContradictionCount int                `json:"contradiction_count,omitempty"`
}

func (n Node) IsProcessKnowledge() bool { return n.ProcessType != "" }

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func (tc *TriggerConditions) clone() *TriggerConditions {
	if tc == nil {
		return nil
	}
	return &TriggerConditions{
		ToolNames:       cloneStrings(tc.ToolNames),
		FilePatterns:    cloneStrings(tc.FilePatterns),
		ActionKeywords:  cloneStrings(tc.ActionKeywords),
		ContextKeywords: cloneStrings(tc.ContextKeywords),
	}
}

func (n Node) clone() Node {
	n.Evidence = cloneStrings(n.Evidence)
	n.Alternatives = cloneStrings(n.Alternatives)
	n.Assumptions = cloneStrings(n.Assumptions)
	n.TriggerConditions = n.TriggerConditions.clone()
	return n
}

// Edge is one directed relation. The graph is a multigraph and may be
// cyclic; edges are relations, not ownership.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Key    string `json:"key,omitempty"`
}

// UnmarshalJSON accepts the legacy "relationship" field as an alias for key.
func (e *Edge) UnmarshalJSON(b []byte) error {
	type plain Edge
	var raw struct {
		plain
		Relationship string `json:"relationship"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = Edge(raw.plain)
	if e.Key == "" {
		e.Key = raw.Relationship
	}
	return nil
}

type Meta struct {
	UpdatedAt time.Time `json:"updated_at"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Meta  *Meta  `json:"_meta,omitempty"`
}

// UnmarshalJSON accepts graphs stored with the legacy "links" key. Writes
// always use the canonical "edges" form.
func (g *Graph) UnmarshalJSON(b []byte) error {
	type plain Graph
	var raw struct {
		plain
		Links []Edge `json:"links"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*g = Graph(raw.plain)
	if len(g.Edges) == 0 && len(raw.Links) > 0 {
		g.Edges = raw.Links
	}
	return nil
}

// Clone deep-copies the graph. Callers of Store.Load receive clones, so
// mutating a loaded graph can never alter what a later Load observes.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	out := &Graph{}
	if g.Nodes != nil {
		out.Nodes = make([]Node, len(g.Nodes))
		for i := range g.Nodes {
			out.Nodes[i] = g.Nodes[i].clone()
		}
	}
	if g.Edges != nil {
		out.Edges = make([]Edge, len(g.Edges))
		copy(out.Edges, g.Edges)
	}
	if g.Meta != nil {
		m := *g.Meta
		out.Meta = &m
	}
	return out
}

func (g *Graph) Node(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

func (g *Graph) HasNode(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// Touch refreshes _meta before a save.
func (g *Graph) Touch(now time.Time) {
	g.Meta = &Meta{
		UpdatedAt: now.UTC(),
		NodeCount: len(g.Nodes),
		EdgeCount: len(g.Edges),
	}
}
