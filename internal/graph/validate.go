package graph

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError names the offending field path so callers can report which
// part of a graph update was rejected.
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("graph validation: %s: %s", e.Path, e.Msg)
}

// Validate enforces the structural invariants: node identity fields present,
// confidence in [0,1], type within the closed set, unique node ids, and
// referential integrity of every edge.
func Validate(g *Graph) error {
	if g == nil {
		return &ValidationError{Path: "", Msg: "graph is nil"}
	}
	seen := make(map[string]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		at := fmt.Sprintf("nodes[%d]", i)
		if strings.TrimSpace(n.ID) == "" {
			return &ValidationError{Path: at + ".id", Msg: "required"}
		}
		if strings.TrimSpace(n.Label) == "" {
			return &ValidationError{Path: at + ".label", Msg: "required"}
		}
		if !ValidNodeType(n.Type) {
			return &ValidationError{Path: at + ".type", Msg: fmt.Sprintf("unknown type %q", n.Type)}
		}
		if math.IsNaN(n.Confidence) || n.Confidence < 0 || n.Confidence > 1 {
			return &ValidationError{Path: at + ".confidence", Msg: fmt.Sprintf("out of range: %v", n.Confidence)}
		}
		if seen[n.ID] {
			return &ValidationError{Path: at + ".id", Msg: fmt.Sprintf("duplicate id %q", n.ID)}
		}
		seen[n.ID] = true
	}
	for i, e := range g.Edges {
		at := fmt.Sprintf("edges[%d]", i)
		if strings.TrimSpace(e.Source) == "" {
			return &ValidationError{Path: at + ".source", Msg: "required"}
		}
		if strings.TrimSpace(e.Target) == "" {
			return &ValidationError{Path: at + ".target", Msg: "required"}
		}
		if !seen[e.Source] {
			return &ValidationError{Path: at + ".source", Msg: fmt.Sprintf("unknown node %q", e.Source)}
		}
		if !seen[e.Target] {
			return &ValidationError{Path: at + ".target", Msg: fmt.Sprintf("unknown node %q", e.Target)}
		}
	}
	return nil
}

// Normalize canonicalizes case-insensitive fields before a save and forces
// nil slices to empty so the serialized form always carries arrays.
func Normalize(g *Graph) {
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	for i := range g.Nodes {
		g.Nodes[i].Type = strings.ToLower(strings.TrimSpace(g.Nodes[i].Type))
		if p := strings.ToUpper(strings.TrimSpace(g.Nodes[i].Priority)); p != "" {
			g.Nodes[i].Priority = p
		}
	}
}
