package orchestrator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/reliable-agents-ai/triads-sub002/internal/blocks"
	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
)

// updateTypes is the closed set of graph operations agents may request.
var updateTypes = map[string]bool{
	"add_node":    true,
	"update_node": true,
	"add_edge":    true,
	"update_edge": true,
}

type pendingUpdate struct {
	index int
	block blocks.Block
	op    string
}

// runGraphUpdates groups blocks by target triad, applies each triad's
// batch to an in-memory copy, and saves once per triad through the store's
// validate/backup/write/verify protocol. A failed save fails every block
// in that triad's batch; other triads are unaffected.
func (o *Orchestrator) runGraphUpdates(updates []blocks.Block, res *HandlerResult) {
	res.Count = len(updates)
	if len(updates) == 0 {
		return
	}

	byTriad := map[string][]pendingUpdate{}
	var triadOrder []string
	for i, b := range updates {
		op := b.Field("update_type")
		if op == "" {
			op = "add_node"
		}
		if !updateTypes[op] {
			res.fail(i, fmt.Sprintf("unknown update_type %q", op))
			continue
		}
		if strings.HasSuffix(op, "_node") && b.Field("node_id") == "" {
			res.fail(i, "missing node_id")
			continue
		}
		if strings.HasSuffix(op, "_edge") && (b.Field("source") == "" || b.Field("target") == "") {
			res.fail(i, "missing source or target")
			continue
		}
		triad, ok := o.resolveTriad(b)
		if !ok {
			res.fail(i, "unresolved triad: no triad field, agent mapping, or name convention matched")
			continue
		}
		if _, seen := byTriad[triad]; !seen {
			triadOrder = append(triadOrder, triad)
		}
		byTriad[triad] = append(byTriad[triad], pendingUpdate{index: i, block: b, op: op})
	}

	for _, triad := range triadOrder {
		batch := byTriad[triad]
		g, err := o.Graphs.Load(triad)
		if err != nil {
			for _, p := range batch {
				res.fail(p.index, fmt.Sprintf("load graph %s: %v", triad, err))
			}
			continue
		}

		var applied []int
		for _, p := range batch {
			if err := applyUpdate(g, p.op, p.block); err != nil {
				res.fail(p.index, err.Error())
				continue
			}
			applied = append(applied, p.index)
		}
		if len(applied) == 0 {
			continue
		}
		if err := o.Graphs.Save(triad, g); err != nil {
			for _, index := range applied {
				res.fail(index, fmt.Sprintf("save graph %s: %v", triad, err))
			}
			continue
		}
		res.Applied += len(applied)
	}
}

func applyUpdate(g *graph.Graph, op string, b blocks.Block) error {
	switch op {
	case "add_node":
		id := b.Field("node_id")
		if existing, ok := g.Node(id); ok {
			// Re-adding an existing node degrades to an update.
			mergeNodeFields(existing, b)
			return nil
		}
		n := graph.Node{ID: id, Type: "concept", Confidence: 0.7}
		mergeNodeFields(&n, b)
		if n.Label == "" {
			return fmt.Errorf("missing label for new node %s", id)
		}
		g.Nodes = append(g.Nodes, n)
		return nil

	case "update_node":
		id := b.Field("node_id")
		n, ok := g.Node(id)
		if !ok {
			return fmt.Errorf("unknown node %s", id)
		}
		mergeNodeFields(n, b)
		return nil

	case "add_edge":
		source, target := b.Field("source"), b.Field("target")
		if !g.HasNode(source) {
			return fmt.Errorf("edge source %s not in graph", source)
		}
		if !g.HasNode(target) {
			return fmt.Errorf("edge target %s not in graph", target)
		}
		for _, e := range g.Edges {
			if e.Source == source && e.Target == target && e.Key == b.Field("key") {
				return nil
			}
		}
		g.Edges = append(g.Edges, graph.Edge{Source: source, Target: target, Key: b.Field("key")})
		return nil

	case "update_edge":
		source, target := b.Field("source"), b.Field("target")
		for i := range g.Edges {
			if g.Edges[i].Source == source && g.Edges[i].Target == target {
				if key := b.Field("key"); key != "" {
					g.Edges[i].Key = key
				}
				return nil
			}
		}
		return fmt.Errorf("unknown edge %s -> %s", source, target)
	}
	return fmt.Errorf("unknown update_type %q", op)
}

// mergeNodeFields overlays block fields onto a node, touching only the
// keys the block carries.
func mergeNodeFields(n *graph.Node, b blocks.Block) {
	if v := b.Field("label"); v != "" {
		n.Label = v
	}
	if v := b.Field("type"); v != "" {
		n.Type = v
	}
	if v := b.Field("description"); v != "" {
		n.Description = v
	}
	if v := b.Field("content"); v != "" {
		n.Content = v
	}
	if v := b.Field("rationale"); v != "" {
		n.Rationale = v
	}
	if b.Has("confidence") {
		if c, err := strconv.ParseFloat(b.Field("confidence"), 64); err == nil {
			n.Confidence = c
		}
	}
	if v := b.Field("evidence"); v != "" {
		n.Evidence = splitList(v)
	}
	if v := b.Field("alternatives"); v != "" {
		n.Alternatives = splitList(v)
	}
	if v := b.Field("assumptions"); v != "" {
		n.Assumptions = splitList(v)
	}
}

// splitList turns a comma-separated or newline-separated value into a
// trimmed list.
func splitList(v string) []string {
	sep := ","
	if strings.Contains(v, "\n") {
		sep = "\n"
	}
	var out []string
	for _, part := range strings.Split(v, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
