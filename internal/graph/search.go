package graph

import (
	"sort"
	"strings"
)

// Search returns nodes whose label (preferred) or content/description
// contains query, case-insensitively, with confidence at or above
// minConfidence. Results sort by confidence descending.
func (s *Store) Search(triad, query string, minConfidence float64) ([]Node, error) {
	g, err := s.Load(triad)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	var hits []Node
	for _, n := range g.Nodes {
		if n.Confidence < minConfidence {
			continue
		}
		if needle != "" && !matchesNode(n, needle) {
			continue
		}
		hits = append(hits, n)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Confidence > hits[j].Confidence })
	return hits, nil
}

func matchesNode(n Node, needle string) bool {
	if strings.Contains(strings.ToLower(n.Label), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(n.Content), needle) {
		return true
	}
	return strings.Contains(strings.ToLower(n.Description), needle)
}
