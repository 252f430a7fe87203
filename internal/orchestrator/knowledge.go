package orchestrator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/reliable-agents-ai/triads-sub002/internal/blocks"
	"github.com/reliable-agents-ai/triads-sub002/internal/experience"
	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
)

// runProcessKnowledge upserts one lesson node per block. New lessons get
// their confidence from provenance; a block citing contradicts applies the
// contradiction update to the cited lesson in the same graph.
func (o *Orchestrator) runProcessKnowledge(pks []blocks.Block, res *HandlerResult) {
	res.Count = len(pks)
	for i, b := range pks {
		if err := o.applyProcessKnowledge(b); err != nil {
			res.fail(i, err.Error())
			continue
		}
		res.Applied++
	}
}

func (o *Orchestrator) applyProcessKnowledge(b blocks.Block) error {
	label := b.Field("label")
	if label == "" {
		return fmt.Errorf("missing label")
	}
	triad, ok := o.resolveTriad(b)
	if !ok {
		return fmt.Errorf("unresolved triad: no triad field, agent mapping, or name convention matched")
	}

	g, err := o.Graphs.Load(triad)
	if err != nil {
		return fmt.Errorf("load graph %s: %w", triad, err)
	}

	source := b.Field("source")
	if source == "" {
		source = "process_knowledge_block"
	}
	priority := strings.ToUpper(b.Field("priority"))
	if priority == "" {
		priority = "MEDIUM"
	}
	processType := b.Field("process_type")
	if processType == "" {
		processType = "pattern"
	}
	repetitions := 0
	if b.Has("repetitions") {
		repetitions, _ = strconv.Atoi(b.Field("repetitions"))
	}
	conflicting := b.Field("conflicting_evidence") == "true"

	id := lessonID(label)
	if n, exists := g.Node(id); exists {
		if v := b.Field("description"); v != "" {
			n.Description = v
		}
		if v := b.Field("content"); v != "" {
			n.Content = v
		}
		n.Priority = priority
		n.TriggerConditions = triggerConditions(b, n.TriggerConditions)
	} else {
		conf := experience.InitialConfidence(source, priority, repetitions, conflicting)
		node := graph.Node{
			ID:                id,
			Label:             label,
			Type:              "finding",
			Confidence:        conf,
			Description:       b.Field("description"),
			Content:           b.Field("content"),
			ProcessType:       processType,
			Priority:          priority,
			Source:            source,
			NeedsValidation:   experience.StatusFor(conf, priority) == experience.StatusNeedsValidation,
			TriggerConditions: triggerConditions(b, nil),
		}
		g.Nodes = append(g.Nodes, node)
	}

	if cited := b.Field("contradicts"); cited != "" {
		if target, exists := g.Node(cited); exists {
			target.Confidence = experience.ApplyOutcome(target.Confidence, experience.OutcomeContradiction)
			target.ContradictionCount++
			if experience.ShouldDeprecate(*target) {
				target.Deprecated = true
			}
		}
	}

	return o.Graphs.Save(triad, g)
}

// lessonID derives a stable node id from the label so the same lesson
// restated later updates instead of duplicating.
func lessonID(label string) string {
	var sb strings.Builder
	sb.WriteString("pk_")
	lastUnderscore := false
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				sb.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	id := strings.TrimSuffix(sb.String(), "_")
	if len(id) > 64 {
		id = strings.TrimSuffix(id[:64], "_")
	}
	return id
}

func triggerConditions(b blocks.Block, existing *graph.TriggerConditions) *graph.TriggerConditions {
	tc := existing
	if tc == nil {
		tc = &graph.TriggerConditions{}
	}
	set := func(field string, dst *[]string) {
		if b.Has(field) {
			*dst = splitList(b.Field(field))
		}
	}
	set("tool_names", &tc.ToolNames)
	set("file_patterns", &tc.FilePatterns)
	set("action_keywords", &tc.ActionKeywords)
	set("context_keywords", &tc.ContextKeywords)
	if existing == nil &&
		tc.ToolNames == nil && tc.FilePatterns == nil &&
		tc.ActionKeywords == nil && tc.ContextKeywords == nil {
		return nil
	}
	return tc
}
