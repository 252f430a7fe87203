package orchestrator

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/reliable-agents-ai/triads-sub002/internal/blocks"
	"github.com/reliable-agents-ai/triads-sub002/internal/hooklog"
	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
	"github.com/reliable-agents-ai/triads-sub002/internal/workflow"
)

const defaultHandoffExpiryHours = 24

// Handoff is the pending-handoff file contents. Last writer wins: a
// newer handoff request replaces an unconsumed older one.
type Handoff struct {
	NextTriad      string    `json:"next_triad"`
	RequestType    string    `json:"request_type,omitempty"`
	Context        string    `json:"context,omitempty"`
	KnowledgeGraph string    `json:"knowledge_graph,omitempty"`
	UpdatedNodes   []string  `json:"updated_nodes,omitempty"`
	WorkspaceID    string    `json:"workspace_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"`
	ExpiryHours    int       `json:"expiry_hours"`
}

func (o *Orchestrator) runHandoffs(reqs []blocks.Block, workspaceID string, res *HandlerResult) {
	res.Count = len(reqs)
	for i, b := range reqs {
		next := b.Field("next_triad")
		if next == "" {
			res.fail(i, "missing next_triad")
			continue
		}
		h := Handoff{
			NextTriad:      next,
			RequestType:    b.Field("request_type"),
			Context:        b.Field("context"),
			KnowledgeGraph: b.Field("knowledge_graph"),
			UpdatedNodes:   splitList(b.Field("updated_nodes")),
			WorkspaceID:    workspaceID,
			Timestamp:      o.clock().UTC(),
			Status:         "pending",
			ExpiryHours:    defaultHandoffExpiryHours,
		}
		if b.Has("expiry_hours") {
			if hours, err := strconv.Atoi(b.Field("expiry_hours")); err == nil && hours > 0 {
				h.ExpiryHours = hours
			}
		}
		if err := safeio.WriteJSONAtomic(o.HandoffPath, h, 2); err != nil {
			res.fail(i, fmt.Sprintf("write handoff: %v", err))
			continue
		}
		res.Applied++
	}
}

// completionRecord is one line of the completion log.
type completionRecord struct {
	Triad       string    `json:"triad"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// runCompletions logs each completed triad, advances the workflow state,
// and clears any pending handoff: a completed workflow supersedes it.
func (o *Orchestrator) runCompletions(comps []blocks.Block, workspaceID string, res *HandlerResult) {
	res.Count = len(comps)
	for i, b := range comps {
		triad := b.Field("triad")
		if triad == "" {
			res.fail(i, "missing triad")
			continue
		}
		rec := completionRecord{
			Triad:       triad,
			WorkspaceID: workspaceID,
			Summary:     b.Field("summary"),
			Timestamp:   o.clock().UTC(),
		}
		line, err := safeio.EncodeJSON(rec, 0)
		if err != nil {
			res.fail(i, err.Error())
			continue
		}
		if err := safeio.AppendLine(o.CompletionLog, string(line)); err != nil {
			res.fail(i, fmt.Sprintf("append completion log: %v", err))
			continue
		}
		if o.Workflow != nil && workflow.ValidTriad(triad) {
			if err := o.Workflow.MarkCompleted(triad, map[string]any{"workspace_id": workspaceID}); err != nil {
				hooklog.Warnf("workflow state not advanced for %s: %v", triad, err)
			}
		}
		if err := os.Remove(o.HandoffPath); err != nil && !os.IsNotExist(err) {
			hooklog.Warnf("pending handoff not removed: %v", err)
		}
		res.Applied++
	}
}
