// Package orchestrator is the stop-hook dispatcher: it parses the update
// blocks out of the assistant's final response and routes each kind to its
// store. Handlers are independent; one failing block, or one failing
// handler, never stops the rest of the batch.
package orchestrator

import (
	"strings"
	"time"

	"github.com/reliable-agents-ai/triads-sub002/internal/blocks"
	"github.com/reliable-agents-ai/triads-sub002/internal/events"
	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
	"github.com/reliable-agents-ai/triads-sub002/internal/workflow"
)

// BlockError names one failed block and why.
type BlockError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// HandlerResult summarizes one block kind: how many blocks arrived, how
// many took effect, and the per-block failures.
type HandlerResult struct {
	Count   int          `json:"count"`
	Applied int          `json:"applied"`
	Errors  []BlockError `json:"errors,omitempty"`
}

func (r *HandlerResult) fail(index int, reason string) {
	r.Errors = append(r.Errors, BlockError{Index: index, Reason: reason})
}

// Summary aggregates every handler's result for the execution event.
type Summary struct {
	GraphUpdates     HandlerResult `json:"graph_updates"`
	ProcessKnowledge HandlerResult `json:"process_knowledge"`
	Handoffs         HandlerResult `json:"handoffs"`
	Completions      HandlerResult `json:"completions"`
	PreFlight        HandlerResult `json:"pre_flight"`
}

// Orchestrator wires the stop hook to the state substrate.
type Orchestrator struct {
	Graphs      *graph.Store
	Workflow    *workflow.Store
	Capture     *events.Capture
	AgentTriads map[string]string // agent name -> triad
	Triads      []string          // known triad names for suffix inference

	HandoffPath   string // .pending_handoff.json
	CompletionLog string // workflow_completions.jsonl
	KMQueuePath   string // km_queue.json

	now func() time.Time
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// Run parses the response text and dispatches every recognized block.
// The returned summary is also captured as one orchestration event.
func (o *Orchestrator) Run(responseText, workspaceID string) Summary {
	all := blocks.Parse(responseText)

	var sum Summary
	rejected := o.runPreFlight(blocks.ByTag(all, blocks.TagPreFlightCheck),
		blocks.ByTag(all, blocks.TagGraphUpdate), workspaceID, &sum.PreFlight)
	if rejected {
		updates := blocks.ByTag(all, blocks.TagGraphUpdate)
		sum.GraphUpdates.Count = len(updates)
		for i := range updates {
			sum.GraphUpdates.fail(i, "batch rejected by pre-flight check")
		}
	} else {
		o.runGraphUpdates(blocks.ByTag(all, blocks.TagGraphUpdate), &sum.GraphUpdates)
	}
	o.runProcessKnowledge(blocks.ByTag(all, blocks.TagProcessKnowledge), &sum.ProcessKnowledge)
	o.runHandoffs(blocks.ByTag(all, blocks.TagHandoffRequest), workspaceID, &sum.Handoffs)
	o.runCompletions(blocks.ByTag(all, blocks.TagWorkflowComplete), workspaceID, &sum.Completions)

	if o.Capture != nil && len(all) > 0 {
		o.Capture.Capture("stop", "orchestration_completed", map[string]any{
			"blocks_total":      len(all),
			"graph_updates":     sum.GraphUpdates,
			"process_knowledge": sum.ProcessKnowledge,
			"handoffs":          sum.Handoffs,
			"completions":       sum.Completions,
			"pre_flight":        sum.PreFlight,
		}, workspaceID)
	}
	return sum
}

// resolveTriad picks the target graph for a block: an explicit triad field
// wins, then the configured agent mapping, then the convention that agent
// names carry their triad as a hyphenated prefix or suffix segment.
func (o *Orchestrator) resolveTriad(b blocks.Block) (string, bool) {
	if triad := b.Field("triad"); triad != "" {
		return triad, true
	}
	agent := b.Field("agent")
	if agent == "" {
		return "", false
	}
	if triad, ok := o.AgentTriads[agent]; ok {
		return triad, true
	}
	for _, triad := range o.Triads {
		if agent == triad ||
			strings.HasPrefix(agent, triad+"-") ||
			strings.HasSuffix(agent, "-"+triad) {
			return triad, true
		}
	}
	return "", false
}
