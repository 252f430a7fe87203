package orchestrator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reliable-agents-ai/triads-sub002/internal/blocks"
	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
	"github.com/reliable-agents-ai/triads-sub002/internal/hooklog"
	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
)

// Violation is one failed pre-flight check.
type Violation struct {
	Check     string `json:"check"`
	FieldPath string `json:"field_path,omitempty"`
	Message   string `json:"message"`
}

// preflightRule inspects the proposed graph-update batch. Rules are a
// closed set enumerated here, not a DSL.
type preflightRule func(updates []blocks.Block) []Violation

var preflightRules = map[string]preflightRule{
	"required_fields":   checkRequiredFields,
	"confidence_bounds": checkConfidenceBounds,
	"no_deletion":       checkNoDeletion,
	"known_types":       checkKnownTypes,
}

// runPreFlight evaluates the checks each [PRE_FLIGHT_CHECK] block declares
// against the proposed graph updates. Any violation rejects the whole
// update batch; the rejection is recorded as a failure event and queued as
// an open KM issue.
func (o *Orchestrator) runPreFlight(checks, updates []blocks.Block, workspaceID string, res *HandlerResult) (rejected bool) {
	res.Count = len(checks)
	var violations []Violation
	for i, b := range checks {
		names := splitList(b.Field("checks"))
		if len(names) == 0 {
			res.fail(i, "missing checks")
			continue
		}
		ran := 0
		for _, name := range names {
			rule, ok := preflightRules[strings.TrimSpace(name)]
			if !ok {
				res.fail(i, fmt.Sprintf("unknown check %q", name))
				continue
			}
			violations = append(violations, rule(updates)...)
			ran++
		}
		if ran > 0 {
			res.Applied++
		}
	}
	if len(violations) == 0 {
		return false
	}

	if o.Capture != nil {
		o.Capture.Capture("stop", "pre_flight_rejected", map[string]any{
			"violations": violations,
			"updates":    len(updates),
		}, workspaceID)
	}
	o.queueKMIssues(violations, workspaceID)
	return true
}

// KMIssue is one open knowledge-management item awaiting human review.
type KMIssue struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	Check       string    `json:"check"`
	FieldPath   string    `json:"field_path,omitempty"`
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// queueKMIssues appends rejection details to km_queue.json so a human can
// triage what the agents were not allowed to write.
func (o *Orchestrator) queueKMIssues(violations []Violation, workspaceID string) {
	if o.KMQueuePath == "" {
		return
	}
	err := safeio.WithLock(o.KMQueuePath, true, func() error {
		var queue []KMIssue
		safeio.ReadJSON(o.KMQueuePath, &queue)
		now := o.clock().UTC()
		for _, v := range violations {
			queue = append(queue, KMIssue{
				ID:          uuid.NewString(),
				WorkspaceID: workspaceID,
				Check:       v.Check,
				FieldPath:   v.FieldPath,
				Message:     v.Message,
				Status:      "open",
				CreatedAt:   now,
			})
		}
		return safeio.WriteJSONAtomic(o.KMQueuePath, queue, 2)
	})
	if err != nil {
		hooklog.Warnf("km queue not updated: %v", err)
	}
}

func checkRequiredFields(updates []blocks.Block) []Violation {
	var out []Violation
	for i, b := range updates {
		op := b.Field("update_type")
		if op == "" {
			op = "add_node"
		}
		if strings.HasSuffix(op, "_node") && b.Field("node_id") == "" {
			out = append(out, Violation{
				Check:     "required_fields",
				FieldPath: fmt.Sprintf("updates[%d].node_id", i),
				Message:   "missing node_id",
			})
		}
		if strings.HasSuffix(op, "_edge") && (b.Field("source") == "" || b.Field("target") == "") {
			out = append(out, Violation{
				Check:     "required_fields",
				FieldPath: fmt.Sprintf("updates[%d]", i),
				Message:   "edge update missing source or target",
			})
		}
	}
	return out
}

func checkConfidenceBounds(updates []blocks.Block) []Violation {
	var out []Violation
	for i, b := range updates {
		if !b.Has("confidence") {
			continue
		}
		c, err := strconv.ParseFloat(b.Field("confidence"), 64)
		if err != nil || c < 0 || c > 1 {
			out = append(out, Violation{
				Check:     "confidence_bounds",
				FieldPath: fmt.Sprintf("updates[%d].confidence", i),
				Message:   fmt.Sprintf("confidence %q outside [0,1]", b.Field("confidence")),
			})
		}
	}
	return out
}

// checkNoDeletion rejects any operation outside the additive closed set;
// agents never get to remove knowledge through update blocks.
func checkNoDeletion(updates []blocks.Block) []Violation {
	var out []Violation
	for i, b := range updates {
		op := b.Field("update_type")
		if op == "" {
			continue
		}
		if !updateTypes[op] {
			out = append(out, Violation{
				Check:     "no_deletion",
				FieldPath: fmt.Sprintf("updates[%d].update_type", i),
				Message:   fmt.Sprintf("operation %q not permitted", op),
			})
		}
	}
	return out
}

func checkKnownTypes(updates []blocks.Block) []Violation {
	var out []Violation
	for i, b := range updates {
		t := b.Field("type")
		if t == "" {
			continue
		}
		if !graph.ValidNodeType(t) {
			out = append(out, Violation{
				Check:     "known_types",
				FieldPath: fmt.Sprintf("updates[%d].type", i),
				Message:   fmt.Sprintf("unknown node type %q", t),
			})
		}
	}
	return out
}
