package hooks

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/reliable-agents-ai/triads-sub002/internal/experience"
	"github.com/reliable-agents-ai/triads-sub002/internal/hooklog"
	"github.com/reliable-agents-ai/triads-sub002/internal/workspace"
)

// Cap on items surfaced per injection; more reads as noise.
const maxInjected = 3

func handleSessionStart(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error) {
	if err := rt.Tracker.Reset(in.SessionID); err != nil {
		hooklog.Warnf("tracker reset: %v", err)
	}
	if in.SessionID != "" {
		if err := rt.Workflow.SetSession(in.SessionID); err != nil {
			hooklog.Warnf("workflow session: %v", err)
		}
	}
	if ws != nil {
		if err := rt.Workspaces.AppendSession(ws.ID, workspace.SessionEntry{
			SessionID: in.SessionID,
			Event:     "session_start",
		}); err != nil {
			hooklog.Warnf("session log: %v", err)
		}
	}
	return Output{EventData: map[string]any{"session_id": in.SessionID}}, nil
}

func handleSessionEnd(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error) {
	pausedID, err := rt.Workspaces.AutoPause()
	if err != nil {
		hooklog.Warnf("auto-pause: %v", err)
	}
	if ws != nil {
		if err := rt.Workspaces.AppendSession(ws.ID, workspace.SessionEntry{
			SessionID: in.SessionID,
			Event:     "session_end",
			Detail:    in.Reason,
		}); err != nil {
			hooklog.Warnf("session log: %v", err)
		}
	}
	data := map[string]any{"reason": in.Reason}
	if pausedID != "" {
		data["auto_paused"] = pausedID
	}
	return Output{EventData: data}, nil
}

func handleUserPromptSubmit(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error) {
	return Output{EventData: map[string]any{
		"prompt_chars": len(in.Prompt),
	}}, nil
}

// handlePreToolUse is the experience engine's entry point and the only
// hook allowed to exit 2.
func handlePreToolUse(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error) {
	opts := rt.Config.Options()
	if opts.DisableExperience {
		return Output{EventData: map[string]any{"decision": "disabled"}}, nil
	}

	items, err := experience.Collect(rt.Graphs, rt.Cache)
	if err != nil {
		// No knowledge is a silent pass, not a failed hook.
		hooklog.Warnf("experience collection failed: %v", err)
		return Output{EventData: map[string]any{"decision": "silent", "collect_error": err.Error()}}, nil
	}

	ctx := experience.ToolContext{
		ToolName:  in.ToolName,
		ToolInput: in.ToolInput,
		CWD:       in.CWD,
	}
	ranked := experience.Rank(items, ctx)
	decision := experience.Decide(ranked, ctx, opts)

	switch decision.Mode {
	case experience.ModeBlock:
		rt.recordInjections(decision.Items[:1], in.ToolName)
		return Output{
			Interjection: experience.Interjection(decision),
			EventData: map[string]any{
				"decision":  "block",
				"lesson_id": decision.Top.Node.ID,
				"tool_name": in.ToolName,
				"score":     decision.Top.Score,
			},
		}, nil

	case experience.ModeInject:
		shown := decision.Items
		if len(shown) > maxInjected {
			shown = shown[:maxInjected]
		}
		rt.recordInjections(shown, in.ToolName)
		return Output{
			AdditionalContext: experience.AdditionalContext(shown),
			EventData: map[string]any{
				"decision":  "inject",
				"tool_name": in.ToolName,
				"injected":  len(shown),
			},
		}, nil
	}
	return Output{EventData: map[string]any{"decision": "silent", "tool_name": in.ToolName}}, nil
}

func (rt *Runtime) recordInjections(items []experience.Scored, toolName string) {
	for _, it := range items {
		if err := rt.Tracker.Record(experience.InjectionRecord{
			LessonID:    it.Node.ID,
			LessonLabel: it.Node.Label,
			Triad:       it.Triad,
			ToolName:    toolName,
		}); err != nil {
			hooklog.Warnf("injection not recorded: %v", err)
		}
	}
}

func handlePostToolUse(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error) {
	data := map[string]any{"tool_name": in.ToolName}
	if in.ToolUseID != "" {
		data["tool_use_id"] = in.ToolUseID
	}
	if resp, ok := in.ToolResponse.(map[string]any); ok {
		if _, failed := resp["error"]; failed {
			data["tool_failed"] = true
		}
	}
	return Output{EventData: data}, nil
}

func handlePermissionRequest(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error) {
	return Output{EventData: map[string]any{
		"tool_name":   in.ToolName,
		"tool_use_id": in.ToolUseID,
	}}, nil
}

// handleStop closes the loop: dispatch the assistant's update blocks,
// detect outcomes for this session's injected lessons, and fold those
// outcomes back into lesson confidence.
func handleStop(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error) {
	text := in.Response
	if text == "" && in.TranscriptPath != "" {
		text = lastAssistantText(in.TranscriptPath)
	}
	wsID := ""
	if ws != nil {
		wsID = ws.ID
	}

	sum := rt.Dispatcher.Run(text, wsID)

	state := rt.Tracker.Load()
	outcomes := experience.DetectOutcomes(text, state.Injections)
	if len(outcomes) > 0 {
		if err := rt.Tracker.SetOutcomes(outcomes); err != nil {
			hooklog.Warnf("outcomes not persisted: %v", err)
		}
		rt.applyOutcomes(state.Injections, outcomes)
	}

	return Output{EventData: map[string]any{
		"response_chars": len(text),
		"outcomes":       len(outcomes),
		"graph_updates":  sum.GraphUpdates,
		"handoffs":       sum.Handoffs,
	}}, nil
}

// applyOutcomes folds detected outcomes into each lesson's confidence and
// counters, one graph save per affected triad.
func (rt *Runtime) applyOutcomes(injections []experience.InjectionRecord, outcomes []experience.OutcomeEvent) {
	triadOf := map[string]string{}
	for _, rec := range injections {
		if rec.Triad != "" {
			triadOf[rec.LessonID] = rec.Triad
		}
	}
	byTriad := map[string][]experience.OutcomeEvent{}
	for _, o := range outcomes {
		triad, ok := triadOf[o.LessonID]
		if !ok {
			continue
		}
		byTriad[triad] = append(byTriad[triad], o)
	}

	for triad, triadOutcomes := range byTriad {
		g, err := rt.Graphs.Load(triad)
		if err != nil {
			hooklog.Warnf("confidence update skipped for %s: %v", triad, err)
			continue
		}
		changed := false
		for _, o := range triadOutcomes {
			n, ok := g.Node(o.LessonID)
			if !ok {
				continue
			}
			n.Confidence = experience.ApplyOutcome(n.Confidence, o.Outcome)
			switch o.Outcome {
			case experience.OutcomeSuccess, experience.OutcomeConfirmation:
				n.SuccessCount++
			case experience.OutcomeFailure:
				n.FailureCount++
			case experience.OutcomeContradiction:
				n.ContradictionCount++
			}
			if experience.ShouldDeprecate(*n) {
				n.Deprecated = true
			}
			changed = true
		}
		if !changed {
			continue
		}
		if err := rt.Graphs.Save(triad, g); err != nil {
			hooklog.Warnf("confidence update not saved for %s: %v", triad, err)
		}
	}
}

func handleSubagentStop(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error) {
	// stop_hook_active means this stop was caused by our own stop hook;
	// dispatching again would loop.
	return Output{EventData: map[string]any{
		"stop_hook_active": in.StopHookActive,
	}}, nil
}

func handlePreCompact(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error) {
	return Output{EventData: map[string]any{
		"trigger":             in.Trigger,
		"custom_instructions": in.CustomInstructions != "",
	}}, nil
}

func handleNotification(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error) {
	return Output{EventData: map[string]any{
		"notification_type": in.NotificationType,
	}}, nil
}

// lastAssistantText pulls the final assistant message out of a transcript
// file. The transcript is JSONL; the shapes vary by host version, so this
// reads tolerantly and skips lines it cannot decode.
func lastAssistantText(path string) string {
	f, err := os.Open(path)
	if err != nil {
		hooklog.Debugf("transcript unreadable: %v", err)
		return ""
	}
	defer f.Close()

	var last string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		var line struct {
			Type    string `json:"type"`
			Role    string `json:"role"`
			Content any    `json:"content"`
			Message *struct {
				Role    string `json:"role"`
				Content any    `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			continue
		}
		role, content := line.Role, line.Content
		if line.Message != nil {
			role, content = line.Message.Role, line.Message.Content
		}
		if role != "assistant" && line.Type != "assistant" {
			continue
		}
		if text := contentText(content); text != "" {
			last = text
		}
	}
	return last
}

// contentText flattens a message content field: either a plain string or
// a list of {type:"text", text:"..."} parts.
func contentText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, item := range c {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["type"].(string); t != "" && t != "text" {
				continue
			}
			if text, ok := m["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
