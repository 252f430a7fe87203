// Package hooks is the envelope every hook entry point runs in: tolerant
// stdin decode, one active-workspace lookup, the hook's work inside a
// recover, and an execution event on the way out. A hook never crashes the
// host: internal failure logs to stderr, records a failure event, and
// still exits 0. Exit 2 exists only on the pre-tool blocking path.
package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/reliable-agents-ai/triads-sub002/internal/config"
	"github.com/reliable-agents-ai/triads-sub002/internal/events"
	"github.com/reliable-agents-ai/triads-sub002/internal/experience"
	"github.com/reliable-agents-ai/triads-sub002/internal/graph"
	"github.com/reliable-agents-ai/triads-sub002/internal/hooklog"
	"github.com/reliable-agents-ai/triads-sub002/internal/orchestrator"
	"github.com/reliable-agents-ai/triads-sub002/internal/workflow"
	"github.com/reliable-agents-ai/triads-sub002/internal/workspace"
)

// Input is the union of every hook's stdin payload. Events populate only
// their own fields; everything else stays zero.
type Input struct {
	SessionID string         `json:"session_id,omitempty"`
	CWD       string         `json:"cwd,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`

	ToolResponse any `json:"tool_response,omitempty"`

	NotificationType string `json:"notification_type,omitempty"`
	Message          string `json:"message,omitempty"`

	Response       string `json:"response,omitempty"`
	TranscriptPath string `json:"transcript_path,omitempty"`

	Reason             string `json:"reason,omitempty"`
	StopHookActive     bool   `json:"stop_hook_active,omitempty"`
	Trigger            string `json:"trigger,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
	Prompt             string `json:"prompt,omitempty"`
}

// DecodeInput reads stdin tolerantly: missing or malformed JSON is an
// empty input, never an error.
func DecodeInput(r io.Reader) Input {
	var in Input
	if r == nil {
		return in
	}
	b, err := io.ReadAll(io.LimitReader(r, 4<<20))
	if err != nil || len(b) == 0 {
		return in
	}
	if err := json.Unmarshal(b, &in); err != nil {
		hooklog.Debugf("stdin not valid JSON, treating as empty: %v", err)
		return Input{}
	}
	return in
}

// Output is what a handler wants surfaced to the host.
type Output struct {
	AdditionalContext string
	Interjection      string // non-empty means block: stderr + exit 2
	SuppressEvent     bool
	EventData         map[string]any
}

// Runtime bundles the state substrate a hook invocation touches.
type Runtime struct {
	Paths      config.Paths
	Config     *config.Config
	Events     *events.Capture
	Graphs     *graph.Store
	Workspaces *workspace.Manager
	Workflow   *workflow.Store
	Tracker    *experience.Tracker
	Cache      *experience.SessionCache
	Dispatcher *orchestrator.Orchestrator

	Stdout io.Writer
	Stderr io.Writer
}

// NewRuntime wires the substrate from the resolved project layout.
func NewRuntime(stdout, stderr io.Writer) *Runtime {
	paths := config.ResolvePaths()
	cfg := config.Load(paths)
	capture := events.NewCapture(paths.ClaudeDir)
	graphs := graph.NewStore(paths.GraphsDir)
	wf := workflow.NewStore(paths.WorkflowState)
	return &Runtime{
		Paths:      paths,
		Config:     cfg,
		Events:     capture,
		Graphs:     graphs,
		Workspaces: workspace.NewManager(paths.TriadsDir),
		Workflow:   wf,
		Tracker:    &experience.Tracker{Path: paths.ExperienceState},
		Cache:      &experience.SessionCache{Path: paths.SessionCache},
		Dispatcher: &orchestrator.Orchestrator{
			Graphs:        graphs,
			Workflow:      wf,
			Capture:       capture,
			AgentTriads:   cfg.Agents,
			Triads:        cfg.Triads,
			HandoffPath:   paths.PendingHandoff,
			CompletionLog: paths.CompletionLog,
			KMQueuePath:   paths.KMQueue,
		},
		Stdout: stdout,
		Stderr: stderr,
	}
}

type handler func(rt *Runtime, in Input, ws *workspace.Workspace) (Output, error)

// Events the runtime handles, keyed by the host's event name.
var handlers = map[string]handler{
	"SessionStart":      handleSessionStart,
	"SessionEnd":        handleSessionEnd,
	"UserPromptSubmit":  handleUserPromptSubmit,
	"PreToolUse":        handlePreToolUse,
	"PostToolUse":       handlePostToolUse,
	"PermissionRequest": handlePermissionRequest,
	"Stop":              handleStop,
	"SubagentStop":      handleSubagentStop,
	"PreCompact":        handlePreCompact,
	"Notification":      handleNotification,
}

// hookSpecificOutput is the host's stdout envelope.
type hookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

type stdoutEnvelope struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

// Run executes one hook event end to end and returns the process exit
// code. Never panics, never returns non-zero except the blocking path.
func (rt *Runtime) Run(event string, stdin io.Reader) (code int) {
	start := time.Now()
	hookName := event

	defer func() {
		if r := recover(); r != nil {
			hooklog.Errorf("%s panicked: %v", hookName, r)
			rt.Events.CaptureError(hookName, start, fmt.Errorf("panic: %v", r), "")
			code = 0
		}
	}()

	h, ok := handlers[event]
	if !ok {
		rt.Events.CaptureError(hookName, start, fmt.Errorf("unknown hook event %q", event), "")
		return 0
	}

	in := DecodeInput(stdin)

	// One marker resolution per invocation; the workspace travels by value
	// from here.
	ws, err := rt.Workspaces.GetActive()
	if err != nil && !errors.Is(err, workspace.ErrNoActive) {
		hooklog.Debugf("active workspace lookup failed: %v", err)
	}
	wsID := ""
	if ws != nil {
		wsID = ws.ID
	}

	out, err := h(rt, in, ws)
	if err != nil {
		hooklog.Errorf("%s failed: %v", hookName, err)
		rt.Events.CaptureError(hookName, start, err, wsID)
		return 0
	}

	if !out.SuppressEvent {
		data := out.EventData
		if data == nil {
			data = map[string]any{}
		}
		rt.Events.CaptureExecution(hookName, start, data, wsID)
	}

	if out.Interjection != "" {
		fmt.Fprint(rt.Stderr, out.Interjection)
		return 2
	}
	if out.AdditionalContext != "" {
		enc := json.NewEncoder(rt.Stdout)
		if err := enc.Encode(stdoutEnvelope{hookSpecificOutput{
			HookEventName:     event,
			AdditionalContext: out.AdditionalContext,
		}}); err != nil {
			hooklog.Errorf("stdout envelope: %v", err)
		}
	}
	return 0
}
