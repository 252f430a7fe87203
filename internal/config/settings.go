package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
)

// HookEvents is the full set of host events the runtime handles. All ten
// must be registered; a missing registration is a deployment bug that
// VerifyHooks surfaces.
var HookEvents = []string{
	"SessionStart",
	"SessionEnd",
	"UserPromptSubmit",
	"PreToolUse",
	"PostToolUse",
	"PermissionRequest",
	"Stop",
	"SubagentStop",
	"PreCompact",
	"Notification",
}

// hookCommands maps host events to the hook subcommand handling them.
var hookCommands = map[string]string{
	"SessionStart":      "session-start",
	"SessionEnd":        "session-end",
	"UserPromptSubmit":  "user-prompt-submit",
	"PreToolUse":        "pre-tool-use",
	"PostToolUse":       "post-tool-use",
	"PermissionRequest": "permission-request",
	"Stop":              "stop",
	"SubagentStop":      "subagent-stop",
	"PreCompact":        "pre-compact",
	"Notification":      "notification",
}

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

type hookMatcher struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []hookCommand `json:"hooks"`
}

// InstallHooks merges the ten event registrations into settings.json,
// preserving whatever else the file holds, including hook commands other
// tools registered under the same events. Reinstalling is idempotent.
// binary is the invocation prefix, e.g. "triads hook".
func InstallHooks(settingsPath, binary string) error {
	return safeio.WithLock(settingsPath, true, func() error {
		settings := map[string]any{}
		safeio.ReadJSON(settingsPath, &settings)

		hooks, _ := settings["hooks"].(map[string]any)
		if hooks == nil {
			hooks = map[string]any{}
		}
		for _, event := range HookEvents {
			command := fmt.Sprintf("%s %s", binary, hookCommands[event])
			existing, _ := hooks[event].([]any)
			if matchersHaveCommand(existing, command) {
				continue
			}
			hooks[event] = append(existing, any(hookMatcher{
				Matcher: "*",
				Hooks: []hookCommand{{
					Type:    "command",
					Command: command,
				}},
			}))
		}
		settings["hooks"] = hooks

		if err := os.MkdirAll(filepath.Dir(settingsPath), 0o755); err != nil {
			return err
		}
		return safeio.WriteJSONAtomic(settingsPath, settings, 2)
	})
}

// matchersHaveCommand reports whether any matcher in the decoded list
// already runs command.
func matchersHaveCommand(list []any, command string) bool {
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		cmds, _ := m["hooks"].([]any)
		for _, c := range cmds {
			cm, ok := c.(map[string]any)
			if !ok {
				continue
			}
			if cm["command"] == command {
				return true
			}
		}
	}
	return false
}

// VerifyHooks returns the events settings.json does not register.
func VerifyHooks(settingsPath string) []string {
	var settings struct {
		Hooks map[string]any `json:"hooks"`
	}
	safeio.ReadJSON(settingsPath, &settings)

	var missing []string
	for _, event := range HookEvents {
		if _, ok := settings.Hooks[event]; !ok {
			missing = append(missing, event)
		}
	}
	return missing
}
