// Package config resolves the on-disk layout and the operator-facing
// settings: project paths, the triads.yaml project file, the environment
// knobs, and the host's hook registry in settings.json.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/reliable-agents-ai/triads-sub002/internal/experience"
	"github.com/reliable-agents-ai/triads-sub002/internal/hooklog"
)

// Environment knobs. All are read at hook startup, never cached across
// invocations.
const (
	EnvProjectDir        = "CLAUDE_PROJECT_DIR"
	EnvDisableBlock      = "TRIADS_DISABLE_BLOCK"
	EnvDisableExperience = "TRIADS_DISABLE_EXPERIENCE"
	EnvBlockThreshold    = "TRIADS_BLOCK_THRESHOLD"
	EnvDebug             = "TRIADS_DEBUG"
)

// Paths is the fixed state layout rooted at the project directory.
type Paths struct {
	ProjectDir string
	ClaudeDir  string // <project>/.claude
	TriadsDir  string // <project>/.triads

	Settings        string
	ProjectConfig   string // triads.yaml
	Events          string
	WorkflowState   string
	WorkflowAudit   string
	PendingHandoff  string
	KMQueue         string
	ExperienceState string
	CompletionLog   string
	SessionCache    string
	GraphsDir       string
}

// ResolvePaths roots everything at CLAUDE_PROJECT_DIR, falling back to
// the working directory.
func ResolvePaths() Paths {
	project := os.Getenv(EnvProjectDir)
	if project == "" {
		if wd, err := os.Getwd(); err == nil {
			project = wd
		} else {
			project = "."
		}
	}
	claude := filepath.Join(project, ".claude")
	return Paths{
		ProjectDir: project,
		ClaudeDir:  claude,
		TriadsDir:  filepath.Join(project, ".triads"),

		Settings:        filepath.Join(claude, "settings.json"),
		ProjectConfig:   filepath.Join(claude, "triads.yaml"),
		Events:          filepath.Join(claude, "events.jsonl"),
		WorkflowState:   filepath.Join(claude, "workflow_state.json"),
		WorkflowAudit:   filepath.Join(claude, "workflow_audit.log"),
		PendingHandoff:  filepath.Join(claude, ".pending_handoff.json"),
		KMQueue:         filepath.Join(claude, "km_queue.json"),
		ExperienceState: filepath.Join(claude, "experience_state.json"),
		CompletionLog:   filepath.Join(claude, "workflow_completions.jsonl"),
		SessionCache:    filepath.Join(claude, ".experience_cache.msgpack"),
		GraphsDir:       filepath.Join(claude, "graphs"),
	}
}

// Config is the per-project triads.yaml.
type Config struct {
	// Agents maps agent names to the triad whose graph they write.
	Agents map[string]string `yaml:"agents"`
	// Triads lists the known triad names; defaults to the workflow phases.
	Triads []string `yaml:"triads"`
	// RiskyCommands extends the built-in risky command prefixes for the
	// blocking decision.
	RiskyCommands []string `yaml:"risky_commands"`
	// BlockThreshold overrides the confidence a CRITICAL lesson needs to
	// block; the environment knob beats this.
	BlockThreshold float64 `yaml:"block_threshold"`
}

var defaultTriads = []string{"idea-validation", "design", "implementation", "garden-tending", "deployment"}

// Load reads triads.yaml, tolerating a missing or malformed file: a hook
// must run with defaults rather than fail over configuration.
func Load(paths Paths) *Config {
	cfg := &Config{}
	b, err := os.ReadFile(paths.ProjectConfig)
	if err == nil {
		if err := yaml.Unmarshal(b, cfg); err != nil {
			hooklog.Warnf("triads.yaml unreadable, using defaults: %v", err)
			cfg = &Config{}
		}
	}
	if len(cfg.Triads) == 0 {
		cfg.Triads = defaultTriads
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]string{}
	}
	return cfg
}

// Options merges file configuration with the environment knobs into the
// experience engine's decision options. Environment wins.
func (c *Config) Options() experience.Options {
	opts := experience.Options{
		DisableBlock:      envBool(EnvDisableBlock),
		DisableExperience: envBool(EnvDisableExperience),
		BlockThreshold:    c.BlockThreshold,
		RiskyCommands:     c.RiskyCommands,
	}
	if raw := os.Getenv(EnvBlockThreshold); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 && v <= 1 {
			opts.BlockThreshold = v
		} else {
			hooklog.Warnf("ignoring %s=%q", EnvBlockThreshold, raw)
		}
	}
	return opts
}

func envBool(name string) bool {
	switch os.Getenv(name) {
	case "", "0", "false", "no":
		return false
	}
	return true
}
