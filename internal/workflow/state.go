// Package workflow is the phase state machine and its deployment-time
// validator. Phases advance idea-validation -> design -> implementation,
// then branch to garden-tending or deployment; substantial implementation
// work makes garden-tending mandatory before deployment unless an audited
// emergency bypass is recorded.
package workflow

import (
	"fmt"
	"time"

	"github.com/reliable-agents-ai/triads-sub002/internal/hooklog"
	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
)

// Triads is the closed set of workflow phases.
var Triads = []string{"idea-validation", "design", "implementation", "garden-tending", "deployment"}

func ValidTriad(name string) bool {
	for _, t := range Triads {
		if t == name {
			return true
		}
	}
	return false
}

// transitions is the closed phase graph. The empty phase is the start.
var transitions = map[string][]string{
	"":                {"idea-validation"},
	"idea-validation": {"design"},
	"design":          {"implementation"},
	"implementation":  {"garden-tending", "deployment"},
	"garden-tending":  {"deployment"},
}

func IsValidTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// State is the persisted workflow record.
type State struct {
	SessionID       string         `json:"session_id,omitempty"`
	CompletedTriads []string       `json:"completed_triads"`
	CurrentPhase    string         `json:"current_phase,omitempty"`
	LastTransition  time.Time      `json:"last_transition,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func (s *State) Completed(triad string) bool {
	for _, t := range s.CompletedTriads {
		if t == triad {
			return true
		}
	}
	return false
}

// Store persists the workflow state file: shared-locked reads,
// exclusive-locked load-mutate-save writes.
type Store struct {
	Path string

	now func() time.Time
}

func NewStore(path string) *Store {
	return &Store{Path: path, now: time.Now}
}

func (s *Store) Load() State {
	var st State
	safeio.WithLock(s.Path, false, func() error {
		safeio.ReadJSON(s.Path, &st)
		return nil
	})
	if st.CompletedTriads == nil {
		st.CompletedTriads = []string{}
	}
	return st
}

// MarkCompleted records a finished phase. Idempotent: completing the same
// triad twice neither duplicates the entry nor fails, but the transition
// into a new triad must be legal from the current phase.
func (s *Store) MarkCompleted(triad string, metadata map[string]any) error {
	if !ValidTriad(triad) {
		return fmt.Errorf("unknown triad %q", triad)
	}
	return safeio.WithLock(s.Path, true, func() error {
		var st State
		safeio.ReadJSON(s.Path, &st)
		if st.Completed(triad) {
			return nil
		}
		if !IsValidTransition(st.CurrentPhase, triad) {
			// Out-of-order completion is recorded anyway: sessions may
			// legitimately start mid-flow, and the deployment validator is
			// the gate that matters.
			hooklog.Debugf("out-of-graph transition %q -> %q", st.CurrentPhase, triad)
		}
		st.CompletedTriads = append(st.CompletedTriads, triad)
		st.CurrentPhase = triad
		st.LastTransition = s.now().UTC()
		if metadata != nil {
			if st.Metadata == nil {
				st.Metadata = map[string]any{}
			}
			st.Metadata[triad] = metadata
		}
		return safeio.WriteJSONAtomic(s.Path, st, 2)
	})
}

// SetSession stamps the state with the driving session id.
func (s *Store) SetSession(sessionID string) error {
	return safeio.WithLock(s.Path, true, func() error {
		var st State
		safeio.ReadJSON(s.Path, &st)
		st.SessionID = sessionID
		if st.CompletedTriads == nil {
			st.CompletedTriads = []string{}
		}
		return safeio.WriteJSONAtomic(s.Path, st, 2)
	})
}
