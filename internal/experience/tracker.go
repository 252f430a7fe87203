package experience

import (
	"time"

	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
)

// InjectionRecord is one lesson shown to the assistant during this session.
// Outcome stays empty until the stop hook detects one.
type InjectionRecord struct {
	LessonID    string    `json:"lesson_id"`
	LessonLabel string    `json:"lesson_label"`
	Triad       string    `json:"triad,omitempty"`
	ToolName    string    `json:"tool_name"`
	Timestamp   time.Time `json:"timestamp"`
	Outcome     string    `json:"outcome,omitempty"`
}

type TrackerState struct {
	SessionID  string            `json:"session_id,omitempty"`
	Injections []InjectionRecord `json:"injections"`
}

// Tracker persists the session's injection records in a single state file
// (experience_state.json), atomically rewritten under lock on every change.
type Tracker struct {
	Path string
}

func (t *Tracker) Load() TrackerState {
	var st TrackerState
	safeio.ReadJSON(t.Path, &st)
	return st
}

// Record appends one injection under an exclusive lock: concurrent pre-tool
// hooks must not lose each other's records.
func (t *Tracker) Record(rec InjectionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return safeio.WithLock(t.Path, true, func() error {
		var st TrackerState
		safeio.ReadJSON(t.Path, &st)
		st.Injections = append(st.Injections, rec)
		return safeio.WriteJSONAtomic(t.Path, st, 2)
	})
}

// Reset starts a fresh session, dropping prior injections.
func (t *Tracker) Reset(sessionID string) error {
	return safeio.WithLock(t.Path, true, func() error {
		return safeio.WriteJSONAtomic(t.Path, TrackerState{SessionID: sessionID, Injections: []InjectionRecord{}}, 2)
	})
}

// SetOutcomes rewrites the state with detected outcomes filled in.
func (t *Tracker) SetOutcomes(outcomes []OutcomeEvent) error {
	return safeio.WithLock(t.Path, true, func() error {
		var st TrackerState
		safeio.ReadJSON(t.Path, &st)
		byLesson := make(map[string]Outcome, len(outcomes))
		for _, o := range outcomes {
			byLesson[o.LessonID] = o.Outcome
		}
		for i := range st.Injections {
			if o, ok := byLesson[st.Injections[i].LessonID]; ok {
				st.Injections[i].Outcome = string(o)
			}
		}
		return safeio.WriteJSONAtomic(t.Path, st, 2)
	})
}
