// Package workspace manages the ephemeral per-task workspaces and the
// single active-workspace marker. A workspace is a directory holding the
// task brief, lifecycle state, per-triad scratchpads and a session log;
// the marker is a symlink (text file where symlinks are unavailable)
// resolved at most once per hook invocation.
package workspace

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
)

// Workspace lifecycle statuses.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// State is the mutable lifecycle record, stored as state.json.
type State struct {
	Status          string    `json:"status"`
	CurrentTriad    string    `json:"current_triad,omitempty"`
	CompletedTriads []string  `json:"completed_triads"`
	PauseReason     string    `json:"pause_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Workspace struct {
	ID    string         `json:"workspace_id"`
	Dir   string         `json:"-"`
	State State          `json:"state"`
	Brief map[string]any `json:"brief,omitempty"`
}

// SessionEntry is one line of sessions.jsonl.
type SessionEntry struct {
	SessionID string    `json:"session_id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// ErrActiveConflict reports a lost activation race: another workspace
// claimed the marker first and keeps it.
type ErrActiveConflict struct {
	Requested string
	Active    string
}

func (e *ErrActiveConflict) Error() string {
	return fmt.Sprintf("workspace %s is already active (requested %s)", e.Active, e.Requested)
}

// ErrNoActive is returned by GetActive when no marker exists.
var ErrNoActive = errors.New("no active workspace")

// Manager owns the workspaces directory and the .active marker beside it.
type Manager struct {
	Dir    string // <triads>/workspaces
	Marker string // <triads>/.active

	now func() time.Time
}

func NewManager(triadsDir string) *Manager {
	return &Manager{
		Dir:    filepath.Join(triadsDir, "workspaces"),
		Marker: filepath.Join(triadsDir, ".active"),
		now:    time.Now,
	}
}

// Create materializes a new workspace directory named
// workspace-<yyyymmdd>-<hhmmss>-<slug> with brief, state and metadata
// files, and claims the active marker if nobody holds it. Losing the
// activation race is not an error for Create: the workspace still exists,
// just not as the active one.
func (m *Manager) Create(slug string, brief map[string]any) (*Workspace, error) {
	now := m.now().UTC()
	id := fmt.Sprintf("workspace-%s-%s", now.Format("20060102-150405"), sanitizeSlug(slug))
	dir := filepath.Join(m.Dir, id)
	if err := os.MkdirAll(filepath.Join(dir, "scratchpad"), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", id, err)
	}

	ws := &Workspace{
		ID:    id,
		Dir:   dir,
		Brief: brief,
		State: State{
			Status:          StatusActive,
			CompletedTriads: []string{},
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}
	if err := safeio.WriteJSONAtomic(filepath.Join(dir, "brief.json"), brief, 2); err != nil {
		return nil, fmt.Errorf("write brief: %w", err)
	}
	if err := safeio.WriteJSONAtomic(filepath.Join(dir, "state.json"), ws.State, 2); err != nil {
		return nil, fmt.Errorf("write state: %w", err)
	}
	meta := map[string]any{"workspace_id": id, "created_at": now}
	if err := safeio.WriteJSONAtomic(filepath.Join(dir, "metadata.json"), meta, 2); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	if err := m.SetActive(id); err != nil {
		var conflict *ErrActiveConflict
		if !errors.As(err, &conflict) {
			return nil, err
		}
	}
	return ws, nil
}

// Load reads a workspace by id. Missing state means the directory is not
// a workspace.
func (m *Manager) Load(id string) (*Workspace, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	dir := filepath.Join(m.Dir, id)
	ws := &Workspace{ID: id, Dir: dir}
	if !safeio.ReadJSON(filepath.Join(dir, "state.json"), &ws.State) {
		return nil, fmt.Errorf("workspace %s: no readable state", id)
	}
	safeio.ReadJSON(filepath.Join(dir, "brief.json"), &ws.Brief)
	return ws, nil
}

// List returns workspace ids, newest first (the date-time prefix makes the
// lexical order chronological).
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "workspace-") {
			ids = append(ids, e.Name())
		}
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, nil
}

// SetActive claims the marker for id, first writer wins. If another
// workspace already holds it, the existing claim stands and an
// *ErrActiveConflict names it. Activating the current holder is a no-op.
func (m *Manager) SetActive(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.Marker), 0o755); err != nil {
		return err
	}
	target := filepath.Join("workspaces", id)
	err := os.Symlink(target, m.Marker)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrExist) {
		current, cerr := m.activeID()
		if cerr == nil && current == id {
			return nil
		}
		if cerr == nil {
			return &ErrActiveConflict{Requested: id, Active: current}
		}
		return fmt.Errorf("active marker unreadable: %w", cerr)
	}
	// Symlinks unavailable (some filesystems, Windows without privilege):
	// fall back to an exclusively-created text marker holding the id.
	f, ferr := os.OpenFile(m.Marker, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if ferr != nil {
		if errors.Is(ferr, os.ErrExist) {
			current, cerr := m.activeID()
			if cerr == nil && current == id {
				return nil
			}
			if cerr == nil {
				return &ErrActiveConflict{Requested: id, Active: current}
			}
		}
		return fmt.Errorf("claim active marker: %w", ferr)
	}
	_, werr := f.WriteString(id + "\n")
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

// ForceActive reassigns the marker regardless of the current holder.
// Operator command, not hook behavior.
func (m *Manager) ForceActive(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if _, err := m.Load(id); err != nil {
		return err
	}
	if err := m.ClearActive(); err != nil {
		return err
	}
	return m.SetActive(id)
}

// ClearActive removes the marker. Missing marker is fine.
func (m *Manager) ClearActive() error {
	if err := os.Remove(m.Marker); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GetActive resolves the marker and loads that workspace. Callers resolve
// once per hook invocation and pass the result down explicitly.
func (m *Manager) GetActive() (*Workspace, error) {
	id, err := m.activeID()
	if err != nil {
		return nil, err
	}
	return m.Load(id)
}

func (m *Manager) activeID() (string, error) {
	if target, err := os.Readlink(m.Marker); err == nil {
		return filepath.Base(target), nil
	}
	b, err := os.ReadFile(m.Marker)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoActive
		}
		return "", err
	}
	id := strings.TrimSpace(string(b))
	if id == "" {
		return "", ErrNoActive
	}
	return filepath.Base(id), nil
}

// MarkPaused sets status paused with a reason. The marker is kept so the
// next session can resume the workspace.
func (m *Manager) MarkPaused(id, reason string) error {
	return m.updateState(id, func(s *State) {
		s.Status = StatusPaused
		s.PauseReason = reason
	})
}

// MarkCompleted sets status completed and releases the marker if this
// workspace holds it.
func (m *Manager) MarkCompleted(id string) error {
	if err := m.updateState(id, func(s *State) {
		s.Status = StatusCompleted
		s.PauseReason = ""
	}); err != nil {
		return err
	}
	if current, err := m.activeID(); err == nil && current == id {
		return m.ClearActive()
	}
	return nil
}

// SetCurrentTriad records the triad now driving the workspace; the
// previous one joins completed_triads.
func (m *Manager) SetCurrentTriad(id, triad string) error {
	return m.updateState(id, func(s *State) {
		prev := s.CurrentTriad
		if prev != "" && prev != triad {
			seen := false
			for _, done := range s.CompletedTriads {
				if done == prev {
					seen = true
					break
				}
			}
			if !seen {
				s.CompletedTriads = append(s.CompletedTriads, prev)
			}
		}
		s.CurrentTriad = triad
	})
}

func (m *Manager) updateState(id string, mutate func(*State)) error {
	if err := validateID(id); err != nil {
		return err
	}
	path := filepath.Join(m.Dir, id, "state.json")
	return safeio.WithLock(path, true, func() error {
		var st State
		if !safeio.ReadJSON(path, &st) {
			return fmt.Errorf("workspace %s: no readable state", id)
		}
		mutate(&st)
		st.UpdatedAt = m.now().UTC()
		if st.CompletedTriads == nil {
			st.CompletedTriads = []string{}
		}
		return safeio.WriteJSONAtomic(path, st, 2)
	})
}

// AutoPause pauses the active workspace at session end. Non-critical: any
// failure, including no active workspace, returns ("", nil) and the
// session ends normally.
func (m *Manager) AutoPause() (string, error) {
	ws, err := m.GetActive()
	if err != nil {
		if errors.Is(err, ErrNoActive) {
			return "", nil
		}
		return "", nil
	}
	if ws.State.Status != StatusActive {
		return "", nil
	}
	if err := m.MarkPaused(ws.ID, "Session ended (auto-pause)"); err != nil {
		return "", err
	}
	return ws.ID, nil
}

// AppendSession records one session-lifecycle line in sessions.jsonl.
func (m *Manager) AppendSession(id string, entry SessionEntry) error {
	if err := validateID(id); err != nil {
		return err
	}
	if entry.SessionID == "" {
		entry.SessionID = ulid.MustNew(ulid.Timestamp(m.now()), rand.New(rand.NewSource(m.now().UnixNano()))).String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now().UTC()
	}
	line, err := safeio.EncodeJSON(entry, 0)
	if err != nil {
		return err
	}
	return safeio.AppendLine(filepath.Join(m.Dir, id, "sessions.jsonl"), string(line))
}

// ScratchpadDir returns (and creates) the per-triad scratchpad directory.
func (m *Manager) ScratchpadDir(id, triad string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	if strings.ContainsAny(triad, `/\`) || triad == "" || triad == "." || triad == ".." {
		return "", fmt.Errorf("invalid triad name %q", triad)
	}
	dir := filepath.Join(m.Dir, id, "scratchpad", triad)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// validateID rejects ids that could escape the workspaces directory.
func validateID(id string) error {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("invalid workspace id %q", id)
	}
	return nil
}

// sanitizeSlug lowercases and strips the brief title down to a short
// filesystem-safe slug; an empty result gets a random suffix so ids made
// in the same second stay distinct.
func sanitizeSlug(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 40 {
		out = strings.Trim(out[:40], "-")
	}
	if out == "" {
		out = strings.ToLower(ulid.Make().String()[20:])
	}
	return out
}
