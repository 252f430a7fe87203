// Package events is the append-only execution log shared by every hook
// process. Records are RDF-triple shaped (subject, predicate, object_data)
// and live one JSON object per line in events.jsonl; append order is the
// only total order a single writer can rely on.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEvent marks records that fail structural validation (for now:
// an empty predicate).
var ErrInvalidEvent = errors.New("invalid event")

// StorageError wraps failures of the persistence layer so callers can tell
// them apart from query-shape problems.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("event storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// QueryError marks malformed filter input.
type QueryError struct {
	Field string
	Msg   string
}

func (e *QueryError) Error() string { return fmt.Sprintf("event query %s: %s", e.Field, e.Msg) }

// Event is one immutable log record.
type Event struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	Subject         string         `json:"subject,omitempty"`
	Predicate       string         `json:"predicate"`
	ObjectData      map[string]any `json:"object_data"`
	WorkspaceID     string         `json:"workspace_id,omitempty"`
	HookName        string         `json:"hook_name,omitempty"`
	ExecutionTimeMS int64          `json:"execution_time_ms,omitempty"`
	Error           string         `json:"error,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Decode parses one JSONL line. Records written by older tooling carry the
// payload under "object" instead of "object_data"; both are accepted and
// normalized to ObjectData.
func Decode(line []byte) (Event, error) {
	var raw struct {
		Event
		LegacyObject map[string]any `json:"object"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, err
	}
	ev := raw.Event
	if ev.ObjectData == nil && raw.LegacyObject != nil {
		ev.ObjectData = raw.LegacyObject
	}
	if ev.ObjectData == nil {
		ev.ObjectData = map[string]any{}
	}
	return ev, nil
}

// Encode renders the event as a single JSONL line (no trailing newline).
func Encode(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return b, nil
}
