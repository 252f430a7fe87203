package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository is the abstract event store. Query semantics are identical
// across backends; only persistence differs. The file backend is the real
// log, the memory backend exists for tests and ad-hoc pipelines.
type Repository interface {
	// Save assigns a UUID and UTC timestamp when missing and persists the
	// event. Events with an empty predicate are rejected.
	Save(ev *Event) error
	GetByID(id string) (Event, bool, error)
	// Query applies filters, sorts, then paginates.
	Query(f Filters) ([]Event, error)
	// Count applies filters only.
	Count(f Filters) (int, error)
}

func prepare(ev *Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if strings.TrimSpace(ev.Predicate) == "" {
		return fmt.Errorf("%w: empty predicate", ErrInvalidEvent)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	} else {
		ev.Timestamp = ev.Timestamp.UTC()
	}
	if ev.ObjectData == nil {
		ev.ObjectData = map[string]any{}
	}
	return nil
}
