package events

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Filters narrows a query. All set fields are ANDed; time bounds are
// inclusive; Search is a case-insensitive substring match across subject,
// predicate, error, and the stringified object payload.
type Filters struct {
	WorkspaceID string
	Subject     string
	Predicate   string
	TimeFrom    *time.Time
	TimeTo      *time.Time
	Search      string
	Limit       int
	Offset      int
	SortBy      string // default "timestamp"
	SortOrder   string // "asc" or "desc", default "desc"
}

func (f Filters) validate() error {
	if f.Limit < 0 {
		return &QueryError{Field: "limit", Msg: "must be >= 0"}
	}
	if f.Offset < 0 {
		return &QueryError{Field: "offset", Msg: "must be >= 0"}
	}
	switch strings.ToLower(f.SortOrder) {
	case "", "asc", "desc":
	default:
		return &QueryError{Field: "sort_order", Msg: "must be asc or desc"}
	}
	return nil
}

func (f Filters) match(ev Event) bool {
	if f.WorkspaceID != "" && ev.WorkspaceID != f.WorkspaceID {
		return false
	}
	if f.Subject != "" && ev.Subject != f.Subject {
		return false
	}
	if f.Predicate != "" && ev.Predicate != f.Predicate {
		return false
	}
	if f.TimeFrom != nil && ev.Timestamp.Before(*f.TimeFrom) {
		return false
	}
	if f.TimeTo != nil && ev.Timestamp.After(*f.TimeTo) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		hay := strings.ToLower(strings.Join([]string{
			ev.Subject, ev.Predicate, ev.Error, fmt.Sprint(ev.ObjectData),
		}, "\n"))
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	return true
}

// sortKey returns the comparable value for a sort field. Unknown fields fall
// back to the timestamp so a typo never breaks a query.
func sortKey(ev Event, field string) (string, time.Time, bool) {
	switch strings.ToLower(field) {
	case "", "timestamp":
		return "", ev.Timestamp, false
	case "id":
		return ev.ID, time.Time{}, true
	case "subject":
		return ev.Subject, time.Time{}, true
	case "predicate":
		return ev.Predicate, time.Time{}, true
	case "hook_name":
		return ev.HookName, time.Time{}, true
	case "workspace_id":
		return ev.WorkspaceID, time.Time{}, true
	default:
		return "", ev.Timestamp, false
	}
}

func sortEvents(evs []Event, f Filters) {
	desc := strings.ToLower(f.SortOrder) != "asc"
	sort.SliceStable(evs, func(i, j int) bool {
		si, ti, isString := sortKey(evs[i], f.SortBy)
		sj, tj, _ := sortKey(evs[j], f.SortBy)
		var cmp int
		if isString {
			cmp = strings.Compare(si, sj)
		} else {
			cmp = ti.Compare(tj)
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func paginate(evs []Event, f Filters) []Event {
	if f.Offset >= len(evs) {
		return nil
	}
	evs = evs[f.Offset:]
	if f.Limit > 0 && f.Limit < len(evs) {
		evs = evs[:f.Limit]
	}
	return evs
}
