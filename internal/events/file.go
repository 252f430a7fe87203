package events

import (
	"bufio"
	"errors"
	"os"
	"strings"

	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
)

// FileRepository reads and writes the JSONL event log. Readers take no lock:
// appends are line-atomic, so the worst a concurrent reader sees is a stale
// snapshot, never a torn record. Malformed lines are skipped, not fatal.
type FileRepository struct {
	Path string
}

func NewFileRepository(path string) *FileRepository { return &FileRepository{Path: path} }

func (r *FileRepository) Save(ev *Event) error {
	if err := prepare(ev); err != nil {
		return err
	}
	b, err := Encode(*ev)
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}
	if err := safeio.AppendLine(r.Path, string(b)); err != nil {
		return &StorageError{Op: "append", Err: err}
	}
	return nil
}

func (r *FileRepository) scan(visit func(Event) bool) error {
	f, err := os.Open(r.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &StorageError{Op: "open", Err: err}
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ev, err := Decode([]byte(line))
		if err != nil {
			continue
		}
		if !visit(ev) {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return &StorageError{Op: "scan", Err: err}
	}
	return nil
}

func (r *FileRepository) GetByID(id string) (Event, bool, error) {
	var found Event
	ok := false
	err := r.scan(func(ev Event) bool {
		if ev.ID == id {
			found = ev
			ok = true
			return false
		}
		return true
	})
	if err != nil {
		return Event{}, false, err
	}
	return found, ok, nil
}

func (r *FileRepository) Query(f Filters) ([]Event, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	var matched []Event
	err := r.scan(func(ev Event) bool {
		if f.match(ev) {
			matched = append(matched, ev)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sortEvents(matched, f)
	return paginate(matched, f), nil
}

func (r *FileRepository) Count(f Filters) (int, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	n := 0
	err := r.scan(func(ev Event) bool {
		if f.match(ev) {
			n++
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
