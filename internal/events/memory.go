package events

import "sync"

// MemoryRepository keeps events in process memory. Append order matches
// Save order, mirroring the file backend's line order.
type MemoryRepository struct {
	mu  sync.Mutex
	evs []Event
}

func NewMemoryRepository() *MemoryRepository { return &MemoryRepository{} }

func (r *MemoryRepository) Save(ev *Event) error {
	if err := prepare(ev); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, *ev)
	return nil
}

func (r *MemoryRepository) GetByID(id string) (Event, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.evs {
		if ev.ID == id {
			return ev, true, nil
		}
	}
	return Event{}, false, nil
}

func (r *MemoryRepository) Query(f Filters) ([]Event, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	var matched []Event
	for _, ev := range r.evs {
		if f.match(ev) {
			matched = append(matched, ev)
		}
	}
	r.mu.Unlock()
	sortEvents(matched, f)
	return paginate(matched, f), nil
}

func (r *MemoryRepository) Count(f Filters) (int, error) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.evs {
		if f.match(ev) {
			n++
		}
	}
	return n, nil
}
