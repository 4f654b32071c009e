package memory

import (
	"context"
	"sync"

	"prismid/pkg/audit"
)

// InMemoryStore keeps audit events in append order. Used by unit tests and
// by local development without PostgreSQL.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityType, entityKey string, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, e := range s.events {
		if e.EntityType == entityType && e.EntityKey == entityKey {
			out = append(out, e)
		}
	}
	return tail(out, limit), nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(append([]audit.Event{}, s.events...), limit), nil
}

// All returns every event in commit order. Test helper.
func (s *InMemoryStore) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...)
}

// Clear drops all events. Test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func tail(events []audit.Event, limit int) []audit.Event {
	if limit <= 0 || limit >= len(events) {
		return events
	}
	return events[len(events)-limit:]
}
