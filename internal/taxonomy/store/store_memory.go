package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"prismid/internal/taxonomy/models"
	"prismid/pkg/platform/sentinel"
)

// InMemory is the taxonomy store for unit tests and local development.
type InMemory struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*models.Entry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[uuid.UUID]*models.Entry)}
}

func (s *InMemory) Create(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.Kind == entry.Kind && strings.EqualFold(e.Name, entry.Name) {
			return sentinel.ErrConflict
		}
	}
	cp := *entry
	s.entries[entry.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *InMemory) ListByKind(_ context.Context, kind models.Kind) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Entry
	for _, e := range s.entries {
		if e.Kind == kind {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) Rename(_ context.Context, id uuid.UUID, name string) (*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	for otherID, other := range s.entries {
		if otherID != id && other.Kind == e.Kind && strings.EqualFold(other.Name, name) {
			return nil, sentinel.ErrConflict
		}
	}
	e.Name = name
	cp := *e
	return &cp, nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.entries, id)
	return nil
}
