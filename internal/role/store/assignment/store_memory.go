package assignment

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"prismid/internal/role/models"
	"prismid/pkg/platform/sentinel"
)

type pair struct {
	personnel uuid.UUID
	role      uuid.UUID
}

// InMemory holds role assignments for unit tests and local development.
type InMemory struct {
	mu          sync.RWMutex
	assignments map[pair]models.Assignment
}

func NewInMemory() *InMemory {
	return &InMemory{assignments: make(map[pair]models.Assignment)}
}

func (s *InMemory) Assign(_ context.Context, a models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pair{a.PersonnelKey, a.RoleID}
	if _, exists := s.assignments[key]; exists {
		return sentinel.ErrConflict
	}
	s.assignments[key] = a
	return nil
}

func (s *InMemory) Remove(_ context.Context, personnelKey, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pair{personnelKey, roleID}
	if _, exists := s.assignments[key]; !exists {
		return sentinel.ErrNotFound
	}
	delete(s.assignments, key)
	return nil
}

func (s *InMemory) ListByPersonnel(_ context.Context, personnelKey uuid.UUID) ([]models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Assignment
	for key, a := range s.assignments {
		if key.personnel == personnelKey {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AssignedAt.Before(out[j].AssignedAt)
	})
	return out, nil
}

// RemoveByPersonnel drops all assignments for a purged personnel record.
// Cascade-delete is the configured default for hard purges.
func (s *InMemory) RemoveByPersonnel(_ context.Context, personnelKey uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.assignments {
		if key.personnel == personnelKey {
			delete(s.assignments, key)
		}
	}
	return nil
}

// RemoveByRole drops all assignments for a purged role.
func (s *InMemory) RemoveByRole(_ context.Context, roleID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.assignments {
		if key.role == roleID {
			delete(s.assignments, key)
		}
	}
	return nil
}
