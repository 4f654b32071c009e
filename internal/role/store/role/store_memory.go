package role

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"prismid/internal/role/models"
	"prismid/pkg/platform/sentinel"
)

// InMemory is the mutex-guarded role store for unit tests and local
// development. Name uniqueness is enforced case-insensitively among live
// (non-deleted) roles, matching the partial unique index in PostgreSQL.
type InMemory struct {
	mu    sync.RWMutex
	roles map[uuid.UUID]*models.Role
}

func NewInMemory() *InMemory {
	return &InMemory{roles: make(map[uuid.UUID]*models.Role)}
}

func (s *InMemory) Create(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.roles[role.ID]; exists {
		return sentinel.ErrConflict
	}
	if s.liveNameTaken(role.Name, role.ID) {
		return sentinel.ErrConflict
	}
	s.roles[role.ID] = role.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemory) List(_ context.Context, includeDeleted bool) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Role
	for _, r := range s.roles {
		if r.IsDeleted() && !includeDeleted {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Execute mirrors the personnel store contract: atomic read-validate-mutate
// with a version bump on success.
func (s *InMemory) Execute(
	_ context.Context,
	id uuid.UUID,
	validate func(*models.Role) error,
	mutate func(*models.Role),
) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.roles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	next := current.Clone()
	if err := validate(next); err != nil {
		return nil, err
	}
	mutate(next)
	next.Version++

	if next.Name != current.Name && s.liveNameTaken(next.Name, id) {
		return nil, sentinel.ErrConflict
	}
	s.roles[id] = next
	return next.Clone(), nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func (s *InMemory) liveNameTaken(name string, exclude uuid.UUID) bool {
	for id, r := range s.roles {
		if id == exclude || r.IsDeleted() {
			continue
		}
		if strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}
