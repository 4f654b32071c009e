package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"prismid/internal/auth/models"
	"prismid/pkg/platform/sentinel"
)

// InMemory holds admin accounts for unit tests and local development.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*models.AdminAccount
}

func NewInMemory() *InMemory {
	return &InMemory{accounts: make(map[uuid.UUID]*models.AdminAccount)}
}

func (s *InMemory) Create(_ context.Context, account *models.AdminAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, account.Username) {
			return sentinel.ErrConflict
		}
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.AdminAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemory) FindByUsername(_ context.Context, username string) (*models.AdminAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) RecordLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	at = at.UTC()
	a.LastLogin = &at
	return nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}
