package personnel

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"prismid/internal/personnel/models"
	"prismid/pkg/platform/sentinel"
)

// InMemory is the mutex-guarded store used by unit tests and local
// development. Execute linearizes operations per store, which subsumes the
// per-record guarantee the PostgreSQL store provides with row locks.
type InMemory struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]*models.Record
	byOpaque map[string]uuid.UUID
	byEmail  map[string]uuid.UUID
}

func NewInMemory() *InMemory {
	return &InMemory{
		records:  make(map[uuid.UUID]*models.Record),
		byOpaque: make(map[string]uuid.UUID),
		byEmail:  make(map[string]uuid.UUID),
	}
}

func (s *InMemory) Create(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.InternalKey]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byEmail[record.Email]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byOpaque[record.OpaqueID]; exists {
		return sentinel.ErrConflict
	}

	cp := record.Clone()
	s.records[cp.InternalKey] = cp
	s.byOpaque[cp.OpaqueID] = cp.InternalKey
	s.byEmail[cp.Email] = cp.InternalKey
	return nil
}

func (s *InMemory) FindByKey(_ context.Context, key uuid.UUID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemory) FindByOpaqueID(_ context.Context, opaqueID string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.byOpaque[opaqueID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.records[key].Clone(), nil
}

func (s *InMemory) List(_ context.Context, filter models.ListFilter) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Record
	for _, r := range s.records {
		if !matches(r, filter) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, filter.Offset, filter.Limit), nil
}

// ListExpiredKeys returns the keys of live, active interns whose end date has
// passed. The sweep re-reads and re-checks each record under Execute, so a
// stale key here is harmless.
func (s *InMemory) ListExpiredKeys(_ context.Context, asOf time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []uuid.UUID
	for _, r := range s.records {
		if r.ExpiryDue(asOf) {
			keys = append(keys, r.InternalKey)
		}
	}
	return keys, nil
}

// ListExpiring returns live, active interns whose end date falls in
// [from, to]. Feeds the sweep's warning cache.
func (s *InMemory) ListExpiring(_ context.Context, from, to time.Time) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Record
	for _, r := range s.records {
		if r.IsDeleted() || !r.IsIntern() || r.Status != models.StatusActive || r.EndDate == nil {
			continue
		}
		if r.EndDate.Before(from) || r.EndDate.After(to) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndDate.Before(*out[j].EndDate)
	})
	return out, nil
}

// Execute runs an atomic read-validate-mutate cycle under the store lock.
// The callbacks receive a private copy; nothing is visible to readers until
// the mutation is applied. Version increments exactly once per successful
// call, never on a rejected validation.
func (s *InMemory) Execute(
	_ context.Context,
	key uuid.UUID,
	validate func(*models.Record) error,
	mutate func(*models.Record),
) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	next := current.Clone()
	if err := validate(next); err != nil {
		return nil, err
	}
	mutate(next)
	next.Version++

	if next.OpaqueID != current.OpaqueID {
		delete(s.byOpaque, current.OpaqueID)
		s.byOpaque[next.OpaqueID] = key
	}
	if next.Email != current.Email {
		if other, exists := s.byEmail[next.Email]; exists && other != key {
			return nil, sentinel.ErrConflict
		}
		delete(s.byEmail, current.Email)
		s.byEmail[next.Email] = key
	}
	s.records[key] = next
	return next.Clone(), nil
}

// Delete permanently removes a record. Guards (soft-deleted first, tier)
// are enforced by the service before this is reached.
func (s *InMemory) Delete(_ context.Context, key uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byOpaque, r.OpaqueID)
	delete(s.byEmail, r.Email)
	delete(s.records, key)
	return nil
}

func matches(r *models.Record, f models.ListFilter) bool {
	if r.IsDeleted() && !f.IncludeDeleted {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.Name), needle) &&
			!strings.Contains(strings.ToLower(r.Email), needle) {
			return false
		}
	}
	return true
}

func paginate(records []*models.Record, offset, limit int) []*models.Record {
	if offset >= len(records) {
		return nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
