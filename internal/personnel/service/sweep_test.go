package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"prismid/internal/personnel/models"
	personnelstore "prismid/internal/personnel/store/personnel"
	assignmentstore "prismid/internal/role/store/assignment"
	rolestore "prismid/internal/role/store/role"
	"prismid/pkg/access"
	"prismid/pkg/audit"
	auditmemory "prismid/pkg/audit/store/memory"
	"prismid/pkg/identity"
	"prismid/pkg/requestcontext"
)

// warningCacheStub captures what the sweep publishes. fail simulates an
// unreachable cache; the sweep must treat that as advisory-only trouble.
type warningCacheStub struct {
	mu      sync.Mutex
	stored  [][]ExpiryWarning
	lastTTL time.Duration
	fail    bool
}

func (c *warningCacheStub) StoreWarnings(_ context.Context, warnings []ExpiryWarning, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return context.DeadlineExceeded
	}
	c.stored = append(c.stored, warnings)
	c.lastTTL = ttl
	return nil
}

func (c *warningCacheStub) last() []ExpiryWarning {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stored) == 0 {
		return nil
	}
	return c.stored[len(c.stored)-1]
}

type SweepSuite struct {
	suite.Suite
	records  *personnelstore.InMemory
	auditLog *auditmemory.InMemoryStore
	cache    *warningCacheStub
	service  *Service
}

func TestSweepSuite(t *testing.T) {
	suite.Run(t, new(SweepSuite))
}

func (s *SweepSuite) SetupTest() {
	s.records = personnelstore.NewInMemory()
	s.auditLog = auditmemory.NewInMemoryStore()
	s.cache = &warningCacheStub{}
	s.service = New(
		s.records,
		assignmentstore.NewInMemory(),
		rolestore.NewInMemory(),
		identity.NewCodec("test-salt"),
		s.auditLog,
		WithWarningCache(s.cache),
		WithWarningSpan(7*24*time.Hour),
		WithSweepConcurrency(2),
	)
}

func (s *SweepSuite) createIntern(email string, end time.Time) *models.Record {
	start := testNow.AddDate(0, -1, 0)
	ctx := requestcontext.WithTime(context.Background(), testNow)
	ctx = requestcontext.WithActor(ctx, requestcontext.Principal{Username: "seeder", Tier: access.TierSuperAdmin})
	record, err := s.service.Create(ctx, models.CreateRequest{
		Name:      "Sweep Intern",
		Email:     email,
		Category:  models.CategoryIntern,
		StartDate: &start,
		EndDate:   &end,
	})
	s.Require().NoError(err)
	return record
}

// sweepCtx carries a clock and no actor, mirroring the scheduler's call.
func sweepCtx(at time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), at)
}

func (s *SweepSuite) TestSweepExpiresOverdueInterns() {
	sweepAt := testNow.AddDate(0, 0, 20)

	overdueA := s.createIntern("overdue-a@example.com", testNow.AddDate(0, 0, 10))
	overdueB := s.createIntern("overdue-b@example.com", testNow.AddDate(0, 0, 12))
	soon := s.createIntern("soon@example.com", testNow.AddDate(0, 0, 25))
	far := s.createIntern("far@example.com", testNow.AddDate(0, 6, 0))
	auditBefore := len(s.auditLog.All())

	result, err := s.service.RunExpirySweep(sweepCtx(sweepAt))
	s.Require().NoError(err)

	s.Equal(2, result.Processed)
	s.Equal(2, result.Transitioned)
	s.Equal(1, result.Warnings)
	s.Empty(result.Errors)

	for _, key := range []*models.Record{overdueA, overdueB} {
		record, err := s.records.FindByKey(context.Background(), key.InternalKey)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, record.Status)
		s.Equal(key.Version+1, record.Version)
	}
	for _, key := range []*models.Record{soon, far} {
		record, err := s.records.FindByKey(context.Background(), key.InternalKey)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, record.Status)
	}

	// One audit event per transition, written by no principal.
	events := s.auditLog.All()[auditBefore:]
	s.Require().Len(events, 2)
	for _, event := range events {
		s.Equal(audit.ActionInternExpired, event.Action)
		s.Empty(event.Actor)
		s.Equal("internship end date passed", event.Reason)
		s.Equal(sweepAt, event.Timestamp)
	}

	// Only the internship inside the warning span is published.
	warnings := s.cache.last()
	s.Require().Len(warnings, 1)
	s.Equal(soon.OpaqueID, warnings[0].OpaqueID)
	s.Equal(5, warnings[0].DaysRemaining)
	s.Equal(24*time.Hour, s.cache.lastTTL)
}

func (s *SweepSuite) TestSweepIsIdempotent() {
	sweepAt := testNow.AddDate(0, 0, 20)
	s.createIntern("once@example.com", testNow.AddDate(0, 0, 10))

	first, err := s.service.RunExpirySweep(sweepCtx(sweepAt))
	s.Require().NoError(err)
	s.Equal(1, first.Transitioned)
	auditAfterFirst := len(s.auditLog.All())

	second, err := s.service.RunExpirySweep(sweepCtx(sweepAt))
	s.Require().NoError(err)
	s.Equal(0, second.Processed)
	s.Equal(0, second.Transitioned)
	s.Len(s.auditLog.All(), auditAfterFirst)
}

func (s *SweepSuite) TestSweepSkipsNonEligibleRecords() {
	sweepAt := testNow.AddDate(0, 0, 20)

	converted := s.createIntern("converted@example.com", testNow.AddDate(0, 0, 10))
	superCtx := requestcontext.WithActor(requestcontext.WithTime(context.Background(), testNow),
		requestcontext.Principal{Username: "root", Tier: access.TierSuperAdmin})
	_, err := s.service.Convert(superCtx, converted.InternalKey, nil)
	s.Require().NoError(err)

	deleted := s.createIntern("deleted@example.com", testNow.AddDate(0, 0, 10))
	_, err = s.service.SoftDelete(superCtx, deleted.InternalKey)
	s.Require().NoError(err)

	result, err := s.service.RunExpirySweep(sweepCtx(sweepAt))
	s.Require().NoError(err)
	s.Equal(0, result.Processed)
	s.Equal(0, result.Transitioned)
}

func (s *SweepSuite) TestSweepSurvivesCacheFailure() {
	sweepAt := testNow.AddDate(0, 0, 20)
	s.createIntern("cache-fail@example.com", testNow.AddDate(0, 0, 24))
	s.cache.fail = true

	result, err := s.service.RunExpirySweep(sweepCtx(sweepAt))
	s.Require().NoError(err)
	s.Equal(1, result.Warnings)
	s.Empty(s.cache.stored)
}
