package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"prismid/internal/personnel/models"
	"prismid/pkg/audit"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/requestcontext"
)

// SweepResult summarizes one expiry sweep run.
type SweepResult struct {
	Processed    int          `json:"processed"`
	Transitioned int          `json:"transitioned"`
	Warnings     int          `json:"warnings"`
	Errors       []SweepError `json:"errors,omitempty"`
}

// SweepError records a per-record failure. One failing record never blocks
// the rest of the batch.
type SweepError struct {
	Key   uuid.UUID `json:"key"`
	Cause string    `json:"cause"`
}

// ExpiryWarning describes an internship ending within the warning span.
type ExpiryWarning struct {
	OpaqueID      string    `json:"opaque_id"`
	Name          string    `json:"name"`
	EndDate       time.Time `json:"end_date"`
	DaysRemaining int       `json:"days_remaining"`
}

const warningCacheTTL = 24 * time.Hour

// RunExpirySweep applies the expiry transition to every live, active intern
// whose end date has passed. Invoked by an external scheduler, never by an
// internal timer. The sweep runs without an actor; the audit event records
// the automated transition with no principal.
//
// Idempotent: each record transitions in its own transaction under its own
// lock, and ExpiryDue re-checks state after the lock is taken, so an
// already-expired record (from a previous run or a concurrent manual end)
// is skipped without a duplicate audit event. A timeout mid-sweep loses only
// the unprocessed remainder, which the next scheduled run picks up.
func (s *Service) RunExpirySweep(ctx context.Context) (SweepResult, error) {
	now := requestcontext.Now(ctx)

	keys, err := s.records.ListExpiredKeys(ctx, now)
	if err != nil {
		return SweepResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired interns")
	}

	var (
		mu     sync.Mutex
		result = SweepResult{Processed: len(keys)}
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.sweepWidth)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			transitioned, err := s.expireOne(gCtx, key, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, SweepError{Key: key, Cause: err.Error()})
				return nil // per-record failure, keep sweeping
			}
			if transitioned {
				result.Transitioned++
			}
			return nil
		})
	}
	// Workers never return errors; Wait only observes context cancellation.
	if err := g.Wait(); err != nil {
		return result, dErrors.Wrap(err, dErrors.CodeInternal, "sweep interrupted")
	}

	result.Warnings = s.cacheWarnings(ctx, now)

	s.countExpired(result.Transitioned)
	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
	}
	s.logger.InfoContext(ctx, "expiry sweep finished",
		"processed", result.Processed,
		"transitioned", result.Transitioned,
		"warnings", result.Warnings,
		"errors", len(result.Errors),
	)
	return result, nil
}

// expireOne transitions a single record, reporting false when the record was
// no longer eligible by the time its lock was taken.
func (s *Service) expireOne(ctx context.Context, key uuid.UUID, now time.Time) (bool, error) {
	transitioned := false
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var before *models.Record
		record, err := s.records.Execute(txCtx, key,
			func(r *models.Record) error {
				if !r.ExpiryDue(now) {
					return errSweepSkip
				}
				before = r.Clone()
				return nil
			},
			func(r *models.Record) {
				r.ApplyExpiry(now)
			},
		)
		if err != nil {
			return err
		}
		transitioned = true
		return s.auditor.emitWithReason(txCtx, audit.ActionInternExpired, key, before, record,
			"internship end date passed")
	})
	if errors.Is(err, errSweepSkip) {
		return false, nil
	}
	if err != nil {
		return false, wrapRecordErr(err)
	}
	return transitioned, nil
}

// errSweepSkip marks a record that lost eligibility between listing and
// locking. Not an error; the transaction is abandoned without effect.
var errSweepSkip = dErrors.New(dErrors.CodeInvariantViolation, "record no longer eligible for expiry")

// cacheWarnings publishes the soon-to-expire list for dashboard consumption.
// Cache trouble is logged and swallowed: warnings are advisory.
func (s *Service) cacheWarnings(ctx context.Context, now time.Time) int {
	if s.warnings == nil {
		return 0
	}

	expiring, err := s.records.ListExpiring(ctx, now, now.Add(s.warningSpan))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list expiring interns", "error", err)
		return 0
	}

	warnings := make([]ExpiryWarning, 0, len(expiring))
	for _, r := range expiring {
		warnings = append(warnings, ExpiryWarning{
			OpaqueID:      r.OpaqueID,
			Name:          r.Name,
			EndDate:       *r.EndDate,
			DaysRemaining: int(r.EndDate.Sub(now).Hours() / 24),
		})
	}
	if err := s.warnings.StoreWarnings(ctx, warnings, warningCacheTTL); err != nil {
		s.logger.WarnContext(ctx, "failed to cache expiry warnings", "error", err)
		return len(warnings)
	}
	return len(warnings)
}
