package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"prismid/internal/personnel/models"
	personnelstore "prismid/internal/personnel/store/personnel"
	rolemodels "prismid/internal/role/models"
	assignmentstore "prismid/internal/role/store/assignment"
	rolestore "prismid/internal/role/store/role"
	"prismid/pkg/access"
	"prismid/pkg/audit"
	auditmemory "prismid/pkg/audit/store/memory"
	dErrors "prismid/pkg/domain-errors"
	"prismid/pkg/identity"
	"prismid/pkg/requestcontext"
)

var testNow = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

type PersonnelServiceSuite struct {
	suite.Suite
	records     *personnelstore.InMemory
	assignments *assignmentstore.InMemory
	roles       *rolestore.InMemory
	auditLog    *auditmemory.InMemoryStore
	service     *Service
}

func TestPersonnelServiceSuite(t *testing.T) {
	suite.Run(t, new(PersonnelServiceSuite))
}

func (s *PersonnelServiceSuite) SetupTest() {
	s.records = personnelstore.NewInMemory()
	s.assignments = assignmentstore.NewInMemory()
	s.roles = rolestore.NewInMemory()
	s.auditLog = auditmemory.NewInMemoryStore()
	s.service = New(s.records, s.assignments, s.roles, identity.NewCodec("test-salt"), s.auditLog)
}

// ctx returns a request context with a fixed clock and an authenticated
// actor at the given tier.
func (s *PersonnelServiceSuite) ctx(tier access.Tier) context.Context {
	ctx := requestcontext.WithTime(context.Background(), testNow)
	return requestcontext.WithActor(ctx, requestcontext.Principal{
		ID:       uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		Username: "test-admin",
		Tier:     tier,
	})
}

func (s *PersonnelServiceSuite) createIntern(email string, end time.Time) *models.Record {
	start := testNow.AddDate(0, -1, 0)
	record, err := s.service.Create(s.ctx(access.TierSuperAdmin), models.CreateRequest{
		Name:      "Test Intern",
		Email:     email,
		Category:  models.CategoryIntern,
		StartDate: &start,
		EndDate:   &end,
	})
	s.Require().NoError(err)
	return record
}

func (s *PersonnelServiceSuite) createEmployee(email string) *models.Record {
	record, err := s.service.Create(s.ctx(access.TierAdmin), models.CreateRequest{
		Name:     "Test Employee",
		Email:    email,
		Category: models.CategoryEmployee,
	})
	s.Require().NoError(err)
	return record
}

func (s *PersonnelServiceSuite) lastEvent() audit.Event {
	events := s.auditLog.All()
	s.Require().NotEmpty(events)
	return events[len(events)-1]
}

func (s *PersonnelServiceSuite) TestCreate() {
	s.Run("viewer is rejected before any work happens", func() {
		_, err := s.service.Create(s.ctx(access.TierViewer), models.CreateRequest{
			Name:     "Nope",
			Email:    "nope@example.com",
			Category: models.CategoryEmployee,
		})
		s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
		s.Empty(s.auditLog.All())
	})

	s.Run("employee gets a valid employee-tagged opaque ID", func() {
		record := s.createEmployee("emp@example.com")

		s.True(identity.Validate(record.OpaqueID))
		category, ok := identity.CategoryOf(record.OpaqueID)
		s.True(ok)
		s.Equal(identity.CategoryEmployee, category)
		s.Equal(models.StatusActive, record.Status)
		s.Equal(int64(1), record.Version)
		s.Equal(testNow, record.JoinedOn)

		event := s.lastEvent()
		s.Equal(audit.ActionPersonnelCreated, event.Action)
		s.Equal(record.InternalKey.String(), event.EntityKey)
		s.Equal("test-admin", event.ActorName)
		s.Equal(testNow, event.Timestamp)
		s.Empty(event.Previous)
		s.Contains(string(event.New), record.OpaqueID)
	})

	s.Run("intern without internship dates is rejected", func() {
		_, err := s.service.Create(s.ctx(access.TierAdmin), models.CreateRequest{
			Name:     "Intern",
			Email:    "intern-nodates@example.com",
			Category: models.CategoryIntern,
		})
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("duplicate email surfaces as a conflict", func() {
		s.createEmployee("dup@example.com")
		_, err := s.service.Create(s.ctx(access.TierAdmin), models.CreateRequest{
			Name:     "Second",
			Email:    "dup@example.com",
			Category: models.CategoryEmployee,
		})
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})
}

func (s *PersonnelServiceSuite) TestOpaqueIDLookup() {
	record := s.createEmployee("lookup@example.com")
	ctx := s.ctx(access.TierViewer)

	s.Run("malformed ID is rejected without touching storage", func() {
		_, err := s.service.GetByOpaqueID(ctx, "not-an-id")
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("well-formed but unissued ID is not found", func() {
		codec := identity.NewCodec("test-salt")
		phantom, err := codec.Derive(uuid.New(), identity.CategoryEmployee)
		s.Require().NoError(err)

		_, err = s.service.GetByOpaqueID(ctx, phantom)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("issued ID resolves to the record", func() {
		found, err := s.service.GetByOpaqueID(ctx, record.OpaqueID)
		s.NoError(err)
		s.Equal(record.InternalKey, found.InternalKey)
	})
}

func (s *PersonnelServiceSuite) TestUpdate() {
	record := s.createEmployee("update@example.com")
	ctx := s.ctx(access.TierAdmin)

	s.Run("stale version is rejected", func() {
		stale := int64(99)
		name := "New Name"
		_, err := s.service.Update(ctx, record.InternalKey, models.UpdateRequest{
			Name:    &name,
			Version: &stale,
		})
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})

	s.Run("matching version applies and bumps", func() {
		current := record.Version
		name := "Renamed"
		updated, err := s.service.Update(ctx, record.InternalKey, models.UpdateRequest{
			Name:    &name,
			Version: &current,
		})
		s.Require().NoError(err)
		s.Equal("Renamed", updated.Name)
		s.Equal(current+1, updated.Version)
		s.Equal(audit.ActionPersonnelUpdated, s.lastEvent().Action)
	})

	s.Run("soft-deleted record is frozen", func() {
		deleted := s.createEmployee("frozen@example.com")
		_, err := s.service.SoftDelete(s.ctx(access.TierSuperAdmin), deleted.InternalKey)
		s.Require().NoError(err)

		name := "x"
		_, err = s.service.Update(ctx, deleted.InternalKey, models.UpdateRequest{Name: &name})
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})
}

func (s *PersonnelServiceSuite) TestConvert() {
	end := testNow.AddDate(0, 3, 0)

	s.Run("requires superadmin", func() {
		intern := s.createIntern("convert-tier@example.com", end)
		_, err := s.service.Convert(s.ctx(access.TierAdmin), intern.InternalKey, nil)
		s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
	})

	s.Run("re-derives the opaque ID under the employee tag", func() {
		intern := s.createIntern("convert@example.com", end)
		oldOpaque := intern.OpaqueID

		converted, err := s.service.Convert(s.ctx(access.TierSuperAdmin), intern.InternalKey, nil)
		s.Require().NoError(err)

		s.Equal(intern.InternalKey, converted.InternalKey)
		s.NotEqual(oldOpaque, converted.OpaqueID)
		s.True(identity.Validate(converted.OpaqueID))
		category, _ := identity.CategoryOf(converted.OpaqueID)
		s.Equal(identity.CategoryEmployee, category)
		s.Equal(models.CategoryEmployee, converted.Category)
		s.Equal(models.StatusConverted, converted.Status)
		s.Require().NotNil(converted.ConvertedAt)
		s.Equal(testNow, *converted.ConvertedAt)
		s.Equal(intern.Version+1, converted.Version)

		// The intern-form ID stops resolving the moment the conversion commits.
		_, err = s.service.GetByOpaqueID(s.ctx(access.TierViewer), oldOpaque)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))

		// The audit snapshot keeps the retired opaque ID resolvable in history.
		event := s.lastEvent()
		s.Equal(audit.ActionInternConverted, event.Action)
		s.Contains(string(event.New), oldOpaque)
		s.Contains(string(event.New), converted.OpaqueID)
	})

	s.Run("conversion is terminal", func() {
		intern := s.createIntern("terminal@example.com", end)
		_, err := s.service.Convert(s.ctx(access.TierSuperAdmin), intern.InternalKey, nil)
		s.Require().NoError(err)

		_, err = s.service.Convert(s.ctx(access.TierSuperAdmin), intern.InternalKey, nil)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})

	s.Run("employees cannot be converted", func() {
		employee := s.createEmployee("already-employee@example.com")
		_, err := s.service.Convert(s.ctx(access.TierSuperAdmin), employee.InternalKey, nil)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})

	s.Run("stale version is rejected", func() {
		intern := s.createIntern("convert-version@example.com", end)
		stale := intern.Version + 1
		_, err := s.service.Convert(s.ctx(access.TierSuperAdmin), intern.InternalKey, &stale)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})

	s.Run("role assignments survive conversion unchanged", func() {
		intern := s.createIntern("convert-roles@example.com", end)
		role := s.newRole("analyst", 3)
		s.Require().NoError(s.service.AssignRole(s.ctx(access.TierAdmin), intern.InternalKey, role.ID))

		_, err := s.service.Convert(s.ctx(access.TierSuperAdmin), intern.InternalKey, nil)
		s.Require().NoError(err)

		assignments, err := s.assignments.ListByPersonnel(context.Background(), intern.InternalKey)
		s.Require().NoError(err)
		s.Require().Len(assignments, 1)
		s.Equal(role.ID, assignments[0].RoleID)
		s.Contains(string(s.lastEvent().New), role.ID.String())
	})
}

// Concurrent conversion attempts against the same record must commit exactly
// once; the losers fail their guard after the winner's mutation is visible.
func (s *PersonnelServiceSuite) TestConvertConcurrent() {
	intern := s.createIntern("race@example.com", testNow.AddDate(0, 3, 0))
	ctx := s.ctx(access.TierSuperAdmin)
	before := len(s.auditLog.All())

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.Convert(ctx, intern.InternalKey, nil)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
		}
	}
	s.Equal(1, succeeded)
	s.Len(s.auditLog.All(), before+1)
}

func (s *PersonnelServiceSuite) TestExtend() {
	end := testNow.AddDate(0, 1, 0)
	newEnd := testNow.AddDate(0, 4, 0)

	s.Run("moves the end date forward", func() {
		intern := s.createIntern("extend@example.com", end)
		extended, err := s.service.Extend(s.ctx(access.TierSuperAdmin), intern.InternalKey, newEnd, nil)
		s.Require().NoError(err)
		s.Equal(newEnd, *extended.EndDate)
		s.Equal(models.StatusActive, extended.Status)
		s.Equal(audit.ActionInternshipExtended, s.lastEvent().Action)
	})

	s.Run("revives an expired internship", func() {
		intern := s.createIntern("revive@example.com", end)
		_, err := s.service.EndInternship(s.ctx(access.TierAdmin), intern.InternalKey, nil)
		s.Require().NoError(err)

		revived, err := s.service.Extend(s.ctx(access.TierSuperAdmin), intern.InternalKey, newEnd, nil)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, revived.Status)
	})

	s.Run("rejects a non-future end date", func() {
		intern := s.createIntern("extend-past@example.com", end)
		_, err := s.service.Extend(s.ctx(access.TierSuperAdmin), intern.InternalKey, testNow.AddDate(0, 0, -1), nil)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("admins cannot extend", func() {
		intern := s.createIntern("extend-tier@example.com", end)
		_, err := s.service.Extend(s.ctx(access.TierAdmin), intern.InternalKey, newEnd, nil)
		s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
	})

	s.Run("employees have no internship to extend", func() {
		employee := s.createEmployee("extend-employee@example.com")
		_, err := s.service.Extend(s.ctx(access.TierSuperAdmin), employee.InternalKey, newEnd, nil)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})
}

func (s *PersonnelServiceSuite) TestEndInternshipAndRetire() {
	s.Run("ending an internship marks it expired", func() {
		intern := s.createIntern("end@example.com", testNow.AddDate(0, 2, 0))
		ended, err := s.service.EndInternship(s.ctx(access.TierAdmin), intern.InternalKey, nil)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, ended.Status)
		s.Equal(audit.ActionInternshipEnded, s.lastEvent().Action)

		_, err = s.service.EndInternship(s.ctx(access.TierAdmin), intern.InternalKey, nil)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})

	s.Run("retiring an employee marks them inactive", func() {
		employee := s.createEmployee("retire@example.com")
		retired, err := s.service.Retire(s.ctx(access.TierSuperAdmin), employee.InternalKey, nil)
		s.Require().NoError(err)
		s.Equal(models.StatusInactive, retired.Status)
		s.Equal(audit.ActionEmployeeRetired, s.lastEvent().Action)
	})

	s.Run("interns do not retire", func() {
		intern := s.createIntern("retire-intern@example.com", testNow.AddDate(0, 2, 0))
		_, err := s.service.Retire(s.ctx(access.TierSuperAdmin), intern.InternalKey, nil)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})
}

func (s *PersonnelServiceSuite) TestSoftDeleteAndRestore() {
	record := s.createEmployee("delete@example.com")

	s.Run("admins cannot soft-delete personnel", func() {
		_, err := s.service.SoftDelete(s.ctx(access.TierAdmin), record.InternalKey)
		s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
	})

	s.Run("soft delete hides without touching lifecycle state", func() {
		deleted, err := s.service.SoftDelete(s.ctx(access.TierSuperAdmin), record.InternalKey)
		s.Require().NoError(err)
		s.Require().NotNil(deleted.DeletedAt)
		s.Equal(models.StatusActive, deleted.Status)
		s.Equal(audit.ActionPersonnelDeleted, s.lastEvent().Action)

		listed, err := s.service.List(s.ctx(access.TierViewer), models.ListFilter{})
		s.Require().NoError(err)
		s.Empty(listed)

		listed, err = s.service.List(s.ctx(access.TierViewer), models.ListFilter{IncludeDeleted: true})
		s.Require().NoError(err)
		s.Len(listed, 1)
	})

	s.Run("restore clears the mark and preserves everything else", func() {
		_, err := s.service.Restore(s.ctx(access.TierAdmin), record.InternalKey)
		s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))

		restored, err := s.service.Restore(s.ctx(access.TierSuperAdmin), record.InternalKey)
		s.Require().NoError(err)
		s.Nil(restored.DeletedAt)
		s.Equal(models.StatusActive, restored.Status)
		s.Equal(record.OpaqueID, restored.OpaqueID)
		s.Equal(audit.ActionPersonnelRestored, s.lastEvent().Action)
	})
}

func (s *PersonnelServiceSuite) TestPurge() {
	record := s.createEmployee("purge@example.com")
	role := s.newRole("purge-role", 1)
	s.Require().NoError(s.service.AssignRole(s.ctx(access.TierAdmin), record.InternalKey, role.ID))

	s.Run("live records cannot be purged", func() {
		err := s.service.Purge(s.ctx(access.TierSuperAdmin), record.InternalKey)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})

	s.Run("purge cascades assignments and removes the record", func() {
		_, err := s.service.SoftDelete(s.ctx(access.TierSuperAdmin), record.InternalKey)
		s.Require().NoError(err)

		err = s.service.Purge(s.ctx(access.TierAdmin), record.InternalKey)
		s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))

		s.Require().NoError(s.service.Purge(s.ctx(access.TierSuperAdmin), record.InternalKey))

		_, err = s.service.Get(s.ctx(access.TierViewer), record.InternalKey)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))

		assignments, err := s.assignments.ListByPersonnel(context.Background(), record.InternalKey)
		s.Require().NoError(err)
		s.Empty(assignments)

		// The purge event is the final trace; it carries the last snapshot.
		event := s.lastEvent()
		s.Equal(audit.ActionPersonnelPurged, event.Action)
		s.Contains(string(event.Previous), record.OpaqueID)
	})
}

func (s *PersonnelServiceSuite) TestRoleAssignment() {
	record := s.createEmployee("roles@example.com")
	role := s.newRole("operator", 5)

	s.Run("assignment records the acting admin", func() {
		s.Require().NoError(s.service.AssignRole(s.ctx(access.TierAdmin), record.InternalKey, role.ID))

		assignments, err := s.assignments.ListByPersonnel(context.Background(), record.InternalKey)
		s.Require().NoError(err)
		s.Require().Len(assignments, 1)
		s.Equal(testNow, assignments[0].AssignedAt)
		s.Require().NotNil(assignments[0].AssignedBy)
		s.Equal("11111111-2222-3333-4444-555555555555", assignments[0].AssignedBy.String())
		s.Equal(audit.ActionRoleAssigned, s.lastEvent().Action)
	})

	s.Run("double assignment conflicts", func() {
		err := s.service.AssignRole(s.ctx(access.TierAdmin), record.InternalKey, role.ID)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})

	s.Run("unknown role is not found", func() {
		err := s.service.AssignRole(s.ctx(access.TierAdmin), record.InternalKey, uuid.New())
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("soft-deleted role is not assignable", func() {
		retiredRole := s.newRole("retired-role", 2)
		_, err := s.roles.Execute(context.Background(), retiredRole.ID,
			func(r *rolemodels.Role) error { return nil },
			func(r *rolemodels.Role) { r.ApplySoftDelete(testNow) },
		)
		s.Require().NoError(err)

		err = s.service.AssignRole(s.ctx(access.TierAdmin), record.InternalKey, retiredRole.ID)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})

	s.Run("removal unlinks and audits", func() {
		s.Require().NoError(s.service.RemoveRole(s.ctx(access.TierAdmin), record.InternalKey, role.ID))
		s.Equal(audit.ActionRoleRemoved, s.lastEvent().Action)

		err := s.service.RemoveRole(s.ctx(access.TierAdmin), record.InternalKey, role.ID)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("deleted records accept no assignments", func() {
		_, err := s.service.SoftDelete(s.ctx(access.TierSuperAdmin), record.InternalKey)
		s.Require().NoError(err)

		err = s.service.AssignRole(s.ctx(access.TierAdmin), record.InternalKey, role.ID)
		s.Equal(dErrors.CodeInvariantViolation, dErrors.CodeOf(err))
	})
}

func (s *PersonnelServiceSuite) TestTriggerSync() {
	s.Run("viewers cannot trigger", func() {
		err := s.service.TriggerSync(s.ctx(access.TierViewer))
		s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
	})

	s.Run("trigger is audited with no entity", func() {
		s.Require().NoError(s.service.TriggerSync(s.ctx(access.TierAdmin)))
		event := s.lastEvent()
		s.Equal(audit.ActionSyncTriggered, event.Action)
		s.Equal(uuid.Nil.String(), event.EntityKey)
	})
}

func (s *PersonnelServiceSuite) newRole(name string, clearance int) *rolemodels.Role {
	role, err := rolemodels.NewRole(uuid.New(), name, "", clearance, testNow)
	s.Require().NoError(err)
	s.Require().NoError(s.roles.Create(context.Background(), role))
	return role
}
