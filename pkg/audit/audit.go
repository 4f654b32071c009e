// Package audit defines the append-only audit trail written alongside every
// governed mutation. Events are transport-agnostic so stores can fan out;
// nothing in the system ever updates or deletes an event once written.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action names the state change an event records.
type Action string

const (
	// Personnel lifecycle
	ActionPersonnelCreated   Action = "personnel_created"
	ActionPersonnelUpdated   Action = "personnel_updated"
	ActionPersonnelDeleted   Action = "personnel_soft_deleted"
	ActionPersonnelRestored  Action = "personnel_restored"
	ActionPersonnelPurged    Action = "personnel_purged"
	ActionInternConverted    Action = "intern_converted"
	ActionInternExpired      Action = "intern_expired"
	ActionInternshipEnded    Action = "internship_ended"
	ActionInternshipExtended Action = "internship_extended"
	ActionEmployeeRetired    Action = "employee_retired"

	// Role management
	ActionRoleCreated  Action = "role_created"
	ActionRoleUpdated  Action = "role_updated"
	ActionRoleDeleted  Action = "role_soft_deleted"
	ActionRoleRestored Action = "role_restored"
	ActionRolePurged   Action = "role_purged"
	ActionRoleAssigned Action = "role_assigned"
	ActionRoleRemoved  Action = "role_removed"

	// Taxonomy
	ActionTaxonomyCreated Action = "taxonomy_created"
	ActionTaxonomyUpdated Action = "taxonomy_updated"
	ActionTaxonomyDeleted Action = "taxonomy_deleted"

	// Operational
	ActionSyncTriggered Action = "sync_triggered"
	ActionLoginFailed   Action = "login_failed"
)

// Event is one immutable audit record. Previous and New are JSON snapshots of
// the entity before and after the mutation; on category conversion both the
// old and new opaque IDs appear there so history stays resolvable.
type Event struct {
	ID         uuid.UUID
	Timestamp  time.Time
	Actor      string // admin account ID, empty for automated transitions
	ActorName  string
	ActorTier  string // tier at time of action
	Action     Action
	EntityType string
	EntityKey  string
	Previous   json.RawMessage
	New        json.RawMessage
	Reason     string
	ClientIP   string
	RequestID  string
}

// Store is the append-only audit sink. Append must participate in the ambient
// transaction of the mutation it describes: if the audit write fails, the
// mutation rolls back with it.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEntity(ctx context.Context, entityType, entityKey string, limit int) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Snapshot marshals an entity state for the Previous/New fields. Marshal
// failures degrade to a null snapshot rather than failing the mutation,
// since every snapshotted type here is a plain struct that cannot fail.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
