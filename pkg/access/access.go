// Package access implements the three-tier permission model. Evaluation is a
// pure comparison over an ordered tier enum plus one static operation table,
// so every entry point that gates a mutation resolves permissions through the
// same code path.
package access

import (
	"fmt"
	"strings"

	dErrors "prismid/pkg/domain-errors"
)

// Tier is an ordered access level. The zero value is invalid and authorizes
// nothing, so a missing or unparsed tier always denies.
type Tier int

const (
	TierViewer Tier = iota + 1
	TierAdmin
	TierSuperAdmin
)

var tierNames = map[Tier]string{
	TierViewer:     "VIEWER",
	TierAdmin:      "ADMIN",
	TierSuperAdmin: "SUPERADMIN",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TIER(%d)", int(t))
}

// Valid reports whether t is one of the three defined tiers.
func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// Level exposes the tier's numeric rank.
func (t Tier) Level() int {
	return int(t)
}

// Meets reports whether t is at least the required tier.
func (t Tier) Meets(required Tier) bool {
	return t.Valid() && required.Valid() && t >= required
}

// MarshalJSON emits the tier name so API payloads and audit snapshots stay
// readable.
func (t Tier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *Tier) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier converts a stored or transmitted tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VIEWER":
		return TierViewer, nil
	case "ADMIN":
		return TierAdmin, nil
	case "SUPERADMIN":
		return TierSuperAdmin, nil
	default:
		return 0, dErrors.Newf(dErrors.CodeValidation, "unknown access tier %q", s)
	}
}

// Operation names a mutating action subject to tier gating.
type Operation string

const (
	OpCreate         Operation = "create"
	OpUpdate         Operation = "update"
	OpSoftDelete     Operation = "soft_delete"
	OpRestore        Operation = "restore"
	OpPurge          Operation = "purge"
	OpRoleAssign     Operation = "role_assign"
	OpRoleRemove     Operation = "role_remove"
	OpConvert        Operation = "convert"
	OpRetire         Operation = "retire"
	OpEndInternship  Operation = "end_internship"
	OpExtend         Operation = "extend"
	OpSync           Operation = "sync"
	OpManageTaxonomy Operation = "manage_taxonomy"
)

// requiredTier is the single source of truth for operation gating. Viewers
// hold no entry here: they may read only. Personnel soft-delete, restore and
// purge are lifecycle transitions and carry a stricter SUPERADMIN guard in
// the transition table; the entries here cover the general (role) case.
var requiredTier = map[Operation]Tier{
	OpCreate:         TierAdmin,
	OpUpdate:         TierAdmin,
	OpSoftDelete:     TierAdmin,
	OpRestore:        TierAdmin,
	OpRoleAssign:     TierAdmin,
	OpRoleRemove:     TierAdmin,
	OpEndInternship:  TierAdmin,
	OpSync:           TierAdmin,
	OpPurge:          TierSuperAdmin,
	OpConvert:        TierSuperAdmin,
	OpRetire:         TierSuperAdmin,
	OpExtend:         TierSuperAdmin,
	OpManageTaxonomy: TierSuperAdmin,
}

// RequiredTier returns the minimum tier for an operation. Unknown operations
// resolve to SUPERADMIN so an unmapped action can never be under-gated.
func RequiredTier(op Operation) Tier {
	if t, ok := requiredTier[op]; ok {
		return t
	}
	return TierSuperAdmin
}

// Authorize returns a typed denial when the principal tier does not meet the
// required tier. It performs no I/O and never panics; denial is a result,
// not control flow.
func Authorize(principal, required Tier) error {
	if !principal.Meets(required) {
		return dErrors.Newf(dErrors.CodeForbidden, "requires %s access or higher", required)
	}
	return nil
}

// AuthorizeOp gates an operation using the static table.
func AuthorizeOp(principal Tier, op Operation) error {
	return Authorize(principal, RequiredTier(op))
}
