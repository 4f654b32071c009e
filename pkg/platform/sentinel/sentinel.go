package sentinel

import "errors"

// Sentinel errors for storage-level facts. Store implementations return these
// (optionally wrapped) so services can translate them into coded domain
// errors without knowing which backend produced them.
//
// These represent factual states about rows, not validation failures:
// - ErrNotFound: row does not exist in the store
// - ErrConflict: unique constraint (email, opaque ID, role name) collision
// - ErrVersionMismatch: optimistic-concurrency check failed on update
// - ErrInvalidState: row in wrong state for the requested operation
// - ErrUnavailable: backend temporarily unreachable
//
// For input validation use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrInvalidState    = errors.New("invalid state")
	ErrUnavailable     = errors.New("unavailable")
)
