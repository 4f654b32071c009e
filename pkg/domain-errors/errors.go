// Package domainerrors provides coded errors that services return to the
// transport layer. Codes classify the failure; the transport layer decides
// the HTTP-status mapping so business logic never imports net/http.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain failure.
type Code string

const (
	// CodeValidation covers malformed or semantically invalid input.
	CodeValidation Code = "validation_error"
	// CodeBadRequest covers requests that cannot be decoded or are
	// structurally wrong before domain validation runs.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized covers missing or invalid credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden covers an authenticated principal whose access tier is
	// insufficient for the operation.
	CodeForbidden Code = "forbidden"
	// CodeNotFound covers lookups of entities that do not exist or are
	// hidden by soft-deletion.
	CodeNotFound Code = "not_found"
	// CodeConflict covers optimistic-concurrency version mismatches and
	// uniqueness collisions. Callers may re-fetch and retry.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation covers lifecycle guard failures: the entity is
	// in a state from which the requested transition is not allowed.
	// Never retried without an intervening state change.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal covers storage and infrastructure failures.
	CodeInternal Code = "internal_error"
)

// Error is the concrete coded error type. Services construct it via New and
// Wrap; callers inspect it via HasCode rather than type assertions.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is treat two coded errors with the same code and message as
// equivalent, which keeps test assertions independent of pointer identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New builds a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause remains
// available through errors.Unwrap for logging; the code drives the response.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		de = nil
	}
	return false
}

// Is is a readability alias for HasCode at call sites that read like
// dErrors.Is(err, dErrors.CodeNotFound).
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code carried by err, or CodeInternal when err
// is not a coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost message carried by err, or an empty string
// for non-coded errors so internal details never leak to clients.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
