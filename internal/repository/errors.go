// Package repository implements the claim store: one row per
// (show_id, seat_id) whose uniqueness constraint is the entire
// concurrency-control mechanism of the reservation engine. The
// sentinel errors below are shared by every store implementation so
// that higher layers can distinguish failure scenarios with
// errors.Is and map them to HTTP responses.
package repository

import "errors"

// ErrConflict is returned when a seat is already claimed by another
// live owner, blocked, sold or reserved. It is an expected, user-facing
// outcome of the first-writer-wins tie-break, not a bug. Handlers
// should translate it into an HTTP 409 response.
var ErrConflict = errors.New("seat already claimed")

// ErrNotOwner is returned when a release or renew is attempted by a
// session that does not hold the claim. Callers treat it as a desync
// signal and resynchronize rather than fail hard.
var ErrNotOwner = errors.New("claim held by another session")

// ErrAlreadyAbsent is returned when a release targets a seat with no
// claim row at all. Releasing a never-held seat is a no-op, but the
// result is distinguishable so the caller can resynchronize instead of
// assuming success.
var ErrAlreadyAbsent = errors.New("no claim for seat")

// ErrTenantMismatch is returned when an operator action targets a
// claim owned by a different tenant.
var ErrTenantMismatch = errors.New("claim belongs to another tenant")

// ConflictReason explains why an acquire was refused.
type ConflictReason string

const (
	ReasonHeldByOther ConflictReason = "held_by_other"
	ReasonBlocked     ConflictReason = "blocked"
	ReasonSold        ConflictReason = "sold"
	ReasonReserved    ConflictReason = "reserved"
)

// ConflictError wraps ErrConflict with the reason the seat was
// unavailable, so the presentation layer can render "taken by someone
// else" versus "no longer on sale".
type ConflictError struct {
	Reason ConflictReason
}

func (e *ConflictError) Error() string {
	return "seat already claimed: " + string(e.Reason)
}

// Unwrap makes errors.Is(err, ErrConflict) hold for every ConflictError.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// conflictFor maps an existing live claim to the reason it refuses a
// new acquirer.
func conflictFor(state string) *ConflictError {
	switch state {
	case "blocked":
		return &ConflictError{Reason: ReasonBlocked}
	case "sold":
		return &ConflictError{Reason: ReasonSold}
	case "reserved":
		return &ConflictError{Reason: ReasonReserved}
	default:
		return &ConflictError{Reason: ReasonHeldByOther}
	}
}
