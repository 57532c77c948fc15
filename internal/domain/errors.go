package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrDonationNotFound = errors.New("donation not found")
	ErrUnauthenticated  = errors.New("caller is not authenticated")
	ErrNotExpired       = errors.New("donation is still within its safety window")
)

// DuplicateDonationError is returned when a donation id is already in use.
type DuplicateDonationError struct {
	ID string
}

func (e *DuplicateDonationError) Error() string {
	return fmt.Sprintf("donation %q already exists", e.ID)
}

// ExpiredError is returned when a donation has passed its safety window.
type ExpiredError struct {
	ID        string
	SafeUntil time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("donation %q expired at %s", e.ID, e.SafeUntil.UTC().Format(time.RFC3339))
}

// ConflictError is returned when another caller already won the transition.
// Callers should treat it as "no longer available".
type ConflictError struct {
	ID       string
	Expected Status
	Actual   Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("donation %q is no longer %q (now %q)", e.ID, e.Expected, e.Actual)
}

// InvalidActorError is returned when the caller's role or identity does not
// allow the requested transition.
type InvalidActorError struct {
	Event   Event
	ActorID string
	Role    Role
}

func (e *InvalidActorError) Error() string {
	return fmt.Sprintf("actor %q with role %q may not %s this donation", e.ActorID, e.Role, e.Event)
}

// TransitionError is returned when a state transition is not allowed.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// ValidationError is returned when a new donation breaks a creation-time invariant.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid donation (%s): %s", strings.Join(e.Fields, ", "), e.Reason)
}

// InvariantError is returned when a stored donation is internally inconsistent.
type InvariantError struct {
	ID     string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("donation %q violates invariant: %s", e.ID, e.Reason)
}

// StorageUnavailableError wraps failures of the underlying store.
// Unlike the other errors here it may succeed on retry.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable while %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}
