package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an unknown unit, request, reservation, or override id.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrConflict reports that a unit was no longer claimable when a reservation
// was attempted. It is expected under concurrency; the allocator recovers by
// moving to the next candidate.
type ErrConflict struct {
	UnitID string
	Reason string
}

func (e ErrConflict) Error() string {
	return fmt.Sprintf("unit %s unavailable: %s", e.UnitID, e.Reason)
}

// ErrExpired reports an attempt to reserve a unit whose expiry date has
// passed. The allocator treats it identically to ErrConflict.
type ErrExpired struct {
	UnitID string
}

func (e ErrExpired) Error() string {
	return fmt.Sprintf("unit %s has expired", e.UnitID)
}

// ErrInvalidState reports a transition attempted from a state that forbids
// it. This is a caller error and always propagates as a hard failure.
type ErrInvalidState struct {
	Entity EntityType
	ID     string
	From   string
	To     string
}

func (e ErrInvalidState) Error() string {
	return fmt.Sprintf("%s %s cannot transition from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// IsNotFound reports whether err carries an ErrNotFound.
func IsNotFound(err error) bool {
	var target ErrNotFound
	return errors.As(err, &target)
}

// IsConflict reports whether err is recoverable by skipping to the next
// allocation candidate (conflict or expiry).
func IsConflict(err error) bool {
	var conflict ErrConflict
	if errors.As(err, &conflict) {
		return true
	}
	var expired ErrExpired
	return errors.As(err, &expired)
}

// IsExpired reports whether err carries an ErrExpired.
func IsExpired(err error) bool {
	var target ErrExpired
	return errors.As(err, &target)
}

// IsInvalidState reports whether err carries an ErrInvalidState.
func IsInvalidState(err error) bool {
	var target ErrInvalidState
	return errors.As(err, &target)
}
