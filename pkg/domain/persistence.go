package domain

import (
	"context"
	"time"
)

// LedgerView provides read-only access to ledger state. Implementations
// return defensive copies; mutating a returned value has no effect.
type LedgerView interface {
	ListUnits() []Unit
	FindUnit(id string) (Unit, bool)
	ListRequests() []Request
	FindRequest(id string) (Request, bool)
	ListReservations() []Reservation
	ListOverrides() []CompatibilityOverride
	FindOverride(donor, recipient BloodType) (CompatibilityOverride, bool)
}

// Ledger is the authoritative record of units, requests, and reservations.
// Every mutation is a single atomic transition serialized per record, so
// operations against disjoint units proceed in parallel. Reservation
// attempts are non-blocking best-effort: a unit that is no longer claimable
// fails fast with ErrConflict or ErrExpired rather than waiting.
type Ledger interface {
	LedgerView

	RegisterUnit(ctx context.Context, unit Unit) (Unit, error)

	// Reserve atomically claims an available, unexpired unit for the given
	// request and quantity. The unit moves to reserved and the reservation is
	// appended to the request in the same step, keeping the held-quantity
	// invariant intact.
	Reserve(ctx context.Context, unitID string, quantity int, requestID string, expiresAt time.Time) (Reservation, error)

	// Release destroys a reservation, returning the unit to available (or to
	// expired when its shelf life lapsed while reserved).
	Release(ctx context.Context, reservationID string) (Reservation, error)

	// Finalize consumes a reservation, moving the unit to transfused.
	Finalize(ctx context.Context, reservationID string) (Reservation, error)

	// ExpireUnit transitions an available or reserved unit to expired. When
	// the unit was reserved the associated reservation is released in the
	// same atomic step and returned.
	ExpireUnit(ctx context.Context, unitID string) (Unit, *Reservation, error)

	QuarantineUnit(ctx context.Context, unitID, reason string) (Unit, error)
	ReleaseQuarantine(ctx context.Context, unitID string) (Unit, error)

	CreateRequest(ctx context.Context, req Request) (Request, error)
	TransitionRequest(ctx context.Context, id string, to RequestStatus, mutate ...func(*Request)) (Request, error)

	SetOverride(ctx context.Context, override CompatibilityOverride) (CompatibilityOverride, error)
	ClearOverride(ctx context.Context, donor, recipient BloodType) error

	// View runs fn against a point-in-time snapshot of the full state.
	View(ctx context.Context, fn func(LedgerView) error) error
}
