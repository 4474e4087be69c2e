package core

import (
	"context"
	"fmt"

	"bloodcore/pkg/domain"
)

// ReservationIntegrityRule blocks any commit that would leave a request
// holding more quantity than it asked for, or a reservation pointing at a
// different request than the one carrying it.
type ReservationIntegrityRule struct{}

// NewReservationIntegrityRule constructs the rule.
func NewReservationIntegrityRule() ReservationIntegrityRule { return ReservationIntegrityRule{} }

// Name identifies the rule in violation reports.
func (ReservationIntegrityRule) Name() string { return "reservation_integrity" }

// Evaluate inspects every request in the commit's scope.
func (r ReservationIntegrityRule) Evaluate(_ context.Context, view RuleView, _ []Change) (Result, error) {
	var result Result
	for _, req := range view.ListRequests() {
		if held := req.HeldQuantity(); held > req.Quantity {
			result.Violations = append(result.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("request %s holds %d of %d requested", req.ID, held, req.Quantity),
				Entity:   domain.EntityRequest,
				EntityID: req.ID,
			})
		}
		for _, res := range req.Reservations {
			if res.RequestID != req.ID {
				result.Violations = append(result.Violations, Violation{
					Rule:     r.Name(),
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("reservation %s belongs to request %s but is carried by %s", res.ID, res.RequestID, req.ID),
					Entity:   domain.EntityReservation,
					EntityID: res.ID,
				})
			}
			if res.Quantity <= 0 {
				result.Violations = append(result.Violations, Violation{
					Rule:     r.Name(),
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("reservation %s has non-positive quantity %d", res.ID, res.Quantity),
					Entity:   domain.EntityReservation,
					EntityID: res.ID,
				})
			}
		}
	}
	return result, nil
}
