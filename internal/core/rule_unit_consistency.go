package core

import (
	"context"
	"fmt"

	"bloodcore/pkg/domain"
)

// UnitConsistencyRule blocks commits that break the unit invariants: a
// reserved unit always carries its reservation reference, a non-reserved
// unit never does, and expiry stays after collection.
type UnitConsistencyRule struct{}

// NewUnitConsistencyRule constructs the rule.
func NewUnitConsistencyRule() UnitConsistencyRule { return UnitConsistencyRule{} }

// Name identifies the rule in violation reports.
func (UnitConsistencyRule) Name() string { return "unit_consistency" }

// Evaluate inspects every unit in the commit's scope.
func (r UnitConsistencyRule) Evaluate(_ context.Context, view RuleView, _ []Change) (Result, error) {
	var result Result
	block := func(id, msg string) {
		result.Violations = append(result.Violations, Violation{
			Rule:     r.Name(),
			Severity: SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityUnit,
			EntityID: id,
		})
	}
	for _, u := range view.ListUnits() {
		switch {
		case u.Status == UnitReserved && u.ReservationID == nil:
			block(u.ID, fmt.Sprintf("reserved unit %s carries no reservation reference", u.ID))
		case u.Status != UnitReserved && u.ReservationID != nil:
			block(u.ID, fmt.Sprintf("%s unit %s still references reservation %s", u.Status, u.ID, *u.ReservationID))
		}
		if !u.ExpiryDate.After(u.CollectionDate) {
			block(u.ID, fmt.Sprintf("unit %s expiry is not after collection", u.ID))
		}
		if u.Quantity <= 0 {
			block(u.ID, fmt.Sprintf("unit %s has non-positive quantity %d", u.ID, u.Quantity))
		}
	}
	return result, nil
}
