package core

import (
	"context"

	"bloodcore/pkg/domain"
)

// TypeInventory is the per-blood-type slice of the summary.
type TypeInventory struct {
	Available    int `json:"available"`
	ExpiringSoon int `json:"expiring_soon"`
	Reserved     int `json:"reserved"`
}

// InventorySummary is the dashboard view of the ledger: available and
// reserved unit quantities per blood type, with soon-to-expire counts inside
// the configured warning window.
type InventorySummary struct {
	ByType         map[BloodType]TypeInventory `json:"by_type"`
	TotalAvailable int                         `json:"total_available"`
	LowStock       []BloodType                 `json:"low_stock,omitempty"`
}

// InventorySummary computes current stock levels and publishes a low_stock
// event for every blood type under the configured threshold.
func (s *Service) InventorySummary(ctx context.Context) (InventorySummary, error) {
	ctx, done := s.instrument(ctx, "inventory_summary")
	var err error
	defer func() { done(err) }()

	now := s.clock()
	warnBefore := now.Add(s.cfg.ExpiryWarnWindow)
	summary := InventorySummary{ByType: make(map[BloodType]TypeInventory, len(domain.AllBloodTypes()))}
	for _, bt := range domain.AllBloodTypes() {
		summary.ByType[bt] = TypeInventory{}
	}

	err = s.ledger.View(ctx, func(view LedgerView) error {
		for _, unit := range view.ListUnits() {
			entry := summary.ByType[unit.BloodType]
			switch unit.Status {
			case UnitAvailable:
				if unit.Expired(now) {
					continue
				}
				entry.Available += unit.Quantity
				summary.TotalAvailable += unit.Quantity
				if unit.ExpiryDate.Before(warnBefore) {
					entry.ExpiringSoon += unit.Quantity
				}
			case UnitReserved:
				entry.Reserved += unit.Quantity
			default:
				continue
			}
			summary.ByType[unit.BloodType] = entry
		}
		return nil
	})
	if err != nil {
		return InventorySummary{}, err
	}

	for _, bt := range domain.AllBloodTypes() {
		if summary.ByType[bt].Available < s.cfg.LowStockThreshold {
			summary.LowStock = append(summary.LowStock, bt)
			s.publish(ctx, Event{
				Type: EventLowStock,
				Payload: map[string]any{
					"blood_type": bt.String(),
					"available":  summary.ByType[bt].Available,
					"threshold":  s.cfg.LowStockThreshold,
				},
			})
		}
	}
	return summary, nil
}
