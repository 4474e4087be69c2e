package memory

import (
	"context"
	"fmt"

	"bloodcore/pkg/domain"
)

// SetOverride stores or replaces the compatibility exception for a
// donor/recipient pair. Overrides short-circuit the computed matrix.
func (s *Store) SetOverride(_ context.Context, o domain.CompatibilityOverride) (domain.CompatibilityOverride, error) {
	if !o.Donor.Valid() || !o.Recipient.Valid() {
		return domain.CompatibilityOverride{}, fmt.Errorf("set override: malformed blood type pair %s -> %s", o.Donor, o.Recipient)
	}
	now := s.nowFn()
	key := overrideKey(o.Donor, o.Recipient)

	s.idxMu.Lock()
	existing, exists := s.overrides[key]
	if exists {
		o.Base = existing.Base
		o.UpdatedAt = now
	} else {
		if o.ID == "" {
			o.ID = s.newID()
		}
		o.CreatedAt = now
		o.UpdatedAt = now
	}
	s.overrides[key] = o
	s.idxMu.Unlock()

	action := domain.ActionCreate
	var before any
	if exists {
		action = domain.ActionUpdate
		before = existing
	}
	s.commit([]domain.Change{{Entity: domain.EntityOverride, Action: action, Before: before, After: o}})
	return o, nil
}

// ClearOverride removes the stored exception for a donor/recipient pair,
// restoring the computed rule.
func (s *Store) ClearOverride(_ context.Context, donor, recipient domain.BloodType) error {
	key := overrideKey(donor, recipient)

	s.idxMu.Lock()
	existing, exists := s.overrides[key]
	if exists {
		delete(s.overrides, key)
	}
	s.idxMu.Unlock()

	if !exists {
		return domain.ErrNotFound{Entity: domain.EntityOverride, ID: key}
	}
	s.commit([]domain.Change{{Entity: domain.EntityOverride, Action: domain.ActionDelete, Before: existing}})
	return nil
}
