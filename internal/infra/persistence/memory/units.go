package memory

import (
	"context"
	"fmt"
	"time"

	"bloodcore/pkg/domain"
)

// RegisterUnit stores a new unit record. Units enter the ledger as available
// unless the caller supplies an explicit quarantined status (e.g. pending
// screening results).
func (s *Store) RegisterUnit(ctx context.Context, u domain.Unit) (domain.Unit, error) {
	if !u.BloodType.Valid() {
		return domain.Unit{}, fmt.Errorf("register unit: malformed blood type %q", u.BloodType.String())
	}
	if u.Quantity <= 0 {
		return domain.Unit{}, fmt.Errorf("register unit: quantity must be positive")
	}
	if !u.ExpiryDate.After(u.CollectionDate) {
		return domain.Unit{}, fmt.Errorf("register unit: expiry date must be after collection date")
	}
	switch u.Status {
	case "":
		u.Status = domain.UnitAvailable
	case domain.UnitAvailable, domain.UnitQuarantined:
	default:
		return domain.Unit{}, domain.ErrInvalidState{Entity: domain.EntityUnit, ID: u.ID, From: "new", To: string(u.Status)}
	}
	if u.ID == "" {
		u.ID = s.newID()
	}
	now := s.nowFn()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.ReservationID = nil

	view := newOpView()
	view.units[u.ID] = u
	changes := []domain.Change{{Entity: domain.EntityUnit, Action: domain.ActionCreate, After: cloneUnit(u)}}
	if err := s.evaluate(ctx, view, changes); err != nil {
		return domain.Unit{}, err
	}

	s.mu.Lock()
	if _, exists := s.units[u.ID]; exists {
		s.mu.Unlock()
		return domain.Unit{}, fmt.Errorf("register unit: %q already exists", u.ID)
	}
	s.units[u.ID] = &unitRecord{u: cloneUnit(u)}
	s.mu.Unlock()

	s.commit(changes)
	return cloneUnit(u), nil
}

// Reserve atomically claims an available, unexpired unit for a request. The
// unit transition and the request's reservation append commit in one step so
// the held-quantity invariant can never be observed broken. A unit whose
// shelf life lapsed is flipped to expired on the spot and reported as
// ErrExpired, which allocation passes treat as a skipped candidate.
func (s *Store) Reserve(ctx context.Context, unitID string, quantity int, requestID string, expiresAt time.Time) (domain.Reservation, error) {
	if quantity <= 0 {
		return domain.Reservation{}, fmt.Errorf("reserve: quantity must be positive")
	}
	uRec, ok := s.unitRecord(unitID)
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound{Entity: domain.EntityUnit, ID: unitID}
	}
	rRec, ok := s.requestRecord(requestID)
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound{Entity: domain.EntityRequest, ID: requestID}
	}

	// Commit hooks re-read committed state, so they only run once the record
	// locks are back down.
	res, changes, err := s.reserveLocked(ctx, uRec, rRec, unitID, quantity, requestID, expiresAt)
	if len(changes) > 0 {
		s.commit(changes)
	}
	return res, err
}

func (s *Store) reserveLocked(ctx context.Context, uRec *unitRecord, rRec *requestRecord, unitID string, quantity int, requestID string, expiresAt time.Time) (domain.Reservation, []domain.Change, error) {
	uRec.mu.Lock()
	defer uRec.mu.Unlock()

	now := s.nowFn()
	switch uRec.u.Status {
	case domain.UnitAvailable:
		if uRec.u.Expired(now) {
			// Staleness is enforced on read: flip the unit before rejecting.
			expired := cloneUnit(uRec.u)
			expired.Status = domain.UnitExpired
			expired.UpdatedAt = now
			uRec.u = expired
			changes := []domain.Change{{Entity: domain.EntityUnit, Action: domain.ActionUpdate, After: cloneUnit(expired)}}
			return domain.Reservation{}, changes, domain.ErrExpired{UnitID: unitID}
		}
	case domain.UnitReserved:
		return domain.Reservation{}, nil, domain.ErrConflict{UnitID: unitID, Reason: "already reserved"}
	case domain.UnitQuarantined:
		return domain.Reservation{}, nil, domain.ErrConflict{UnitID: unitID, Reason: "quarantined"}
	default:
		return domain.Reservation{}, nil, domain.ErrConflict{UnitID: unitID, Reason: string(uRec.u.Status)}
	}
	if quantity > uRec.u.Quantity {
		return domain.Reservation{}, nil, domain.ErrConflict{UnitID: unitID, Reason: "insufficient quantity"}
	}

	rRec.mu.Lock()
	defer rRec.mu.Unlock()

	if domain.TerminalRequestStatus(rRec.r.Status) && rRec.r.Status != domain.RequestFulfilled {
		return domain.Reservation{}, nil, domain.ErrInvalidState{
			Entity: domain.EntityRequest, ID: requestID,
			From: string(rRec.r.Status), To: string(rRec.r.Status),
		}
	}
	if rRec.r.HeldQuantity()+quantity > rRec.r.Quantity {
		return domain.Reservation{}, nil, domain.ErrInvalidState{
			Entity: domain.EntityRequest, ID: requestID,
			From: string(rRec.r.Status), To: string(rRec.r.Status),
		}
	}

	res := domain.Reservation{
		ID:        s.newID(),
		UnitID:    unitID,
		RequestID: requestID,
		Quantity:  quantity,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	unit := cloneUnit(uRec.u)
	unit.Status = domain.UnitReserved
	unit.ReservationID = &res.ID
	unit.UpdatedAt = now
	req := cloneRequest(rRec.r)
	req.Reservations = append(req.Reservations, res)
	req.UpdatedAt = now

	view := newOpView()
	view.units[unitID] = unit
	view.requests[requestID] = req
	changes := []domain.Change{
		{Entity: domain.EntityReservation, Action: domain.ActionCreate, After: res},
		{Entity: domain.EntityUnit, Action: domain.ActionUpdate, Before: cloneUnit(uRec.u), After: cloneUnit(unit)},
		{Entity: domain.EntityRequest, Action: domain.ActionUpdate, Before: cloneRequest(rRec.r), After: cloneRequest(req)},
	}
	if err := s.evaluate(ctx, view, changes); err != nil {
		return domain.Reservation{}, nil, err
	}

	uRec.u = unit
	rRec.r = req
	s.idxMu.Lock()
	s.reservations[res.ID] = res
	s.idxMu.Unlock()
	return res, changes, nil
}

// Release destroys a reservation and returns the unit to circulation. A unit
// whose expiry passed while it sat reserved goes to expired instead of
// available, so a released hold can never resurrect stale stock.
func (s *Store) Release(ctx context.Context, reservationID string) (domain.Reservation, error) {
	return s.settle(ctx, reservationID, false)
}

// Finalize consumes a reservation after a transfusion: the unit moves to its
// terminal transfused state and the request's transfused tally grows by the
// reserved quantity.
func (s *Store) Finalize(ctx context.Context, reservationID string) (domain.Reservation, error) {
	return s.settle(ctx, reservationID, true)
}

func (s *Store) settle(ctx context.Context, reservationID string, finalize bool) (domain.Reservation, error) {
	s.idxMu.RLock()
	res, ok := s.reservations[reservationID]
	s.idxMu.RUnlock()
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound{Entity: domain.EntityReservation, ID: reservationID}
	}
	uRec, ok := s.unitRecord(res.UnitID)
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound{Entity: domain.EntityUnit, ID: res.UnitID}
	}
	rRec, ok := s.requestRecord(res.RequestID)
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound{Entity: domain.EntityRequest, ID: res.RequestID}
	}

	changes, err := s.settleLocked(ctx, uRec, rRec, res, reservationID, finalize)
	if len(changes) > 0 {
		s.commit(changes)
	}
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func (s *Store) settleLocked(ctx context.Context, uRec *unitRecord, rRec *requestRecord, res domain.Reservation, reservationID string, finalize bool) ([]domain.Change, error) {
	uRec.mu.Lock()
	defer uRec.mu.Unlock()

	if uRec.u.Status != domain.UnitReserved || uRec.u.ReservationID == nil || *uRec.u.ReservationID != reservationID {
		target := domain.UnitAvailable
		if finalize {
			target = domain.UnitTransfused
		}
		return nil, domain.ErrInvalidState{
			Entity: domain.EntityUnit, ID: res.UnitID,
			From: string(uRec.u.Status), To: string(target),
		}
	}

	rRec.mu.Lock()
	defer rRec.mu.Unlock()

	now := s.nowFn()
	unit := cloneUnit(uRec.u)
	unit.ReservationID = nil
	unit.UpdatedAt = now
	if finalize {
		unit.Status = domain.UnitTransfused
	} else if unit.Expired(now) {
		unit.Status = domain.UnitExpired
	} else {
		unit.Status = domain.UnitAvailable
	}

	req := cloneRequest(rRec.r)
	req.Reservations = removeReservation(req.Reservations, reservationID)
	if finalize {
		req.TransfusedQuantity += res.Quantity
	}
	req.UpdatedAt = now

	view := newOpView()
	view.units[unit.ID] = unit
	view.requests[req.ID] = req
	changes := []domain.Change{
		{Entity: domain.EntityReservation, Action: domain.ActionDelete, Before: res},
		{Entity: domain.EntityUnit, Action: domain.ActionUpdate, Before: cloneUnit(uRec.u), After: cloneUnit(unit)},
		{Entity: domain.EntityRequest, Action: domain.ActionUpdate, Before: cloneRequest(rRec.r), After: cloneRequest(req)},
	}
	if err := s.evaluate(ctx, view, changes); err != nil {
		return nil, err
	}

	uRec.u = unit
	rRec.r = req
	s.idxMu.Lock()
	delete(s.reservations, reservationID)
	s.idxMu.Unlock()
	return changes, nil
}

// ExpireUnit transitions an available or reserved unit to expired. A
// reservation held on the unit is released in the same atomic step; the
// caller re-queues the affected request for the reopened shortfall.
func (s *Store) ExpireUnit(ctx context.Context, unitID string) (domain.Unit, *domain.Reservation, error) {
	uRec, ok := s.unitRecord(unitID)
	if !ok {
		return domain.Unit{}, nil, domain.ErrNotFound{Entity: domain.EntityUnit, ID: unitID}
	}

	unit, released, changes, err := s.expireLocked(ctx, uRec, unitID)
	if len(changes) > 0 {
		s.commit(changes)
	}
	return unit, released, err
}

func (s *Store) expireLocked(ctx context.Context, uRec *unitRecord, unitID string) (domain.Unit, *domain.Reservation, []domain.Change, error) {
	uRec.mu.Lock()
	defer uRec.mu.Unlock()

	switch uRec.u.Status {
	case domain.UnitAvailable:
		now := s.nowFn()
		unit := cloneUnit(uRec.u)
		unit.Status = domain.UnitExpired
		unit.UpdatedAt = now
		view := newOpView()
		view.units[unitID] = unit
		changes := []domain.Change{{Entity: domain.EntityUnit, Action: domain.ActionUpdate, Before: cloneUnit(uRec.u), After: cloneUnit(unit)}}
		if err := s.evaluate(ctx, view, changes); err != nil {
			return domain.Unit{}, nil, nil, err
		}
		uRec.u = unit
		return cloneUnit(unit), nil, changes, nil

	case domain.UnitReserved:
		if uRec.u.ReservationID == nil {
			return domain.Unit{}, nil, nil, fmt.Errorf("expire unit: reserved unit %q has no reservation reference", unitID)
		}
		resID := *uRec.u.ReservationID
		s.idxMu.RLock()
		res, ok := s.reservations[resID]
		s.idxMu.RUnlock()
		if !ok {
			return domain.Unit{}, nil, nil, domain.ErrNotFound{Entity: domain.EntityReservation, ID: resID}
		}
		rRec, ok := s.requestRecord(res.RequestID)
		if !ok {
			return domain.Unit{}, nil, nil, domain.ErrNotFound{Entity: domain.EntityRequest, ID: res.RequestID}
		}
		rRec.mu.Lock()
		defer rRec.mu.Unlock()

		now := s.nowFn()
		unit := cloneUnit(uRec.u)
		unit.Status = domain.UnitExpired
		unit.ReservationID = nil
		unit.UpdatedAt = now
		req := cloneRequest(rRec.r)
		req.Reservations = removeReservation(req.Reservations, resID)
		req.UpdatedAt = now

		view := newOpView()
		view.units[unitID] = unit
		view.requests[req.ID] = req
		changes := []domain.Change{
			{Entity: domain.EntityReservation, Action: domain.ActionDelete, Before: res},
			{Entity: domain.EntityUnit, Action: domain.ActionUpdate, Before: cloneUnit(uRec.u), After: cloneUnit(unit)},
			{Entity: domain.EntityRequest, Action: domain.ActionUpdate, Before: cloneRequest(rRec.r), After: cloneRequest(req)},
		}
		if err := s.evaluate(ctx, view, changes); err != nil {
			return domain.Unit{}, nil, nil, err
		}
		uRec.u = unit
		rRec.r = req
		s.idxMu.Lock()
		delete(s.reservations, resID)
		s.idxMu.Unlock()
		released := res
		return cloneUnit(unit), &released, changes, nil

	default:
		return domain.Unit{}, nil, nil, domain.ErrInvalidState{
			Entity: domain.EntityUnit, ID: unitID,
			From: string(uRec.u.Status), To: string(domain.UnitExpired),
		}
	}
}

// QuarantineUnit pulls an available unit out of circulation, recording why.
func (s *Store) QuarantineUnit(ctx context.Context, unitID, reason string) (domain.Unit, error) {
	return s.transitionUnit(ctx, unitID, domain.UnitQuarantined, func(u *domain.Unit) {
		u.QuarantineReason = &reason
	})
}

// ReleaseQuarantine returns a quarantined unit to circulation.
func (s *Store) ReleaseQuarantine(ctx context.Context, unitID string) (domain.Unit, error) {
	return s.transitionUnit(ctx, unitID, domain.UnitAvailable, func(u *domain.Unit) {
		u.QuarantineReason = nil
	})
}

func (s *Store) transitionUnit(ctx context.Context, unitID string, to domain.UnitStatus, mutate func(*domain.Unit)) (domain.Unit, error) {
	uRec, ok := s.unitRecord(unitID)
	if !ok {
		return domain.Unit{}, domain.ErrNotFound{Entity: domain.EntityUnit, ID: unitID}
	}

	unit, changes, err := s.transitionUnitLocked(ctx, uRec, unitID, to, mutate)
	if len(changes) > 0 {
		s.commit(changes)
	}
	return unit, err
}

func (s *Store) transitionUnitLocked(ctx context.Context, uRec *unitRecord, unitID string, to domain.UnitStatus, mutate func(*domain.Unit)) (domain.Unit, []domain.Change, error) {
	uRec.mu.Lock()
	defer uRec.mu.Unlock()

	if !domain.CanTransitionUnit(uRec.u.Status, to) {
		return domain.Unit{}, nil, domain.ErrInvalidState{
			Entity: domain.EntityUnit, ID: unitID,
			From: string(uRec.u.Status), To: string(to),
		}
	}
	unit := cloneUnit(uRec.u)
	unit.Status = to
	unit.UpdatedAt = s.nowFn()
	if mutate != nil {
		mutate(&unit)
	}
	view := newOpView()
	view.units[unitID] = unit
	changes := []domain.Change{{Entity: domain.EntityUnit, Action: domain.ActionUpdate, Before: cloneUnit(uRec.u), After: cloneUnit(unit)}}
	if err := s.evaluate(ctx, view, changes); err != nil {
		return domain.Unit{}, nil, err
	}
	uRec.u = unit
	return cloneUnit(unit), changes, nil
}

func removeReservation(reservations []domain.Reservation, id string) []domain.Reservation {
	out := reservations[:0]
	for _, res := range reservations {
		if res.ID != id {
			out = append(out, res)
		}
	}
	return out
}
