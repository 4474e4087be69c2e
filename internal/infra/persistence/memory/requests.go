package memory

import (
	"context"
	"fmt"

	"bloodcore/pkg/domain"
)

// CreateRequest stores a new clinical request. Requests always enter the
// ledger pending; approval is a separate transition driven by the caller.
func (s *Store) CreateRequest(ctx context.Context, r domain.Request) (domain.Request, error) {
	if !r.BloodType.Valid() {
		return domain.Request{}, fmt.Errorf("create request: malformed blood type %q", r.BloodType.String())
	}
	if r.Quantity <= 0 {
		return domain.Request{}, fmt.Errorf("create request: quantity must be positive")
	}
	switch r.Urgency {
	case "":
		r.Urgency = domain.UrgencyRoutine
	case domain.UrgencyRoutine, domain.UrgencyUrgent, domain.UrgencyCritical:
	default:
		return domain.Request{}, fmt.Errorf("create request: unknown urgency %q", r.Urgency)
	}
	if r.Status != "" && r.Status != domain.RequestPending {
		return domain.Request{}, domain.ErrInvalidState{Entity: domain.EntityRequest, ID: r.ID, From: "new", To: string(r.Status)}
	}
	r.Status = domain.RequestPending
	r.Reservations = nil
	r.TransfusedQuantity = 0
	if r.ID == "" {
		r.ID = s.newID()
	}
	now := s.nowFn()
	r.CreatedAt = now
	r.UpdatedAt = now

	view := newOpView()
	view.requests[r.ID] = r
	changes := []domain.Change{{Entity: domain.EntityRequest, Action: domain.ActionCreate, After: cloneRequest(r)}}
	if err := s.evaluate(ctx, view, changes); err != nil {
		return domain.Request{}, err
	}

	s.mu.Lock()
	if _, exists := s.requests[r.ID]; exists {
		s.mu.Unlock()
		return domain.Request{}, fmt.Errorf("create request: %q already exists", r.ID)
	}
	s.requests[r.ID] = &requestRecord{r: cloneRequest(r)}
	s.mu.Unlock()

	s.commit(changes)
	return cloneRequest(r), nil
}

// TransitionRequest moves a request through the status table, rejecting any
// transition the table does not list. Optional mutators run against the new
// revision before commit so callers can record transition context (e.g. a
// rejection reason) in the same atomic step; they must not touch status or
// reservations.
func (s *Store) TransitionRequest(ctx context.Context, id string, to domain.RequestStatus, mutate ...func(*domain.Request)) (domain.Request, error) {
	rRec, ok := s.requestRecord(id)
	if !ok {
		return domain.Request{}, domain.ErrNotFound{Entity: domain.EntityRequest, ID: id}
	}

	req, changes, err := s.transitionRequestLocked(ctx, rRec, id, to, mutate)
	if len(changes) > 0 {
		s.commit(changes)
	}
	return req, err
}

func (s *Store) transitionRequestLocked(ctx context.Context, rRec *requestRecord, id string, to domain.RequestStatus, mutate []func(*domain.Request)) (domain.Request, []domain.Change, error) {
	rRec.mu.Lock()
	defer rRec.mu.Unlock()

	if !domain.CanTransitionRequest(rRec.r.Status, to) {
		return domain.Request{}, nil, domain.ErrInvalidState{
			Entity: domain.EntityRequest, ID: id,
			From: string(rRec.r.Status), To: string(to),
		}
	}
	req := cloneRequest(rRec.r)
	req.Status = to
	req.UpdatedAt = s.nowFn()
	for _, fn := range mutate {
		fn(&req)
	}
	req.Status = to

	view := newOpView()
	view.requests[id] = req
	changes := []domain.Change{{Entity: domain.EntityRequest, Action: domain.ActionUpdate, Before: cloneRequest(rRec.r), After: cloneRequest(req)}}
	if err := s.evaluate(ctx, view, changes); err != nil {
		return domain.Request{}, nil, err
	}
	rRec.r = req
	return cloneRequest(req), changes, nil
}
