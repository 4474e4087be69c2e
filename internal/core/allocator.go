package core

import (
	"context"
	"sort"
	"time"

	"bloodcore/pkg/domain"
)

// AllocationResult reports the outcome of one allocation pass. Shortfall is
// a normal business outcome, not an error; a partially fulfilled request
// stays eligible for future passes.
type AllocationResult struct {
	RequestID         string        `json:"request_id"`
	FulfilledQuantity int           `json:"fulfilled_quantity"`
	Shortfall         int           `json:"shortfall"`
	Reservations      []Reservation `json:"reservations,omitempty"`
	RequestStatus     RequestStatus `json:"request_status"`
}

// Allocate runs one greedy first-expiring-first-used pass for the request.
// Candidates are available, compatible, unexpired units ordered by expiry
// date ascending (unit id breaks ties); each reservation attempt is an
// independent atomic ledger operation and a lost race just moves the pass to
// the next candidate. Calling Allocate on an already satisfied request is a
// no-op that reports the held quantity again.
func (s *Service) Allocate(ctx context.Context, requestID string) (AllocationResult, error) {
	ctx, done := s.instrument(ctx, "allocate")
	var err error
	defer func() { done(err) }()

	req, ok := s.ledger.FindRequest(requestID)
	if !ok {
		err = domain.ErrNotFound{Entity: domain.EntityRequest, ID: requestID}
		return AllocationResult{}, err
	}
	switch req.Status {
	case RequestFulfilled:
		return AllocationResult{
			RequestID:         requestID,
			FulfilledQuantity: req.HeldQuantity(),
			RequestStatus:     req.Status,
		}, nil
	case RequestApproved, RequestPartiallyFulfilled:
		if req, err = s.ledger.TransitionRequest(ctx, requestID, RequestAllocating); err != nil {
			return AllocationResult{}, err
		}
	case RequestAllocating:
	default:
		err = domain.ErrInvalidState{
			Entity: domain.EntityRequest, ID: requestID,
			From: string(req.Status), To: string(RequestAllocating),
		}
		return AllocationResult{}, err
	}

	// Staleness is enforced before every pass.
	if _, err = s.Sweep(ctx); err != nil {
		return AllocationResult{}, err
	}
	if req, ok = s.ledger.FindRequest(requestID); !ok {
		err = domain.ErrNotFound{Entity: domain.EntityRequest, ID: requestID}
		return AllocationResult{}, err
	}

	now := s.clock()
	need := req.Shortfall()
	var made []Reservation
	if need > 0 {
		for _, unit := range s.candidates(req.BloodType, now) {
			if need == 0 {
				break
			}
			quantity := unit.Quantity
			if quantity > need {
				quantity = need
			}
			res, rerr := s.ledger.Reserve(ctx, unit.ID, quantity, requestID, now.Add(s.cfg.HoldTimeout))
			if domain.IsConflict(rerr) {
				// Lost to a concurrent claim or lazy expiry; next candidate.
				continue
			}
			if rerr != nil {
				err = rerr
				return AllocationResult{}, err
			}
			made = append(made, res)
			need -= res.Quantity
		}
	}

	final, ok := s.ledger.FindRequest(requestID)
	if !ok {
		err = domain.ErrNotFound{Entity: domain.EntityRequest, ID: requestID}
		return AllocationResult{}, err
	}
	target := RequestPartiallyFulfilled
	if final.Shortfall() == 0 {
		target = RequestFulfilled
	}
	if final.Status != target {
		if final, err = s.ledger.TransitionRequest(ctx, requestID, target); err != nil {
			return AllocationResult{}, err
		}
	}

	result := AllocationResult{
		RequestID:         requestID,
		FulfilledQuantity: final.HeldQuantity(),
		Shortfall:         final.Shortfall(),
		Reservations:      made,
		RequestStatus:     final.Status,
	}
	s.publish(ctx, Event{
		Type:     EventAllocated,
		EntityID: requestID,
		Payload: map[string]any{
			"fulfilled": result.FulfilledQuantity,
			"shortfall": result.Shortfall,
			"status":    string(result.RequestStatus),
		},
	})
	return result, nil
}

// candidates returns available, compatible, unexpired units ordered by the
// first-expiring-first-used policy.
func (s *Service) candidates(recipient BloodType, now time.Time) []Unit {
	var out []Unit
	for _, unit := range s.ledger.ListUnits() {
		if unit.Status != UnitAvailable || unit.Expired(now) {
			continue
		}
		if !s.CheckCompatibility(unit.BloodType, recipient).Compatible {
			continue
		}
		out = append(out, unit)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
