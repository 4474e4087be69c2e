package core

import (
	"context"
	"time"

	"bloodcore/pkg/domain"
)

// SweepReport summarizes one sweeper pass.
type SweepReport struct {
	ExpiredUnits         int      `json:"expired_units"`
	ReleasedReservations int      `json:"released_reservations"`
	RequeuedRequests     []string `json:"requeued_requests,omitempty"`
	ExpiringSoon         int      `json:"expiring_soon"`
}

// Sweep enforces staleness in one pass: units past their expiry date move to
// expired (releasing any reservation they carried), idle reservations past
// their hold timeout release back to circulation, and requests that lost
// holds re-enter the allocation pool. It runs lazily before every allocation
// pass and periodically from RunSweeper; racing with allocations is safe
// because every transition is an independent atomic ledger operation.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	now := s.clock()
	var report SweepReport
	requeued := map[string]bool{}

	for _, unit := range s.ledger.ListUnits() {
		if unit.Status != UnitAvailable && unit.Status != UnitReserved {
			continue
		}
		if !unit.Expired(now) {
			if unit.Status == UnitAvailable && unit.ExpiryDate.Before(now.Add(s.cfg.ExpiryWarnWindow)) {
				report.ExpiringSoon++
			}
			continue
		}
		_, released, err := s.ledger.ExpireUnit(ctx, unit.ID)
		if domain.IsInvalidState(err) || domain.IsNotFound(err) {
			// Another pass or an in-flight settle got there first.
			continue
		}
		if err != nil {
			return report, err
		}
		report.ExpiredUnits++
		s.publish(ctx, Event{
			Type:     EventUnitExpired,
			EntityID: unit.ID,
			Payload:  map[string]any{"blood_type": unit.BloodType.String(), "expiry": unit.ExpiryDate},
		})
		if released != nil {
			report.ReleasedReservations++
			if s.requeue(ctx, released.RequestID) {
				requeued[released.RequestID] = true
			}
		}
	}

	for _, res := range s.ledger.ListReservations() {
		if !res.TimedOut(now) {
			continue
		}
		if _, err := s.ledger.Release(ctx, res.ID); err != nil {
			if domain.IsNotFound(err) || domain.IsInvalidState(err) {
				continue
			}
			return report, err
		}
		report.ReleasedReservations++
		s.publish(ctx, Event{
			Type:     EventHoldTimedOut,
			EntityID: res.ID,
			Payload:  map[string]any{"unit_id": res.UnitID, "request_id": res.RequestID},
		})
		if s.requeue(ctx, res.RequestID) {
			requeued[res.RequestID] = true
		}
	}

	for id := range requeued {
		report.RequeuedRequests = append(report.RequeuedRequests, id)
	}
	if report.ExpiringSoon > 0 {
		s.publish(ctx, Event{
			Type:    EventExpiryAlert,
			Payload: map[string]any{"expiring_soon": report.ExpiringSoon, "window": s.cfg.ExpiryWarnWindow.String()},
		})
	}
	return report, nil
}

// requeue reopens a request that lost held quantity. A fulfilled request
// demotes to partially fulfilled; requests already in the allocation pool
// need no transition. Returns whether the request is now eligible for
// another pass.
func (s *Service) requeue(ctx context.Context, requestID string) bool {
	req, ok := s.ledger.FindRequest(requestID)
	if !ok {
		return false
	}
	switch req.Status {
	case RequestFulfilled:
		if _, err := s.ledger.TransitionRequest(ctx, requestID, RequestPartiallyFulfilled); err != nil {
			s.logger.Warn("requeue demotion failed", "request_id", requestID, "error", err)
			return false
		}
		return true
	case RequestAllocating, RequestPartiallyFulfilled, RequestApproved:
		return true
	default:
		return false
	}
}

// RunSweeper runs Sweep on a fixed cadence until the context is cancelled.
// A non-positive interval falls back to the configured default.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.cfg.SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if report, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			} else if report.ExpiredUnits > 0 || report.ReleasedReservations > 0 {
				s.logger.Info("sweep completed",
					"expired_units", report.ExpiredUnits,
					"released_reservations", report.ReleasedReservations,
					"requeued", len(report.RequeuedRequests),
				)
			}
		}
	}
}
