package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"bloodcore/pkg/domain"
)

// Two requests racing for a single unit: exactly one hold may win.
func TestConcurrentReserveSingleWinner(t *testing.T) {
	store := NewStore(nil)
	store.SetNowFunc(fixedClock(day0))
	ctx := context.Background()

	unit, err := store.RegisterUnit(ctx, testUnit("O-", 1, day0.AddDate(0, 0, 30)))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	const contenders = 8
	requests := make([]domain.Request, contenders)
	for i := range requests {
		req, err := store.CreateRequest(ctx, testRequest("O-", 1))
		if err != nil {
			t.Fatalf("create request: %v", err)
		}
		if _, err := store.TransitionRequest(ctx, req.ID, domain.RequestApproved); err != nil {
			t.Fatalf("approve: %v", err)
		}
		requests[i] = req
	}

	var wg sync.WaitGroup
	wins := make(chan string, contenders)
	failures := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(reqID string) {
			defer wg.Done()
			res, err := store.Reserve(ctx, unit.ID, 1, reqID, day0.Add(time.Hour))
			if err != nil {
				failures <- err
				return
			}
			wins <- res.RequestID
		}(requests[i].ID)
	}
	wg.Wait()
	close(wins)
	close(failures)

	var winners []string
	for id := range wins {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d", len(winners))
	}
	for err := range failures {
		if !domain.IsConflict(err) {
			t.Fatalf("losers must see conflicts, got %v", err)
		}
	}
	got, _ := store.FindUnit(unit.ID)
	if got.Status != domain.UnitReserved {
		t.Fatalf("unit must end reserved, got %s", got.Status)
	}
	gotReq, _ := store.FindRequest(winners[0])
	if gotReq.HeldQuantity() != 1 {
		t.Fatalf("winning request must carry the hold")
	}
}

// Concurrent reserve/release cycles across disjoint units must not
// corrupt the reservation index or deadlock.
func TestConcurrentDisjointUnits(t *testing.T) {
	store := NewStore(nil)
	store.SetNowFunc(fixedClock(day0))
	ctx := context.Background()

	const lanes = 6
	units := make([]domain.Unit, lanes)
	reqs := make([]domain.Request, lanes)
	for i := 0; i < lanes; i++ {
		u, err := store.RegisterUnit(ctx, testUnit("A+", 1, day0.AddDate(0, 0, 30)))
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		r, err := store.CreateRequest(ctx, testRequest("A+", 1))
		if err != nil {
			t.Fatalf("create request: %v", err)
		}
		if _, err := store.TransitionRequest(ctx, r.ID, domain.RequestApproved); err != nil {
			t.Fatalf("approve: %v", err)
		}
		units[i], reqs[i] = u, r
	}

	var wg sync.WaitGroup
	for i := 0; i < lanes; i++ {
		wg.Add(1)
		go func(unitID, reqID string) {
			defer wg.Done()
			for k := 0; k < 25; k++ {
				res, err := store.Reserve(ctx, unitID, 1, reqID, day0.Add(time.Hour))
				if err != nil {
					t.Errorf("reserve: %v", err)
					return
				}
				if _, err := store.Release(ctx, res.ID); err != nil {
					t.Errorf("release: %v", err)
					return
				}
			}
		}(units[i].ID, reqs[i].ID)
	}
	wg.Wait()

	if n := len(store.ListReservations()); n != 0 {
		t.Fatalf("expected empty reservation index, got %d", n)
	}
	for _, u := range store.ListUnits() {
		if u.Status != domain.UnitAvailable {
			t.Fatalf("unit %s must end available, got %s", u.ID, u.Status)
		}
	}
}
