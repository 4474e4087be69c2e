package core_test

import (
	"context"
	"testing"
	"time"

	"bloodcore/internal/core"
	"bloodcore/pkg/domain"
)

func submitApproved(t *testing.T, svc *core.Service, req domain.Request) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.SubmitRequest(ctx, req); err != nil {
		t.Fatalf("submit %s: %v", req.ID, err)
	}
	if _, err := svc.ApproveRequest(ctx, req.ID); err != nil {
		t.Fatalf("approve %s: %v", req.ID, err)
	}
}

func TestProcessPendingServesMostUrgentFirst(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// One unit, three competing requests: only critical can win it.
	if _, err := svc.RegisterUnit(ctx, unitFixture("U1", "O-", 1, day(10))); err != nil {
		t.Fatalf("register: %v", err)
	}
	submitApproved(t, svc, requestFixture("R-routine", "O-", 1, core.UrgencyRoutine))
	submitApproved(t, svc, requestFixture("R-critical", "O-", 1, core.UrgencyCritical))
	submitApproved(t, svc, requestFixture("R-urgent", "O-", 1, core.UrgencyUrgent))

	results, err := svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 passes, got %d", len(results))
	}
	order := []string{results[0].RequestID, results[1].RequestID, results[2].RequestID}
	want := []string{"R-critical", "R-urgent", "R-routine"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("drain order %v, want %v", order, want)
		}
	}
	if results[0].FulfilledQuantity != 1 {
		t.Fatalf("critical request should take the unit: %+v", results[0])
	}
	for _, r := range results[1:] {
		if r.FulfilledQuantity != 0 || r.RequestStatus != core.RequestPartiallyFulfilled {
			t.Fatalf("lower tiers should go short: %+v", r)
		}
	}
}

func TestProcessPendingBreaksTiesByDeadlineThenID(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	early := requestFixture("R-b", "A+", 1, core.UrgencyUrgent)
	early.RequiredBy = day(1)
	late := requestFixture("R-a", "A+", 1, core.UrgencyUrgent)
	late.RequiredBy = day(3)
	sameDeadline := requestFixture("R-c", "A+", 1, core.UrgencyUrgent)
	sameDeadline.RequiredBy = day(1)

	submitApproved(t, svc, late)
	submitApproved(t, svc, sameDeadline)
	submitApproved(t, svc, early)

	results, err := svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	var order []string
	for _, r := range results {
		order = append(order, r.RequestID)
	}
	want := []string{"R-b", "R-c", "R-a"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("drain order %v, want %v", order, want)
		}
	}
}

func TestProcessPendingIncludesRequeuedRequests(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U1", "B-", 1, day(1))); err != nil {
		t.Fatalf("register: %v", err)
	}
	submitApproved(t, svc, requestFixture("R1", "B-", 1, core.UrgencyUrgent))
	if _, err := svc.Allocate(ctx, "R1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	// The reserved unit expires before transfusion; the sweep demotes the
	// request and the next coordinator pass retries it against fresh stock.
	clock.Advance(36 * time.Hour)
	if _, err := svc.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, err := svc.RegisterUnit(ctx, unitFixture("U2", "B-", 1, day(30))); err != nil {
		t.Fatalf("register U2: %v", err)
	}

	results, err := svc.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if len(results) != 1 || results[0].RequestID != "R1" {
		t.Fatalf("expected R1 re-queued, got %+v", results)
	}
	if results[0].RequestStatus != core.RequestFulfilled {
		t.Fatalf("expected R1 refilled, got %+v", results[0])
	}
	if len(results[0].Reservations) != 1 || results[0].Reservations[0].UnitID != "U2" {
		t.Fatalf("expected U2 reserved, got %+v", results[0].Reservations)
	}
}
