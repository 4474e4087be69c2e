package core_test

import (
	"context"
	"testing"
	"time"

	"bloodcore/internal/core"
)

func TestSweepExpiresReservedUnitAndDemotesRequest(t *testing.T) {
	svc, sink, clock := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U1", "O-", 2, day(1))); err != nil {
		t.Fatalf("register: %v", err)
	}
	submitApproved(t, svc, requestFixture("R1", "O-", 2, core.UrgencyCritical))
	if _, err := svc.Allocate(ctx, "R1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	clock.Advance(36 * time.Hour)

	report, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.ExpiredUnits != 1 || report.ReleasedReservations != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.RequeuedRequests) != 1 || report.RequeuedRequests[0] != "R1" {
		t.Fatalf("expected R1 requeued, got %+v", report.RequeuedRequests)
	}

	unit, _ := svc.Ledger().FindUnit("U1")
	if unit.Status != core.UnitExpired {
		t.Fatalf("expected expired unit, got %s", unit.Status)
	}
	req, _ := svc.Ledger().FindRequest("R1")
	if req.Status != core.RequestPartiallyFulfilled {
		t.Fatalf("expected demoted request, got %s", req.Status)
	}
	if req.HeldQuantity() != 0 {
		t.Fatalf("held quantity should drop to zero, got %d", req.HeldQuantity())
	}
	if len(sink.ByType(core.EventUnitExpired)) != 1 {
		t.Fatalf("expected one unit_expired event")
	}
}

func TestSweepReleasesTimedOutHolds(t *testing.T) {
	svc, sink, clock := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U1", "A+", 1, day(60))); err != nil {
		t.Fatalf("register: %v", err)
	}
	submitApproved(t, svc, requestFixture("R1", "A+", 1, core.UrgencyRoutine))
	if _, err := svc.Allocate(ctx, "R1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	// Past the hold timeout but well inside the unit's shelf life.
	clock.Advance(svc.Config().HoldTimeout + time.Minute)

	report, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.ExpiredUnits != 0 || report.ReleasedReservations != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	unit, _ := svc.Ledger().FindUnit("U1")
	if unit.Status != core.UnitAvailable {
		t.Fatalf("unit should return to stock, got %s", unit.Status)
	}
	req, _ := svc.Ledger().FindRequest("R1")
	if req.Status != core.RequestPartiallyFulfilled || len(req.Reservations) != 0 {
		t.Fatalf("request should be back in the pool, got %+v", req)
	}
	if len(sink.ByType(core.EventHoldTimedOut)) != 1 {
		t.Fatalf("expected one hold_timed_out event")
	}
}

func TestSweepCountsExpiringSoonStock(t *testing.T) {
	svc, sink, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U-soon", "B+", 1, day(3))); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterUnit(ctx, unitFixture("U-fresh", "B+", 1, day(30))); err != nil {
		t.Fatalf("register: %v", err)
	}

	report, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.ExpiringSoon != 1 {
		t.Fatalf("expected 1 expiring soon, got %d", report.ExpiringSoon)
	}
	alerts := sink.ByType(core.EventExpiryAlert)
	if len(alerts) != 1 {
		t.Fatalf("expected one expiry_alert event, got %d", len(alerts))
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U1", "O+", 1, day(1))); err != nil {
		t.Fatalf("register: %v", err)
	}
	clock.Advance(72 * time.Hour)

	first, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if first.ExpiredUnits != 1 {
		t.Fatalf("expected 1 expiry, got %+v", first)
	}
	second, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if second.ExpiredUnits != 0 || second.ReleasedReservations != 0 {
		t.Fatalf("second pass must be a no-op, got %+v", second)
	}
}

func TestRunSweeperStopsOnContextCancel(t *testing.T) {
	svc, _, _ := newTestService()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.RunSweeper(ctx, 5*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
