package core_test

import (
	"context"
	"testing"
	"time"

	"bloodcore/internal/core"
	"bloodcore/pkg/domain"
)

func TestAllocatePrefersEarliestExpiry(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// Registration order deliberately disagrees with expiry order.
	for _, u := range []domain.Unit{
		unitFixture("U-mar", "O+", 1, day(29)),
		unitFixture("U-feb", "O+", 1, day(9)),
		unitFixture("U-apr", "O+", 1, day(60)),
	} {
		if _, err := svc.RegisterUnit(ctx, u); err != nil {
			t.Fatalf("register %s: %v", u.ID, err)
		}
	}
	if _, err := svc.SubmitRequest(ctx, requestFixture("R1", "O+", 1, core.UrgencyRoutine)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.ApproveRequest(ctx, "R1"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	result, err := svc.Allocate(ctx, "R1")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(result.Reservations) != 1 || result.Reservations[0].UnitID != "U-feb" {
		t.Fatalf("expected the earliest-expiring unit reserved, got %+v", result.Reservations)
	}
	for _, id := range []string{"U-mar", "U-apr"} {
		unit, _ := svc.Ledger().FindUnit(id)
		if unit.Status != core.UnitAvailable {
			t.Fatalf("unit %s should be untouched, got %s", id, unit.Status)
		}
	}
}

func TestAllocatePartialShortfallAndResume(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U1", "B+", 2, day(10))); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.SubmitRequest(ctx, requestFixture("R1", "B+", 5, core.UrgencyUrgent)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.ApproveRequest(ctx, "R1"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	result, err := svc.Allocate(ctx, "R1")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if result.FulfilledQuantity != 2 || result.Shortfall != 3 {
		t.Fatalf("expected 2 fulfilled / 3 short, got %d / %d", result.FulfilledQuantity, result.Shortfall)
	}
	if result.RequestStatus != core.RequestPartiallyFulfilled {
		t.Fatalf("unexpected status %s", result.RequestStatus)
	}

	// New stock arrives; a later pass picks the request back up.
	if _, err := svc.RegisterUnit(ctx, unitFixture("U2", "B+", 4, day(12))); err != nil {
		t.Fatalf("register U2: %v", err)
	}
	result, err = svc.Allocate(ctx, "R1")
	if err != nil {
		t.Fatalf("second allocate: %v", err)
	}
	if result.FulfilledQuantity != 5 || result.Shortfall != 0 {
		t.Fatalf("expected full coverage, got %d / %d", result.FulfilledQuantity, result.Shortfall)
	}
	if result.RequestStatus != core.RequestFulfilled {
		t.Fatalf("unexpected status %s", result.RequestStatus)
	}
	if len(result.Reservations) != 1 || result.Reservations[0].Quantity != 3 {
		t.Fatalf("second pass should reserve only the remaining 3, got %+v", result.Reservations)
	}
}

func TestAllocateFulfilledRequestIsNoOp(t *testing.T) {
	svc, sink, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U1", "A-", 1, day(10))); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.SubmitRequest(ctx, requestFixture("R1", "A-", 1, core.UrgencyRoutine)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.ApproveRequest(ctx, "R1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.Allocate(ctx, "R1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	allocated := len(sink.ByType(core.EventAllocated))

	result, err := svc.Allocate(ctx, "R1")
	if err != nil {
		t.Fatalf("repeat allocate: %v", err)
	}
	if result.FulfilledQuantity != 1 || len(result.Reservations) != 0 {
		t.Fatalf("repeat pass must not reserve again: %+v", result)
	}
	if result.RequestStatus != core.RequestFulfilled {
		t.Fatalf("unexpected status %s", result.RequestStatus)
	}
	if got := len(sink.ByType(core.EventAllocated)); got != allocated {
		t.Fatalf("no-op pass must not publish, had %d now %d", allocated, got)
	}
}

func TestAllocateRejectsPendingRequest(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.SubmitRequest(ctx, requestFixture("R1", "O-", 1, core.UrgencyRoutine)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Allocate(ctx, "R1"); !domain.IsInvalidState(err) {
		t.Fatalf("expected invalid state for unapproved request, got %v", err)
	}
	if _, err := svc.Allocate(ctx, "R-missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAllocateSkipsExpiredStock(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U-old", "O+", 1, day(1))); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterUnit(ctx, unitFixture("U-new", "O+", 1, day(30))); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.SubmitRequest(ctx, requestFixture("R1", "O+", 1, core.UrgencyUrgent)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.ApproveRequest(ctx, "R1"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	clock.Advance(48 * time.Hour) // U-old is now past expiry

	result, err := svc.Allocate(ctx, "R1")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(result.Reservations) != 1 || result.Reservations[0].UnitID != "U-new" {
		t.Fatalf("expected U-new reserved, got %+v", result.Reservations)
	}
	expired, _ := svc.Ledger().FindUnit("U-old")
	if expired.Status != core.UnitExpired {
		t.Fatalf("pre-pass sweep should expire U-old, got %s", expired.Status)
	}
}
