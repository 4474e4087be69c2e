package core_test

import (
	"context"
	"testing"
	"time"

	"bloodcore/internal/core"
)

func TestInventorySummaryCountsByTypeAndStatus(t *testing.T) {
	svc, _, _ := newTestService(core.WithConfig(core.Config{LowStockThreshold: 1}))
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U1", "O-", 3, day(30))); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterUnit(ctx, unitFixture("U2", "O-", 2, day(3))); err != nil {
		t.Fatalf("register: %v", err)
	}
	// U3 expires first so the allocation takes it ahead of the compatible
	// O- stock.
	if _, err := svc.RegisterUnit(ctx, unitFixture("U3", "A+", 4, day(2))); err != nil {
		t.Fatalf("register: %v", err)
	}
	submitApproved(t, svc, requestFixture("R1", "A+", 4, core.UrgencyUrgent))
	if _, err := svc.Allocate(ctx, "R1"); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	summary, err := svc.InventorySummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.ByType) != 8 {
		t.Fatalf("summary must cover all eight types, got %d", len(summary.ByType))
	}

	oNeg := summary.ByType[mustBT("O-")]
	if oNeg.Available != 5 || oNeg.ExpiringSoon != 2 || oNeg.Reserved != 0 {
		t.Fatalf("unexpected O- slice %+v", oNeg)
	}
	aPos := summary.ByType[mustBT("A+")]
	if aPos.Available != 0 || aPos.Reserved != 4 {
		t.Fatalf("unexpected A+ slice %+v", aPos)
	}
	if summary.TotalAvailable != 5 {
		t.Fatalf("expected total 5, got %d", summary.TotalAvailable)
	}
}

func TestInventorySummaryExcludesExpiredStock(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U1", "B-", 2, day(1))); err != nil {
		t.Fatalf("register: %v", err)
	}
	clock.Advance(48 * time.Hour)

	summary, err := svc.InventorySummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.ByType[mustBT("B-")].Available != 0 || summary.TotalAvailable != 0 {
		t.Fatalf("expired stock must not count, got %+v", summary.ByType[mustBT("B-")])
	}
}

func TestInventorySummaryFlagsLowStock(t *testing.T) {
	svc, sink, _ := newTestService(core.WithConfig(core.Config{LowStockThreshold: 3}))
	ctx := context.Background()

	if _, err := svc.RegisterUnit(ctx, unitFixture("U1", "O-", 5, day(30))); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterUnit(ctx, unitFixture("U2", "A+", 1, day(30))); err != nil {
		t.Fatalf("register: %v", err)
	}

	summary, err := svc.InventorySummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	low := map[string]bool{}
	for _, bt := range summary.LowStock {
		low[bt.String()] = true
	}
	if low["O-"] {
		t.Fatalf("O- has 5 available, should not be low")
	}
	if !low["A+"] {
		t.Fatalf("A+ should be flagged low, got %+v", summary.LowStock)
	}
	// Every dry type alerts: the 6 empty ones plus A+.
	if len(sink.ByType(core.EventLowStock)) != 7 {
		t.Fatalf("expected 7 low_stock events, got %d", len(sink.ByType(core.EventLowStock)))
	}
}
