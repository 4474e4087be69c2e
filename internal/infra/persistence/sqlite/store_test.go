package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bloodcore/pkg/domain"
)

func TestSnapshotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store.SetNowFunc(func() time.Time { return now })

	bt, _ := domain.ParseBloodType("O-")
	unit, err := store.RegisterUnit(ctx, domain.Unit{
		BloodType:      bt,
		Quantity:       2,
		CollectionDate: now.AddDate(0, 0, -1),
		ExpiryDate:     now.AddDate(0, 0, 41),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	req, err := store.CreateRequest(ctx, domain.Request{
		BloodType:  bt,
		Quantity:   2,
		Urgency:    domain.UrgencyCritical,
		RequiredBy: now.AddDate(0, 0, 2),
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := store.TransitionRequest(ctx, req.ID, domain.RequestApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	res, err := store.Reserve(ctx, unit.ID, 2, req.ID, now.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Err(); err != nil {
		t.Fatalf("background snapshot: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, ok := reopened.FindUnit(unit.ID)
	if !ok || got.Status != domain.UnitReserved {
		t.Fatalf("expected reserved unit after reopen, got %+v ok=%v", got, ok)
	}
	if len(reopened.ListReservations()) != 1 {
		t.Fatalf("expected reservation index rebuilt")
	}
	// The hydrated ledger must stay operational.
	if _, err := reopened.Finalize(ctx, res.ID); err != nil {
		t.Fatalf("finalize after reopen: %v", err)
	}
	final, _ := reopened.FindUnit(unit.ID)
	if final.Status != domain.UnitTransfused {
		t.Fatalf("expected transfused, got %s", final.Status)
	}
}

func TestFlushWritesAllBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(buckets) {
		t.Fatalf("expected %d buckets, got %d", len(buckets), count)
	}
}
