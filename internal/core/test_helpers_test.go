package core_test

import (
	"sync"
	"time"

	"bloodcore/internal/core"
	"bloodcore/pkg/domain"
)

// day0 anchors every fixture at a fixed instant so expiry and hold-timeout
// arithmetic in the tests is deterministic.
var day0 = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

// testClock is a mutable fixed time source shared by the service and its
// ledger.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock { return &testClock{now: start} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func mustBT(s string) domain.BloodType {
	bt, err := domain.ParseBloodType(s)
	if err != nil {
		panic(err)
	}
	return bt
}

// newTestService builds an in-memory service with a fixed clock and a memory
// event sink, both returned for assertions. Additional options append after
// the defaults so callers can override config.
func newTestService(opts ...core.Option) (*core.Service, *core.MemoryEventSink, *testClock) {
	clock := newTestClock(day0)
	sink := core.NewMemoryEventSink()
	base := []core.Option{core.WithClock(clock.Now), core.WithEventSink(sink)}
	svc := core.NewInMemoryService(nil, append(base, opts...)...)
	return svc, sink, clock
}

func unitFixture(id, bloodType string, qty int, expiry time.Time) domain.Unit {
	return domain.Unit{
		Base:            domain.Base{ID: id},
		BloodType:       mustBT(bloodType),
		Quantity:        qty,
		CollectionDate:  day(-1),
		ExpiryDate:      expiry,
		StorageLocation: "fridge-1",
	}
}

func requestFixture(id, bloodType string, qty int, urgency domain.Urgency) domain.Request {
	return domain.Request{
		Base:       domain.Base{ID: id},
		BloodType:  mustBT(bloodType),
		Quantity:   qty,
		Urgency:    urgency,
		RequiredBy: day(2),
	}
}
