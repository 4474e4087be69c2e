package core

import (
	"context"
	"sync"
	"time"
)

// EventType labels the notification/audit events the engine publishes.
type EventType string

const (
	EventUnitRegistered    EventType = "unit_registered"
	EventRequestSubmitted  EventType = "request_submitted"
	EventRequestApproved   EventType = "request_approved"
	EventRequestRejected   EventType = "request_rejected"
	EventRequestCancelled  EventType = "request_cancelled"
	EventAllocated         EventType = "allocated"
	EventTransfused        EventType = "transfused"
	EventUnitQuarantined   EventType = "unit_quarantined"
	EventQuarantineCleared EventType = "quarantine_cleared"
	EventUnitExpired       EventType = "unit_expired"
	EventHoldTimedOut      EventType = "hold_timed_out"
	EventLowStock          EventType = "low_stock"
	EventExpiryAlert       EventType = "expiry_alert"
	EventAudit             EventType = "audit"
)

// Event is the engine's notification payload. Delivery is the sink's
// concern; the engine only publishes.
type Event struct {
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// EventSink receives published events. Implementations must be safe for
// concurrent use; publish failures are logged by the engine, never
// propagated into ledger operations.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// MemoryEventSink retains published events in memory for tests and
// diagnostics.
type MemoryEventSink struct {
	mu     sync.Mutex
	events []Event
}

var _ EventSink = (*MemoryEventSink)(nil)

// NewMemoryEventSink returns an empty in-memory sink.
func NewMemoryEventSink() *MemoryEventSink { return &MemoryEventSink{} }

// Publish appends the event.
func (s *MemoryEventSink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

// Events returns a copy of everything published so far.
func (s *MemoryEventSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType filters retained events by type.
func (s *MemoryEventSink) ByType(t EventType) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
