package domain

import "time"

// EntityType identifies the type of record stored in the ledger.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityUnit identifies a physical blood unit record.
	EntityUnit EntityType = "unit"
	// EntityRequest identifies a clinical blood request record.
	EntityRequest EntityType = "request"
	// EntityReservation identifies a unit/request reservation binding.
	EntityReservation EntityType = "reservation"
	// EntityOverride identifies a stored compatibility override row.
	EntityOverride EntityType = "compatibility_override"
)

// UnitStatus enumerates the lifecycle states of a blood unit.
type UnitStatus string

// Canonical unit statuses. Transitions between them are restricted by
// UnitTransitions; expired and transfused are terminal.
const (
	UnitAvailable   UnitStatus = "available"
	UnitReserved    UnitStatus = "reserved"
	UnitExpired     UnitStatus = "expired"
	UnitQuarantined UnitStatus = "quarantined"
	UnitTransfused  UnitStatus = "transfused"
)

// RequestStatus enumerates the lifecycle states of a clinical request.
type RequestStatus string

// Canonical request statuses. rejected and cancelled are terminal; fulfilled
// is terminal for callers but may be demoted by the sweeper when a reserved
// unit expires before transfusion.
const (
	RequestPending            RequestStatus = "pending"
	RequestApproved           RequestStatus = "approved"
	RequestAllocating         RequestStatus = "allocating"
	RequestPartiallyFulfilled RequestStatus = "partially_fulfilled"
	RequestFulfilled          RequestStatus = "fulfilled"
	RequestRejected           RequestStatus = "rejected"
	RequestCancelled          RequestStatus = "cancelled"
)

// Urgency ranks how quickly a request must be served.
type Urgency string

// Canonical urgency tiers, lowest to highest.
const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// Rank maps the tier to an ordinal for priority ordering; higher drains first.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 3
	case UrgencyUrgent:
		return 2
	case UrgencyRoutine:
		return 1
	}
	return 0
}

// Base contains common fields for all ledger records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Unit is the storage record for one physical blood donation. Units are never
// deleted; they only move through the status state machine.
type Unit struct {
	Base
	BloodType        BloodType  `json:"blood_type"`
	Quantity         int        `json:"quantity"`
	CollectionDate   time.Time  `json:"collection_date"`
	ExpiryDate       time.Time  `json:"expiry_date"`
	StorageLocation  string     `json:"storage_location"`
	StorageTempC     *float64   `json:"storage_temp_c,omitempty"`
	Status           UnitStatus `json:"status"`
	ReservationID    *string    `json:"reservation_id,omitempty"`
	QuarantineReason *string    `json:"quarantine_reason,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
}

// Expired reports whether the unit's shelf life has lapsed as of now.
func (u Unit) Expired(now time.Time) bool {
	return now.After(u.ExpiryDate)
}

// Request is a clinical need for blood of a given type and quantity.
type Request struct {
	Base
	BloodType          BloodType     `json:"blood_type"`
	Quantity           int           `json:"quantity"`
	Urgency            Urgency       `json:"urgency"`
	RequiredBy         time.Time     `json:"required_by"`
	Status             RequestStatus `json:"status"`
	Reservations       []Reservation `json:"reservations"`
	TransfusedQuantity int           `json:"transfused_quantity"`
	RejectionReason    *string       `json:"rejection_reason,omitempty"`
	Notes              *string       `json:"notes,omitempty"`
}

// HeldQuantity sums the quantities across the request's live reservations.
// The ledger guarantees it never exceeds Quantity.
func (r Request) HeldQuantity() int {
	total := 0
	for _, res := range r.Reservations {
		total += res.Quantity
	}
	return total
}

// Shortfall is the portion of the requested quantity not yet reserved.
func (r Request) Shortfall() int {
	if s := r.Quantity - r.HeldQuantity(); s > 0 {
		return s
	}
	return 0
}

// Reservation binds exactly one request to one unit for a specific quantity.
// An idle reservation past ExpiresAt is eligible for automatic release.
type Reservation struct {
	ID        string    `json:"id"`
	UnitID    string    `json:"unit_id"`
	RequestID string    `json:"request_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TimedOut reports whether the reservation's hold window has lapsed.
func (r Reservation) TimedOut(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// CompatibilityOverride is a stored exception to the computed ABO/Rh matrix,
// keyed by donor and recipient type. Overrides take precedence over the
// computed rule.
type CompatibilityOverride struct {
	Base
	Donor      BloodType `json:"donor"`
	Recipient  BloodType `json:"recipient"`
	Compatible bool      `json:"compatible"`
	Notes      string    `json:"notes"`
}

// Change describes a mutation applied to an entity during a ledger operation.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in the audit trail. Ledger records are never
// deleted, so only create and update appear on units and requests; delete is
// emitted when a reservation or override is destroyed.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock aborts the ledger operation.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows the operation.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "operation blocked by rules"
}
