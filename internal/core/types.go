package core

import "bloodcore/pkg/domain"

type (
	BloodType             = domain.BloodType
	Unit                  = domain.Unit
	Request               = domain.Request
	Reservation           = domain.Reservation
	CompatibilityOverride = domain.CompatibilityOverride
	CompatibilityDecision = domain.CompatibilityDecision
	UnitStatus            = domain.UnitStatus
	RequestStatus         = domain.RequestStatus
	Urgency               = domain.Urgency
	Change                = domain.Change
	Action                = domain.Action
	Violation             = domain.Violation
	Result                = domain.Result
	RuleViolationError    = domain.RuleViolationError
	Rule                  = domain.Rule
	RuleView              = domain.RuleView
	RulesEngine           = domain.RulesEngine
	Ledger                = domain.Ledger
	LedgerView            = domain.LedgerView
)

const (
	UnitAvailable   = domain.UnitAvailable
	UnitReserved    = domain.UnitReserved
	UnitExpired     = domain.UnitExpired
	UnitQuarantined = domain.UnitQuarantined
	UnitTransfused  = domain.UnitTransfused
)

const (
	RequestPending            = domain.RequestPending
	RequestApproved           = domain.RequestApproved
	RequestAllocating         = domain.RequestAllocating
	RequestPartiallyFulfilled = domain.RequestPartiallyFulfilled
	RequestFulfilled          = domain.RequestFulfilled
	RequestRejected           = domain.RequestRejected
	RequestCancelled          = domain.RequestCancelled
)

const (
	UrgencyRoutine  = domain.UrgencyRoutine
	UrgencyUrgent   = domain.UrgencyUrgent
	UrgencyCritical = domain.UrgencyCritical
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
