package domain

// UnitTransitions is the explicit transition table for unit statuses. Any
// transition not listed here is rejected with ErrInvalidState.
var UnitTransitions = map[UnitStatus][]UnitStatus{
	UnitAvailable:   {UnitReserved, UnitExpired, UnitQuarantined},
	UnitReserved:    {UnitAvailable, UnitTransfused, UnitExpired},
	UnitQuarantined: {UnitAvailable},
	UnitExpired:     {},
	UnitTransfused:  {},
}

// RequestTransitions is the explicit transition table for request statuses.
// The fulfilled -> partially_fulfilled edge exists solely for the sweeper:
// a reserved unit expiring before transfusion reopens the shortfall.
var RequestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:            {RequestApproved, RequestRejected, RequestCancelled},
	RequestApproved:           {RequestAllocating, RequestCancelled},
	RequestAllocating:         {RequestFulfilled, RequestPartiallyFulfilled, RequestCancelled},
	RequestPartiallyFulfilled: {RequestAllocating, RequestFulfilled, RequestCancelled},
	RequestFulfilled:          {RequestPartiallyFulfilled},
	RequestRejected:           {},
	RequestCancelled:          {},
}

// CanTransitionUnit reports whether the unit status transition is listed.
func CanTransitionUnit(from, to UnitStatus) bool {
	for _, next := range UnitTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionRequest reports whether the request status transition is listed.
func CanTransitionRequest(from, to RequestStatus) bool {
	for _, next := range RequestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TerminalUnitStatus reports whether no transition leaves the status.
func TerminalUnitStatus(s UnitStatus) bool {
	return len(UnitTransitions[s]) == 0
}

// TerminalRequestStatus reports whether the request can no longer be acted on
// by callers. Fulfilled counts as terminal here even though the sweeper may
// still demote it.
func TerminalRequestStatus(s RequestStatus) bool {
	switch s {
	case RequestFulfilled, RequestRejected, RequestCancelled:
		return true
	}
	return false
}
