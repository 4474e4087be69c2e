package domain

import "context"

// RuleView is the read-only state handed to rules. Ledger implementations
// with per-record locking scope it to the records participating in the
// transition being committed; cross-record invariants wider than one
// unit/request pair belong in sweeper-style audits, not commit rules.
type RuleView interface {
	ListUnits() []Unit
	ListRequests() []Request
	FindUnit(id string) (Unit, bool)
	FindRequest(id string) (Request, bool)
}

// Rule defines an evaluation executed at the commit point of a ledger
// operation. A blocking violation aborts the operation.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance with no rules registered.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in registration order.
func (e *RulesEngine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
