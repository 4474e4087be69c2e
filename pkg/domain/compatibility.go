package domain

import "fmt"

// CompatibilitySource records where a compatibility decision came from.
type CompatibilitySource string

// Decision provenance values.
const (
	// SourceComputed marks a decision produced by the built-in ABO/Rh rule.
	SourceComputed CompatibilitySource = "computed"
	// SourceOverride marks a decision taken from a stored override row.
	SourceOverride CompatibilitySource = "override"
)

// CompatibilityDecision is the outcome of a donor/recipient compatibility check.
type CompatibilityDecision struct {
	Compatible bool                `json:"compatible"`
	Rationale  string              `json:"rationale"`
	Source     CompatibilitySource `json:"source"`
}

// Compatible evaluates the built-in ABO/Rh transfusion rule. The table is
// computed from the group and factor components rather than enumerated, so
// introducing blood subtypes later extends the rule instead of rewriting it:
//
//   - an Rh+ donor is never compatible with an Rh- recipient;
//   - O donors are compatible with every ABO group (universal donor);
//   - matching ABO groups are compatible;
//   - AB recipients accept every ABO group (universal recipient);
//   - all other group pairings are incompatible.
func Compatible(donor, recipient BloodType) CompatibilityDecision {
	if donor.Rh == RhPositive && recipient.Rh == RhNegative {
		return CompatibilityDecision{
			Compatible: false,
			Rationale:  "Rh+ cannot donate to Rh-",
			Source:     SourceComputed,
		}
	}
	switch {
	case donor.Group == GroupO:
		return CompatibilityDecision{
			Compatible: true,
			Rationale:  "O blood type is universal donor",
			Source:     SourceComputed,
		}
	case donor.Group == recipient.Group:
		return CompatibilityDecision{
			Compatible: true,
			Rationale:  "direct blood type match",
			Source:     SourceComputed,
		}
	case recipient.Group == GroupAB:
		return CompatibilityDecision{
			Compatible: true,
			Rationale:  "AB blood type can receive from any type",
			Source:     SourceComputed,
		}
	}
	return CompatibilityDecision{
		Compatible: false,
		Rationale:  fmt.Sprintf("%s cannot donate to %s", donor, recipient),
		Source:     SourceComputed,
	}
}
