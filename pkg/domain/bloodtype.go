// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by bloodcore.
package domain

import (
	"fmt"
	"strings"
)

// ABOGroup identifies one of the four ABO blood groups.
type ABOGroup string

// Canonical ABO groups.
const (
	GroupA  ABOGroup = "A"
	GroupB  ABOGroup = "B"
	GroupAB ABOGroup = "AB"
	GroupO  ABOGroup = "O"
)

// RhFactor identifies the Rhesus factor of a blood type.
type RhFactor string

// Canonical Rh factors.
const (
	RhPositive RhFactor = "+"
	RhNegative RhFactor = "-"
)

// BloodType is the ABO group and Rh factor of a unit, donor, or request.
// It is an immutable value type compared by value.
type BloodType struct {
	Group ABOGroup `json:"group"`
	Rh    RhFactor `json:"rh"`
}

// String renders the conventional short form, e.g. "O-" or "AB+".
func (b BloodType) String() string {
	return string(b.Group) + string(b.Rh)
}

// Valid reports whether both components carry canonical values.
func (b BloodType) Valid() bool {
	switch b.Group {
	case GroupA, GroupB, GroupAB, GroupO:
	default:
		return false
	}
	return b.Rh == RhPositive || b.Rh == RhNegative
}

// ParseBloodType parses the short form produced by String.
func ParseBloodType(s string) (BloodType, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return BloodType{}, fmt.Errorf("malformed blood type %q", s)
	}
	bt := BloodType{
		Group: ABOGroup(s[:len(s)-1]),
		Rh:    RhFactor(s[len(s)-1:]),
	}
	if !bt.Valid() {
		return BloodType{}, fmt.Errorf("malformed blood type %q", s)
	}
	return bt, nil
}

// MarshalText implements encoding.TextMarshaler so blood types can serve as
// JSON object keys in snapshots and event payloads.
func (b BloodType) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("malformed blood type %q", b.String())
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BloodType) UnmarshalText(text []byte) error {
	parsed, err := ParseBloodType(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// AllBloodTypes returns the eight canonical types in a deterministic order.
func AllBloodTypes() []BloodType {
	groups := []ABOGroup{GroupO, GroupA, GroupB, GroupAB}
	factors := []RhFactor{RhNegative, RhPositive}
	out := make([]BloodType, 0, len(groups)*len(factors))
	for _, g := range groups {
		for _, rh := range factors {
			out = append(out, BloodType{Group: g, Rh: rh})
		}
	}
	return out
}
