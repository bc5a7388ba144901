package junction

import "fmt"

// Approach identifies one of the two conflicting traffic directions sharing the junction
type Approach int

const (
	// ApproachA is the north to south approach
	ApproachA Approach = iota
	// ApproachB is the south to north approach
	ApproachB
)

// String returns the approach identifier used in logs and storage
func (a Approach) String() string {
	switch a {
	case ApproachA:
		return "north_south"
	case ApproachB:
		return "south_north"
	default:
		return "unknown"
	}
}

// Label returns the short arrow label shown on the info panel
func (a Approach) Label() string {
	switch a {
	case ApproachA:
		return "N→S"
	case ApproachB:
		return "S→N"
	default:
		return "?"
	}
}

// Other returns the conflicting approach
func (a Approach) Other() Approach {
	if a == ApproachA {
		return ApproachB
	}
	return ApproachA
}

// Phase is a controller state: exactly one approach holds right-of-way, the other is red
type Phase string

const (
	// PhaseAGreen gives right-of-way to the north to south approach
	PhaseAGreen Phase = "A_GREEN"
	// PhaseBGreen gives right-of-way to the south to north approach
	PhaseBGreen Phase = "B_GREEN"
)

// PhaseOf returns the phase in which the given approach is green
func PhaseOf(a Approach) Phase {
	if a == ApproachB {
		return PhaseBGreen
	}
	return PhaseAGreen
}

// Approach returns the approach that is green in this phase
func (p Phase) Approach() Approach {
	if p == PhaseBGreen {
		return ApproachB
	}
	return ApproachA
}

// Next returns the phase the controller flips to on a switch
func (p Phase) Next() Phase {
	return PhaseOf(p.Approach().Other())
}

// Phases lists the controller states in their initial-first order
func Phases() []Phase {
	return []Phase{PhaseAGreen, PhaseBGreen}
}

// ParseApproach accepts the identifiers produced by String as well as the short forms "ns", "sn", "a" and "b"
func ParseApproach(s string) (Approach, error) {
	switch s {
	case "north_south", "ns", "a", "A":
		return ApproachA, nil
	case "south_north", "sn", "b", "B":
		return ApproachB, nil
	default:
		return ApproachA, fmt.Errorf("unknown approach %q", s)
	}
}
