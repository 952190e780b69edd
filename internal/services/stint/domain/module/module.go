// Package module defines reusable content units sequenced within a stint.
package module

// Era is a named synchronization checkpoint scoped to a module. A hand has
// one current era; a team's era is derived from its hands, never written
// directly.
type Era struct {
	ID       string
	ModuleID string
	Name     string
}

// Spec carries the module-level payoff clamp bounds.
type Spec struct {
	MinEarnings float64
	MaxEarnings float64
}

// Clamp bounds a payoff sub-total into [MinEarnings, MaxEarnings]. A module
// without a clamp carries a nil *Spec, so a zero-valued spec still clamps.
func (s Spec) Clamp(value float64) float64 {
	if value < s.MinEarnings {
		return s.MinEarnings
	}
	if value > s.MaxEarnings {
		return s.MaxEarnings
	}
	return value
}

// Module is a sequenced content unit within a stint.
type Module struct {
	ID    string
	Order int
	Name  string
	// StartStageID is where hands land when the module begins.
	StartStageID string
	Spec         *Spec
}
