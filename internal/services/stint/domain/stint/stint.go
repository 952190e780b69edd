// Package stint defines the running session aggregate and its status rules.
package stint

import (
	"strings"

	"github.com/louisbranch/convening.space/internal/services/stint/domain/hand"
)

// Status describes the stint lifecycle.
type Status string

const (
	StatusUnspecified Status = ""
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusFinished    Status = "finished"
	StatusCancelled   Status = "cancelled"
	// StatusPanicked marks a stint halted by a failed action step; operator
	// follow-up is required before any hand can progress again.
	StatusPanicked Status = "panicked"
)

// ParseStatus canonicalizes a status label.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "pending":
		return StatusPending, true
	case "running":
		return StatusRunning, true
	case "finished":
		return StatusFinished, true
	case "cancelled":
		return StatusCancelled, true
	case "panicked":
		return StatusPanicked, true
	default:
		return StatusUnspecified, false
	}
}

// Spec carries the stint-level payoff clamp bounds.
type Spec struct {
	MinEarnings float64
	MaxEarnings float64
}

// Clamp bounds the overall payoff into [MinEarnings, MaxEarnings]. A stint
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

// Stint is one running instance of a configured session.
type Stint struct {
	ID     string
	Name   string
	Status Status
	Spec   *Spec
}

// AggregateStatus derives the stint status from its hand statuses.
//
// Unanimous finished hands finish the stint. A terminal non-finished hand
// makes unanimity unreachable, so the stint is cancelled. Otherwise the
// current status stands.
func AggregateStatus(current Status, handStatuses []hand.Status) Status {
	if current == StatusPanicked {
		return StatusPanicked
	}
	if len(handStatuses) == 0 {
		return current
	}
	allFinished := true
	for _, hs := range handStatuses {
		if hs != hand.StatusFinished {
			allFinished = false
		}
		if hs.IsTerminal() && hs != hand.StatusFinished {
			return StatusCancelled
		}
	}
	if allFinished {
		return StatusFinished
	}
	return current
}
