// Package hand defines a single participant's live state within a stint.
package hand

import (
	"strings"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
)

// Status describes the hand lifecycle.
type Status string

const (
	StatusUnspecified Status = ""
	StatusActive      Status = "active"
	StatusFinished    Status = "finished"
	StatusQuit        Status = "quit"
	StatusCancelled   Status = "cancelled"
	StatusTimedOut    Status = "timedout"
)

// ErrInvalidStatusTransition indicates a disallowed hand status change.
var ErrInvalidStatusTransition = apperrors.New(apperrors.CodeHandInvalidStatusTransition, "hand status transition is not allowed")

// ParseStatus canonicalizes a status label.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "active":
		return StatusActive, true
	case "finished":
		return StatusFinished, true
	case "quit":
		return StatusQuit, true
	case "cancelled":
		return StatusCancelled, true
	case "timedout", "timed_out":
		return StatusTimedOut, true
	default:
		return StatusUnspecified, false
	}
}

// IsTerminal reports whether no further progression is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusQuit, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// IsTransitionAllowed reports whether a status change is permitted. Terminal
// states accept no further transitions.
func IsTransitionAllowed(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case StatusActive, StatusFinished, StatusQuit, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// Hand is a participant's runtime state.
type Hand struct {
	ID      string
	StintID string
	TeamID  string
	Status  Status
	// ModuleID is the module the hand currently occupies.
	ModuleID string
	// EraID is the hand's current synchronization checkpoint.
	EraID string
	// BreadcrumbID addresses the current navigation record; the breadcrumb
	// carries the current stage.
	BreadcrumbID string
}
