package engine

import (
	"fmt"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/action"
)

// ErrStintPanicked indicates the stint was halted by a failed action step and
// needs operator follow-up before any hand can progress.
var ErrStintPanicked = apperrors.New(apperrors.CodeStintPanicked, "stint is panicked")

// StepError wraps a failure raised while dispatching a step's effect. It
// carries the step and the audience member so operators can locate the
// failure; the run that raised it has already forced the stint to panicked.
type StepError struct {
	Step   action.Step
	Member Member
	Cause  error
}

func (e *StepError) Error() string {
	target := e.Member.HandID
	if target == "" {
		target = e.Member.TeamID
	}
	return fmt.Sprintf("step %s (%s) failed for %s: %v", e.Step.ID, e.Step.Type, target, e.Cause)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}
