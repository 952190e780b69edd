// Package action defines authored action scripts: ordered steps executed
// against a computed audience of hands or teams.
package action

import (
	"sort"
	"strings"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
)

// Type is the closed set of step effects.
type Type string

const (
	TypeUnspecified Type = ""
	TypeSetVariable Type = "set_variable"
	TypeSetEra      Type = "set_era"
	TypeRunCode     Type = "run_code"
	TypeLog         Type = "log"
	TypeSaveData    Type = "save_data"
	TypeSubaction   Type = "subaction"
	TypePayHands    Type = "pay_hands"
	TypeQuit        Type = "quit"
)

// ForEach is the closed set of audience selectors.
type ForEach string

const (
	ForEachUnspecified ForEach = ""
	ForEachCurrentHand ForEach = "current_hand_only"
	// ForEachNeighborhood is reserved; no resolution algorithm is defined yet.
	ForEachNeighborhood ForEach = "hand_in_neighborhood"
	ForEachHandInTeam   ForEach = "hand_in_team"
	ForEachHandInStint  ForEach = "hand_in_stint"
	ForEachTeamInStint  ForEach = "team_in_stint"
)

var (
	// ErrInvalidType indicates an unknown step effect type.
	ErrInvalidType = apperrors.New(apperrors.CodeActionStepInvalidType, "action step type is invalid")
	// ErrInvalidForEach indicates an unknown audience selector.
	ErrInvalidForEach = apperrors.New(apperrors.CodeActionStepInvalidForEach, "action step for_each is invalid")
	// ErrForEachMismatch indicates an audience selector the step's type disallows.
	ErrForEachMismatch = apperrors.New(apperrors.CodeActionStepForEachMismatch, "action step for_each is not allowed for this type")
)

// ParseType canonicalizes a step type label.
func ParseType(value string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "set_variable":
		return TypeSetVariable, true
	case "set_era":
		return TypeSetEra, true
	case "run_code":
		return TypeRunCode, true
	case "log":
		return TypeLog, true
	case "save_data":
		return TypeSaveData, true
	case "subaction":
		return TypeSubaction, true
	case "pay_hands", "pay_users":
		return TypePayHands, true
	case "quit":
		return TypeQuit, true
	default:
		return TypeUnspecified, false
	}
}

// ParseForEach canonicalizes an audience selector label.
func ParseForEach(value string) (ForEach, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "current_hand_only":
		return ForEachCurrentHand, true
	case "hand_in_neighborhood":
		return ForEachNeighborhood, true
	case "hand_in_team":
		return ForEachHandInTeam, true
	case "hand_in_stint":
		return ForEachHandInStint, true
	case "team_in_stint":
		return ForEachTeamInStint, true
	default:
		return ForEachUnspecified, false
	}
}

// Step is one ordered effect within an action.
//
// Payload fields are sparse: each Type reads its own subset, enforced by
// Validate before content is accepted.
type Step struct {
	ID              string
	Order           int
	Type            Type
	ForEach         ForEach
	ConditionID     string
	InvertCondition bool

	// set_variable
	VariableID string
	Value      string // script expression evaluated per audience member

	// set_era
	EraID string

	// subaction
	SubactionID string

	// log
	Message string

	// run_code
	Code string

	// pay_hands
	CurrencyCode string
}

// Validate enforces per-type payload and audience invariants.
func (s Step) Validate() error {
	meta := map[string]string{"step": s.ID}
	switch s.ForEach {
	case ForEachCurrentHand, ForEachNeighborhood, ForEachHandInTeam, ForEachHandInStint, ForEachTeamInStint:
	default:
		return apperrors.WrapWithMetadata(apperrors.CodeActionStepInvalidForEach,
			"step "+s.ID+" has an invalid for_each", meta, ErrInvalidForEach)
	}

	switch s.Type {
	case TypeSetVariable:
		if s.VariableID == "" {
			return apperrors.WrapWithMetadata(apperrors.CodeActionStepMissingVariable,
				"set_variable step "+s.ID+" requires a variable", meta, ErrInvalidType)
		}
		if strings.TrimSpace(s.Value) == "" {
			return apperrors.WrapWithMetadata(apperrors.CodeActionStepMissingValue,
				"set_variable step "+s.ID+" requires a value expression", meta, ErrInvalidType)
		}
	case TypeSetEra:
		if s.EraID == "" {
			return apperrors.WrapWithMetadata(apperrors.CodeActionStepMissingEra,
				"set_era step "+s.ID+" requires an era", meta, ErrInvalidType)
		}
	case TypeRunCode:
		if strings.TrimSpace(s.Code) == "" {
			return apperrors.WrapWithMetadata(apperrors.CodeActionStepMissingCode,
				"run_code step "+s.ID+" requires code", meta, ErrInvalidType)
		}
	case TypeLog:
		if strings.TrimSpace(s.Message) == "" {
			return apperrors.WrapWithMetadata(apperrors.CodeActionStepMissingMessage,
				"log step "+s.ID+" requires a message", meta, ErrInvalidType)
		}
	case TypeSaveData:
	case TypeSubaction:
		if s.SubactionID == "" {
			return apperrors.WrapWithMetadata(apperrors.CodeActionStepMissingSubaction,
				"subaction step "+s.ID+" requires a subaction", meta, ErrInvalidType)
		}
	case TypePayHands:
		if s.ForEach != ForEachHandInStint {
			return apperrors.WrapWithMetadata(apperrors.CodeActionStepForEachMismatch,
				"pay_hands step "+s.ID+" requires for_each hand_in_stint", meta, ErrForEachMismatch)
		}
	case TypeQuit:
		if s.ForEach != ForEachCurrentHand {
			return apperrors.WrapWithMetadata(apperrors.CodeActionStepForEachMismatch,
				"quit step "+s.ID+" requires for_each current_hand_only", meta, ErrForEachMismatch)
		}
	default:
		return apperrors.WrapWithMetadata(apperrors.CodeActionStepInvalidType,
			"step "+s.ID+" has an invalid type", meta, ErrInvalidType)
	}
	return nil
}

// Action is an ordered sequence of steps, owned by a module.
type Action struct {
	ID       string
	ModuleID string
	Name     string
	Steps    []Step
}

// Validate checks the action and all of its steps.
func (a Action) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return apperrors.New(apperrors.CodeActionEmptyName, "action name is required")
	}
	for _, step := range a.Steps {
		if err := step.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OrderedSteps returns the steps sorted by ascending order.
func (a Action) OrderedSteps() []Step {
	steps := make([]Step, len(a.Steps))
	copy(steps, a.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}
