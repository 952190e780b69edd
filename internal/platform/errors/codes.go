// Package errors provides structured error handling for the stint runtime.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Action authoring errors
	CodeActionEmptyName            Code = "ACTION_EMPTY_NAME"
	CodeActionStepInvalidType      Code = "ACTION_STEP_INVALID_TYPE"
	CodeActionStepInvalidForEach   Code = "ACTION_STEP_INVALID_FOR_EACH"
	CodeActionStepForEachMismatch  Code = "ACTION_STEP_FOR_EACH_MISMATCH"
	CodeActionStepMissingVariable  Code = "ACTION_STEP_MISSING_VARIABLE"
	CodeActionStepMissingValue     Code = "ACTION_STEP_MISSING_VALUE"
	CodeActionStepMissingEra       Code = "ACTION_STEP_MISSING_ERA"
	CodeActionStepMissingMessage   Code = "ACTION_STEP_MISSING_MESSAGE"
	CodeActionStepMissingCode      Code = "ACTION_STEP_MISSING_CODE"
	CodeActionStepMissingSubaction Code = "ACTION_STEP_MISSING_SUBACTION"

	// Condition authoring errors
	CodeConditionMissingRelation Code = "CONDITION_MISSING_RELATION"
	CodeConditionMissingOperator Code = "CONDITION_MISSING_OPERATOR"
	CodeConditionEmptySide       Code = "CONDITION_EMPTY_SIDE"
	CodeConditionAmbiguousSide   Code = "CONDITION_AMBIGUOUS_SIDE"
	CodeConditionUnknownRef      Code = "CONDITION_UNKNOWN_REFERENCE"
	CodeConditionCycle           Code = "CONDITION_CYCLE"

	// Variable errors
	CodeVariableInvalidScope    Code = "VARIABLE_INVALID_SCOPE"
	CodeVariableInvalidDataType Code = "VARIABLE_INVALID_DATA_TYPE"
	CodeVariableTypeMismatch    Code = "VARIABLE_TYPE_MISMATCH"
	CodeVariableRejectedValue   Code = "VARIABLE_REJECTED_VALUE"
	CodeVariableMissingTeam     Code = "VARIABLE_MISSING_TEAM"

	// Stage errors
	CodeStageEmptyName                Code = "STAGE_EMPTY_NAME"
	CodeStageInvalidBreadcrumbType    Code = "STAGE_INVALID_BREADCRUMB_TYPE"
	CodeRedirectUnknownNextStage      Code = "REDIRECT_UNKNOWN_NEXT_STAGE"
	CodeRedirectDuplicateOrder        Code = "REDIRECT_DUPLICATE_ORDER"
	CodeBreadcrumbUnknownStage        Code = "BREADCRUMB_UNKNOWN_STAGE"
	CodeProgressionHandWithoutStage   Code = "PROGRESSION_HAND_WITHOUT_STAGE"
	CodeProgressionHandTerminalStatus Code = "PROGRESSION_HAND_TERMINAL_STATUS"

	// Hand/stint lifecycle errors
	CodeHandInvalidStatusTransition  Code = "HAND_INVALID_STATUS_TRANSITION"
	CodeStintInvalidStatusTransition Code = "STINT_INVALID_STATUS_TRANSITION"
	CodeStintPanicked                Code = "STINT_PANICKED"

	// Script engine errors
	CodeScriptEvaluation Code = "SCRIPT_EVALUATION"
	CodeScriptBadResult  Code = "SCRIPT_BAD_RESULT"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)
