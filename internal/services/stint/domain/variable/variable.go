// Package variable defines typed, scoped variables shared by running stints.
package variable

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
)

// Scope describes which runtime instance owns a variable value.
type Scope string

const (
	ScopeUnspecified Scope = ""
	ScopeStint       Scope = "stint"
	ScopeModule      Scope = "module"
	ScopeTeam        Scope = "team"
	ScopeHand        Scope = "hand"
)

// DataType describes the value type a definition accepts.
type DataType string

const (
	DataTypeUnspecified DataType = ""
	DataTypeBool        DataType = "bool"
	DataTypeInt         DataType = "int"
	DataTypeFloat       DataType = "float"
	DataTypeString      DataType = "string"
)

var (
	// ErrInvalidScope indicates a missing or unknown variable scope.
	ErrInvalidScope = apperrors.New(apperrors.CodeVariableInvalidScope, "variable scope is invalid")
	// ErrInvalidDataType indicates a missing or unknown variable data type.
	ErrInvalidDataType = apperrors.New(apperrors.CodeVariableInvalidDataType, "variable data type is invalid")
	// ErrTypeMismatch indicates a value that does not match the definition's data type.
	ErrTypeMismatch = apperrors.New(apperrors.CodeVariableTypeMismatch, "variable value does not match data type")
)

// ParseScope canonicalizes a scope label.
func ParseScope(value string) (Scope, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "stint":
		return ScopeStint, true
	case "module":
		return ScopeModule, true
	case "team":
		return ScopeTeam, true
	case "hand":
		return ScopeHand, true
	default:
		return ScopeUnspecified, false
	}
}

// ParseDataType canonicalizes a data type label.
func ParseDataType(value string) (DataType, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "bool", "boolean":
		return DataTypeBool, true
	case "int", "integer":
		return DataTypeInt, true
	case "float", "number":
		return DataTypeFloat, true
	case "string", "text":
		return DataTypeString, true
	default:
		return DataTypeUnspecified, false
	}
}

// Definition is the authored description of a variable.
//
// Exactly one live value exists per (definition, scope instance) pair,
// created on demand by the variable store.
type Definition struct {
	ID       string
	ModuleID string
	Name     string
	Scope    Scope
	DataType DataType
	// Validator is an optional script expression over `value`; a value is
	// rejected when the expression evaluates to false.
	Validator string
	// IsPayoff marks hand-scoped variables that accumulate into the payoff.
	IsPayoff bool
	// IsOutputData marks variables forwarded to the analytical sink.
	IsOutputData bool
}

// Validate checks the authored invariants of a definition.
func (d Definition) Validate() error {
	switch d.Scope {
	case ScopeStint, ScopeModule, ScopeTeam, ScopeHand:
	default:
		return ErrInvalidScope
	}
	switch d.DataType {
	case DataTypeBool, DataTypeInt, DataTypeFloat, DataTypeString:
	default:
		return ErrInvalidDataType
	}
	if d.IsPayoff {
		switch d.DataType {
		case DataTypeInt, DataTypeFloat:
		default:
			return apperrors.New(apperrors.CodeVariableInvalidDataType,
				"payoff variable "+d.Name+" must be int or float")
		}
	}
	if strings.TrimSpace(d.Name) == "" {
		return apperrors.New(apperrors.CodeVariableRejectedValue, "variable name is required")
	}
	return nil
}

// Coerce normalizes a raw value into the definition's data type.
//
// Numeric YAML and script results arrive as assorted Go types; Coerce maps
// them to the canonical representation (bool, int64, float64, string) or
// fails with ErrTypeMismatch.
func (d Definition) Coerce(value any) (any, error) {
	switch d.DataType {
	case DataTypeBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case DataTypeInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		}
	case DataTypeFloat:
		switch v := value.(type) {
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		}
	case DataTypeString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	}
	return nil, apperrors.WrapWithMetadata(
		apperrors.CodeVariableTypeMismatch,
		fmt.Sprintf("value %v is not a valid %s", value, d.DataType),
		map[string]string{"variable": d.Name, "data_type": string(d.DataType)},
		ErrTypeMismatch,
	)
}

// Equal reports whether two canonical values are the same.
func Equal(a, b any) bool {
	return a == b
}

// Number returns the numeric reading of a canonical value, if any.
func Number(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
