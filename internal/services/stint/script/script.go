// Package script defines the external script engine boundary used for
// condition evaluation, variable validators, and run_code effects.
//
// The engine is an explicit client interface injected into the runtime so
// tests can substitute a fake and multiple environments can run concurrently.
package script

import "context"

// Kind tags the dynamic type of an evaluation result.
type Kind string

const (
	KindNil    Kind = "nil"
	KindBool   Kind = "bool"
	KindNumber Kind = "number"
	KindString Kind = "string"
	KindList   Kind = "list"
	KindMap    Kind = "map"
)

// Ref pairs a variable's definition id with its current value inside a
// context snapshot.
type Ref struct {
	DefinitionID string `json:"definition_id"`
	Value        any    `json:"value"`
}

// Snapshot is the evaluation context handed to the engine. Variable values
// are supplied here, never interpolated into source text.
type Snapshot struct {
	StintName  string         `json:"stint_name"`
	ModuleName string         `json:"module_name"`
	EraName    string         `json:"era_name"`
	StageName  string         `json:"stage_name"`
	Variables  map[string]Ref `json:"variables"`
}

// Result is a typed evaluation outcome.
type Result struct {
	Kind   Kind           `json:"kind"`
	Bool   bool           `json:"bool,omitempty"`
	Number float64        `json:"number,omitempty"`
	Str    string         `json:"str,omitempty"`
	List   []any          `json:"list,omitempty"`
	Map    map[string]any `json:"map,omitempty"`
	// Mutations holds variable globals the script reassigned, keyed by
	// variable name. Evaluate reports them; EvaluateWithoutSideEffects
	// always leaves them empty.
	Mutations map[string]any `json:"mutations,omitempty"`
}

// Truthy reports the boolean reading of a result. Nil and false are falsy;
// everything else is truthy, matching the script language's convention.
func (r Result) Truthy() bool {
	switch r.Kind {
	case KindNil:
		return false
	case KindBool:
		return r.Bool
	default:
		return true
	}
}

// Value returns the dynamic value of the result.
func (r Result) Value() any {
	switch r.Kind {
	case KindBool:
		return r.Bool
	case KindNumber:
		return r.Number
	case KindString:
		return r.Str
	case KindList:
		return r.List
	case KindMap:
		return r.Map
	default:
		return nil
	}
}

// Engine evaluates scripts against a context snapshot.
type Engine interface {
	// Evaluate runs source and returns its typed result, including any
	// variable mutations the script performed.
	Evaluate(ctx context.Context, name, source string, snap Snapshot) (Result, error)
	// EvaluateWithoutSideEffects runs source with the guarantee that no
	// variable mutation is persisted or reported, even when the script
	// contains assignment syntax.
	EvaluateWithoutSideEffects(ctx context.Context, name, source string, snap Snapshot) (Result, error)
}
