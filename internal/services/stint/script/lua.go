package script

import (
	"context"
	"strings"

	"github.com/Shopify/go-lua"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
)

// LuaEngine evaluates scripts in a fresh, sandboxed Lua interpreter per call.
//
// A new state is created for every evaluation, so nothing a script does can
// leak into the next one; the EvaluateWithoutSideEffects guarantee follows
// from discarding the state along with any reassigned globals.
type LuaEngine struct{}

// NewLuaEngine creates a Lua-backed script engine.
func NewLuaEngine() *LuaEngine {
	return &LuaEngine{}
}

// blockedGlobals are library entry points scripts must not reach.
var blockedGlobals = []string{"dofile", "loadfile", "load", "require", "print", "io", "os"}

// Evaluate runs source and reports the result along with variable mutations.
func (e *LuaEngine) Evaluate(ctx context.Context, name, source string, snap Snapshot) (Result, error) {
	return e.run(ctx, name, source, snap, true)
}

// EvaluateWithoutSideEffects runs source and discards variable mutations.
func (e *LuaEngine) EvaluateWithoutSideEffects(ctx context.Context, name, source string, snap Snapshot) (Result, error) {
	return e.run(ctx, name, source, snap, false)
}

func (e *LuaEngine) run(ctx context.Context, name, source string, snap Snapshot, collectMutations bool) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	state := lua.NewState()
	lua.OpenLibraries(state)
	for _, global := range blockedGlobals {
		state.PushNil()
		state.SetGlobal(global)
	}

	state.PushString(snap.StintName)
	state.SetGlobal("stint_name")
	state.PushString(snap.ModuleName)
	state.SetGlobal("module_name")
	state.PushString(snap.EraName)
	state.SetGlobal("era_name")
	state.PushString(snap.StageName)
	state.SetGlobal("stage_name")

	for varName, ref := range snap.Variables {
		pushGo(state, ref.Value)
		state.SetGlobal(varName)
	}

	// Expressions evaluate through an implicit return; statement blocks
	// (run_code payloads) load as-is and yield a nil result.
	isExpression := true
	if err := lua.LoadString(state, "return "+source); err != nil {
		state.SetTop(0)
		isExpression = false
		if err := lua.LoadString(state, source); err != nil {
			return Result{}, apperrors.WrapWithMetadata(apperrors.CodeScriptEvaluation,
				"load script "+name, map[string]string{"script": name}, err)
		}
	}

	results := 0
	if isExpression {
		results = 1
	}
	if err := state.ProtectedCall(0, results, 0); err != nil {
		return Result{}, apperrors.WrapWithMetadata(apperrors.CodeScriptEvaluation,
			"run script "+name, map[string]string{"script": name}, err)
	}

	result := Result{Kind: KindNil}
	if isExpression {
		result = toResult(state, -1)
		state.Pop(1)
	}

	if collectMutations {
		for varName, ref := range snap.Variables {
			state.Global(varName)
			after := luaToGo(state, -1)
			state.Pop(1)
			if !sameValue(ref.Value, after) {
				if result.Mutations == nil {
					result.Mutations = map[string]any{}
				}
				result.Mutations[varName] = after
			}
		}
	}

	return result, nil
}

func pushGo(state *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(v)
	case int:
		state.PushNumber(float64(v))
	case int64:
		state.PushNumber(float64(v))
	case float64:
		state.PushNumber(v)
	case string:
		state.PushString(v)
	default:
		state.PushNil()
	}
}

func toResult(state *lua.State, index int) Result {
	switch state.TypeOf(index) {
	case lua.TypeBoolean:
		return Result{Kind: KindBool, Bool: state.ToBoolean(index)}
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return Result{Kind: KindNumber, Number: value}
	case lua.TypeString:
		value, _ := state.ToString(index)
		return Result{Kind: KindString, Str: value}
	case lua.TypeTable:
		converted := tableToGo(state, index)
		if list, ok := converted.([]any); ok {
			return Result{Kind: KindList, List: list}
		}
		if m, ok := converted.(map[string]any); ok {
			return Result{Kind: KindMap, Map: m}
		}
		return Result{Kind: KindNil}
	default:
		return Result{Kind: KindNil}
	}
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return value
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

// tableToGo converts a Lua table to a Go list when its keys form a dense
// 1..N sequence, and to a string-keyed map otherwise.
func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)

	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count == maxIndex {
		list := make([]any, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			list[i-1] = luaToGo(state, -1)
			state.Pop(1)
		}
		return list
	}

	output := map[string]any{}
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func sameValue(before, after any) bool {
	if nb, ok := numeric(before); ok {
		if na, ok := numeric(after); ok {
			return nb == na
		}
		return false
	}
	switch b := before.(type) {
	case string:
		a, ok := after.(string)
		return ok && strings.Compare(a, b) == 0
	case bool:
		a, ok := after.(bool)
		return ok && a == b
	case nil:
		return after == nil
	default:
		return false
	}
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
