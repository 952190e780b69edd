package script

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
)

func TestLuaEvaluateBooleanExpression(t *testing.T) {
	engine := NewLuaEngine()
	snap := Snapshot{
		Variables: map[string]Ref{
			"score": {DefinitionID: "v1", Value: int64(12)},
		},
	}

	result, err := engine.EvaluateWithoutSideEffects(context.Background(), "gate", "(score) > (10)", snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Kind != KindBool || !result.Bool {
		t.Fatalf("expected true bool, got %+v", result)
	}

	result, err = engine.EvaluateWithoutSideEffects(context.Background(), "gate", "(score) > (20)", snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Kind != KindBool || result.Bool {
		t.Fatalf("expected false bool, got %+v", result)
	}
}

func TestLuaEvaluateUsesContextValuesNotInterpolation(t *testing.T) {
	engine := NewLuaEngine()
	snap := Snapshot{
		StageName: "intro",
		Variables: map[string]Ref{
			"label": {DefinitionID: "v1", Value: "a\"b"},
		},
	}

	// A value containing quote characters must not break evaluation,
	// because values travel through globals rather than source text.
	result, err := engine.EvaluateWithoutSideEffects(context.Background(), "gate", `label == "a\"b" and stage_name == "intro"`, snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Truthy() {
		t.Fatalf("expected truthy result, got %+v", result)
	}
}

func TestLuaEvaluateTypedResults(t *testing.T) {
	engine := NewLuaEngine()
	ctx := context.Background()

	number, err := engine.EvaluateWithoutSideEffects(ctx, "calc", "2 + 3.5", Snapshot{})
	if err != nil {
		t.Fatalf("evaluate number: %v", err)
	}
	if number.Kind != KindNumber || number.Number != 5.5 {
		t.Fatalf("expected number 5.5, got %+v", number)
	}

	str, err := engine.EvaluateWithoutSideEffects(ctx, "calc", `"a" .. "b"`, Snapshot{})
	if err != nil {
		t.Fatalf("evaluate string: %v", err)
	}
	if str.Kind != KindString || str.Str != "ab" {
		t.Fatalf("expected string ab, got %+v", str)
	}

	list, err := engine.EvaluateWithoutSideEffects(ctx, "calc", "{1, 2, 3}", Snapshot{})
	if err != nil {
		t.Fatalf("evaluate list: %v", err)
	}
	if list.Kind != KindList || len(list.List) != 3 {
		t.Fatalf("expected 3-element list, got %+v", list)
	}

	m, err := engine.EvaluateWithoutSideEffects(ctx, "calc", `{a = 1, b = "two"}`, Snapshot{})
	if err != nil {
		t.Fatalf("evaluate map: %v", err)
	}
	if m.Kind != KindMap || len(m.Map) != 2 {
		t.Fatalf("expected 2-entry map, got %+v", m)
	}
}

func TestLuaEvaluateReportsMutations(t *testing.T) {
	engine := NewLuaEngine()
	snap := Snapshot{
		Variables: map[string]Ref{
			"score": {DefinitionID: "v1", Value: int64(1)},
			"label": {DefinitionID: "v2", Value: "keep"},
		},
	}

	result, err := engine.Evaluate(context.Background(), "bump", "score = score + 1", snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Kind != KindNil {
		t.Fatalf("statement block should yield nil result, got %+v", result)
	}
	if len(result.Mutations) != 1 {
		t.Fatalf("expected one mutation, got %+v", result.Mutations)
	}
	if result.Mutations["score"] != float64(2) {
		t.Fatalf("expected score mutation to 2, got %v", result.Mutations["score"])
	}
}

func TestLuaEvaluateWithoutSideEffectsDiscardsMutations(t *testing.T) {
	engine := NewLuaEngine()
	snap := Snapshot{
		Variables: map[string]Ref{
			"score": {DefinitionID: "v1", Value: int64(1)},
		},
	}

	result, err := engine.EvaluateWithoutSideEffects(context.Background(), "bump", "score = score + 1", snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Mutations) != 0 {
		t.Fatalf("expected no mutations reported, got %+v", result.Mutations)
	}

	// Nothing persists across calls either: a fresh state sees the original value.
	check, err := engine.EvaluateWithoutSideEffects(context.Background(), "check", "score", snap)
	if err != nil {
		t.Fatalf("evaluate check: %v", err)
	}
	if check.Number != 1 {
		t.Fatalf("expected original value 1, got %v", check.Number)
	}
}

func TestLuaEvaluateSurfacesScriptErrors(t *testing.T) {
	engine := NewLuaEngine()

	_, err := engine.EvaluateWithoutSideEffects(context.Background(), "broken", "error('boom')", Snapshot{})
	if err == nil {
		t.Fatal("expected script error")
	}
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) || domainErr.Code != apperrors.CodeScriptEvaluation {
		t.Fatalf("expected script evaluation error code, got %v", err)
	}
}

func TestLuaEvaluateBlocksSandboxEscapes(t *testing.T) {
	engine := NewLuaEngine()

	result, err := engine.EvaluateWithoutSideEffects(context.Background(), "probe", "dofile == nil and require == nil", Snapshot{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.Truthy() {
		t.Fatal("expected loader entry points to be blocked")
	}
}

func TestLuaEvaluateHonorsCancelledContext(t *testing.T) {
	engine := NewLuaEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.EvaluateWithoutSideEffects(ctx, "late", "true", Snapshot{}); err == nil {
		t.Fatal("expected context error")
	}
}
