package content

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/action"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/condition"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/variable"
)

const validBundle = `
name: pilot
spec:
  min_earnings: 0
  max_earnings: 100
modules:
  - id: mod-1
    order: 1
    name: intro
    start_stage: stage-welcome
    spec:
      min_earnings: 0
      max_earnings: 40
    eras:
      - id: era-1
        name: round one
      - id: era-2
        name: round two
    variables:
      - id: var-score
        name: score
        scope: hand
        data_type: int
        validator: "value >= 0"
        is_payoff: true
      - id: var-ready
        name: ready
        scope: hand
        data_type: bool
    conditions:
      - id: cond-ready
        left:
          variable: var-ready
        right:
          expression: "true"
        relation: equal
      - id: cond-scored
        left:
          variable: var-score
        right:
          expression: "3"
        relation: greater_or_equal
      - id: cond-both
        left:
          condition: cond-ready
        right:
          condition: cond-scored
        operator: and
    actions:
      - id: act-award
        name: award point
        steps:
          - id: step-log
            order: 1
            type: log
            for_each: current_hand_only
            message: awarding
          - id: step-award
            order: 2
            type: set_variable
            for_each: current_hand_only
            variable: var-score
            value: "score + 1"
    stages:
      - id: stage-welcome
        name: welcome
        breadcrumb_type: none
        pre_action: act-award
        redirects:
          - id: r-1
            order: 1
            condition: cond-both
            next_stage: stage-done
      - id: stage-done
        name: done
        breadcrumb_type: back
        end_stage: true
`

func TestLoadValidBundle(t *testing.T) {
	catalog, err := Load(strings.NewReader(validBundle))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if catalog.Name != "pilot" {
		t.Fatalf("name = %q, want pilot", catalog.Name)
	}
	if catalog.Spec == nil || catalog.Spec.MaxEarnings != 100 {
		t.Fatalf("spec = %+v", catalog.Spec)
	}

	first, ok := catalog.FirstModule()
	if !ok || first.ID != "mod-1" {
		t.Fatalf("first module = %+v, ok %v", first, ok)
	}
	if first.Spec == nil || first.Spec.MaxEarnings != 40 {
		t.Fatalf("module spec = %+v", first.Spec)
	}
	if first.StartStageID != "stage-welcome" {
		t.Fatalf("start stage = %q", first.StartStageID)
	}

	def, ok := catalog.Variable("var-score")
	if !ok || def.Scope != variable.ScopeHand || def.DataType != variable.DataTypeInt || !def.IsPayoff {
		t.Fatalf("var-score = %+v, ok %v", def, ok)
	}
	if _, ok := catalog.VariableByName("ready"); !ok {
		t.Fatal("variable name lookup failed")
	}

	node, ok := catalog.Conditions["cond-both"]
	if !ok || !node.IsComposite() || node.Operator != condition.OperatorAnd {
		t.Fatalf("cond-both = %+v, ok %v", node, ok)
	}

	a, ok := catalog.Action("act-award")
	if !ok || len(a.Steps) != 2 {
		t.Fatalf("act-award = %+v, ok %v", a, ok)
	}
	if a.Steps[1].Type != action.TypeSetVariable {
		t.Fatalf("step type = %q", a.Steps[1].Type)
	}

	welcome, ok := catalog.Stage("stage-welcome")
	if !ok || welcome.PreActionID != "act-award" {
		t.Fatalf("stage-welcome = %+v, ok %v", welcome, ok)
	}
	redirects := catalog.Redirects("stage-welcome")
	if len(redirects) != 1 || redirects[0].NextStageID != "stage-done" {
		t.Fatalf("redirects = %+v", redirects)
	}

	done, ok := catalog.Stage("stage-done")
	if !ok || !done.EndStage {
		t.Fatalf("stage-done = %+v, ok %v", done, ok)
	}
}

func TestLoadRejectsBrokenBundles(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s string) string
		errText string
	}{
		{
			name:    "unknown relation",
			mutate:  func(s string) string { return strings.Replace(s, "relation: equal", "relation: resembles", 1) },
			errText: "unknown relation",
		},
		{
			name:    "unknown scope",
			mutate:  func(s string) string { return strings.Replace(s, "scope: hand", "scope: galaxy", 1) },
			errText: "scope",
		},
		{
			name:    "unknown next stage",
			mutate:  func(s string) string { return strings.Replace(s, "next_stage: stage-done", "next_stage: stage-zzz", 1) },
			errText: "unknown next stage",
		},
		{
			name:    "unknown start stage",
			mutate:  func(s string) string { return strings.Replace(s, "start_stage: stage-welcome", "start_stage: stage-zzz", 1) },
			errText: "start stage",
		},
		{
			name: "duplicate variable name",
			mutate: func(s string) string {
				return strings.Replace(s, "name: ready", "name: score", 1)
			},
			errText: "duplicate variable name",
		},
		{
			name: "unknown step variable",
			mutate: func(s string) string {
				return strings.Replace(s, "variable: var-score\n            value:", "variable: var-zzz\n            value:", 1)
			},
			errText: "unknown variable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.mutate(validBundle)))
			if err == nil {
				t.Fatal("expected load error")
			}
			if !strings.Contains(err.Error(), tc.errText) {
				t.Fatalf("error = %v, want substring %q", err, tc.errText)
			}
		})
	}
}

func TestLoadRejectsConditionCycle(t *testing.T) {
	cyclic := strings.Replace(validBundle,
		`        left:
          condition: cond-ready
        right:
          condition: cond-scored`,
		`        left:
          condition: cond-both
        right:
          condition: cond-scored`, 1)

	_, err := Load(strings.NewReader(cyclic))
	if !errors.Is(err, condition.ErrCycle) {
		t.Fatalf("error = %v, want ErrCycle", err)
	}
}

func TestLoadRejectsDuplicateRedirectOrder(t *testing.T) {
	duplicated := strings.Replace(validBundle,
		`          - id: r-1
            order: 1
            condition: cond-both
            next_stage: stage-done`,
		`          - id: r-1
            order: 1
            condition: cond-both
            next_stage: stage-done
          - id: r-2
            order: 1
            next_stage: stage-done`, 1)

	_, err := Load(strings.NewReader(duplicated))
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeRedirectDuplicateOrder {
		t.Fatalf("error = %v, want code %s", err, apperrors.CodeRedirectDuplicateOrder)
	}
}

func TestLoadRejectsSubactionCycle(t *testing.T) {
	recursive := strings.Replace(validBundle,
		`          - id: step-log
            order: 1
            type: log
            for_each: current_hand_only
            message: awarding`,
		`          - id: step-log
            order: 1
            type: subaction
            for_each: current_hand_only
            subaction: act-award`, 1)

	_, err := Load(strings.NewReader(recursive))
	if err == nil || !strings.Contains(err.Error(), "subaction") {
		t.Fatalf("error = %v, want subaction cycle", err)
	}
}

func TestLoadRejectsForEachMismatch(t *testing.T) {
	mismatched := strings.Replace(validBundle,
		`            type: log
            for_each: current_hand_only
            message: awarding`,
		`            type: quit
            for_each: hand_in_stint`, 1)

	_, err := Load(strings.NewReader(mismatched))
	if !errors.Is(err, action.ErrForEachMismatch) {
		t.Fatalf("error = %v, want ErrForEachMismatch", err)
	}
}
