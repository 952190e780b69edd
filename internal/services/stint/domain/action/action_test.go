package action

import (
	"errors"
	"testing"
)

func TestStepValidatePayloadRequirements(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{
			name: "log requires message",
			step: Step{ID: "s1", Type: TypeLog, ForEach: ForEachCurrentHand},

			wantErr: true,
		},
		{
			name: "log with message",
			step: Step{ID: "s1", Type: TypeLog, ForEach: ForEachCurrentHand, Message: "start"},
		},
		{
			name:    "run_code requires code",
			step:    Step{ID: "s2", Type: TypeRunCode, ForEach: ForEachCurrentHand},
			wantErr: true,
		},
		{
			name: "run_code with code",
			step: Step{ID: "s2", Type: TypeRunCode, ForEach: ForEachCurrentHand, Code: "score = score + 1"},
		},
		{
			name:    "set_variable requires value",
			step:    Step{ID: "s3", Type: TypeSetVariable, ForEach: ForEachCurrentHand, VariableID: "v1"},
			wantErr: true,
		},
		{
			name:    "set_variable requires variable",
			step:    Step{ID: "s3", Type: TypeSetVariable, ForEach: ForEachCurrentHand, Value: "42"},
			wantErr: true,
		},
		{
			name: "set_variable complete",
			step: Step{ID: "s3", Type: TypeSetVariable, ForEach: ForEachCurrentHand, VariableID: "v1", Value: "42"},
		},
		{
			name:    "set_era requires era",
			step:    Step{ID: "s4", Type: TypeSetEra, ForEach: ForEachCurrentHand},
			wantErr: true,
		},
		{
			name:    "subaction requires target",
			step:    Step{ID: "s5", Type: TypeSubaction, ForEach: ForEachCurrentHand},
			wantErr: true,
		},
		{
			name: "save_data has no payload",
			step: Step{ID: "s6", Type: TypeSaveData, ForEach: ForEachCurrentHand},
		},
		{
			name:    "unknown type",
			step:    Step{ID: "s7", Type: "explode", ForEach: ForEachCurrentHand},
			wantErr: true,
		},
		{
			name:    "unknown for_each",
			step:    Step{ID: "s8", Type: TypeLog, ForEach: "hand_in_galaxy", Message: "m"},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.step.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestStepValidateAudienceRestrictions(t *testing.T) {
	pay := Step{ID: "p1", Type: TypePayHands, ForEach: ForEachCurrentHand}
	if err := pay.Validate(); !errors.Is(err, ErrForEachMismatch) {
		t.Fatalf("expected for_each mismatch for pay_hands, got %v", err)
	}
	pay.ForEach = ForEachHandInStint
	if err := pay.Validate(); err != nil {
		t.Fatalf("pay_hands with hand_in_stint rejected: %v", err)
	}

	quit := Step{ID: "q1", Type: TypeQuit, ForEach: ForEachHandInTeam}
	if err := quit.Validate(); !errors.Is(err, ErrForEachMismatch) {
		t.Fatalf("expected for_each mismatch for quit, got %v", err)
	}
	quit.ForEach = ForEachCurrentHand
	if err := quit.Validate(); err != nil {
		t.Fatalf("quit with current_hand_only rejected: %v", err)
	}
}

func TestOrderedSteps(t *testing.T) {
	act := Action{
		ID:   "a1",
		Name: "welcome",
		Steps: []Step{
			{ID: "s3", Order: 30, Type: TypeLog, ForEach: ForEachCurrentHand, Message: "third"},
			{ID: "s1", Order: 10, Type: TypeLog, ForEach: ForEachCurrentHand, Message: "first"},
			{ID: "s2", Order: 20, Type: TypeLog, ForEach: ForEachCurrentHand, Message: "second"},
		},
	}
	ordered := act.OrderedSteps()
	for i, want := range []string{"s1", "s2", "s3"} {
		if ordered[i].ID != want {
			t.Fatalf("ordered[%d] = %s, want %s", i, ordered[i].ID, want)
		}
	}
	// The original slice stays untouched.
	if act.Steps[0].ID != "s3" {
		t.Fatal("OrderedSteps must not mutate the action")
	}
}

func TestParseTypeAcceptsLegacyPayUsersLabel(t *testing.T) {
	got, ok := ParseType("pay_users")
	if !ok || got != TypePayHands {
		t.Fatalf("ParseType(pay_users) = %v, %v", got, ok)
	}
}
