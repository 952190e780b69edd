package engine

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/louisbranch/convening.space/internal/services/stint/content"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/action"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/condition"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/hand"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/module"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stage"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stint"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/variable"
	"github.com/louisbranch/convening.space/internal/services/stint/evalcache"
	"github.com/louisbranch/convening.space/internal/services/stint/script"
	"github.com/louisbranch/convening.space/internal/services/stint/storage"
	"github.com/louisbranch/convening.space/internal/services/stint/storage/memory"
)

type fakeLedger struct {
	mu       sync.Mutex
	payments []Payment
	err      error
}

func (f *fakeLedger) Pay(_ context.Context, payment Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payments = append(f.payments, payment)
	return nil
}

func (f *fakeLedger) Payments() []Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	payments := make([]Payment, len(f.payments))
	copy(payments, f.payments)
	return payments
}

type fakeSink struct {
	mu     sync.Mutex
	points []DataPoint
}

func (f *fakeSink) SaveData(_ context.Context, point DataPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, point)
	return nil
}

func (f *fakeSink) Points() []DataPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	points := make([]DataPoint, len(f.points))
	copy(points, f.points)
	return points
}

// testCatalog builds the shared two-module catalog every engine test runs
// against.
func testCatalog(t *testing.T) *content.Catalog {
	t.Helper()

	catalog, err := content.NewCatalog(content.CatalogInput{
		Name: "pilot",
		Spec: &stint.Spec{MinEarnings: 0, MaxEarnings: 12},
		Modules: []module.Module{
			{ID: "mod-1", Order: 1, Name: "first", StartStageID: "stage-a", Spec: &module.Spec{MinEarnings: 0, MaxEarnings: 10}},
			{ID: "mod-2", Order: 2, Name: "second", StartStageID: "stage-m2", Spec: &module.Spec{MinEarnings: 0, MaxEarnings: 5}},
		},
		Eras: []module.Era{
			{ID: "era-1", ModuleID: "mod-1", Name: "round one"},
			{ID: "era-2", ModuleID: "mod-1", Name: "round two"},
		},
		Variables: []variable.Definition{
			{ID: "var-score", ModuleID: "mod-1", Name: "score", Scope: variable.ScopeHand, DataType: variable.DataTypeInt, IsPayoff: true},
			{ID: "var-bonus", ModuleID: "mod-1", Name: "bonus", Scope: variable.ScopeHand, DataType: variable.DataTypeFloat, IsPayoff: true},
			{ID: "var-ready", ModuleID: "mod-1", Name: "ready", Scope: variable.ScopeHand, DataType: variable.DataTypeBool},
			{ID: "var-age", ModuleID: "mod-1", Name: "age", Scope: variable.ScopeHand, DataType: variable.DataTypeInt, Validator: "value >= 0"},
			{ID: "var-flag", ModuleID: "mod-1", Name: "team_flag", Scope: variable.ScopeTeam, DataType: variable.DataTypeBool},
			{ID: "var-export", ModuleID: "mod-1", Name: "answer", Scope: variable.ScopeHand, DataType: variable.DataTypeString, IsOutputData: true},
			{ID: "var-m2", ModuleID: "mod-2", Name: "m2_score", Scope: variable.ScopeHand, DataType: variable.DataTypeInt, IsPayoff: true},
		},
		Conditions: condition.Arena{
			"cond-ready": {
				ID:       "cond-ready",
				Left:     condition.Side{VariableID: "var-ready"},
				Right:    condition.Side{Expression: "true"},
				Relation: condition.RelationEqual,
			},
			"cond-score": {
				ID:       "cond-score",
				Left:     condition.Side{VariableID: "var-score"},
				Right:    condition.Side{Expression: "3"},
				Relation: condition.RelationGreater,
			},
			"cond-both": {
				ID:       "cond-both",
				Left:     condition.Side{ConditionID: "cond-ready"},
				Right:    condition.Side{ConditionID: "cond-score"},
				Operator: condition.OperatorAnd,
			},
		},
		Actions: []action.Action{
			{ID: "act-log-hand", ModuleID: "mod-1", Name: "log hand", Steps: []action.Step{
				{ID: "step-log-hand", Order: 1, Type: action.TypeLog, ForEach: action.ForEachCurrentHand, Message: "hello"},
			}},
			{ID: "act-log-team", ModuleID: "mod-1", Name: "log team", Steps: []action.Step{
				{ID: "step-log-team", Order: 1, Type: action.TypeLog, ForEach: action.ForEachHandInTeam, Message: "hello team"},
			}},
			{ID: "act-log-stint", ModuleID: "mod-1", Name: "log stint", Steps: []action.Step{
				{ID: "step-log-stint", Order: 1, Type: action.TypeLog, ForEach: action.ForEachHandInStint, Message: "hello stint"},
			}},
			{ID: "act-log-teams", ModuleID: "mod-1", Name: "log teams", Steps: []action.Step{
				{ID: "step-log-teams", Order: 1, Type: action.TypeLog, ForEach: action.ForEachTeamInStint, Message: "hello teams"},
			}},
			{ID: "act-log-nearby", ModuleID: "mod-1", Name: "log nearby", Steps: []action.Step{
				{ID: "step-log-nearby", Order: 1, Type: action.TypeLog, ForEach: action.ForEachNeighborhood, Message: "hello nearby"},
			}},
			{ID: "act-ordered", ModuleID: "mod-1", Name: "ordered", Steps: []action.Step{
				{ID: "step-o3", Order: 3, Type: action.TypeSetEra, ForEach: action.ForEachCurrentHand, EraID: "era-2"},
				{ID: "step-o1", Order: 1, Type: action.TypeLog, ForEach: action.ForEachCurrentHand, Message: "start"},
				{ID: "step-o2", Order: 2, Type: action.TypeSetVariable, ForEach: action.ForEachCurrentHand, VariableID: "var-score", Value: "42"},
			}},
			{ID: "act-gated", ModuleID: "mod-1", Name: "gated", Steps: []action.Step{
				{ID: "step-gated", Order: 1, Type: action.TypeLog, ForEach: action.ForEachCurrentHand, ConditionID: "cond-ready", Message: "gated"},
			}},
			{ID: "act-gated-invert", ModuleID: "mod-1", Name: "gated invert", Steps: []action.Step{
				{ID: "step-gated-inv", Order: 1, Type: action.TypeLog, ForEach: action.ForEachCurrentHand, ConditionID: "cond-ready", InvertCondition: true, Message: "gated invert"},
			}},
			{ID: "act-pay", ModuleID: "mod-1", Name: "pay", Steps: []action.Step{
				{ID: "step-pay", Order: 1, Type: action.TypePayHands, ForEach: action.ForEachHandInStint, CurrencyCode: "USD"},
			}},
			{ID: "act-quit", ModuleID: "mod-1", Name: "quit", Steps: []action.Step{
				{ID: "step-quit", Order: 1, Type: action.TypeQuit, ForEach: action.ForEachCurrentHand},
			}},
			{ID: "act-sub", ModuleID: "mod-1", Name: "sub", Steps: []action.Step{
				{ID: "step-sub", Order: 1, Type: action.TypeSubaction, ForEach: action.ForEachCurrentHand, SubactionID: "act-log-hand"},
			}},
			{ID: "act-sub-bad", ModuleID: "mod-1", Name: "sub bad", Steps: []action.Step{
				{ID: "step-sub-bad", Order: 1, Type: action.TypeSubaction, ForEach: action.ForEachCurrentHand, SubactionID: "act-bad"},
			}},
			{ID: "act-save", ModuleID: "mod-1", Name: "save", Steps: []action.Step{
				{ID: "step-save", Order: 1, Type: action.TypeSaveData, ForEach: action.ForEachCurrentHand},
			}},
			{ID: "act-code", ModuleID: "mod-1", Name: "code", Steps: []action.Step{
				{ID: "step-code", Order: 1, Type: action.TypeRunCode, ForEach: action.ForEachCurrentHand, Code: "score = score + 1"},
			}},
			{ID: "act-flag", ModuleID: "mod-1", Name: "flag teams", Steps: []action.Step{
				{ID: "step-flag", Order: 1, Type: action.TypeSetVariable, ForEach: action.ForEachTeamInStint, VariableID: "var-flag", Value: "true"},
			}},
			{ID: "act-team-score", ModuleID: "mod-1", Name: "score teams", Steps: []action.Step{
				{ID: "step-team-score", Order: 1, Type: action.TypeSetVariable, ForEach: action.ForEachTeamInStint, VariableID: "var-score", Value: "42"},
			}},
			{ID: "act-bad", ModuleID: "mod-1", Name: "bad", Steps: []action.Step{
				{ID: "step-bad-1", Order: 1, Type: action.TypeRunCode, ForEach: action.ForEachCurrentHand, Code: "boom()"},
				{ID: "step-bad-2", Order: 2, Type: action.TypeLog, ForEach: action.ForEachCurrentHand, Message: "unreached"},
			}},
		},
		Stages: []stage.Definition{
			{ID: "stage-a", ModuleID: "mod-1", Name: "alpha", BreadcrumbType: stage.BreadcrumbNone},
			{ID: "stage-b", ModuleID: "mod-1", Name: "beta", BreadcrumbType: stage.BreadcrumbBack},
			{ID: "stage-c", ModuleID: "mod-1", Name: "gamma", BreadcrumbType: stage.BreadcrumbAll, PreActionID: "act-log-hand"},
			{ID: "stage-end", ModuleID: "mod-1", Name: "omega", BreadcrumbType: stage.BreadcrumbBack, EndStage: true},
			{ID: "stage-m2", ModuleID: "mod-2", Name: "second start", BreadcrumbType: stage.BreadcrumbNone, EndStage: true},
		},
		Redirects: []stage.Redirect{
			{ID: "r-a1", StageID: "stage-a", Order: 1, ConditionID: "cond-ready", NextStageID: "stage-b"},
			{ID: "r-a2", StageID: "stage-a", Order: 2, NextStageID: "stage-c"},
			{ID: "r-b1", StageID: "stage-b", Order: 1, NextStageID: "stage-end"},
			{ID: "r-c1", StageID: "stage-c", Order: 1, NextStageID: "stage-end"},
		},
	})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return catalog
}

type fixture struct {
	ctx    context.Context
	store  *memory.Store
	script *script.Fake
	cache  *evalcache.Memory
	ledger *fakeLedger
	sink   *fakeSink
	engine *Engine

	stintID string
	// team-1 holds hand-1 and hand-2; team-2 holds hand-3.
	hands map[string]storage.HandRecord
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:    context.Background(),
		store:  memory.New(),
		script: script.NewFake(),
		cache:  evalcache.NewMemory(),
		ledger: &fakeLedger{},
		sink:   &fakeSink{},
		hands:  map[string]storage.HandRecord{},
	}
	f.engine = New(testCatalog(t), f.store, f.script, Options{
		Cache:  f.cache,
		Ledger: f.ledger,
		Sink:   f.sink,
		Logger: log.New(io.Discard, "", 0),
	})

	f.stintID = "stint-1"
	if err := f.store.CreateStint(f.ctx, storage.StintRecord{ID: "stint-1", Name: "pilot", Status: stint.StatusRunning}); err != nil {
		t.Fatalf("create stint: %v", err)
	}
	for _, team := range []string{"team-1", "team-2"} {
		if err := f.store.CreateTeam(f.ctx, storage.TeamRecord{ID: team, StintID: "stint-1", Name: team}); err != nil {
			t.Fatalf("create team: %v", err)
		}
	}
	members := []struct{ handID, teamID string }{
		{"hand-1", "team-1"},
		{"hand-2", "team-1"},
		{"hand-3", "team-2"},
	}
	for i, m := range members {
		crumbID := "crumb-" + m.handID
		if err := f.store.CreateBreadcrumb(f.ctx, storage.BreadcrumbRecord{ID: crumbID, HandID: m.handID, StageID: "stage-a", Started: true}); err != nil {
			t.Fatalf("create breadcrumb %d: %v", i, err)
		}
		record := storage.HandRecord{
			ID:           m.handID,
			StintID:      "stint-1",
			TeamID:       m.teamID,
			Status:       hand.StatusActive,
			ModuleID:     "mod-1",
			EraID:        "era-1",
			BreadcrumbID: crumbID,
		}
		if err := f.store.CreateHand(f.ctx, record); err != nil {
			t.Fatalf("create hand %d: %v", i, err)
		}
		f.hands[m.handID] = record
	}
	return f
}

func (f *fixture) hand(t *testing.T, id string) storage.HandRecord {
	t.Helper()
	record, err := f.store.GetHand(f.ctx, id)
	if err != nil {
		t.Fatalf("get hand %s: %v", id, err)
	}
	return record
}

func (f *fixture) setValue(t *testing.T, defID, handID string, raw any) {
	t.Helper()
	def, ok := f.engine.catalog.Variable(defID)
	if !ok {
		t.Fatalf("unknown definition %s", defID)
	}
	if _, _, err := f.engine.Set(f.ctx, def, f.hand(t, handID), raw); err != nil {
		t.Fatalf("set %s on %s: %v", defID, handID, err)
	}
}

func countChanges(changes []Change, kind ChangeKind) int {
	count := 0
	for _, change := range changes {
		if change.Kind == kind {
			count++
		}
	}
	return count
}
