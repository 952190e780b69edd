package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/louisbranch/convening.space/internal/platform/id"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/action"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/hand"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stint"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/variable"
	"github.com/louisbranch/convening.space/internal/services/stint/storage"
)

// Member identifies one audience member of a step: a hand or a team.
type Member struct {
	HandID string
	TeamID string
}

// member pairs the exported identity with the loaded records the effects
// operate on. Team members carry no hand record.
type member struct {
	Member
	hand *storage.HandRecord
	team *storage.TeamRecord
}

// Run executes an action's steps in ascending order against the invoking
// hand. Each step resolves its audience, gates each member on the optional
// condition, and dispatches its effect. The returned changes accumulate in
// execution order for a transport collaborator to deliver.
//
// Any effect failure forces the stint to panicked and surfaces as a
// StepError; remaining steps and audience members do not run.
func (e *Engine) Run(ctx context.Context, actionID string, h storage.HandRecord) ([]Change, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Run")
	defer span.End()

	act, ok := e.catalog.Action(actionID)
	if !ok {
		return nil, fmt.Errorf("unknown action %q", actionID)
	}

	record, err := e.store.GetStint(ctx, h.StintID)
	if err != nil {
		return nil, err
	}
	if record.Status == stint.StatusPanicked {
		return nil, ErrStintPanicked
	}

	var changes []Change
	for _, step := range act.OrderedSteps() {
		audience, err := e.audience(ctx, step.ForEach, h)
		if err != nil {
			return nil, e.panic(ctx, h.StintID, step, Member{}, err)
		}
		for _, m := range audience {
			if step.ConditionID != "" {
				// Team members have no evaluation context of their own;
				// gating runs against the invoking hand.
				gate := h
				if m.hand != nil {
					gate = *m.hand
				}
				pass, err := e.EvaluateCondition(ctx, step.ConditionID, gate)
				if err != nil {
					return nil, e.panic(ctx, h.StintID, step, m.Member, err)
				}
				if step.InvertCondition {
					pass = !pass
				}
				if !pass {
					continue
				}
			}

			stepChanges, err := e.dispatch(ctx, act, step, m, &h)
			if err != nil {
				return nil, e.panic(ctx, h.StintID, step, m.Member, err)
			}
			changes = append(changes, stepChanges...)
		}
	}
	return changes, nil
}

// audience resolves a for_each selector relative to the invoking hand.
// Terminal hands never receive effects. hand_in_neighborhood is reserved and
// resolves to no members.
func (e *Engine) audience(ctx context.Context, forEach action.ForEach, h storage.HandRecord) ([]member, error) {
	switch forEach {
	case action.ForEachCurrentHand:
		return []member{{Member: Member{HandID: h.ID, TeamID: h.TeamID}, hand: &h}}, nil
	case action.ForEachNeighborhood:
		return nil, nil
	case action.ForEachHandInTeam:
		hands, err := e.store.ListHandsByTeam(ctx, h.TeamID)
		if err != nil {
			return nil, err
		}
		return handMembers(hands), nil
	case action.ForEachHandInStint:
		hands, err := e.store.ListHandsByStint(ctx, h.StintID)
		if err != nil {
			return nil, err
		}
		return handMembers(hands), nil
	case action.ForEachTeamInStint:
		teams, err := e.store.ListTeamsByStint(ctx, h.StintID)
		if err != nil {
			return nil, err
		}
		members := make([]member, 0, len(teams))
		for i := range teams {
			members = append(members, member{Member: Member{TeamID: teams[i].ID}, team: &teams[i]})
		}
		return members, nil
	default:
		return nil, action.ErrInvalidForEach
	}
}

func handMembers(hands []storage.HandRecord) []member {
	members := make([]member, 0, len(hands))
	for i := range hands {
		if hands[i].Status.IsTerminal() {
			continue
		}
		members = append(members, member{Member: Member{HandID: hands[i].ID, TeamID: hands[i].TeamID}, hand: &hands[i]})
	}
	return members
}

// dispatch applies one step's effect to one audience member. The invoking
// hand pointer is refreshed when the effect mutates it, so later steps see
// the new state.
func (e *Engine) dispatch(ctx context.Context, act action.Action, step action.Step, m member, invoking *storage.HandRecord) ([]Change, error) {
	switch step.Type {
	case action.TypeLog:
		return e.effectLog(ctx, step, m, *invoking)
	case action.TypeSetVariable:
		return e.effectSetVariable(ctx, step, m, *invoking)
	case action.TypeSetEra:
		return e.effectSetEra(ctx, step, m, invoking)
	case action.TypeRunCode:
		return e.effectRunCode(ctx, act, step, m, *invoking)
	case action.TypeSaveData:
		return e.effectSaveData(ctx, step, m, *invoking)
	case action.TypeSubaction:
		if m.hand == nil {
			return nil, fmt.Errorf("subaction step %s cannot target a team", step.ID)
		}
		return e.Run(ctx, step.SubactionID, *m.hand)
	case action.TypePayHands:
		return e.effectPay(ctx, step, m)
	case action.TypeQuit:
		return e.effectQuit(ctx, m, invoking)
	default:
		return nil, action.ErrInvalidType
	}
}

func (e *Engine) effectLog(ctx context.Context, step action.Step, m member, invoking storage.HandRecord) ([]Change, error) {
	logID, err := id.NewID()
	if err != nil {
		return nil, err
	}
	record := storage.LogRecord{
		ID:       logID,
		StintID:  invoking.StintID,
		TeamID:   m.TeamID,
		ModuleID: invoking.ModuleID,
		HandID:   m.HandID,
		Level:    "info",
		Message:  step.Message,
	}
	if err := e.store.AppendLog(ctx, record); err != nil {
		return nil, err
	}
	return []Change{{Kind: ChangeLog, HandID: m.HandID, TeamID: m.TeamID, Message: step.Message}}, nil
}

func (e *Engine) effectSetVariable(ctx context.Context, step action.Step, m member, invoking storage.HandRecord) ([]Change, error) {
	def, ok := e.catalog.Variable(step.VariableID)
	if !ok {
		return nil, fmt.Errorf("unknown variable %q", step.VariableID)
	}

	// The value expression is interpreted in the member's context, with
	// variable values supplied through the snapshot.
	evalHand := invoking
	if m.hand != nil {
		evalHand = *m.hand
	}
	snap, _, err := e.snapshot(ctx, evalHand)
	if err != nil {
		return nil, err
	}
	result, err := e.script.EvaluateWithoutSideEffects(ctx, "step "+step.ID, step.Value, snap)
	if err != nil {
		return nil, err
	}

	target := evalHand
	if m.hand == nil {
		if def.Scope == variable.ScopeHand {
			return nil, fmt.Errorf("hand-scoped variable %q cannot target a team", def.Name)
		}
		target = storage.HandRecord{StintID: invoking.StintID, TeamID: m.TeamID}
	}
	value, changed, err := e.Set(ctx, def, target, result.Value())
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	return []Change{{Kind: ChangeVariable, HandID: m.HandID, TeamID: m.TeamID, Variable: def.Name, Value: value}}, nil
}

func (e *Engine) effectSetEra(ctx context.Context, step action.Step, m member, invoking *storage.HandRecord) ([]Change, error) {
	if m.hand == nil {
		return nil, fmt.Errorf("set_era step %s cannot target a team", step.ID)
	}
	updated, err := e.SetEra(ctx, *m.hand, step.EraID)
	if err != nil {
		return nil, err
	}
	if updated.ID == invoking.ID {
		*invoking = updated
	}
	return []Change{{Kind: ChangeEra, HandID: m.HandID, TeamID: m.TeamID, EraID: step.EraID}}, nil
}

// effectRunCode fires a script execution whose return value is discarded.
// Variable globals the script reassigns are persisted back through Set.
func (e *Engine) effectRunCode(ctx context.Context, act action.Action, step action.Step, m member, invoking storage.HandRecord) ([]Change, error) {
	evalHand := invoking
	if m.hand != nil {
		evalHand = *m.hand
	}
	snap, _, err := e.snapshot(ctx, evalHand)
	if err != nil {
		return nil, err
	}
	result, err := e.script.Evaluate(ctx, act.Name+" "+step.ID, step.Code, snap)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for name, raw := range result.Mutations {
		def, ok := e.catalog.VariableByName(name)
		if !ok {
			continue
		}
		value, changed, err := e.Set(ctx, def, evalHand, raw)
		if err != nil {
			return nil, err
		}
		if changed {
			changes = append(changes, Change{Kind: ChangeVariable, HandID: m.HandID, TeamID: m.TeamID, Variable: name, Value: value})
		}
	}
	return changes, nil
}

func (e *Engine) effectSaveData(ctx context.Context, step action.Step, m member, invoking storage.HandRecord) ([]Change, error) {
	evalHand := invoking
	if m.hand != nil {
		evalHand = *m.hand
	}

	values := map[string]any{}
	for _, mod := range e.catalog.Modules() {
		for _, def := range e.catalog.ModuleVariables(mod.ID) {
			if !def.IsOutputData {
				continue
			}
			value, exists, err := e.loadValue(ctx, def, evalHand)
			if err != nil {
				return nil, err
			}
			if exists {
				values[def.Name] = value
			}
		}
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	snapID, err := id.NewID()
	if err != nil {
		return nil, err
	}
	point := DataPoint{
		StintID:      invoking.StintID,
		TeamID:       m.TeamID,
		ModuleID:     invoking.ModuleID,
		HandID:       m.HandID,
		ActionStepID: step.ID,
		Values:       values,
		RecordedAt:   e.now().UTC(),
	}
	if err := e.store.AppendDataSnapshot(ctx, storage.DataSnapshotRecord{
		ID:           snapID,
		StintID:      point.StintID,
		TeamID:       point.TeamID,
		ModuleID:     point.ModuleID,
		HandID:       point.HandID,
		ActionStepID: step.ID,
		Payload:      string(payload),
	}); err != nil {
		return nil, err
	}
	if e.sink != nil {
		if err := e.sink.SaveData(ctx, point); err != nil {
			return nil, err
		}
	}
	return []Change{{Kind: ChangeData, HandID: m.HandID, TeamID: m.TeamID}}, nil
}

// effectPay computes the member's clamped payoff, dispatches it to the
// ledger, then zeroes the payoff variables. Ledger delivery is at-most-once:
// failures are logged and execution proceeds without rollback.
func (e *Engine) effectPay(ctx context.Context, step action.Step, m member) ([]Change, error) {
	if m.hand == nil {
		return nil, fmt.Errorf("pay_hands step %s cannot target a team", step.ID)
	}
	amount, err := e.Payoff(ctx, *m.hand, "")
	if err != nil {
		return nil, err
	}
	if e.ledger != nil {
		payment := Payment{
			StintID:      m.hand.StintID,
			HandID:       m.HandID,
			ActionStepID: step.ID,
			Amount:       amount,
			CurrencyCode: step.CurrencyCode,
		}
		if err := e.ledger.Pay(ctx, payment); err != nil {
			e.logger.Printf("pay hand %s: %v", m.HandID, err)
			logID, idErr := id.NewID()
			if idErr == nil {
				_ = e.store.AppendLog(ctx, storage.LogRecord{
					ID:      logID,
					StintID: m.hand.StintID,
					TeamID:  m.TeamID,
					HandID:  m.HandID,
					Level:   "error",
					Message: fmt.Sprintf("payment failed: %v", err),
				})
			}
		}
	}
	if err := e.ZeroPayoffs(ctx, *m.hand); err != nil {
		return nil, err
	}
	return []Change{{Kind: ChangePayment, HandID: m.HandID, TeamID: m.TeamID, Amount: amount}}, nil
}

func (e *Engine) effectQuit(ctx context.Context, m member, invoking *storage.HandRecord) ([]Change, error) {
	if m.hand == nil {
		return nil, fmt.Errorf("quit cannot target a team")
	}
	updated, err := e.setHandStatus(ctx, *m.hand, hand.StatusQuit)
	if err != nil {
		return nil, err
	}
	if updated.ID == invoking.ID {
		*invoking = updated
	}
	return []Change{{Kind: ChangeStatus, HandID: m.HandID, TeamID: m.TeamID, Status: hand.StatusQuit}}, nil
}

// panic forces the stint into panicked status and wraps the cause. A failed
// subaction arrives here already wrapped by the inner Run and passes through
// untouched.
func (e *Engine) panic(ctx context.Context, stintID string, step action.Step, m Member, cause error) error {
	var stepErr *StepError
	if errors.As(cause, &stepErr) || errors.Is(cause, ErrStintPanicked) {
		return cause
	}
	if err := e.store.SetStintStatus(ctx, stintID, stint.StatusPanicked); err != nil {
		e.logger.Printf("mark stint %s panicked: %v", stintID, err)
	}
	return &StepError{Step: step, Member: m, Cause: cause}
}
