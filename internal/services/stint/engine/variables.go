package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
	"github.com/louisbranch/convening.space/internal/platform/id"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/team"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/variable"
	"github.com/louisbranch/convening.space/internal/services/stint/script"
	"github.com/louisbranch/convening.space/internal/services/stint/storage"
)

// scopeKey resolves the scope instance a definition's value lives in for a
// given hand. Exactly the fields implied by the scope are set.
func scopeKey(def variable.Definition, h storage.HandRecord) (storage.ScopeKey, error) {
	switch def.Scope {
	case variable.ScopeStint:
		return storage.ScopeKey{StintID: h.StintID}, nil
	case variable.ScopeModule:
		return storage.ScopeKey{StintID: h.StintID, ModuleID: def.ModuleID}, nil
	case variable.ScopeTeam:
		if h.TeamID == "" {
			return storage.ScopeKey{}, apperrors.New(apperrors.CodeVariableMissingTeam,
				"hand "+h.ID+" has no team for team-scoped variable "+def.Name)
		}
		return storage.ScopeKey{StintID: h.StintID, TeamID: h.TeamID}, nil
	case variable.ScopeHand:
		return storage.ScopeKey{StintID: h.StintID, HandID: h.ID}, nil
	default:
		return storage.ScopeKey{}, variable.ErrInvalidScope
	}
}

func encodeValue(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(data), nil
}

// decodeValue restores the canonical representation from stored JSON; JSON
// numbers decode as float64, so the definition re-coerces them.
func decodeValue(def variable.Definition, raw string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("decode value of %s: %w", def.Name, err)
	}
	return def.Coerce(value)
}

// loadValue returns the current value for a definition in a hand's context,
// or ok=false when it was never set.
func (e *Engine) loadValue(ctx context.Context, def variable.Definition, h storage.HandRecord) (any, bool, error) {
	key, err := scopeKey(def, h)
	if err != nil {
		return nil, false, err
	}
	record, err := e.store.GetValue(ctx, def.ID, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	value, err := decodeValue(def, record.Value)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set writes a value into the scope instance implied by the definition,
// validating first. The returned flag is true iff the stored value differs
// from the previous one.
func (e *Engine) Set(ctx context.Context, def variable.Definition, h storage.HandRecord, raw any) (any, bool, error) {
	value, err := def.Coerce(raw)
	if err != nil {
		return nil, false, err
	}
	if def.Validator != "" {
		if err := e.runValidator(ctx, def, h, value); err != nil {
			return nil, false, err
		}
	}

	previous, exists, err := e.loadValue(ctx, def, h)
	if err != nil {
		return nil, false, err
	}
	if exists && variable.Equal(previous, value) {
		return value, false, nil
	}

	key, err := scopeKey(def, h)
	if err != nil {
		return nil, false, err
	}
	encoded, err := encodeValue(value)
	if err != nil {
		return nil, false, err
	}
	recordID, err := id.NewID()
	if err != nil {
		return nil, false, err
	}
	if err := e.store.PutValue(ctx, storage.VariableRecord{
		ID:           recordID,
		DefinitionID: def.ID,
		StintID:      key.StintID,
		ModuleID:     key.ModuleID,
		TeamID:       key.TeamID,
		HandID:       key.HandID,
		Value:        encoded,
	}); err != nil {
		return nil, false, err
	}
	e.invalidate(ctx, "var:"+def.Name)
	return value, true, nil
}

func (e *Engine) runValidator(ctx context.Context, def variable.Definition, h storage.HandRecord, value any) error {
	snap, _, err := e.snapshot(ctx, h)
	if err != nil {
		return err
	}
	snap.Variables["value"] = script.Ref{DefinitionID: def.ID, Value: value}
	result, err := e.script.EvaluateWithoutSideEffects(ctx, "validate "+def.Name, def.Validator, snap)
	if err != nil {
		return err
	}
	if !result.Truthy() {
		return apperrors.WrapWithMetadata(apperrors.CodeVariableRejectedValue,
			fmt.Sprintf("value %v rejected by validator of %s", value, def.Name),
			map[string]string{"variable": def.Name}, variable.ErrTypeMismatch)
	}
	return nil
}

// SetEra assigns a hand's era and applies the team synchronization rule:
// when every hand on the team shares the new era, the team era follows.
// This is the only path by which a team's era changes.
func (e *Engine) SetEra(ctx context.Context, h storage.HandRecord, eraID string) (storage.HandRecord, error) {
	if _, ok := e.catalog.Era(eraID); !ok {
		return h, fmt.Errorf("unknown era %q", eraID)
	}
	h.EraID = eraID
	if err := e.store.PutHand(ctx, h); err != nil {
		return h, err
	}
	e.invalidate(ctx, "hand:"+h.ID)

	if h.TeamID == "" {
		return h, nil
	}
	members, err := e.store.ListHandsByTeam(ctx, h.TeamID)
	if err != nil {
		return h, err
	}
	eras := make([]string, 0, len(members))
	for _, member := range members {
		eras = append(eras, member.EraID)
	}
	shared, ok := team.Unanimous(eras)
	if !ok || shared != eraID {
		return h, nil
	}
	record, err := e.store.GetTeam(ctx, h.TeamID)
	if err != nil {
		return h, err
	}
	if record.EraID == eraID {
		return h, nil
	}
	record.EraID = eraID
	return h, e.store.PutTeam(ctx, record)
}

// Payoff sums the hand's is_payoff variables. With a module id the sum is
// limited to that module's definitions and clamped by the module spec. With
// an empty module id every module's already-clamped sub-total is summed and
// the result clamped by the stint spec.
func (e *Engine) Payoff(ctx context.Context, h storage.HandRecord, moduleID string) (float64, error) {
	if moduleID != "" {
		return e.modulePayoff(ctx, h, moduleID)
	}
	var total float64
	for _, m := range e.catalog.Modules() {
		sub, err := e.modulePayoff(ctx, h, m.ID)
		if err != nil {
			return 0, err
		}
		total += sub
	}
	if e.catalog.Spec != nil {
		total = e.catalog.Spec.Clamp(total)
	}
	return total, nil
}

func (e *Engine) modulePayoff(ctx context.Context, h storage.HandRecord, moduleID string) (float64, error) {
	m, ok := e.catalog.Module(moduleID)
	if !ok {
		return 0, fmt.Errorf("unknown module %q", moduleID)
	}
	var sum float64
	for _, def := range e.catalog.ModuleVariables(moduleID) {
		if !def.IsPayoff || def.Scope != variable.ScopeHand {
			continue
		}
		value, exists, err := e.loadValue(ctx, def, h)
		if err != nil {
			return 0, err
		}
		if !exists {
			continue
		}
		if n, ok := variable.Number(value); ok {
			sum += n
		}
	}
	if m.Spec != nil {
		sum = m.Spec.Clamp(sum)
	}
	return sum, nil
}

// ZeroPayoffs resets every hand-scoped is_payoff variable of the hand.
func (e *Engine) ZeroPayoffs(ctx context.Context, h storage.HandRecord) error {
	for _, m := range e.catalog.Modules() {
		for _, def := range e.catalog.ModuleVariables(m.ID) {
			if !def.IsPayoff || def.Scope != variable.ScopeHand {
				continue
			}
			var zero any
			switch def.DataType {
			case variable.DataTypeInt:
				zero = int64(0)
			case variable.DataTypeFloat:
				zero = float64(0)
			default:
				continue
			}
			if _, _, err := e.Set(ctx, def, h, zero); err != nil {
				return err
			}
		}
	}
	return nil
}

// snapshot builds the evaluation context for a hand: current stint, module,
// era, and stage names plus every visible variable value. Unset variables
// are absent; the script engine reads them as nil.
func (e *Engine) snapshot(ctx context.Context, h storage.HandRecord) (script.Snapshot, []string, error) {
	snap := script.Snapshot{Variables: map[string]script.Ref{}}
	snap.StintName = e.catalog.Name
	if m, ok := e.catalog.Module(h.ModuleID); ok {
		snap.ModuleName = m.Name
	}
	if era, ok := e.catalog.Era(h.EraID); ok {
		snap.EraName = era.Name
	}
	if h.BreadcrumbID != "" {
		crumb, err := e.store.GetBreadcrumb(ctx, h.BreadcrumbID)
		if err == nil {
			if s, ok := e.catalog.Stage(crumb.StageID); ok {
				snap.StageName = s.Name
			}
		}
	}

	var names []string
	for _, m := range e.catalog.Modules() {
		for _, def := range e.catalog.ModuleVariables(m.ID) {
			value, exists, err := e.loadValue(ctx, def, h)
			if err != nil {
				return script.Snapshot{}, nil, err
			}
			if !exists {
				continue
			}
			snap.Variables[def.Name] = script.Ref{DefinitionID: def.ID, Value: value}
			names = append(names, def.Name)
		}
	}
	sort.Strings(names)
	return snap, names, nil
}

// fingerprint digests a snapshot so cache keys change whenever any visible
// value or context name does.
func fingerprint(snap script.Snapshot) string {
	data, err := json.Marshal(snap)
	if err != nil {
		return "unfingerprintable"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (e *Engine) invalidate(ctx context.Context, tag string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, tag); err != nil {
		e.logger.Printf("cache invalidate %s: %v", tag, err)
	}
}
