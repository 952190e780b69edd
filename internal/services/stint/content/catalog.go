// Package content loads authored session bundles and resolves them into an
// immutable catalog the runtime reads from.
//
// A bundle is the YAML authoring format: modules with their eras, variables,
// conditions, actions, stages, and redirects. Loading validates every
// authoring invariant up front, including the condition cycle check, so a
// running stint never encounters malformed content.
package content

import (
	"fmt"
	"sort"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/action"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/condition"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/module"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stage"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stint"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/variable"
)

// Catalog is the resolved, validated view of one content bundle. All lookups
// are by id; the catalog is immutable after construction and safe for
// concurrent reads.
type Catalog struct {
	Name       string
	Spec       *stint.Spec
	Conditions condition.Arena

	modules         []module.Module
	modulesByID     map[string]module.Module
	eras            map[string]module.Era
	variables       map[string]variable.Definition
	variablesByName map[string]variable.Definition
	moduleVariables map[string][]variable.Definition
	actions         map[string]action.Action
	stages          map[string]stage.Definition
	redirects       map[string][]stage.Redirect
}

// CatalogInput carries the domain values a catalog is built from.
type CatalogInput struct {
	Name       string
	Spec       *stint.Spec
	Modules    []module.Module
	Eras       []module.Era
	Variables  []variable.Definition
	Conditions condition.Arena
	Actions    []action.Action
	Stages     []stage.Definition
	Redirects  []stage.Redirect
}

// NewCatalog validates input and builds a catalog. The first violated
// invariant aborts the build.
func NewCatalog(input CatalogInput) (*Catalog, error) {
	c := &Catalog{
		Name:            input.Name,
		Spec:            input.Spec,
		Conditions:      input.Conditions,
		modulesByID:     make(map[string]module.Module, len(input.Modules)),
		eras:            make(map[string]module.Era, len(input.Eras)),
		variables:       make(map[string]variable.Definition, len(input.Variables)),
		variablesByName: make(map[string]variable.Definition, len(input.Variables)),
		moduleVariables: map[string][]variable.Definition{},
		actions:         make(map[string]action.Action, len(input.Actions)),
		stages:          make(map[string]stage.Definition, len(input.Stages)),
		redirects:       map[string][]stage.Redirect{},
	}
	if c.Conditions == nil {
		c.Conditions = condition.Arena{}
	}

	for _, m := range input.Modules {
		if m.ID == "" {
			return nil, fmt.Errorf("module without id")
		}
		if _, dup := c.modulesByID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module id %q", m.ID)
		}
		c.modulesByID[m.ID] = m
		c.modules = append(c.modules, m)
	}
	sort.SliceStable(c.modules, func(i, j int) bool { return c.modules[i].Order < c.modules[j].Order })

	for _, e := range input.Eras {
		if _, ok := c.modulesByID[e.ModuleID]; !ok {
			return nil, fmt.Errorf("era %q references unknown module %q", e.ID, e.ModuleID)
		}
		if _, dup := c.eras[e.ID]; dup {
			return nil, fmt.Errorf("duplicate era id %q", e.ID)
		}
		c.eras[e.ID] = e
	}

	for _, def := range input.Variables {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("variable %q: %w", def.ID, err)
		}
		if _, ok := c.modulesByID[def.ModuleID]; !ok {
			return nil, fmt.Errorf("variable %q references unknown module %q", def.ID, def.ModuleID)
		}
		if _, dup := c.variables[def.ID]; dup {
			return nil, fmt.Errorf("duplicate variable id %q", def.ID)
		}
		// Variable names become script globals, so they are unique across
		// the whole bundle, not just within a module.
		if _, dup := c.variablesByName[def.Name]; dup {
			return nil, fmt.Errorf("duplicate variable name %q", def.Name)
		}
		c.variables[def.ID] = def
		c.variablesByName[def.Name] = def
		c.moduleVariables[def.ModuleID] = append(c.moduleVariables[def.ModuleID], def)
	}
	for _, defs := range c.moduleVariables {
		sort.SliceStable(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	}

	if err := c.Conditions.Validate(); err != nil {
		return nil, err
	}
	for id, node := range c.Conditions {
		for _, side := range []condition.Side{node.Left, node.Right} {
			if side.VariableID == "" {
				continue
			}
			if _, ok := c.variables[side.VariableID]; !ok {
				return nil, apperrors.WrapWithMetadata(apperrors.CodeConditionUnknownRef,
					fmt.Sprintf("condition %q references unknown variable %q", id, side.VariableID),
					map[string]string{"condition": id, "variable": side.VariableID},
					condition.ErrUnknownRef)
			}
		}
	}

	for _, a := range input.Actions {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("action %q: %w", a.ID, err)
		}
		if _, ok := c.modulesByID[a.ModuleID]; !ok {
			return nil, fmt.Errorf("action %q references unknown module %q", a.ID, a.ModuleID)
		}
		if _, dup := c.actions[a.ID]; dup {
			return nil, fmt.Errorf("duplicate action id %q", a.ID)
		}
		c.actions[a.ID] = a
	}
	for _, a := range c.actions {
		for _, step := range a.Steps {
			if err := c.validateStepRefs(a.ID, step); err != nil {
				return nil, err
			}
		}
	}
	if err := c.checkSubactionCycles(); err != nil {
		return nil, err
	}

	for _, s := range input.Stages {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("stage %q: %w", s.ID, err)
		}
		if _, ok := c.modulesByID[s.ModuleID]; !ok {
			return nil, fmt.Errorf("stage %q references unknown module %q", s.ID, s.ModuleID)
		}
		if s.PreActionID != "" {
			if _, ok := c.actions[s.PreActionID]; !ok {
				return nil, fmt.Errorf("stage %q references unknown pre-action %q", s.ID, s.PreActionID)
			}
		}
		if _, dup := c.stages[s.ID]; dup {
			return nil, fmt.Errorf("duplicate stage id %q", s.ID)
		}
		c.stages[s.ID] = s
	}

	for _, m := range c.modules {
		if m.StartStageID == "" {
			return nil, fmt.Errorf("module %q has no start stage", m.ID)
		}
		start, ok := c.stages[m.StartStageID]
		if !ok || start.ModuleID != m.ID {
			return nil, fmt.Errorf("module %q start stage %q is unknown", m.ID, m.StartStageID)
		}
	}

	for _, r := range input.Redirects {
		if _, ok := c.stages[r.StageID]; !ok {
			return nil, fmt.Errorf("redirect %q references unknown stage %q", r.ID, r.StageID)
		}
		if _, ok := c.stages[r.NextStageID]; !ok {
			return nil, apperrors.New(apperrors.CodeRedirectUnknownNextStage,
				fmt.Sprintf("redirect %q references unknown next stage %q", r.ID, r.NextStageID))
		}
		if r.ConditionID != "" {
			if _, ok := c.Conditions[r.ConditionID]; !ok {
				return nil, fmt.Errorf("redirect %q references unknown condition %q", r.ID, r.ConditionID)
			}
		}
		for _, existing := range c.redirects[r.StageID] {
			if existing.Order == r.Order {
				return nil, apperrors.New(apperrors.CodeRedirectDuplicateOrder,
					fmt.Sprintf("stage %q has two redirects with order %d", r.StageID, r.Order))
			}
		}
		c.redirects[r.StageID] = append(c.redirects[r.StageID], r)
	}
	for id, redirects := range c.redirects {
		c.redirects[id] = stage.SortRedirects(redirects)
	}

	return c, nil
}

func (c *Catalog) validateStepRefs(actionID string, step action.Step) error {
	if step.ConditionID != "" {
		if _, ok := c.Conditions[step.ConditionID]; !ok {
			return fmt.Errorf("action %q step %q references unknown condition %q", actionID, step.ID, step.ConditionID)
		}
	}
	switch step.Type {
	case action.TypeSetVariable:
		if _, ok := c.variables[step.VariableID]; !ok {
			return fmt.Errorf("action %q step %q references unknown variable %q", actionID, step.ID, step.VariableID)
		}
	case action.TypeSetEra:
		if _, ok := c.eras[step.EraID]; !ok {
			return fmt.Errorf("action %q step %q references unknown era %q", actionID, step.ID, step.EraID)
		}
	case action.TypeSubaction:
		if _, ok := c.actions[step.SubactionID]; !ok {
			return fmt.Errorf("action %q step %q references unknown subaction %q", actionID, step.ID, step.SubactionID)
		}
	}
	return nil
}

// checkSubactionCycles rejects actions that reach themselves through
// subaction steps, mirroring the condition arena cycle pass.
func (c *Catalog) checkSubactionCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(c.actions))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("action %q is its own transitive subaction", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, step := range c.actions[id].Steps {
			if step.Type != action.TypeSubaction {
				continue
			}
			if _, ok := c.actions[step.SubactionID]; !ok {
				continue
			}
			if err := visit(step.SubactionID); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for id := range c.actions {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Modules returns all modules in ascending order.
func (c *Catalog) Modules() []module.Module {
	modules := make([]module.Module, len(c.modules))
	copy(modules, c.modules)
	return modules
}

// Module returns one module by id.
func (c *Catalog) Module(id string) (module.Module, bool) {
	m, ok := c.modulesByID[id]
	return m, ok
}

// FirstModule returns the module with the lowest order.
func (c *Catalog) FirstModule() (module.Module, bool) {
	if len(c.modules) == 0 {
		return module.Module{}, false
	}
	return c.modules[0], true
}

// NextModule returns the module following the given one in order.
func (c *Catalog) NextModule(id string) (module.Module, bool) {
	for i, m := range c.modules {
		if m.ID == id {
			if i+1 < len(c.modules) {
				return c.modules[i+1], true
			}
			return module.Module{}, false
		}
	}
	return module.Module{}, false
}

// Era returns one era by id.
func (c *Catalog) Era(id string) (module.Era, bool) {
	e, ok := c.eras[id]
	return e, ok
}

// Variable returns one variable definition by id.
func (c *Catalog) Variable(id string) (variable.Definition, bool) {
	def, ok := c.variables[id]
	return def, ok
}

// VariableByName returns one variable definition by its script name.
func (c *Catalog) VariableByName(name string) (variable.Definition, bool) {
	def, ok := c.variablesByName[name]
	return def, ok
}

// ModuleVariables returns the definitions owned by one module, ordered by id.
func (c *Catalog) ModuleVariables(moduleID string) []variable.Definition {
	defs := c.moduleVariables[moduleID]
	out := make([]variable.Definition, len(defs))
	copy(out, defs)
	return out
}

// Action returns one action by id.
func (c *Catalog) Action(id string) (action.Action, bool) {
	a, ok := c.actions[id]
	return a, ok
}

// Stage returns one stage by id.
func (c *Catalog) Stage(id string) (stage.Definition, bool) {
	s, ok := c.stages[id]
	return s, ok
}

// Redirects returns a stage's redirects in ascending order.
func (c *Catalog) Redirects(stageID string) []stage.Redirect {
	redirects := c.redirects[stageID]
	out := make([]stage.Redirect, len(redirects))
	copy(out, redirects)
	return out
}
