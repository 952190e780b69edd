package content

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/convening.space/internal/services/stint/domain/action"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/condition"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/module"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stage"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stint"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/variable"
)

// Bundle is the YAML authoring format for one stint's content.
type Bundle struct {
	Name    string         `yaml:"name"`
	Spec    *SpecBundle    `yaml:"spec,omitempty"`
	Modules []ModuleBundle `yaml:"modules"`
}

// SpecBundle carries payoff clamp bounds.
type SpecBundle struct {
	MinEarnings float64 `yaml:"min_earnings"`
	MaxEarnings float64 `yaml:"max_earnings"`
}

// ModuleBundle is one module with everything it owns.
type ModuleBundle struct {
	ID         string            `yaml:"id"`
	Order      int               `yaml:"order"`
	Name       string            `yaml:"name"`
	StartStage string            `yaml:"start_stage"`
	Spec       *SpecBundle       `yaml:"spec,omitempty"`
	Eras       []EraBundle       `yaml:"eras,omitempty"`
	Variables  []VariableBundle  `yaml:"variables,omitempty"`
	Conditions []ConditionBundle `yaml:"conditions,omitempty"`
	Actions    []ActionBundle    `yaml:"actions,omitempty"`
	Stages     []StageBundle     `yaml:"stages,omitempty"`
}

// EraBundle is one authored era.
type EraBundle struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// VariableBundle is one authored variable definition.
type VariableBundle struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Scope        string `yaml:"scope"`
	DataType     string `yaml:"data_type"`
	Validator    string `yaml:"validator,omitempty"`
	IsPayoff     bool   `yaml:"is_payoff,omitempty"`
	IsOutputData bool   `yaml:"is_output_data,omitempty"`
}

// ConditionBundle is one authored condition node in arena form.
type ConditionBundle struct {
	ID       string     `yaml:"id"`
	Left     SideBundle `yaml:"left"`
	Right    SideBundle `yaml:"right"`
	Relation string     `yaml:"relation,omitempty"`
	Operator string     `yaml:"operator,omitempty"`
}

// SideBundle is one half of a condition node; exactly one field is set.
type SideBundle struct {
	Expression string `yaml:"expression,omitempty"`
	Variable   string `yaml:"variable,omitempty"`
	Condition  string `yaml:"condition,omitempty"`
}

// ActionBundle is one authored action with its steps.
type ActionBundle struct {
	ID    string       `yaml:"id"`
	Name  string       `yaml:"name"`
	Steps []StepBundle `yaml:"steps"`
}

// StepBundle is one authored action step.
type StepBundle struct {
	ID              string `yaml:"id"`
	Order           int    `yaml:"order"`
	Type            string `yaml:"type"`
	ForEach         string `yaml:"for_each"`
	Condition       string `yaml:"condition,omitempty"`
	InvertCondition bool   `yaml:"invert_condition,omitempty"`
	Variable        string `yaml:"variable,omitempty"`
	Value           string `yaml:"value,omitempty"`
	Era             string `yaml:"era,omitempty"`
	Subaction       string `yaml:"subaction,omitempty"`
	Message         string `yaml:"message,omitempty"`
	Code            string `yaml:"code,omitempty"`
	CurrencyCode    string `yaml:"currency_code,omitempty"`
}

// StageBundle is one authored stage with its redirects.
type StageBundle struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	PreAction      string           `yaml:"pre_action,omitempty"`
	BreadcrumbType string           `yaml:"breadcrumb_type"`
	EndStage       bool             `yaml:"end_stage,omitempty"`
	Redirects      []RedirectBundle `yaml:"redirects,omitempty"`
}

// RedirectBundle is one authored stage redirect.
type RedirectBundle struct {
	ID        string `yaml:"id"`
	Order     int    `yaml:"order"`
	Condition string `yaml:"condition,omitempty"`
	NextStage string `yaml:"next_stage"`
}

// Load parses a YAML bundle and resolves it into a validated catalog.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var bundle Bundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	return Resolve(bundle)
}

// LoadFile loads a YAML bundle from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Resolve maps a parsed bundle into domain values and builds the catalog.
func Resolve(bundle Bundle) (*Catalog, error) {
	input := CatalogInput{
		Name:       bundle.Name,
		Conditions: condition.Arena{},
	}
	if bundle.Spec != nil {
		input.Spec = &stint.Spec{MinEarnings: bundle.Spec.MinEarnings, MaxEarnings: bundle.Spec.MaxEarnings}
	}

	for _, mb := range bundle.Modules {
		m := module.Module{
			ID:           mb.ID,
			Order:        mb.Order,
			Name:         mb.Name,
			StartStageID: mb.StartStage,
		}
		if mb.Spec != nil {
			m.Spec = &module.Spec{MinEarnings: mb.Spec.MinEarnings, MaxEarnings: mb.Spec.MaxEarnings}
		}
		input.Modules = append(input.Modules, m)

		for _, eb := range mb.Eras {
			input.Eras = append(input.Eras, module.Era{ID: eb.ID, ModuleID: mb.ID, Name: eb.Name})
		}

		for _, vb := range mb.Variables {
			scope, ok := variable.ParseScope(vb.Scope)
			if !ok {
				return nil, fmt.Errorf("variable %q: %w", vb.ID, variable.ErrInvalidScope)
			}
			dataType, ok := variable.ParseDataType(vb.DataType)
			if !ok {
				return nil, fmt.Errorf("variable %q: %w", vb.ID, variable.ErrInvalidDataType)
			}
			input.Variables = append(input.Variables, variable.Definition{
				ID:           vb.ID,
				ModuleID:     mb.ID,
				Name:         vb.Name,
				Scope:        scope,
				DataType:     dataType,
				Validator:    vb.Validator,
				IsPayoff:     vb.IsPayoff,
				IsOutputData: vb.IsOutputData,
			})
		}

		for _, cb := range mb.Conditions {
			node := condition.Node{
				ID:    cb.ID,
				Left:  condition.Side{Expression: cb.Left.Expression, VariableID: cb.Left.Variable, ConditionID: cb.Left.Condition},
				Right: condition.Side{Expression: cb.Right.Expression, VariableID: cb.Right.Variable, ConditionID: cb.Right.Condition},
			}
			if cb.Relation != "" {
				relation, ok := condition.ParseRelation(cb.Relation)
				if !ok {
					return nil, fmt.Errorf("condition %q: unknown relation %q", cb.ID, cb.Relation)
				}
				node.Relation = relation
			}
			if cb.Operator != "" {
				operator, ok := condition.ParseOperator(cb.Operator)
				if !ok {
					return nil, fmt.Errorf("condition %q: unknown operator %q", cb.ID, cb.Operator)
				}
				node.Operator = operator
			}
			if _, dup := input.Conditions[cb.ID]; dup {
				return nil, fmt.Errorf("duplicate condition id %q", cb.ID)
			}
			input.Conditions[cb.ID] = node
		}

		for _, ab := range mb.Actions {
			a := action.Action{ID: ab.ID, ModuleID: mb.ID, Name: ab.Name}
			for _, sb := range ab.Steps {
				stepType, ok := action.ParseType(sb.Type)
				if !ok {
					return nil, fmt.Errorf("action %q step %q: unknown type %q", ab.ID, sb.ID, sb.Type)
				}
				forEach, ok := action.ParseForEach(sb.ForEach)
				if !ok {
					return nil, fmt.Errorf("action %q step %q: unknown for_each %q", ab.ID, sb.ID, sb.ForEach)
				}
				a.Steps = append(a.Steps, action.Step{
					ID:              sb.ID,
					Order:           sb.Order,
					Type:            stepType,
					ForEach:         forEach,
					ConditionID:     sb.Condition,
					InvertCondition: sb.InvertCondition,
					VariableID:      sb.Variable,
					Value:           sb.Value,
					EraID:           sb.Era,
					SubactionID:     sb.Subaction,
					Message:         sb.Message,
					Code:            sb.Code,
					CurrencyCode:    sb.CurrencyCode,
				})
			}
			input.Actions = append(input.Actions, a)
		}

		for _, sb := range mb.Stages {
			breadcrumbType, ok := stage.ParseBreadcrumbType(sb.BreadcrumbType)
			if !ok {
				return nil, fmt.Errorf("stage %q: %w", sb.ID, stage.ErrInvalidBreadcrumbType)
			}
			input.Stages = append(input.Stages, stage.Definition{
				ID:             sb.ID,
				ModuleID:       mb.ID,
				Name:           sb.Name,
				PreActionID:    sb.PreAction,
				BreadcrumbType: breadcrumbType,
				EndStage:       sb.EndStage,
			})
			for _, rb := range sb.Redirects {
				input.Redirects = append(input.Redirects, stage.Redirect{
					ID:          rb.ID,
					StageID:     sb.ID,
					Order:       rb.Order,
					ConditionID: rb.Condition,
					NextStageID: rb.NextStage,
				})
			}
		}
	}

	return NewCatalog(input)
}
