// Package condition models authored boolean expression trees.
//
// Nodes reference each other by id through an arena rather than by embedded
// pointers, so persisted content cannot form true object cycles and the
// loader can reject self-referential trees up front.
package condition

import (
	"strings"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
)

// Relation compares the two sides of a leaf node.
type Relation string

const (
	RelationUnspecified    Relation = ""
	RelationEqual          Relation = "equal"
	RelationNotEqual       Relation = "not_equal"
	RelationGreater        Relation = "greater"
	RelationGreaterOrEqual Relation = "greater_or_equal"
	RelationLess           Relation = "less"
	RelationLessOrEqual    Relation = "less_or_equal"
)

// Operator joins the two sides of a composite node.
type Operator string

const (
	OperatorUnspecified Operator = ""
	OperatorAnd         Operator = "and"
	OperatorOr          Operator = "or"
)

var (
	// ErrMissingRelation indicates a leaf node without a relation.
	ErrMissingRelation = apperrors.New(apperrors.CodeConditionMissingRelation, "leaf condition requires a relation")
	// ErrMissingOperator indicates a composite node without a boolean operator.
	ErrMissingOperator = apperrors.New(apperrors.CodeConditionMissingOperator, "composite condition requires an operator")
	// ErrEmptySide indicates a side with no expression, variable, or sub-condition.
	ErrEmptySide = apperrors.New(apperrors.CodeConditionEmptySide, "condition side is empty")
	// ErrAmbiguousSide indicates a side with more than one of expression, variable, sub-condition.
	ErrAmbiguousSide = apperrors.New(apperrors.CodeConditionAmbiguousSide, "condition side sets more than one source")
	// ErrUnknownRef indicates a side referencing a condition id absent from the arena.
	ErrUnknownRef = apperrors.New(apperrors.CodeConditionUnknownRef, "condition references an unknown node")
	// ErrCycle indicates a node that is its own transitive child.
	ErrCycle = apperrors.New(apperrors.CodeConditionCycle, "condition tree contains a cycle")
)

// ParseRelation canonicalizes a relation label.
func ParseRelation(value string) (Relation, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "equal", "eq", "==":
		return RelationEqual, true
	case "not_equal", "ne", "!=":
		return RelationNotEqual, true
	case "greater", "gt", ">":
		return RelationGreater, true
	case "greater_or_equal", "ge", ">=":
		return RelationGreaterOrEqual, true
	case "less", "lt", "<":
		return RelationLess, true
	case "less_or_equal", "le", "<=":
		return RelationLessOrEqual, true
	default:
		return RelationUnspecified, false
	}
}

// ParseOperator canonicalizes an operator label.
func ParseOperator(value string) (Operator, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "and":
		return OperatorAnd, true
	case "or":
		return OperatorOr, true
	default:
		return OperatorUnspecified, false
	}
}

// Side is one half of a condition node. Exactly one field is set: a verbatim
// script expression, a variable reference (rendered by name at compile time),
// or a nested condition id.
type Side struct {
	Expression  string
	VariableID  string
	ConditionID string
}

// IsZero reports whether no source is set.
func (s Side) IsZero() bool {
	return s.Expression == "" && s.VariableID == "" && s.ConditionID == ""
}

func (s Side) sourceCount() int {
	count := 0
	if s.Expression != "" {
		count++
	}
	if s.VariableID != "" {
		count++
	}
	if s.ConditionID != "" {
		count++
	}
	return count
}

// Node is a single condition record.
//
// A node is composite when either side references a nested condition; it then
// carries an Operator. Otherwise it is a leaf and carries a Relation.
type Node struct {
	ID       string
	Left     Side
	Right    Side
	Operator Operator
	Relation Relation
}

// IsComposite reports whether the node joins nested conditions.
func (n Node) IsComposite() bool {
	return n.Left.ConditionID != "" || n.Right.ConditionID != ""
}

// Arena holds condition records addressed by id.
type Arena map[string]Node

// Validate checks the structural invariants of every node, including the
// cycle-detection pass over sub-condition references.
func (a Arena) Validate() error {
	for _, node := range a {
		if err := a.validateNode(node); err != nil {
			return err
		}
	}
	return a.CheckCycles()
}

func (a Arena) validateNode(node Node) error {
	for _, side := range []Side{node.Left, node.Right} {
		if side.IsZero() {
			return apperrors.WrapWithMetadata(apperrors.CodeConditionEmptySide,
				"condition "+node.ID+" has an empty side", map[string]string{"condition": node.ID}, ErrEmptySide)
		}
		if side.sourceCount() > 1 {
			return apperrors.WrapWithMetadata(apperrors.CodeConditionAmbiguousSide,
				"condition "+node.ID+" side sets more than one source", map[string]string{"condition": node.ID}, ErrAmbiguousSide)
		}
		if side.ConditionID != "" {
			if _, ok := a[side.ConditionID]; !ok {
				return apperrors.WrapWithMetadata(apperrors.CodeConditionUnknownRef,
					"condition "+node.ID+" references unknown node "+side.ConditionID,
					map[string]string{"condition": node.ID, "reference": side.ConditionID}, ErrUnknownRef)
			}
		}
	}
	if node.IsComposite() {
		if node.Operator != OperatorAnd && node.Operator != OperatorOr {
			return apperrors.WrapWithMetadata(apperrors.CodeConditionMissingOperator,
				"composite condition "+node.ID+" requires an operator", map[string]string{"condition": node.ID}, ErrMissingOperator)
		}
		return nil
	}
	switch node.Relation {
	case RelationEqual, RelationNotEqual, RelationGreater, RelationGreaterOrEqual, RelationLess, RelationLessOrEqual:
		return nil
	default:
		return apperrors.WrapWithMetadata(apperrors.CodeConditionMissingRelation,
			"leaf condition "+node.ID+" requires a relation", map[string]string{"condition": node.ID}, ErrMissingRelation)
	}
}

// CheckCycles rejects arenas where any node is its own transitive child.
func (a Arena) CheckCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(a))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return apperrors.WrapWithMetadata(apperrors.CodeConditionCycle,
				"condition "+id+" is its own transitive child", map[string]string{"condition": id}, ErrCycle)
		case done:
			return nil
		}
		state[id] = visiting
		node := a[id]
		for _, ref := range []string{node.Left.ConditionID, node.Right.ConditionID} {
			if ref == "" {
				continue
			}
			if _, ok := a[ref]; !ok {
				continue
			}
			if err := visit(ref); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for id := range a {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
