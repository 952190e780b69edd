package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/convening.space/internal/services/stint/domain/condition"
	"github.com/louisbranch/convening.space/internal/services/stint/script"
	"github.com/louisbranch/convening.space/internal/services/stint/storage"
)

// relationTokens maps relations to the script language's comparison syntax.
var relationTokens = map[condition.Relation]string{
	condition.RelationEqual:          "==",
	condition.RelationNotEqual:       "~=",
	condition.RelationGreater:        ">",
	condition.RelationGreaterOrEqual: ">=",
	condition.RelationLess:           "<",
	condition.RelationLessOrEqual:    "<=",
}

// operatorTokens maps boolean operators to the script language's syntax.
var operatorTokens = map[condition.Operator]string{
	condition.OperatorAnd: "and",
	condition.OperatorOr:  "or",
}

// Compile renders a condition tree to a single boolean expression string.
// Leaf expressions render verbatim; variable references render as the
// variable's name, never its value; values travel in the context snapshot.
// Composite nodes render as "(L) <op> (R)".
func (e *Engine) Compile(nodeID string) (string, error) {
	node, ok := e.catalog.Conditions[nodeID]
	if !ok {
		return "", fmt.Errorf("unknown condition %q", nodeID)
	}
	return e.compileNode(node)
}

func (e *Engine) compileNode(node condition.Node) (string, error) {
	left, err := e.compileSide(node.Left)
	if err != nil {
		return "", err
	}
	right, err := e.compileSide(node.Right)
	if err != nil {
		return "", err
	}
	if node.IsComposite() {
		token, ok := operatorTokens[node.Operator]
		if !ok {
			return "", condition.ErrMissingOperator
		}
		return "(" + left + ") " + token + " (" + right + ")", nil
	}
	token, ok := relationTokens[node.Relation]
	if !ok {
		return "", condition.ErrMissingRelation
	}
	return left + " " + token + " " + right, nil
}

func (e *Engine) compileSide(side condition.Side) (string, error) {
	switch {
	case side.Expression != "":
		return side.Expression, nil
	case side.VariableID != "":
		def, ok := e.catalog.Variable(side.VariableID)
		if !ok {
			return "", condition.ErrUnknownRef
		}
		return def.Name, nil
	case side.ConditionID != "":
		sub, ok := e.catalog.Conditions[side.ConditionID]
		if !ok {
			return "", condition.ErrUnknownRef
		}
		return e.compileNode(sub)
	default:
		return "", condition.ErrEmptySide
	}
}

// EvaluateCondition compiles and evaluates a condition for a hand, going
// through the evaluation cache. Invert flags belong to callers and apply to
// the returned boolean, never to compilation. Engine-side failures surface
// unretried.
func (e *Engine) EvaluateCondition(ctx context.Context, nodeID string, h storage.HandRecord) (bool, error) {
	text, err := e.Compile(nodeID)
	if err != nil {
		return false, err
	}
	snap, names, err := e.snapshot(ctx, h)
	if err != nil {
		return false, err
	}

	textSum := sha256.Sum256([]byte(text))
	key := "cond:" + h.ID + ":" + hex.EncodeToString(textSum[:]) + ":" + fingerprint(snap)

	if e.cache != nil {
		if data, ok, err := e.cache.Get(ctx, key); err == nil && ok {
			var cached script.Result
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached.Truthy(), nil
			}
		}
	}

	result, err := e.script.EvaluateWithoutSideEffects(ctx, "condition "+nodeID, text, snap)
	if err != nil {
		return false, err
	}

	if e.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			tags := make([]string, 0, len(names)+1)
			tags = append(tags, "hand:"+h.ID)
			for _, name := range names {
				tags = append(tags, "var:"+name)
			}
			if err := e.cache.Set(ctx, key, data, tags); err != nil {
				e.logger.Printf("cache set condition %s: %v", nodeID, err)
			}
		}
	}
	return result.Truthy(), nil
}
