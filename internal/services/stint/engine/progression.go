package engine

import (
	"context"
	"fmt"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
	"github.com/louisbranch/convening.space/internal/platform/id"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/hand"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stage"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stint"
	"github.com/louisbranch/convening.space/internal/services/stint/storage"
)

// Start marks a hand's current visit started and fires the stage's
// pre-action. Seeded hands land on an unstarted breadcrumb, so the entry
// stage's hook runs here rather than on a later move. A started visit is a
// no-op.
func (e *Engine) Start(ctx context.Context, handID string) ([]Change, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Start")
	defer span.End()

	h, err := e.progressableHand(ctx, handID)
	if err != nil {
		return nil, err
	}
	if h.BreadcrumbID == "" {
		return nil, apperrors.New(apperrors.CodeProgressionHandWithoutStage,
			"hand "+h.ID+" has no current stage")
	}
	crumb, err := e.store.GetBreadcrumb(ctx, h.BreadcrumbID)
	if err != nil {
		return nil, err
	}
	return e.arriveAt(ctx, &h, crumb)
}

// Submit advances a hand: follow an existing forward breadcrumb link, else
// take the first matching redirect, else complete the module when the stage
// is an end stage. A stage with no matching redirect and no end flag is a
// no-op. A hand still on an unstarted visit catches up the arrival hook
// before advancing.
func (e *Engine) Submit(ctx context.Context, handID string) ([]Change, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Submit")
	defer span.End()

	h, err := e.progressableHand(ctx, handID)
	if err != nil {
		return nil, err
	}
	if h.BreadcrumbID == "" {
		return nil, apperrors.New(apperrors.CodeProgressionHandWithoutStage,
			"hand "+h.ID+" has no current stage")
	}
	crumb, err := e.store.GetBreadcrumb(ctx, h.BreadcrumbID)
	if err != nil {
		return nil, err
	}

	changes, err := e.arriveAt(ctx, &h, crumb)
	if err != nil {
		return nil, err
	}

	if crumb.NextID != "" {
		more, err := e.moveToBreadcrumb(ctx, &h, crumb.NextID)
		if err != nil {
			return nil, err
		}
		return append(changes, more...), nil
	}

	current, ok := e.catalog.Stage(crumb.StageID)
	if !ok {
		return nil, apperrors.New(apperrors.CodeBreadcrumbUnknownStage,
			"breadcrumb "+crumb.ID+" references unknown stage "+crumb.StageID)
	}

	for _, redirect := range e.catalog.Redirects(current.ID) {
		if redirect.ConditionID != "" {
			pass, err := e.EvaluateCondition(ctx, redirect.ConditionID, h)
			if err != nil {
				return nil, err
			}
			if !pass {
				continue
			}
		}
		more, err := e.moveToStage(ctx, &h, redirect.NextStageID)
		if err != nil {
			return nil, err
		}
		return append(changes, more...), nil
	}

	if current.EndStage {
		more, err := e.completeModule(ctx, &h)
		if err != nil {
			return nil, err
		}
		return append(changes, more...), nil
	}
	return changes, nil
}

// Back moves a hand to its previous breadcrumb when one exists and the
// current stage permits backward navigation. Anything else is a silent
// no-op, never an error.
func (e *Engine) Back(ctx context.Context, handID string) ([]Change, error) {
	h, err := e.progressableHand(ctx, handID)
	if err != nil {
		return nil, err
	}
	if h.BreadcrumbID == "" {
		return nil, nil
	}
	crumb, err := e.store.GetBreadcrumb(ctx, h.BreadcrumbID)
	if err != nil {
		return nil, err
	}
	if crumb.PreviousID == "" {
		return nil, nil
	}
	current, ok := e.catalog.Stage(crumb.StageID)
	if !ok || !current.BreadcrumbType.AllowsBack() {
		return nil, nil
	}

	previous, err := e.store.GetBreadcrumb(ctx, crumb.PreviousID)
	if err != nil {
		return nil, err
	}
	h.BreadcrumbID = previous.ID
	if err := e.store.PutHand(ctx, h); err != nil {
		return nil, err
	}
	return []Change{{Kind: ChangeStage, HandID: h.ID, TeamID: h.TeamID, StageID: previous.StageID}}, nil
}

// progressableHand loads a hand and rejects progression on terminal hands
// and panicked stints.
func (e *Engine) progressableHand(ctx context.Context, handID string) (storage.HandRecord, error) {
	h, err := e.store.GetHand(ctx, handID)
	if err != nil {
		return storage.HandRecord{}, err
	}
	if h.Status.IsTerminal() {
		return storage.HandRecord{}, apperrors.New(apperrors.CodeProgressionHandTerminalStatus,
			"hand "+h.ID+" is "+string(h.Status))
	}
	record, err := e.store.GetStint(ctx, h.StintID)
	if err != nil {
		return storage.HandRecord{}, err
	}
	if record.Status == stint.StatusPanicked {
		return storage.HandRecord{}, ErrStintPanicked
	}
	return h, nil
}

// moveToBreadcrumb follows an existing forward link; the pre-action fires
// only if this visit never started.
func (e *Engine) moveToBreadcrumb(ctx context.Context, h *storage.HandRecord, crumbID string) ([]Change, error) {
	crumb, err := e.store.GetBreadcrumb(ctx, crumbID)
	if err != nil {
		return nil, err
	}
	h.BreadcrumbID = crumb.ID
	if err := e.store.PutHand(ctx, *h); err != nil {
		return nil, err
	}
	changes := []Change{{Kind: ChangeStage, HandID: h.ID, TeamID: h.TeamID, StageID: crumb.StageID}}
	more, err := e.arriveAt(ctx, h, crumb)
	if err != nil {
		return nil, err
	}
	return append(changes, more...), nil
}

// moveToStage creates a breadcrumb for the target stage. Link policy comes
// from the target stage's breadcrumb type: none creates an unlinked node,
// back links to the predecessor only, all links both directions.
func (e *Engine) moveToStage(ctx context.Context, h *storage.HandRecord, stageID string) ([]Change, error) {
	target, ok := e.catalog.Stage(stageID)
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", stageID)
	}

	crumbID, err := id.NewID()
	if err != nil {
		return nil, err
	}
	crumb := storage.BreadcrumbRecord{ID: crumbID, HandID: h.ID, StageID: stageID}

	previousID := h.BreadcrumbID
	if previousID != "" && target.BreadcrumbType.AllowsBack() {
		crumb.PreviousID = previousID
	}
	if err := e.store.CreateBreadcrumb(ctx, crumb); err != nil {
		return nil, err
	}
	if previousID != "" && target.BreadcrumbType == stage.BreadcrumbAll {
		previous, err := e.store.GetBreadcrumb(ctx, previousID)
		if err != nil {
			return nil, err
		}
		previous.NextID = crumb.ID
		if err := e.store.PutBreadcrumb(ctx, previous); err != nil {
			return nil, err
		}
	}

	h.BreadcrumbID = crumb.ID
	if err := e.store.PutHand(ctx, *h); err != nil {
		return nil, err
	}
	e.invalidate(ctx, "hand:"+h.ID)

	changes := []Change{{Kind: ChangeStage, HandID: h.ID, TeamID: h.TeamID, StageID: stageID}}
	more, err := e.arriveAt(ctx, h, crumb)
	if err != nil {
		return nil, err
	}
	return append(changes, more...), nil
}

// arriveAt marks a visit started and fires the stage's pre-action exactly
// once per breadcrumb. Revisits through back/forward links never re-trigger.
func (e *Engine) arriveAt(ctx context.Context, h *storage.HandRecord, crumb storage.BreadcrumbRecord) ([]Change, error) {
	if crumb.Started {
		return nil, nil
	}
	crumb.Started = true
	if err := e.store.PutBreadcrumb(ctx, crumb); err != nil {
		return nil, err
	}
	target, ok := e.catalog.Stage(crumb.StageID)
	if !ok || target.PreActionID == "" {
		return nil, nil
	}
	return e.Run(ctx, target.PreActionID, *h)
}

// completeModule advances the hand to the next module's start stage, or
// finishes the hand when no module remains.
func (e *Engine) completeModule(ctx context.Context, h *storage.HandRecord) ([]Change, error) {
	next, ok := e.catalog.NextModule(h.ModuleID)
	if !ok {
		updated, err := e.setHandStatus(ctx, *h, hand.StatusFinished)
		if err != nil {
			return nil, err
		}
		*h = updated
		return []Change{{Kind: ChangeStatus, HandID: h.ID, TeamID: h.TeamID, Status: hand.StatusFinished}}, nil
	}

	h.ModuleID = next.ID
	h.EraID = ""
	if err := e.store.PutHand(ctx, *h); err != nil {
		return nil, err
	}
	return e.moveToStage(ctx, h, next.StartStageID)
}

// setHandStatus transitions a hand and re-evaluates the stint's aggregate
// status. Terminal hands reject every further transition.
func (e *Engine) setHandStatus(ctx context.Context, h storage.HandRecord, to hand.Status) (storage.HandRecord, error) {
	if !hand.IsTransitionAllowed(h.Status, to) {
		return h, apperrors.WrapWithMetadata(apperrors.CodeHandInvalidStatusTransition,
			fmt.Sprintf("hand %s cannot move from %s to %s", h.ID, h.Status, to),
			map[string]string{"hand": h.ID}, hand.ErrInvalidStatusTransition)
	}
	h.Status = to
	if err := e.store.PutHand(ctx, h); err != nil {
		return h, err
	}

	record, err := e.store.GetStint(ctx, h.StintID)
	if err != nil {
		return h, err
	}
	hands, err := e.store.ListHandsByStint(ctx, h.StintID)
	if err != nil {
		return h, err
	}
	statuses := make([]hand.Status, 0, len(hands))
	for _, member := range hands {
		statuses = append(statuses, member.Status)
	}
	next := stint.AggregateStatus(record.Status, statuses)
	if next != record.Status {
		if err := e.store.SetStintStatus(ctx, h.StintID, next); err != nil {
			return h, err
		}
	}
	return h, nil
}
