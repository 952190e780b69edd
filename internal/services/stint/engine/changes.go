package engine

import "github.com/louisbranch/convening.space/internal/services/stint/domain/hand"

// ChangeKind tags one entry of the change list returned from Run.
type ChangeKind string

const (
	// ChangeVariable reports a variable whose stored value differs from its
	// previous value.
	ChangeVariable ChangeKind = "variable"
	// ChangeEra reports a hand era assignment.
	ChangeEra ChangeKind = "era"
	// ChangeStatus reports a hand status transition.
	ChangeStatus ChangeKind = "status"
	// ChangeLog reports an appended log entry.
	ChangeLog ChangeKind = "log"
	// ChangePayment reports a dispatched payout.
	ChangePayment ChangeKind = "payment"
	// ChangeData reports a save_data export.
	ChangeData ChangeKind = "data"
	// ChangeStage reports a stage move.
	ChangeStage ChangeKind = "stage"
)

// Change is one notification payload for a transport collaborator. The
// engine only returns the list; delivery to live clients happens elsewhere.
type Change struct {
	Kind   ChangeKind
	HandID string
	TeamID string

	// ChangeVariable
	Variable string
	Value    any

	// ChangeEra
	EraID string

	// ChangeStatus
	Status hand.Status

	// ChangeLog
	Message string

	// ChangePayment
	Amount float64

	// ChangeStage
	StageID string
}
