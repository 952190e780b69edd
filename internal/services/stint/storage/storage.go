// Package storage defines the persistence boundary for stint runtime state.
//
// The engine relies on the store for per-record atomic read and write; it
// takes no in-process locks of its own. Authored content never passes
// through here, only session-runtime state owned by a running stint.
package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/convening.space/internal/platform/errors"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/hand"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stint"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such record"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// StintRecord captures the runtime state of one stint.
type StintRecord struct {
	ID        string
	Name      string
	Status    stint.Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TeamRecord captures team membership and the derived team era.
type TeamRecord struct {
	ID        string
	StintID   string
	Name      string
	EraID     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HandRecord captures a participant's live position and status.
type HandRecord struct {
	ID           string
	StintID      string
	TeamID       string
	Status       hand.Status
	ModuleID     string
	EraID        string
	BreadcrumbID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScopeKey addresses the scope instance owning a variable value. Exactly the
// fields implied by the definition's scope are set.
type ScopeKey struct {
	StintID  string
	ModuleID string
	TeamID   string
	HandID   string
}

// VariableRecord is one live value for a (definition, scope instance) pair.
// Value is the canonical value serialized as JSON.
type VariableRecord struct {
	ID           string
	DefinitionID string
	StintID      string
	ModuleID     string
	TeamID       string
	HandID       string
	Value        string
	UpdatedAt    time.Time
}

// Key returns the scope instance the record belongs to.
func (r VariableRecord) Key() ScopeKey {
	return ScopeKey{StintID: r.StintID, ModuleID: r.ModuleID, TeamID: r.TeamID, HandID: r.HandID}
}

// BreadcrumbRecord is one node of a hand's navigation trail.
type BreadcrumbRecord struct {
	ID         string
	HandID     string
	StageID    string
	PreviousID string
	NextID     string
	Started    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LogRecord is a runtime log entry scoped to stint, team, module, and hand.
type LogRecord struct {
	ID        string
	StintID   string
	TeamID    string
	ModuleID  string
	HandID    string
	Level     string
	Message   string
	CreatedAt time.Time
}

// DataSnapshotRecord is a save_data payload forwarded to the analytical sink,
// retained for export.
type DataSnapshotRecord struct {
	ID           string
	StintID      string
	TeamID       string
	ModuleID     string
	HandID       string
	ActionStepID string
	Payload      string
	CreatedAt    time.Time
}

// StintStore persists stint lifecycle state.
type StintStore interface {
	CreateStint(ctx context.Context, record StintRecord) error
	GetStint(ctx context.Context, id string) (StintRecord, error)
	SetStintStatus(ctx context.Context, id string, status stint.Status) error
}

// TeamStore persists teams and their derived era.
type TeamStore interface {
	CreateTeam(ctx context.Context, record TeamRecord) error
	GetTeam(ctx context.Context, id string) (TeamRecord, error)
	PutTeam(ctx context.Context, record TeamRecord) error
	ListTeamsByStint(ctx context.Context, stintID string) ([]TeamRecord, error)
}

// HandStore persists hand state.
type HandStore interface {
	CreateHand(ctx context.Context, record HandRecord) error
	GetHand(ctx context.Context, id string) (HandRecord, error)
	PutHand(ctx context.Context, record HandRecord) error
	ListHandsByStint(ctx context.Context, stintID string) ([]HandRecord, error)
	ListHandsByTeam(ctx context.Context, teamID string) ([]HandRecord, error)
}

// VariableValueStore persists live variable values.
type VariableValueStore interface {
	// GetValue returns the value for a (definition, scope instance) pair.
	GetValue(ctx context.Context, definitionID string, key ScopeKey) (VariableRecord, error)
	// PutValue creates or replaces the value for a (definition, scope
	// instance) pair atomically.
	PutValue(ctx context.Context, record VariableRecord) error
	// ListHandValues returns all hand-scoped values for a hand.
	ListHandValues(ctx context.Context, handID string) ([]VariableRecord, error)
}

// BreadcrumbStore persists navigation trail nodes.
type BreadcrumbStore interface {
	CreateBreadcrumb(ctx context.Context, record BreadcrumbRecord) error
	GetBreadcrumb(ctx context.Context, id string) (BreadcrumbRecord, error)
	PutBreadcrumb(ctx context.Context, record BreadcrumbRecord) error
}

// LogStore appends runtime log entries.
type LogStore interface {
	AppendLog(ctx context.Context, record LogRecord) error
}

// DataSnapshotStore appends save_data payloads.
type DataSnapshotStore interface {
	AppendDataSnapshot(ctx context.Context, record DataSnapshotRecord) error
}

// Store composes every persistence interface the runtime needs.
type Store interface {
	StintStore
	TeamStore
	HandStore
	VariableValueStore
	BreadcrumbStore
	LogStore
	DataSnapshotStore
}
