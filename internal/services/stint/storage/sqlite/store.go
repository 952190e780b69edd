// Package sqlite provides a SQLite-backed stint storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/convening.space/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/hand"
	"github.com/louisbranch/convening.space/internal/services/stint/domain/stint"
	"github.com/louisbranch/convening.space/internal/services/stint/storage"
	"github.com/louisbranch/convening.space/internal/services/stint/storage/sqlite/migrations"
)

// Store persists stint runtime state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite stint store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// CreateStint inserts one stint record.
func (s *Store) CreateStint(ctx context.Context, record storage.StintRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("stint id is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO stints (id, name, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.Name,
		string(record.Status),
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create stint: %w", err)
	}
	return nil
}

// GetStint returns one stint by ID.
func (s *Store) GetStint(ctx context.Context, id string) (storage.StintRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.StintRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.StintRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, name, status, created_at, updated_at FROM stints WHERE id = ?`,
		id,
	)
	var record storage.StintRecord
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(&record.ID, &record.Name, &status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.StintRecord{}, storage.ErrNotFound
		}
		return storage.StintRecord{}, fmt.Errorf("get stint: %w", err)
	}
	record.Status = stint.Status(status)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// SetStintStatus updates the status of one stint.
func (s *Store) SetStintStatus(ctx context.Context, id string, status stint.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE stints SET status = ?, updated_at = ? WHERE id = ?`,
		string(status),
		toMillis(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set stint status: %w", err)
	}
	return requireRowAffected(result, "set stint status")
}

// CreateTeam inserts one team record.
func (s *Store) CreateTeam(ctx context.Context, record storage.TeamRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("team id is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO teams (id, stint_id, name, era_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.StintID,
		record.Name,
		record.EraID,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// GetTeam returns one team by ID.
func (s *Store) GetTeam(ctx context.Context, id string) (storage.TeamRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.TeamRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.TeamRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, stint_id, name, era_id, created_at, updated_at FROM teams WHERE id = ?`,
		id,
	)
	record, err := scanTeam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TeamRecord{}, storage.ErrNotFound
		}
		return storage.TeamRecord{}, fmt.Errorf("get team: %w", err)
	}
	return record, nil
}

// PutTeam replaces one existing team record.
func (s *Store) PutTeam(ctx context.Context, record storage.TeamRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE teams SET stint_id = ?, name = ?, era_id = ?, updated_at = ? WHERE id = ?`,
		record.StintID,
		record.Name,
		record.EraID,
		toMillis(time.Now().UTC()),
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("put team: %w", err)
	}
	return requireRowAffected(result, "put team")
}

// ListTeamsByStint returns all teams of one stint ordered by ID.
func (s *Store) ListTeamsByStint(ctx context.Context, stintID string) ([]storage.TeamRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, stint_id, name, era_id, created_at, updated_at
		   FROM teams WHERE stint_id = ? ORDER BY id ASC`,
		stintID,
	)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []storage.TeamRecord
	for rows.Next() {
		record, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("list teams: %w", err)
		}
		teams = append(teams, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// CreateHand inserts one hand record.
func (s *Store) CreateHand(ctx context.Context, record storage.HandRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("hand id is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO hands (id, stint_id, team_id, status, module_id, era_id, breadcrumb_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.StintID,
		record.TeamID,
		string(record.Status),
		record.ModuleID,
		record.EraID,
		record.BreadcrumbID,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create hand: %w", err)
	}
	return nil
}

// GetHand returns one hand by ID.
func (s *Store) GetHand(ctx context.Context, id string) (storage.HandRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.HandRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.HandRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, stint_id, team_id, status, module_id, era_id, breadcrumb_id, created_at, updated_at
		   FROM hands WHERE id = ?`,
		id,
	)
	record, err := scanHand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.HandRecord{}, storage.ErrNotFound
		}
		return storage.HandRecord{}, fmt.Errorf("get hand: %w", err)
	}
	return record, nil
}

// PutHand replaces one existing hand record.
func (s *Store) PutHand(ctx context.Context, record storage.HandRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE hands SET stint_id = ?, team_id = ?, status = ?, module_id = ?, era_id = ?, breadcrumb_id = ?, updated_at = ?
		  WHERE id = ?`,
		record.StintID,
		record.TeamID,
		string(record.Status),
		record.ModuleID,
		record.EraID,
		record.BreadcrumbID,
		toMillis(time.Now().UTC()),
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("put hand: %w", err)
	}
	return requireRowAffected(result, "put hand")
}

// ListHandsByStint returns all hands of one stint ordered by ID.
func (s *Store) ListHandsByStint(ctx context.Context, stintID string) ([]storage.HandRecord, error) {
	return s.listHands(ctx, "stint_id", stintID)
}

// ListHandsByTeam returns all hands of one team ordered by ID.
func (s *Store) ListHandsByTeam(ctx context.Context, teamID string) ([]storage.HandRecord, error) {
	return s.listHands(ctx, "team_id", teamID)
}

func (s *Store) listHands(ctx context.Context, column, value string) ([]storage.HandRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, stint_id, team_id, status, module_id, era_id, breadcrumb_id, created_at, updated_at
		   FROM hands WHERE `+column+` = ? ORDER BY id ASC`,
		value,
	)
	if err != nil {
		return nil, fmt.Errorf("list hands: %w", err)
	}
	defer rows.Close()

	var hands []storage.HandRecord
	for rows.Next() {
		record, err := scanHand(rows)
		if err != nil {
			return nil, fmt.Errorf("list hands: %w", err)
		}
		hands = append(hands, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list hands: %w", err)
	}
	return hands, nil
}

// GetValue returns the value for a (definition, scope instance) pair.
func (s *Store) GetValue(ctx context.Context, definitionID string, key storage.ScopeKey) (storage.VariableRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.VariableRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.VariableRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, definition_id, stint_id, module_id, team_id, hand_id, value, updated_at
		   FROM variable_values
		  WHERE definition_id = ? AND stint_id = ? AND module_id = ? AND team_id = ? AND hand_id = ?`,
		definitionID,
		key.StintID,
		key.ModuleID,
		key.TeamID,
		key.HandID,
	)
	record, err := scanVariable(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.VariableRecord{}, storage.ErrNotFound
		}
		return storage.VariableRecord{}, fmt.Errorf("get value: %w", err)
	}
	return record, nil
}

// PutValue creates or replaces the value for a (definition, scope instance) pair.
func (s *Store) PutValue(ctx context.Context, record storage.VariableRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(record.DefinitionID) == "" {
		return fmt.Errorf("definition id is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO variable_values (id, definition_id, stint_id, module_id, team_id, hand_id, value, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (definition_id, stint_id, module_id, team_id, hand_id)
		 DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		record.ID,
		record.DefinitionID,
		record.StintID,
		record.ModuleID,
		record.TeamID,
		record.HandID,
		record.Value,
		toMillis(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("put value: %w", err)
	}
	return nil
}

// ListHandValues returns all hand-scoped values for one hand.
func (s *Store) ListHandValues(ctx context.Context, handID string) ([]storage.VariableRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, definition_id, stint_id, module_id, team_id, hand_id, value, updated_at
		   FROM variable_values WHERE hand_id = ? ORDER BY definition_id ASC`,
		handID,
	)
	if err != nil {
		return nil, fmt.Errorf("list hand values: %w", err)
	}
	defer rows.Close()

	var values []storage.VariableRecord
	for rows.Next() {
		record, err := scanVariable(rows)
		if err != nil {
			return nil, fmt.Errorf("list hand values: %w", err)
		}
		values = append(values, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list hand values: %w", err)
	}
	return values, nil
}

// CreateBreadcrumb inserts one breadcrumb record.
func (s *Store) CreateBreadcrumb(ctx context.Context, record storage.BreadcrumbRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("breadcrumb id is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO breadcrumbs (id, hand_id, stage_id, previous_id, next_id, started, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.HandID,
		record.StageID,
		record.PreviousID,
		record.NextID,
		boolToInt(record.Started),
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create breadcrumb: %w", err)
	}
	return nil
}

// GetBreadcrumb returns one breadcrumb by ID.
func (s *Store) GetBreadcrumb(ctx context.Context, id string) (storage.BreadcrumbRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.BreadcrumbRecord{}, err
	}
	if err := s.ready(); err != nil {
		return storage.BreadcrumbRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, hand_id, stage_id, previous_id, next_id, started, created_at, updated_at
		   FROM breadcrumbs WHERE id = ?`,
		id,
	)
	var record storage.BreadcrumbRecord
	var started int
	var createdAt, updatedAt int64
	if err := row.Scan(
		&record.ID,
		&record.HandID,
		&record.StageID,
		&record.PreviousID,
		&record.NextID,
		&started,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.BreadcrumbRecord{}, storage.ErrNotFound
		}
		return storage.BreadcrumbRecord{}, fmt.Errorf("get breadcrumb: %w", err)
	}
	record.Started = started != 0
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// PutBreadcrumb replaces one existing breadcrumb record.
func (s *Store) PutBreadcrumb(ctx context.Context, record storage.BreadcrumbRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE breadcrumbs SET hand_id = ?, stage_id = ?, previous_id = ?, next_id = ?, started = ?, updated_at = ?
		  WHERE id = ?`,
		record.HandID,
		record.StageID,
		record.PreviousID,
		record.NextID,
		boolToInt(record.Started),
		toMillis(time.Now().UTC()),
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("put breadcrumb: %w", err)
	}
	return requireRowAffected(result, "put breadcrumb")
}

// AppendLog appends one runtime log entry.
func (s *Store) AppendLog(ctx context.Context, record storage.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO logs (id, stint_id, team_id, module_id, hand_id, level, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.StintID,
		record.TeamID,
		record.ModuleID,
		record.HandID,
		record.Level,
		record.Message,
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// AppendDataSnapshot appends one save_data payload.
func (s *Store) AppendDataSnapshot(ctx context.Context, record storage.DataSnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO data_snapshots (id, stint_id, team_id, module_id, hand_id, action_step_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.StintID,
		record.TeamID,
		record.ModuleID,
		record.HandID,
		record.ActionStepID,
		record.Payload,
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append data snapshot: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTeam(row scanner) (storage.TeamRecord, error) {
	var record storage.TeamRecord
	var createdAt, updatedAt int64
	if err := row.Scan(&record.ID, &record.StintID, &record.Name, &record.EraID, &createdAt, &updatedAt); err != nil {
		return storage.TeamRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanHand(row scanner) (storage.HandRecord, error) {
	var record storage.HandRecord
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&record.ID,
		&record.StintID,
		&record.TeamID,
		&status,
		&record.ModuleID,
		&record.EraID,
		&record.BreadcrumbID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.HandRecord{}, err
	}
	record.Status = hand.Status(status)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanVariable(row scanner) (storage.VariableRecord, error) {
	var record storage.VariableRecord
	var updatedAt int64
	if err := row.Scan(
		&record.ID,
		&record.DefinitionID,
		&record.StintID,
		&record.ModuleID,
		&record.TeamID,
		&record.HandID,
		&record.Value,
		&updatedAt,
	); err != nil {
		return storage.VariableRecord{}, err
	}
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func requireRowAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

var _ storage.Store = (*Store)(nil)
