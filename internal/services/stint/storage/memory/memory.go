// Package memory provides an in-process Store for tests and single-process
// runs. Every method is atomic at record granularity, matching the
// persistence contract the engine relies on.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/louisbranch/convening.space/internal/services/stint/domain/stint"
	"github.com/louisbranch/convening.space/internal/services/stint/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.Mutex

	stints      map[string]storage.StintRecord
	teams       map[string]storage.TeamRecord
	hands       map[string]storage.HandRecord
	variables   map[string]storage.VariableRecord // keyed by definition+scope
	breadcrumbs map[string]storage.BreadcrumbRecord
	logs        []storage.LogRecord
	snapshots   []storage.DataSnapshotRecord

	clock func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		stints:      map[string]storage.StintRecord{},
		teams:       map[string]storage.TeamRecord{},
		hands:       map[string]storage.HandRecord{},
		variables:   map[string]storage.VariableRecord{},
		breadcrumbs: map[string]storage.BreadcrumbRecord{},
		clock:       time.Now,
	}
}

func valueKey(definitionID string, key storage.ScopeKey) string {
	return definitionID + "\x1f" + key.StintID + "\x1f" + key.ModuleID + "\x1f" + key.TeamID + "\x1f" + key.HandID
}

// CreateStint implements storage.StintStore.
func (s *Store) CreateStint(_ context.Context, record storage.StintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.CreatedAt = s.clock().UTC()
	record.UpdatedAt = record.CreatedAt
	s.stints[record.ID] = record
	return nil
}

// GetStint implements storage.StintStore.
func (s *Store) GetStint(_ context.Context, id string) (storage.StintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.stints[id]
	if !ok {
		return storage.StintRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// SetStintStatus implements storage.StintStore.
func (s *Store) SetStintStatus(_ context.Context, id string, status stint.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.stints[id]
	if !ok {
		return storage.ErrNotFound
	}
	record.Status = status
	record.UpdatedAt = s.clock().UTC()
	s.stints[id] = record
	return nil
}

// CreateTeam implements storage.TeamStore.
func (s *Store) CreateTeam(_ context.Context, record storage.TeamRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.CreatedAt = s.clock().UTC()
	record.UpdatedAt = record.CreatedAt
	s.teams[record.ID] = record
	return nil
}

// GetTeam implements storage.TeamStore.
func (s *Store) GetTeam(_ context.Context, id string) (storage.TeamRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.teams[id]
	if !ok {
		return storage.TeamRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// PutTeam implements storage.TeamStore.
func (s *Store) PutTeam(_ context.Context, record storage.TeamRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[record.ID]; !ok {
		return storage.ErrNotFound
	}
	record.UpdatedAt = s.clock().UTC()
	s.teams[record.ID] = record
	return nil
}

// ListTeamsByStint implements storage.TeamStore.
func (s *Store) ListTeamsByStint(_ context.Context, stintID string) ([]storage.TeamRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var teams []storage.TeamRecord
	for _, record := range s.teams {
		if record.StintID == stintID {
			teams = append(teams, record)
		}
	}
	sortByID(teams, func(r storage.TeamRecord) string { return r.ID })
	return teams, nil
}

// CreateHand implements storage.HandStore.
func (s *Store) CreateHand(_ context.Context, record storage.HandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.CreatedAt = s.clock().UTC()
	record.UpdatedAt = record.CreatedAt
	s.hands[record.ID] = record
	return nil
}

// GetHand implements storage.HandStore.
func (s *Store) GetHand(_ context.Context, id string) (storage.HandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.hands[id]
	if !ok {
		return storage.HandRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// PutHand implements storage.HandStore.
func (s *Store) PutHand(_ context.Context, record storage.HandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hands[record.ID]; !ok {
		return storage.ErrNotFound
	}
	record.UpdatedAt = s.clock().UTC()
	s.hands[record.ID] = record
	return nil
}

// ListHandsByStint implements storage.HandStore.
func (s *Store) ListHandsByStint(_ context.Context, stintID string) ([]storage.HandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hands []storage.HandRecord
	for _, record := range s.hands {
		if record.StintID == stintID {
			hands = append(hands, record)
		}
	}
	sortByID(hands, func(r storage.HandRecord) string { return r.ID })
	return hands, nil
}

// ListHandsByTeam implements storage.HandStore.
func (s *Store) ListHandsByTeam(_ context.Context, teamID string) ([]storage.HandRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hands []storage.HandRecord
	for _, record := range s.hands {
		if record.TeamID == teamID {
			hands = append(hands, record)
		}
	}
	sortByID(hands, func(r storage.HandRecord) string { return r.ID })
	return hands, nil
}

// GetValue implements storage.VariableValueStore.
func (s *Store) GetValue(_ context.Context, definitionID string, key storage.ScopeKey) (storage.VariableRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.variables[valueKey(definitionID, key)]
	if !ok {
		return storage.VariableRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// PutValue implements storage.VariableValueStore.
func (s *Store) PutValue(_ context.Context, record storage.VariableRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.UpdatedAt = s.clock().UTC()
	s.variables[valueKey(record.DefinitionID, record.Key())] = record
	return nil
}

// ListHandValues implements storage.VariableValueStore.
func (s *Store) ListHandValues(_ context.Context, handID string) ([]storage.VariableRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var values []storage.VariableRecord
	for _, record := range s.variables {
		if record.HandID == handID {
			values = append(values, record)
		}
	}
	sortByID(values, func(r storage.VariableRecord) string { return r.DefinitionID })
	return values, nil
}

// CreateBreadcrumb implements storage.BreadcrumbStore.
func (s *Store) CreateBreadcrumb(_ context.Context, record storage.BreadcrumbRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.CreatedAt = s.clock().UTC()
	record.UpdatedAt = record.CreatedAt
	s.breadcrumbs[record.ID] = record
	return nil
}

// GetBreadcrumb implements storage.BreadcrumbStore.
func (s *Store) GetBreadcrumb(_ context.Context, id string) (storage.BreadcrumbRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.breadcrumbs[id]
	if !ok {
		return storage.BreadcrumbRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// PutBreadcrumb implements storage.BreadcrumbStore.
func (s *Store) PutBreadcrumb(_ context.Context, record storage.BreadcrumbRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.breadcrumbs[record.ID]; !ok {
		return storage.ErrNotFound
	}
	record.UpdatedAt = s.clock().UTC()
	s.breadcrumbs[record.ID] = record
	return nil
}

// AppendLog implements storage.LogStore.
func (s *Store) AppendLog(_ context.Context, record storage.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.CreatedAt = s.clock().UTC()
	s.logs = append(s.logs, record)
	return nil
}

// AppendDataSnapshot implements storage.DataSnapshotStore.
func (s *Store) AppendDataSnapshot(_ context.Context, record storage.DataSnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.CreatedAt = s.clock().UTC()
	s.snapshots = append(s.snapshots, record)
	return nil
}

// Logs returns a copy of appended log records, oldest first.
func (s *Store) Logs() []storage.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := make([]storage.LogRecord, len(s.logs))
	copy(logs, s.logs)
	return logs
}

// DataSnapshots returns a copy of appended snapshots, oldest first.
func (s *Store) DataSnapshots() []storage.DataSnapshotRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshots := make([]storage.DataSnapshotRecord, len(s.snapshots))
	copy(snapshots, s.snapshots)
	return snapshots
}

func sortByID[T any](records []T, key func(T) string) {
	sort.Slice(records, func(i, j int) bool { return key(records[i]) < key(records[j]) })
}
