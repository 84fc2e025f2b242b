// Package dispatchtest provides an in-memory dispatch.Store for tests.
package dispatchtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/police-dispatch-api/dispatch"
	"github.com/linesmerrill/police-dispatch-api/models"
)

// Store keeps calls, units and events in maps. Set the Fail fields to make
// individual operations return an error.
type Store struct {
	mu sync.Mutex

	calls  map[string]models.CallDetails
	order  []string
	units  map[string]models.UnitDetails
	events []models.Event

	atomic bool

	FailFind   error
	FailInsert error
	FailClear  error
	FailUpdate error
	FailEvent  error
	// FailAssign fails AssignUnit for the listed unit ids
	FailAssign map[string]error
}

// NewStore returns an empty store. When atomic is true WithTransaction rolls
// back every write made by a failing fn.
func NewStore(atomic bool) *Store {
	return &Store{
		calls:      map[string]models.CallDetails{},
		units:      map[string]models.UnitDetails{},
		atomic:     atomic,
		FailAssign: map[string]error{},
	}
}

// AddCall seeds a call and returns its id
func (s *Store) AddCall(details models.CallDetails) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := primitive.NewObjectID().Hex()
	s.calls[id] = details
	s.order = append(s.order, id)
	return id
}

// AddUnit seeds a unit and returns its id
func (s *Store) AddUnit(details models.UnitDetails) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := primitive.NewObjectID().Hex()
	s.units[id] = details
	return id
}

// DeleteCall removes a call without touching the units that point at it
func (s *Store) DeleteCall(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, id)
}

// CurrentCall returns the unit's currentCall, "" when unassigned
func (s *Store) CurrentCall(unitID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.units[unitID]
	if u.CurrentCall == nil {
		return ""
	}
	return *u.CurrentCall
}

// Call returns the stored call details
func (s *Store) Call(id string) models.CallDetails {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

// Events returns every stored event
func (s *Store) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

// ListCalls implements dispatch.Store
func (s *Store) ListCalls(ctx context.Context) ([]models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind != nil {
		return nil, s.FailFind
	}
	calls := make([]models.Call, 0, len(s.calls))
	for i := len(s.order) - 1; i >= 0; i-- {
		id := s.order[i]
		if _, ok := s.calls[id]; !ok {
			continue
		}
		calls = append(calls, s.build(id))
	}
	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].Details.CreatedAt.After(calls[j].Details.CreatedAt)
	})
	return calls, nil
}

// FindCall implements dispatch.Store
func (s *Store) FindCall(ctx context.Context, id string) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind != nil {
		return nil, s.FailFind
	}
	if _, ok := s.calls[id]; !ok {
		return nil, dispatch.ErrCallNotFound
	}
	call := s.build(id)
	return &call, nil
}

// CallExists implements dispatch.Store
func (s *Store) CallExists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFind != nil {
		return false, s.FailFind
	}
	_, ok := s.calls[id]
	return ok, nil
}

// InsertCall implements dispatch.Store
func (s *Store) InsertCall(ctx context.Context, details models.CallDetails) (string, error) {
	if s.FailInsert != nil {
		return "", s.FailInsert
	}
	return s.AddCall(details), nil
}

// UpdateCall implements dispatch.Store
func (s *Store) UpdateCall(ctx context.Context, id string, update dispatch.CallUpdate, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpdate != nil {
		return s.FailUpdate
	}
	details, ok := s.calls[id]
	if !ok {
		return dispatch.ErrCallNotFound
	}
	details.Location = update.Location
	details.Description = update.Description
	details.Name = update.Name
	details.UpdatedBy = update.UpdatedBy
	details.UpdatedAt = at
	s.calls[id] = details
	return nil
}

// ClearAssignments implements dispatch.Store
func (s *Store) ClearAssignments(ctx context.Context, callID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailClear != nil {
		return 0, s.FailClear
	}
	var n int64
	for id, u := range s.units {
		if u.CurrentCall != nil && *u.CurrentCall == callID {
			u.CurrentCall = nil
			s.units[id] = u
			n++
		}
	}
	return n, nil
}

// AssignUnit implements dispatch.Store
func (s *Store) AssignUnit(ctx context.Context, unitID, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.FailAssign[unitID]; ok {
		return err
	}
	u, ok := s.units[unitID]
	if !ok {
		return dispatch.ErrUnitNotFound
	}
	current := callID
	u.CurrentCall = &current
	s.units[unitID] = u
	return nil
}

// AssignedCallIDs implements dispatch.Store
func (s *Store) AssignedCallIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	var ids []string
	for _, u := range s.units {
		if u.CurrentCall == nil {
			continue
		}
		if _, ok := seen[*u.CurrentCall]; ok {
			continue
		}
		seen[*u.CurrentCall] = struct{}{}
		ids = append(ids, *u.CurrentCall)
	}
	sort.Strings(ids)
	return ids, nil
}

// InsertEvent implements dispatch.Store
func (s *Store) InsertEvent(ctx context.Context, event models.Event) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailEvent != nil {
		return nil, s.FailEvent
	}
	event.ID = primitive.NewObjectID().Hex()
	s.events = append(s.events, event)
	return &event, nil
}

// Transactional implements dispatch.Store
func (s *Store) Transactional() bool {
	return s.atomic
}

// WithTransaction implements dispatch.Store by snapshotting calls and units
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.atomic {
		return fn(ctx)
	}

	s.mu.Lock()
	calls := make(map[string]models.CallDetails, len(s.calls))
	for k, v := range s.calls {
		calls[k] = v
	}
	units := make(map[string]models.UnitDetails, len(s.units))
	for k, v := range s.units {
		units[k] = v
	}
	events := append([]models.Event(nil), s.events...)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.calls = calls
		s.units = units
		s.events = events
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) build(id string) models.Call {
	call := models.Call{
		ID:            id,
		Details:       s.calls[id],
		AssignedUnits: []models.Unit{},
		Events:        []models.Event{},
	}
	unitIDs := make([]string, 0)
	for unitID, u := range s.units {
		if u.CurrentCall != nil && *u.CurrentCall == id {
			unitIDs = append(unitIDs, unitID)
		}
	}
	sort.Strings(unitIDs)
	for _, unitID := range unitIDs {
		call.AssignedUnits = append(call.AssignedUnits, models.Unit{ID: unitID, Details: s.units[unitID]})
	}
	for _, e := range s.events {
		if e.CallID == id {
			call.Events = append(call.Events, e)
		}
	}
	return call
}

var _ dispatch.Store = (*Store)(nil)
