package dispatch

import (
	"context"
	"time"

	"github.com/linesmerrill/police-dispatch-api/models"
)

// CallUpdate carries the scalar fields written on a call during reassignment
type CallUpdate struct {
	Location    string
	Description string
	Name        string
	UpdatedBy   string
}

// Store is the persistence the dispatch service needs. Reads of calls always
// return them with their assigned units and events joined in.
type Store interface {
	ListCalls(ctx context.Context) ([]models.Call, error)
	FindCall(ctx context.Context, id string) (*models.Call, error)
	CallExists(ctx context.Context, id string) (bool, error)
	InsertCall(ctx context.Context, details models.CallDetails) (string, error)
	UpdateCall(ctx context.Context, id string, update CallUpdate, at time.Time) error

	// ClearAssignments nulls currentCall on every unit pointing at callID
	ClearAssignments(ctx context.Context, callID string) (int64, error)
	// AssignUnit points a unit at callID, a missing unit is ErrUnitNotFound
	AssignUnit(ctx context.Context, unitID, callID string) error
	// AssignedCallIDs lists every distinct non-null currentCall
	AssignedCallIDs(ctx context.Context) ([]string, error)

	InsertEvent(ctx context.Context, event models.Event) (*models.Event, error)

	// WithTransaction runs fn atomically when the store supports it. Writes
	// made through the ctx handed to fn are committed together or not at all.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	// Transactional reports whether WithTransaction is atomic
	Transactional() bool
}
