// Package dispatch owns 911 calls, their event log and the units assigned to
// them. Every write of a unit's currentCall goes through the Coordinator.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/linesmerrill/police-dispatch-api/logging"
	"github.com/linesmerrill/police-dispatch-api/models"
	"github.com/linesmerrill/police-dispatch-api/realtime"
)

// Coordinator runs call reads and writes against a Store and publishes the
// resulting calls to dispatch clients
type Coordinator struct {
	store   Store
	emitter realtime.Emitter
	now     func() time.Time
}

// NewCoordinator returns a Coordinator. A nil emitter drops notifications.
func NewCoordinator(store Store, emitter realtime.Emitter) *Coordinator {
	if emitter == nil {
		emitter = realtime.Nop{}
	}
	return &Coordinator{store: store, emitter: emitter, now: time.Now}
}

// WithClock replaces the clock used for createdAt and updatedAt stamps
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// ListCalls returns all calls, newest first
func (c *Coordinator) ListCalls(ctx context.Context) ([]models.Call, error) {
	return c.store.ListCalls(ctx)
}

// FindCall returns a single call or ErrCallNotFound
func (c *Coordinator) FindCall(ctx context.Context, id string) (*models.Call, error) {
	return c.store.FindCall(ctx, id)
}

// CreateCall stores a new call for creatorID and announces it
func (c *Coordinator) CreateCall(ctx context.Context, req models.CallRequest, creatorID string) (*models.Call, error) {
	now := c.now().UTC()
	id, err := c.store.InsertCall(ctx, models.CallDetails{
		Location:    req.Location,
		Description: req.Description,
		Name:        req.Name,
		UserID:      creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert call: %w", err)
	}

	call, err := c.store.FindCall(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload call %s: %w", id, err)
	}

	c.publish(ctx, realtime.EventCallCreated, call)
	return call, nil
}

// ReassignUnits makes unitIDs exactly the set of units on callID and writes
// the call's scalar fields. On a transactional store the clear, update and
// assign steps commit together; otherwise a failure can leave the call
// partially reassigned. Duplicate unit ids are collapsed.
func (c *Coordinator) ReassignUnits(ctx context.Context, callID string, update CallUpdate, unitIDs []string) (*models.Call, error) {
	unitIDs = dedupe(unitIDs)
	at := c.now().UTC()

	var err error
	if c.store.Transactional() {
		err = c.store.WithTransaction(ctx, func(ctx context.Context) error {
			return c.reassign(ctx, callID, update, unitIDs, at, assignSequential)
		})
	} else {
		err = c.reassign(ctx, callID, update, unitIDs, at, assignParallel)
	}
	if err != nil {
		return nil, err
	}

	call, err := c.store.FindCall(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload call %s: %w", callID, err)
	}

	c.publish(ctx, realtime.EventCallUpdated, call)
	return call, nil
}

type assignFunc func(ctx context.Context, store Store, callID string, unitIDs []string) error

func (c *Coordinator) reassign(ctx context.Context, callID string, update CallUpdate, unitIDs []string, at time.Time, assign assignFunc) error {
	exists, err := c.store.CallExists(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to load call %s: %w", callID, err)
	}
	if !exists {
		return ErrCallNotFound
	}

	cleared, err := c.store.ClearAssignments(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to clear units on call %s: %w", callID, err)
	}
	logging.FromContext(ctx).Debugw("cleared call assignments", "callId", callID, "units", cleared)

	if err := c.store.UpdateCall(ctx, callID, update, at); err != nil {
		return err
	}

	return assign(ctx, c.store, callID, unitIDs)
}

// assignSequential is used inside a transaction, a mongo session cannot
// serve concurrent operations.
func assignSequential(ctx context.Context, store Store, callID string, unitIDs []string) error {
	for _, unitID := range unitIDs {
		if err := store.AssignUnit(ctx, unitID, callID); err != nil {
			return fmt.Errorf("%w %s: %w", ErrUnitUpdateFailed, unitID, err)
		}
	}
	return nil
}

// assignParallel issues the unit writes concurrently and surfaces the first
// failure. Writes that already landed are kept.
func assignParallel(ctx context.Context, store Store, callID string, unitIDs []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, unitID := range unitIDs {
		unitID := unitID
		g.Go(func() error {
			if err := store.AssignUnit(gctx, unitID, callID); err != nil {
				return fmt.Errorf("%w %s: %w", ErrUnitUpdateFailed, unitID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// AppendEvent adds an event to callID's log
func (c *Coordinator) AppendEvent(ctx context.Context, callID, description string) (*models.Event, error) {
	exists, err := c.store.CallExists(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to load call %s: %w", callID, err)
	}
	if !exists {
		return nil, ErrCallNotFound
	}

	event, err := c.store.InsertEvent(ctx, models.Event{
		CallID:      callID,
		Description: description,
		CreatedAt:   c.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append event to call %s: %w", callID, err)
	}
	return event, nil
}

// EndCall records the closing event. The call itself keeps its state and no
// notification is sent.
func (c *Coordinator) EndCall(ctx context.Context, callID, description string) (*models.Event, error) {
	return c.AppendEvent(ctx, callID, description)
}

// ConfirmCall reports true when callID exists
func (c *Coordinator) ConfirmCall(ctx context.Context, callID string) (bool, error) {
	exists, err := c.store.CallExists(ctx, callID)
	if err != nil {
		return false, fmt.Errorf("failed to load call %s: %w", callID, err)
	}
	if !exists {
		return false, ErrCallNotFound
	}
	return true, nil
}

// SweepAssignments clears currentCall on units whose call no longer exists
// and returns how many units were released
func (c *Coordinator) SweepAssignments(ctx context.Context) (int64, error) {
	callIDs, err := c.store.AssignedCallIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list assigned calls: %w", err)
	}

	var released int64
	for _, callID := range callIDs {
		exists, err := c.store.CallExists(ctx, callID)
		if err != nil {
			return released, fmt.Errorf("failed to load call %s: %w", callID, err)
		}
		if exists {
			continue
		}
		n, err := c.store.ClearAssignments(ctx, callID)
		if err != nil {
			return released, fmt.Errorf("failed to clear units on call %s: %w", callID, err)
		}
		released += n
		logging.FromContext(ctx).Infow("released units from missing call", "callId", callID, "units", n)
	}
	return released, nil
}

func (c *Coordinator) publish(ctx context.Context, event string, call *models.Call) {
	if err := c.emitter.Emit(ctx, event, call); err != nil {
		logging.FromContext(ctx).Warnw("failed to notify dispatch clients",
			"event", event,
			"callId", call.ID,
			"error", err,
		)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
