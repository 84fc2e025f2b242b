package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/linesmerrill/police-dispatch-api/databases"
)

// SweepLock is the scheduler lock name held while sweeping assignments
const SweepLock = "assignment_sweep"

const (
	sweepTimeout = 5 * time.Minute
	sweepLockTTL = 10 * time.Minute
)

// Sweeper releases units that point at calls which no longer exist
type Sweeper interface {
	SweepAssignments(ctx context.Context) (int64, error)
}

// Scheduler runs the periodic assignment sweep. Only the instance holding
// the mongo lock runs a given tick.
type Scheduler struct {
	cron       *cron.Cron
	schedule   string
	Sweeper    Sweeper
	LockDB     databases.SchedulerLockDatabase
	instanceID string
}

// NewScheduler creates a scheduler for the cron schedule
func NewScheduler(schedule string, sweeper Sweeper, lockDB databases.SchedulerLockDatabase) *Scheduler {
	instanceID := os.Getenv("DYNO") // Heroku sets this to "web.1", "web.2", etc.
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%s", uuid.New().String())
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		schedule:   schedule,
		Sweeper:    sweeper,
		LockDB:     lockDB,
		instanceID: instanceID,
	}
}

// InstanceID identifies this process as a lock owner
func (s *Scheduler) InstanceID() string {
	return s.instanceID
}

// Start registers the sweep job and starts the cron
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		return fmt.Errorf("failed to register assignment sweep %q: %w", s.schedule, err)
	}
	s.cron.Start()
	zap.S().Infow("assignment sweep scheduled", "schedule", s.schedule, "instance", s.instanceID)
	return nil
}

// Stop waits for a running sweep to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("assignment sweep stopped")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		zap.S().Errorw("assignment sweep failed", "error", err)
	}
}

// Sweep runs one sweep under the scheduler lock. It returns -1 without
// sweeping when another instance holds the lock.
func (s *Scheduler) Sweep(ctx context.Context) (int64, error) {
	acquired, err := s.LockDB.TryAcquireLock(ctx, SweepLock, s.instanceID, sweepLockTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire lock for assignment sweep: %w", err)
	}
	if !acquired {
		zap.S().Debug("assignment sweep already running on another instance, skipping")
		return -1, nil
	}
	defer func() {
		if err := s.LockDB.ReleaseLock(context.Background(), SweepLock, s.instanceID); err != nil {
			zap.S().Warnw("failed to release assignment sweep lock", "error", err)
		}
	}()

	released, err := s.Sweeper.SweepAssignments(ctx)
	if err != nil {
		return released, err
	}
	zap.S().Infow("assignment sweep finished", "released", released, "instance", s.instanceID)
	return released, nil
}
