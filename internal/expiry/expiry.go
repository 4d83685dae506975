// Package expiry sweeps runs that stalled in a non-terminal status and
// marks them expired, along with their still-pending actions. This covers
// crashed workers and consumers that never answered a manifest.
package expiry

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/projectdavid/orchestrator/internal/observability"
	"github.com/projectdavid/orchestrator/internal/store"
	"github.com/projectdavid/orchestrator/pkg/models"
)

// Store is the persistence slice the sweeper needs. MemoryStore and the
// control-plane client both implement it.
type Store interface {
	// ListStaleRuns returns non-terminal runs with no activity since
	// olderThan.
	ListStaleRuns(ctx context.Context, olderThan time.Time) ([]models.Run, error)

	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) error
	GetPendingActions(ctx context.Context, runID string) ([]models.Action, error)
	UpdateAction(ctx context.Context, id string, update store.ActionUpdate) error
}

// Sweeper periodically expires stalled runs.
type Sweeper struct {
	store  Store
	maxAge time.Duration
	logger *observability.Logger
	cron   *cron.Cron
	now    func() time.Time
}

// NewSweeper creates a sweeper that expires runs idle for longer than
// maxAge.
func NewSweeper(st Store, maxAge time.Duration, logger *observability.Logger) *Sweeper {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Sweeper{
		store:  st,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Start schedules sweeps on the given cron spec, e.g. "@every 1m".
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Warn(context.Background(), "expiry sweep", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule. In-flight sweeps finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep expires every stalled run once and returns how many were expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.maxAge)
	stale, err := s.store.ListStaleRuns(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, run := range stale {
		if err := s.expireRun(ctx, run); err != nil {
			s.logger.Warn(ctx, "expiring run", "run_id", run.ID, "error", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info(ctx, "expired stalled runs", "count", expired)
	}
	return expired, nil
}

func (s *Sweeper) expireRun(ctx context.Context, run models.Run) error {
	pending, err := s.store.GetPendingActions(ctx, run.ID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	for _, action := range pending {
		err := s.store.UpdateAction(ctx, action.ID, store.ActionUpdate{
			Status:      models.ActionExpired,
			ProcessedAt: &now,
		})
		if err != nil {
			s.logger.Warn(ctx, "expiring action", "action_id", action.ID, "error", err)
		}
	}
	return s.store.UpdateRunStatus(ctx, run.ID, models.RunExpired)
}
