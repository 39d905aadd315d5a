package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"f0oster/adsweep/orchestrator"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ExecutionPrefix names executions started by the schedule.
const ExecutionPrefix = "scheduled"

// Job is one scheduled scan.
type Job func(ctx context.Context) error

// Starter starts orchestrated executions.
type Starter interface {
	StartExecution(ctx context.Context, prefix string, input any) (orchestrator.Execution, error)
}

// StartExecution returns a Job that starts a query execution of the state machine.
func StartExecution(starter Starter) Job {
	return func(ctx context.Context) error {
		_, err := starter.StartExecution(ctx, ExecutionPrefix, map[string]string{"action": "query"})
		return err
	}
}

// Scheduler runs a Job on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	job      Job
	entry    cron.EntryID
	logger   *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

// New validates schedule, which accepts standard five-field specs and
// descriptors such as @weekly.
func New(schedule string, job Job, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		job:      job,
		logger:   logger,
		ctx:      context.Background(),
	}

	entry, err := s.cron.AddFunc(schedule, s.fire)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	s.entry = entry
	return s, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running job to return.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scan scheduler started", zap.String("schedule", s.schedule), zap.Time("next", s.Next()))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scan scheduler stopped")
	return nil
}

// Next is the next activation time, zero before Run.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Trigger runs the job once, outside the schedule.
func (s *Scheduler) Trigger(ctx context.Context) error {
	start := time.Now()
	err := s.job(ctx)
	if err != nil {
		s.logger.Error("scheduled scan failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return err
	}
	s.logger.Info("scheduled scan triggered", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	_ = s.Trigger(ctx)
}
