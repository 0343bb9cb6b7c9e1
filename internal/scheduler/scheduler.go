// Package scheduler runs recurring backtest jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradelab/internal/config"
)

const defaultJobTimeout = 30 * time.Minute

// JobRunner executes one scheduled job
type JobRunner interface {
	RunJob(ctx context.Context, job config.ScheduledJobConfig) error
}

// JobRunnerFunc adapts a function to JobRunner
type JobRunnerFunc func(ctx context.Context, job config.ScheduledJobConfig) error

// RunJob calls f
func (f JobRunnerFunc) RunJob(ctx context.Context, job config.ScheduledJobConfig) error {
	return f(ctx, job)
}

// Scheduler manages scheduled backtest jobs. Schedules are evaluated in UTC.
type Scheduler struct {
	cron            *cron.Cron
	runner          JobRunner
	logger          *logrus.Logger
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          map[string]cron.EntryID
	gracefulTimeout time.Duration
	baseCtx         context.Context
	cancel          context.CancelFunc
}

// NewScheduler creates a new scheduler
func NewScheduler(runner JobRunner, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(time.UTC)),
		runner:          runner,
		logger:          log,
		jobIDs:          make(map[string]cron.EntryID),
		gracefulTimeout: 30 * time.Second,
		baseCtx:         ctx,
		cancel:          cancel,
	}
}

// ScheduleJob registers job under its cron expression. Overlapping
// executions of the same job are skipped.
func (s *Scheduler) ScheduleJob(job config.ScheduledJobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}
	if _, exists := s.jobIDs[job.Name]; exists {
		return fmt.Errorf("job %s is already scheduled", job.Name)
	}

	var running sync.Mutex
	jobFunc := func() {
		if !running.TryLock() {
			s.logger.WithField("job", job.Name).Warn("Previous run still in progress, skipping")
			return
		}
		defer running.Unlock()
		s.execute(job)
	}

	entryID, err := s.cron.AddFunc(job.Schedule, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add job %s: %w", job.Name, err)
	}

	s.jobIDs[job.Name] = entryID
	s.logger.WithFields(logrus.Fields{
		"job":      job.Name,
		"schedule": job.Schedule,
		"mode":     job.Mode,
	}).Info("Scheduled backtest job")

	return nil
}

// RunNow executes a job synchronously outside its schedule
func (s *Scheduler) RunNow(job config.ScheduledJobConfig) error {
	return s.run(job)
}

func (s *Scheduler) execute(job config.ScheduledJobConfig) {
	_ = s.run(job)
}

func (s *Scheduler) run(job config.ScheduledJobConfig) error {
	timeout := defaultJobTimeout
	if job.TimeoutSeconds > 0 {
		timeout = time.Duration(job.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(s.baseCtx, timeout)
	defer cancel()

	fields := logrus.Fields{"job": job.Name, "mode": job.Mode, "symbol": job.Symbol, "strategy": job.Strategy}
	s.logger.WithFields(fields).Info("Starting scheduled backtest")
	started := time.Now()

	if err := s.runner.RunJob(ctx, job); err != nil {
		s.logger.WithFields(fields).WithError(err).Error("Scheduled backtest failed")
		return err
	}
	s.logger.WithFields(fields).WithField("duration", time.Since(started).String()).Info("Scheduled backtest completed")
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop stops scheduling and waits up to the graceful timeout for running
// jobs, then cancels them.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-time.After(s.gracefulTimeout):
		s.logger.Warn("Scheduled jobs did not finish in time, cancelling")
		s.cancel()
		<-done
	}
	s.isRunning = false
	s.logger.Info("Scheduler stopped")

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			nextTime := entry.Next
			if nextRun.IsZero() || nextTime.Before(nextRun) {
				nextRun = nextTime
			}
		}
	}

	return nextRun
}

// Entries returns information about scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			entries = append(entries, entry)
		}
	}

	return entries
}

// RemoveJob removes a scheduled job by name
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot remove job while scheduler is running")
	}
	id, ok := s.jobIDs[name]
	if !ok {
		return fmt.Errorf("job %s is not scheduled", name)
	}

	s.cron.Remove(id)
	delete(s.jobIDs, name)
	s.logger.WithField("job", name).Info("Removed job")

	return nil
}
