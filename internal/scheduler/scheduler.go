// Package scheduler re-runs backtests on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Jobs never overlap with themselves: a
// trigger that fires while the previous run is still busy is skipped.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	log  *slog.Logger

	mu   sync.Mutex
	jobs map[string]Job
}

// New creates a scheduler whose jobs run with ctx. Schedules use the
// standard five-field cron syntax plus descriptors such as "@daily".
func New(ctx context.Context, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:  ctx,
		log:  logger,
		jobs: make(map[string]Job),
	}
}

// Add registers job under name on spec.
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("register %s (%q): %w", name, spec, err)
	}
	s.jobs[name] = job
	return nil
}

// RunNow runs the named job synchronously, outside the schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) error {
	start := time.Now()
	s.log.Info("job started", slog.String("job", name))
	err := job(s.ctx)
	if err != nil {
		s.log.Error("job failed", slog.String("job", name), slog.Duration("elapsed", time.Since(start)), slog.Any("error", err))
		return err
	}
	s.log.Info("job finished", slog.String("job", name), slog.Duration("elapsed", time.Since(start)))
	return nil
}

// Next returns the next activation time across all jobs, or the zero time
// when nothing is scheduled or the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

// Start starts the cron runner in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", slog.Time("next", s.Next()))
}

// Stop stops the runner and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
	}
	s.log.Info("scheduler stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
