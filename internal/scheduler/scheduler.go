// Package scheduler runs the harvest-and-deliver cycle on a fixed
// interval. A tick that arrives while the previous cycle is still
// running is skipped, never queued.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Task is one scheduled cycle.
type Task func(ctx context.Context) error

// Config holds schedule settings.
type Config struct {
	Interval     time.Duration
	InitialDelay time.Duration
	RunAtStart   bool
}

// Scheduler drives a Task on an interval.
type Scheduler struct {
	task   Task
	config *Config
	logger *slog.Logger
	busy   atomic.Bool
}

// New creates a Scheduler.
func New(task Task, config *Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		task:   task,
		config: config,
		logger: logger,
	}
}

// Run blocks until ctx is cancelled, firing the task on every interval
// tick. The optional initial delay gives dependencies time to settle
// before the first run.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.config.InitialDelay > 0 {
		timer := time.NewTimer(s.config.InitialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.config.RunAtStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("Scheduler started",
		slog.Duration("interval", s.config.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one cycle unless the previous one is still going.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warn("Previous cycle still running, skipping tick")
		return
	}
	defer s.busy.Store(false)

	started := time.Now()
	if err := s.task(ctx); err != nil {
		s.logger.Error("Scheduled cycle failed",
			slog.Any("error", err),
			slog.Duration("elapsed", time.Since(started)),
		)
		return
	}

	s.logger.Info("Scheduled cycle finished",
		slog.Duration("elapsed", time.Since(started)),
	)
}
