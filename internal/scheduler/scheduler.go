// Package scheduler runs ingestion passes on a fixed interval measured from
// the end of one run to the start of the next.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/logging"
	"github.com/JakeFAU/menu-crawler/internal/menu"
)

// DefaultInterval is the pause between runs.
const DefaultInterval = time.Hour

// Runner executes one ingestion pass. *worker.Worker satisfies it.
type Runner interface {
	Run(ctx context.Context) (menu.RunSummary, error)
}

// Scheduler drives a Runner until its context ends.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger
	trigger  chan struct{}
	running  atomic.Bool
	runs     atomic.Int64
}

// New builds a Scheduler. A non-positive interval falls back to DefaultInterval.
func New(runner Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logging.OrNop(logger).Named("scheduler"),
		trigger:  make(chan struct{}, 1),
	}
}

// Start runs immediately, then again interval after each run finishes or as
// soon as Trigger is called. It returns when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}

		timer := time.NewTimer(s.interval)
		s.logger.Info("next run scheduled", zap.Duration("in", s.interval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.trigger:
			timer.Stop()
			s.logger.Info("manual run triggered")
		}
	}
}

// Trigger asks for a run now. It reports false when a request is already
// pending; concurrent requests coalesce into one run.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Runs counts completed runs.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.running.Store(true)
	defer s.runs.Add(1)
	defer s.running.Store(false)
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("run panicked", zap.Any("panic", p))
		}
	}()

	summary, err := s.runner.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		s.logger.Warn("run interrupted", zap.String("run_id", summary.RunID))
		return
	default:
		s.logger.Error("run failed", zap.String("run_id", summary.RunID), zap.Error(err))
		return
	}
	s.logger.Info("run complete",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
	)
}
