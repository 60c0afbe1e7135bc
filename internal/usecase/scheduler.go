package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"SentimentTracker/internal/ports"
)

// Scheduler drives RefreshUniverse from a recurring trigger. A trigger that
// fires while the previous refresh is still running is dropped.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger

	running atomic.Bool
	skipped atomic.Int64
}

// NewScheduler returns nil-safe glue between a driver and the pipeline; a nil
// driver means scheduled refreshes are disabled.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		s.logger.Info("scheduled refresh disabled")
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) { s.refresh(ctx, trigger) })
}

func (s *Scheduler) refresh(ctx context.Context, trigger time.Time) {
	if !s.running.CompareAndSwap(false, true) {
		n := s.skipped.Add(1)
		s.logger.Warn("previous refresh still running, trigger dropped",
			"trigger", trigger.Format(time.RFC3339), "skipped_total", n)
		return
	}
	defer s.running.Store(false)

	results := s.pipeline.RefreshUniverse(ctx, trigger)
	var failures int
	for _, r := range results {
		failures += len(r.Errors)
	}
	s.logger.Info("scheduled refresh finished", "runs", len(results), "errors", failures)
}

// Skipped reports how many triggers were dropped because a refresh overlapped.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
