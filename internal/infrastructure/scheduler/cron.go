package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"SentimentTracker/internal/ports"
)

// CronScheduler triggers the refresh job on a cron expression.
type CronScheduler struct {
	spec     string
	location *time.Location
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler configured via cron expression string.
func NewCronScheduler(spec string, location *time.Location, logger *slog.Logger) *CronScheduler {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CronScheduler{spec: spec, location: location, logger: logger}
}

// Start registers job and starts the cron loop. Calling Start twice is a no-op.
// Overlapping triggers are skipped while a previous job is still running.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	sched := cron.New(
		cron.WithLocation(c.location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := sched.AddFunc(c.spec, func() {
		if ctx.Err() != nil {
			return
		}
		trigger := time.Now().In(c.location)
		c.logger.Info("cron fired", "spec", c.spec, "trigger", trigger.Format(time.RFC3339))
		job(trigger)
	})
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", c.spec, err)
	}

	sched.Start()
	c.cron = sched
	c.logger.Info("scheduler started", "spec", c.spec, "timezone", c.location.String())
	return nil
}

// Stop halts the cron loop and waits for a running job until ctx expires.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	sched := c.cron
	c.cron = nil
	c.mu.Unlock()

	if sched == nil {
		return nil
	}

	done := sched.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running job: %w", ctx.Err())
	}
}

// Next reports the next trigger time after from.
func (c *CronScheduler) Next(from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(c.spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", c.spec, err)
	}
	return schedule.Next(from.In(c.location)), nil
}
