package usecase

import (
	"context"
	"log/slog"
	"time"

	"ApplicationScanner/internal/ports"
)

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	options  func(trigger time.Time) RunOptions
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs. options is evaluated on
// every trigger so a rolling window can be computed from the trigger time.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, options func(time.Time) RunOptions, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, options: options, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		var opts RunOptions
		if s.options != nil {
			opts = s.options(trigger)
		}
		if led := s.pipeline.Ledger(); led != nil && !opts.Since.IsZero() {
			led.SetSinceDate(formatDate(opts.Since))
		}
		if _, err := s.pipeline.Run(ctx, opts); err != nil {
			s.logger.Error("scheduled run failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
