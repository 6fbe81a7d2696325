package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ApplicationScanner/internal/ports"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronScheduler triggers the job on a cron expression. Overlapping triggers are skipped,
// so at most one run is in flight.
type CronScheduler struct {
	spec           string
	location       *time.Location
	runImmediately bool
	logger         *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// Option customises a CronScheduler.
type Option func(*CronScheduler)

// WithLocation evaluates the expression in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *CronScheduler) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithRunImmediately fires the job once on Start.
func WithRunImmediately() Option {
	return func(c *CronScheduler) { c.runImmediately = true }
}

// WithLogger routes cron's own logging to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CronScheduler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCronScheduler builds a scheduler configured via cron expression string.
func NewCronScheduler(spec string, opts ...Option) *CronScheduler {
	c := &CronScheduler{spec: spec, location: time.UTC, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "scheduler")
	return c
}

// NextRun reports when spec fires next after from.
func NextRun(spec string, loc *time.Location, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return sched.Next(from.In(loc)), nil
}

// Start registers job and starts the cron loop. The loop stops when ctx is done or
// Stop is called.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return errors.New("scheduler: nil job")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	log := cronLogger{logger: c.logger}
	cr := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(c.location),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	id, err := cr.AddFunc(c.spec, func() { job(time.Now().In(c.location)) })
	if err != nil {
		return fmt.Errorf("parse cron %q: %w", c.spec, err)
	}

	cr.Start()
	c.cron = cr
	c.logger.Info("scheduler started", "cron", c.spec, "location", c.location.String(), "next", cr.Entry(id).Schedule.Next(time.Now().In(c.location)))

	if c.runImmediately {
		// the wrapped job carries the skip-if-running guard
		go cr.Entry(id).WrappedJob.Run()
	}

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts the cron loop and waits for a running job to finish or ctx to expire.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr := c.cron
	c.cron = nil
	c.mu.Unlock()

	if cr == nil {
		return nil
	}

	done := cr.Stop()
	select {
	case <-done.Done():
		c.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
