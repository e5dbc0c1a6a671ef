package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

const (
	// DefaultInterval is the time between scheduler ticks.
	DefaultInterval = 5 * time.Minute
	// DefaultBatchSize caps the jobs drained per tick.
	DefaultBatchSize = domain.DefaultBatchSize
)

// ErrSchedulerRunning is returned when Start is called on a running scheduler.
var ErrSchedulerRunning = errors.New("scheduler is already running")

// Sweeper creates deadline reminders for one point in time.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Drainer processes due jobs.
type Drainer interface {
	DrainDueJobs(ctx context.Context, now time.Time, limit int) (domain.DrainResult, error)
}

// TickObserver receives the duration and error of every tick.
type TickObserver interface {
	TickObserved(duration time.Duration, err error)
}

// SchedulerConfig controls tick cadence and drain size.
type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
	Clock     func() time.Time
	Logf      func(format string, args ...any)
	Observer  TickObserver
}

func (c SchedulerConfig) normalized() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logf == nil {
		c.Logf = log.Printf
	}
	return c
}

// TickResult summarizes one sweep and drain.
type TickResult struct {
	Now       time.Time
	Reminders int
	Drain     domain.DrainResult
}

// Scheduler runs sweep then drain once per interval on a single goroutine, so
// ticks never overlap.
type Scheduler struct {
	sweeper Sweeper
	drainer Drainer
	cfg     SchedulerConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a stopped scheduler.
func NewScheduler(sweeper Sweeper, drainer Drainer, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		drainer: drainer,
		cfg:     cfg.normalized(),
	}
}

// Start runs one tick immediately and then one per interval until Stop is
// called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.sweeper == nil || s.drainer == nil {
		return fmt.Errorf("scheduler requires a sweeper and a drainer")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrSchedulerRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.run(loopCtx)
	}()
	return nil
}

// Stop prevents future ticks and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop goroutine is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *Scheduler) run(ctx context.Context) {
	// Tick work must not be cut short by Stop.
	workCtx := context.WithoutCancel(ctx)
	s.tickAndLog(workCtx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.tickAndLog(workCtx)
		}
	}
}

func (s *Scheduler) tickAndLog(ctx context.Context) {
	result, err := s.Tick(ctx)
	if err != nil {
		s.cfg.Logf("tracker tick failed: %v", err)
	}
	if result.Reminders > 0 || result.Drain.Fetched > 0 {
		s.cfg.Logf("tracker tick: reminders=%d fetched=%d sent=%d failed=%d retried=%d",
			result.Reminders, result.Drain.Fetched, result.Drain.Sent, result.Drain.Failed, result.Drain.Retried)
	}
}

// Tick runs one sweep and one drain at the current clock time. A sweep
// failure does not prevent the drain.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	started := time.Now()
	now := s.cfg.Clock()
	result := TickResult{Now: now}

	var errs []error
	reminders, err := s.sweeper.Sweep(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep: %w", err))
	}
	result.Reminders = reminders

	drain, err := s.drainer.DrainDueJobs(ctx, now, s.cfg.BatchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("drain: %w", err))
	}
	result.Drain = drain

	tickErr := errors.Join(errs...)
	if s.cfg.Observer != nil {
		s.cfg.Observer.TickObserved(time.Since(started), tickErr)
	}
	return result, tickErr
}
