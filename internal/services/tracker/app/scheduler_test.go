package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeSweeper struct {
	mu      sync.Mutex
	calls   []time.Time
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *fakeSweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, now)
	return 1, s.err
}

func (s *fakeSweeper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeDrainer struct {
	mu     sync.Mutex
	limits []int
	nows   []time.Time
	ticks  chan struct{}
}

func (d *fakeDrainer) DrainDueJobs(_ context.Context, now time.Time, limit int) (domain.DrainResult, error) {
	d.mu.Lock()
	d.limits = append(d.limits, limit)
	d.nows = append(d.nows, now)
	d.mu.Unlock()
	if d.ticks != nil {
		select {
		case d.ticks <- struct{}{}:
		default:
		}
	}
	return domain.DrainResult{Fetched: 2, Sent: 2}, nil
}

type recordingTickObserver struct {
	mu     sync.Mutex
	errs   []error
	counts int
}

func (o *recordingTickObserver) TickObserved(_ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts++
	o.errs = append(o.errs, err)
}

func discardLogf(string, ...any) {}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestTickSweepsThenDrainsAtSameInstant(t *testing.T) {
	sweeper := &fakeSweeper{}
	drainer := &fakeDrainer{}
	observer := &recordingTickObserver{}
	scheduler := NewScheduler(sweeper, drainer, SchedulerConfig{
		Clock:    func() time.Time { return testNow },
		Logf:     discardLogf,
		Observer: observer,
	})

	result, err := scheduler.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if result.Reminders != 1 || result.Drain.Sent != 2 {
		t.Fatalf("result = %+v", result)
	}
	if len(drainer.limits) != 1 || drainer.limits[0] != DefaultBatchSize {
		t.Fatalf("limits = %v, want [%d]", drainer.limits, DefaultBatchSize)
	}
	if !sweeper.calls[0].Equal(testNow) || !drainer.nows[0].Equal(testNow) {
		t.Fatalf("sweep at %v, drain at %v, want %v", sweeper.calls[0], drainer.nows[0], testNow)
	}
	if observer.counts != 1 || observer.errs[0] != nil {
		t.Fatalf("observer = %+v", observer)
	}
}

func TestTickDrainsEvenWhenSweepFails(t *testing.T) {
	sweepErr := errors.New("listing failed")
	sweeper := &fakeSweeper{err: sweepErr}
	drainer := &fakeDrainer{}
	scheduler := NewScheduler(sweeper, drainer, SchedulerConfig{BatchSize: 10, Logf: discardLogf})

	_, err := scheduler.Tick(context.Background())
	if !errors.Is(err, sweepErr) {
		t.Fatalf("err = %v, want %v", err, sweepErr)
	}
	if len(drainer.limits) != 1 || drainer.limits[0] != 10 {
		t.Fatalf("limits = %v, want [10]", drainer.limits)
	}
}

func TestStartRunsImmediatelyAndRejectsSecondStart(t *testing.T) {
	drainer := &fakeDrainer{ticks: make(chan struct{}, 4)}
	scheduler := NewScheduler(&fakeSweeper{}, drainer, SchedulerConfig{Interval: time.Hour, Logf: discardLogf})

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, drainer.ticks, "first tick")
	if err := scheduler.Start(context.Background()); !errors.Is(err, ErrSchedulerRunning) {
		t.Fatalf("second start err = %v, want %v", err, ErrSchedulerRunning)
	}
	scheduler.Stop()
	if scheduler.Running() {
		t.Fatal("expected scheduler to be stopped")
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitFor(t, drainer.ticks, "tick after restart")
	scheduler.Stop()
}

func TestStartTicksOnInterval(t *testing.T) {
	drainer := &fakeDrainer{ticks: make(chan struct{}, 8)}
	scheduler := NewScheduler(&fakeSweeper{}, drainer, SchedulerConfig{Interval: 10 * time.Millisecond, Logf: discardLogf})
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer scheduler.Stop()
	for i := 0; i < 3; i++ {
		waitFor(t, drainer.ticks, "tick")
	}
}

func TestStopWaitsForInFlightTick(t *testing.T) {
	sweeper := &fakeSweeper{started: make(chan struct{}, 1), release: make(chan struct{})}
	drainer := &fakeDrainer{}
	scheduler := NewScheduler(sweeper, drainer, SchedulerConfig{Interval: time.Hour, Logf: discardLogf})
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, sweeper.started, "sweep start")

	stopped := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("stop returned while a tick was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(sweeper.release)
	waitFor(t, stopped, "stop")
	// The in-flight tick ran to completion on a detached context.
	if sweeper.callCount() != 1 {
		t.Fatalf("sweep calls = %d, want 1", sweeper.callCount())
	}
	drainer.mu.Lock()
	defer drainer.mu.Unlock()
	if len(drainer.limits) != 1 {
		t.Fatalf("drain calls = %d, want 1", len(drainer.limits))
	}
}

func TestStopOnStoppedSchedulerIsNoop(t *testing.T) {
	scheduler := NewScheduler(&fakeSweeper{}, &fakeDrainer{}, SchedulerConfig{Logf: discardLogf})
	scheduler.Stop()
}

func TestStartRequiresCollaborators(t *testing.T) {
	scheduler := NewScheduler(nil, &fakeDrainer{}, SchedulerConfig{Logf: discardLogf})
	if err := scheduler.Start(context.Background()); err == nil {
		t.Fatal("expected error without sweeper")
	}
}
