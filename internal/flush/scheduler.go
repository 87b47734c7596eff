// Package flush drives periodic window flushes.
package flush

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultInterval is the flush cadence when none is configured.
const DefaultInterval = 5 * time.Second

// Func performs one flush. It receives a context that is not canceled when
// the scheduler stops, so an in-flight flush can finish during the grace period.
type Func func(ctx context.Context)

// Scheduler runs a Func immediately on Start and then on every interval.
// At most one flush is in flight at a time: a periodic tick that finds a
// flush running is skipped, FlushNow waits for it.
type Scheduler struct {
	interval time.Duration
	fn       Func
	logger   *slog.Logger

	sem      chan struct{}
	active   atomic.Bool
	stalled  atomic.Bool // Stop gave up on an in-flight flush
	cancel   context.CancelFunc
	finished chan struct{}

	flushes atomic.Int64
	skipped atomic.Int64
}

// New creates a stopped scheduler.
func New(interval time.Duration, fn Func, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		fn:       fn,
		logger:   logger,
		sem:      make(chan struct{}, 1),
	}
}

// Start begins flushing in a background goroutine. The first flush runs at once.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.active.CompareAndSwap(false, true) {
		return // already running
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.finished = make(chan struct{})
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.finished)
	flushCtx := context.WithoutCancel(ctx)

	s.tick(flushCtx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.tick(flushCtx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	select {
	case s.sem <- struct{}{}:
	default:
		s.skipped.Add(1)
		s.logger.Debug("flush still in progress, skipping tick")
		return
	}
	defer func() { <-s.sem }()
	s.execute(ctx)
}

func (s *Scheduler) execute(ctx context.Context) {
	s.flushes.Add(1)
	s.fn(ctx)
}

// Stop cancels periodic flushing and waits up to grace for an in-flight
// flush to finish. It reports whether the scheduler drained in time. A grace
// of zero or less does not wait at all.
func (s *Scheduler) Stop(grace time.Duration) bool {
	if !s.active.CompareAndSwap(true, false) {
		return true
	}
	s.cancel()

	if grace <= 0 {
		s.stalled.Store(true)
		return true
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-s.finished:
		return true
	case <-timer.C:
		s.stalled.Store(true)
		s.logger.Warn("timed out waiting for in-flight flush", "grace", grace)
		return false
	}
}

// FlushNow runs a synchronous flush once any in-flight flush completes. The
// flush is forced without waiting when ctx ends first, or when Stop already
// gave up on the in-flight one.
func (s *Scheduler) FlushNow(ctx context.Context) {
	if s.acquire(ctx) {
		defer func() { <-s.sem }()
	} else {
		s.logger.Warn("forcing flush while another is in progress", "error", ctx.Err())
	}
	s.execute(ctx)
}

func (s *Scheduler) acquire(ctx context.Context) bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
	}
	if s.stalled.Load() {
		return false
	}
	select {
	case s.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Flushes reports how many flushes have run.
func (s *Scheduler) Flushes() int64 { return s.flushes.Load() }

// Skipped reports how many periodic ticks were suppressed by an in-flight flush.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }
