package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Result summarises one Run.
type Result struct {
	Total    int64
	Errors   int64
	Duration time.Duration
}

// Runner spreads calls to a Job over a fixed pool of workers.
type Runner struct {
	opt Options

	claimed   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64
}

func New(opt Options) *Runner {
	return &Runner{opt: opt.withDefaults()}
}

// Active reports how many calls are in flight right now.
func (r *Runner) Active() int64 {
	return r.active.Load()
}

// Run blocks until the request budget is spent, Duration has elapsed or ctx
// is done. Only calls that returned are counted in the result.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	if r.opt.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opt.Duration)
		defer cancel()
	}

	var wg sync.WaitGroup
	for i := 0; i < r.opt.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r.claim(ctx) {
				r.call(ctx)
			}
		}()
	}
	wg.Wait()

	return Result{
		Total:    r.completed.Load(),
		Errors:   r.failed.Load(),
		Duration: time.Since(start),
	}
}

// claim reserves one slot of the budget and waits for the limiter.
func (r *Runner) claim(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if r.opt.Requests > 0 && r.claimed.Add(1) > r.opt.Requests {
		return false
	}
	if r.opt.Limiter != nil {
		if err := r.opt.Limiter.Wait(ctx); err != nil {
			return false
		}
	}
	return true
}

func (r *Runner) call(ctx context.Context) {
	if r.opt.Job == nil {
		return
	}
	r.active.Add(1)
	err := r.opt.Job.Do(ctx)
	r.active.Add(-1)
	r.completed.Add(1)
	if err != nil {
		r.failed.Add(1)
	}
}
