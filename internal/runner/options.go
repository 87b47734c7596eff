package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/pulse/internal/config"
)

// Job is one unit of load. A non-nil error counts the call as failed.
type Job interface {
	Do(ctx context.Context) error
}

// Options configure a Runner. Zero limits mean unlimited.
type Options struct {
	Workers  int
	Requests int64
	Duration time.Duration
	Rate     int // calls per second across all workers
	Job      Job

	// Limiter overrides the limiter derived from Rate.
	Limiter *rate.Limiter
}

// FromLoad maps the load section of the config onto runner options.
func FromLoad(load config.LoadConfig, job Job) Options {
	return Options{
		Workers:  load.Concurrency,
		Requests: int64(load.Total),
		Duration: load.Duration,
		Rate:     load.Rate,
		Job:      job,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.Requests < 0 {
		o.Requests = 0
	}
	if o.Rate < 0 {
		o.Rate = 0
	}
	if o.Limiter == nil && o.Rate > 0 {
		// Burst of one spreads calls evenly instead of front-loading each second.
		o.Limiter = rate.NewLimiter(rate.Limit(o.Rate), 1)
	}
	return o
}
