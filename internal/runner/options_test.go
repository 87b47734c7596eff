package runner

import (
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/pulse/internal/config"
)

func TestWithDefaults(t *testing.T) {
	tests := []struct {
		name        string
		in          Options
		wantWorkers int
		wantReqs    int64
		wantRate    int
		wantLimiter bool
	}{
		{name: "zero", in: Options{}, wantWorkers: 1},
		{name: "negatives", in: Options{Workers: -3, Requests: -1, Rate: -5}, wantWorkers: 1},
		{name: "kept", in: Options{Workers: 8, Requests: 100, Rate: 20}, wantWorkers: 8, wantReqs: 100, wantRate: 20, wantLimiter: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.withDefaults()
			if got.Workers != tt.wantWorkers {
				t.Errorf("Workers = %d, want %d", got.Workers, tt.wantWorkers)
			}
			if got.Requests != tt.wantReqs {
				t.Errorf("Requests = %d, want %d", got.Requests, tt.wantReqs)
			}
			if got.Rate != tt.wantRate {
				t.Errorf("Rate = %d, want %d", got.Rate, tt.wantRate)
			}
			if (got.Limiter != nil) != tt.wantLimiter {
				t.Errorf("Limiter set = %v, want %v", got.Limiter != nil, tt.wantLimiter)
			}
		})
	}
}

func TestWithDefaultsLimiter(t *testing.T) {
	got := Options{Rate: 50}.withDefaults()
	if got.Limiter.Limit() != rate.Limit(50) {
		t.Errorf("Limit = %v, want 50", got.Limiter.Limit())
	}
	if got.Limiter.Burst() != 1 {
		t.Errorf("Burst = %d, want 1", got.Limiter.Burst())
	}

	custom := rate.NewLimiter(5, 5)
	got = Options{Rate: 50, Limiter: custom}.withDefaults()
	if got.Limiter != custom {
		t.Error("explicit Limiter was replaced")
	}
}

func TestFromLoad(t *testing.T) {
	got := FromLoad(config.LoadConfig{
		Concurrency: 4,
		Total:       40,
		Duration:    time.Minute,
		Rate:        10,
	}, nil)
	if got.Workers != 4 || got.Requests != 40 || got.Duration != time.Minute || got.Rate != 10 {
		t.Fatalf("FromLoad() = %+v", got)
	}
}
