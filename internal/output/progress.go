package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/pulse/internal/metrics"
)

// ReportFunc returns the lifetime summary so far.
type ReportFunc func() metrics.Report

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	report   ReportFunc
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(report ReportFunc, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		report:   report,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
		return
	}
	p.ticker.Stop()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, progressLine(p.report()))
		case <-p.done:
			return
		}
	}
}

func progressLine(report metrics.Report) string {
	stats := report.Overall
	line := fmt.Sprintf("\rRequests: %d | Successes: %d | Failures: %d | RPS: %.1f",
		stats.Total, stats.Successes, stats.Failures, stats.RequestsPerSec)
	// Labels are ordered by volume, so the first is the busiest.
	if len(report.Labels) > 0 && stats.Total > 0 {
		top := report.Labels[0]
		share := (float64(top.Total) / float64(stats.Total)) * 100
		line += fmt.Sprintf(" | Top Label: %s (%.0f%%, P99 %.1fms)", top.Label, share, top.P99LatencyMs)
	}
	return line
}
