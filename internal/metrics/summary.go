package metrics

import (
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Track lifetime latencies from 1ms up to 1h with 3 significant figures.
const (
	summaryLowestMs  = 1
	summaryHighestMs = 3_600_000
	summarySigFigs   = 3
)

// Summary aggregates every event of a run. Unlike a window it is never reset;
// HDR histograms keep its memory fixed regardless of run length. Callers
// serialize access (the Registry records into it under its own lock).
type Summary struct {
	start   time.Time
	overall *labelSummary
	labels  map[string]*labelSummary
	order   []string
}

type labelSummary struct {
	hist          *hdrhistogram.Histogram
	total         int64
	failures      int64
	sentBytes     int64
	receivedBytes int64
	sumMs         int64
	minMs         int64
	maxMs         int64
	errors        map[ErrorKey]int64
}

// SummaryStats is the lifetime view of one label (or of the whole run).
type SummaryStats struct {
	Label          string        `json:"label"`
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	SentBytes      int64         `json:"sent_bytes"`
	ReceivedBytes  int64         `json:"received_bytes"`
	MinLatencyMs   float64       `json:"min_latency_ms"`
	MaxLatencyMs   float64       `json:"max_latency_ms"`
	MeanLatencyMs  float64       `json:"mean_latency_ms"`
	P50LatencyMs   float64       `json:"p50_latency_ms"`
	P90LatencyMs   float64       `json:"p90_latency_ms"`
	P95LatencyMs   float64       `json:"p95_latency_ms"`
	P99LatencyMs   float64       `json:"p99_latency_ms"`
	RequestsPerSec float64       `json:"requests_per_sec"`
	Duration       time.Duration `json:"-"`
	DurationMs     float64       `json:"duration_ms"`
	Errors         []ErrorCount  `json:"errors,omitempty"`
}

// Report is the full lifetime summary of a run.
type Report struct {
	Overall SummaryStats   `json:"overall"`
	Labels  []SummaryStats `json:"labels,omitempty"`
}

// NewSummary starts a lifetime summary clocked from start.
func NewSummary(start time.Time) *Summary {
	return &Summary{
		start:   start,
		overall: newLabelSummary(),
		labels:  make(map[string]*labelSummary),
	}
}

func newLabelSummary() *labelSummary {
	return &labelSummary{
		hist:   hdrhistogram.New(summaryLowestMs, summaryHighestMs, summarySigFigs),
		errors: make(map[ErrorKey]int64),
	}
}

// Record adds an event to the overall figures and, when perLabel is set, to its label.
func (s *Summary) Record(ev Event, perLabel bool) {
	s.overall.record(ev)
	if !perLabel {
		return
	}
	ls, ok := s.labels[ev.Label]
	if !ok {
		ls = newLabelSummary()
		s.labels[ev.Label] = ls
		s.order = append(s.order, ev.Label)
	}
	ls.record(ev)
}

func (l *labelSummary) record(ev Event) {
	elapsed := ev.ElapsedMs
	if elapsed < 0 {
		elapsed = 0
	}
	clamped := elapsed
	if clamped < l.hist.LowestTrackableValue() {
		clamped = l.hist.LowestTrackableValue()
	}
	if clamped > l.hist.HighestTrackableValue() {
		clamped = l.hist.HighestTrackableValue()
	}
	_ = l.hist.RecordValue(clamped)

	l.total++
	if l.total == 1 || elapsed < l.minMs {
		l.minMs = elapsed
	}
	if elapsed > l.maxMs {
		l.maxMs = elapsed
	}
	l.sumMs += elapsed
	l.sentBytes += ev.SentBytes
	l.receivedBytes += ev.ReceivedBytes
	if !ev.Success {
		l.failures++
		l.errors[ErrorKey{Code: ev.ErrorCode, Message: ev.ErrorMessage}]++
	}
}

// Report computes the lifetime statistics as of now.
func (s *Summary) Report(now time.Time) Report {
	elapsed := now.Sub(s.start)
	report := Report{Overall: s.overall.stats(CumulatedLabel, elapsed)}
	for _, label := range s.order {
		report.Labels = append(report.Labels, s.labels[label].stats(label, elapsed))
	}
	sort.SliceStable(report.Labels, func(i, j int) bool {
		return report.Labels[i].Total > report.Labels[j].Total
	})
	return report
}

func (l *labelSummary) stats(label string, elapsed time.Duration) SummaryStats {
	stats := SummaryStats{
		Label:         label,
		Total:         l.total,
		Successes:     l.total - l.failures,
		Failures:      l.failures,
		SentBytes:     l.sentBytes,
		ReceivedBytes: l.receivedBytes,
		MinLatencyMs:  float64(l.minMs),
		MaxLatencyMs:  float64(l.maxMs),
		Duration:      elapsed,
		DurationMs:    float64(elapsed) / float64(time.Millisecond),
		Errors:        flattenErrors(l.errors),
	}
	if l.total > 0 {
		stats.MeanLatencyMs = float64(l.sumMs) / float64(l.total)
	}
	if l.hist.TotalCount() > 0 {
		stats.P50LatencyMs = float64(l.hist.ValueAtQuantile(50))
		stats.P90LatencyMs = float64(l.hist.ValueAtQuantile(90))
		stats.P95LatencyMs = float64(l.hist.ValueAtQuantile(95))
		stats.P99LatencyMs = float64(l.hist.ValueAtQuantile(99))
	}
	if elapsed > 0 && l.total > 0 {
		stats.RequestsPerSec = float64(l.total) / elapsed.Seconds()
	}
	return stats
}
