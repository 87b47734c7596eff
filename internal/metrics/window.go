package metrics

import (
	"math/rand"
	"slices"
	"time"
)

// CumulatedLabel names the rollup window that receives every event.
const CumulatedLabel = "all"

// DefaultMaxSamples bounds the latency reservoir of a single window.
const DefaultMaxSamples = 10_000

// Event is one completed request as reported by a producer.
type Event struct {
	Label         string
	URL           string
	ElapsedMs     int64
	Success       bool
	SentBytes     int64
	ReceivedBytes int64
	ErrorCode     string
	ErrorMessage  string
	// SLAThresholdMs overrides the window's configured threshold when > 0.
	SLAThresholdMs int64
}

// ErrorKey identifies a failure class inside a window.
type ErrorKey struct {
	Code    string
	Message string
}

// ErrorCount is one row of a window's error tally.
type ErrorCount struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// WindowSnapshot is the immutable export of one label's window.
type WindowSnapshot struct {
	Label           string             `json:"transaction"`
	URL             string             `json:"transactionUrl"`
	Timestamp       time.Time          `json:"timestamp"`
	Count           int64              `json:"count"`
	FailureCount    int64              `json:"failCount"`
	SentBytes       int64              `json:"sentBytes"`
	ReceivedBytes   int64              `json:"receivedBytes"`
	MinMs           int64              `json:"minRt"`
	MaxMs           int64              `json:"maxRt"`
	MeanMs          float64            `json:"rt"`
	SumMs           int64              `json:"sumRt"`
	SLASuccessCount int64              `json:"saCount"`
	Percentiles     map[string]float64 `json:"percentiles"`
	Errors          []ErrorCount       `json:"errors,omitempty"`
	ActiveThreads   int64              `json:"activeThreads"`
	Tags            map[string]string  `json:"tags,omitempty"`
}

// Accumulator aggregates the events of one label for the current window.
// It is not safe for concurrent use; the Registry serializes access.
type Accumulator struct {
	label          string
	url            string
	slaThresholdMs int64
	maxSamples     int

	count         int64
	failures      int64
	sentBytes     int64
	receivedBytes int64
	minMs         int64
	maxMs         int64
	sumMs         int64
	slaSuccess    int64
	samples       []int64
	errors        map[ErrorKey]int64
	cumulated     bool
}

// NewAccumulator creates an empty window for label.
func NewAccumulator(label, url string, slaThresholdMs int64, maxSamples int) *Accumulator {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Accumulator{
		label:          label,
		url:            url,
		slaThresholdMs: slaThresholdMs,
		maxSamples:     maxSamples,
		errors:         make(map[ErrorKey]int64),
	}
}

func newCumulated(maxSamples int) *Accumulator {
	acc := NewAccumulator(CumulatedLabel, CumulatedLabel, 0, maxSamples)
	acc.cumulated = true
	return acc
}

// Record folds one event into the window.
func (a *Accumulator) Record(ev Event) {
	elapsed := ev.ElapsedMs
	if elapsed < 0 {
		elapsed = 0
	}
	a.count++
	if a.count == 1 || elapsed < a.minMs {
		a.minMs = elapsed
	}
	if elapsed > a.maxMs {
		a.maxMs = elapsed
	}
	a.sumMs += elapsed
	a.sentBytes += ev.SentBytes
	a.receivedBytes += ev.ReceivedBytes
	a.addSample(elapsed)

	threshold := a.slaThresholdMs
	if ev.SLAThresholdMs > 0 {
		threshold = ev.SLAThresholdMs
	}
	if !ev.Success {
		a.failures++
		a.errors[ErrorKey{Code: ev.ErrorCode, Message: ev.ErrorMessage}]++
	} else if threshold > 0 && elapsed <= threshold {
		a.slaSuccess++
	}
}

// addSample keeps a uniform reservoir of at most maxSamples latencies (Algorithm R).
func (a *Accumulator) addSample(elapsed int64) {
	if len(a.samples) < a.maxSamples {
		a.samples = append(a.samples, elapsed)
		return
	}
	if j := rand.Int63n(a.count); j < int64(a.maxSamples) {
		a.samples[j] = elapsed
	}
}

// Snapshot copies the window without mutating it.
func (a *Accumulator) Snapshot(spec PercentileSpec, now time.Time) WindowSnapshot {
	snap := WindowSnapshot{
		Label:           a.label,
		URL:             a.url,
		Timestamp:       now,
		Count:           a.count,
		FailureCount:    a.failures,
		SentBytes:       a.sentBytes,
		ReceivedBytes:   a.receivedBytes,
		SumMs:           a.sumMs,
		SLASuccessCount: a.slaSuccess,
		Percentiles:     make(map[string]float64, spec.Len()),
	}
	if a.cumulated {
		// SLA targets exist per transaction only; the aggregate is derived downstream.
		snap.SLASuccessCount = 0
	}

	var sorted []int64
	if a.count > 0 {
		snap.MinMs = a.minMs
		snap.MaxMs = a.maxMs
		snap.MeanMs = float64(a.sumMs) / float64(a.count)
		sorted = slices.Clone(a.samples)
		slices.Sort(sorted)
	}
	for _, label := range spec.labels {
		snap.Percentiles[label] = float64(nearestRank(sorted, spec.values[label]))
	}
	snap.Errors = flattenErrors(a.errors)
	return snap
}

// Reset clears the window. The SLA threshold and URL are kept.
func (a *Accumulator) Reset() {
	a.count = 0
	a.failures = 0
	a.sentBytes = 0
	a.receivedBytes = 0
	a.minMs = 0
	a.maxMs = 0
	a.sumMs = 0
	a.slaSuccess = 0
	a.samples = a.samples[:0]
	clear(a.errors)
}

// Label returns the window's label.
func (a *Accumulator) Label() string { return a.label }

// SLAThresholdMs returns the configured threshold, 0 when none is tracked.
func (a *Accumulator) SLAThresholdMs() int64 { return a.slaThresholdMs }
