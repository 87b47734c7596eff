package metrics

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

// RegistryOptions configure a Registry. They are read only after construction.
type RegistryOptions struct {
	// LabelFilter selects the labels tracked individually. Empty matches all.
	LabelFilter string
	// SummaryOnly disables per-label windows; the cumulated window stays on.
	SummaryOnly bool
	// SLAThresholds maps a label (or "<label>_rt") to its target latency in ms.
	SLAThresholds map[string]int64
	// MaxSamples bounds each window's latency reservoir.
	MaxSamples int
	// Summary, when set, also receives every event for the lifetime report.
	Summary *Summary
	// Now supplies snapshot timestamps. Defaults to time.Now.
	Now func() time.Time
}

// LabeledSnapshot pairs a label with its flushed window.
type LabeledSnapshot struct {
	Label    string
	Snapshot WindowSnapshot
}

// Registry maps labels to windows. A single mutex covers every Record and the
// whole of FlushAll, so an event lands in exactly one flushed window.
type Registry struct {
	mu        sync.Mutex
	windows   map[string]*Accumulator
	order     []string
	cumulated *Accumulator
	seen      bool

	filter      *regexp.Regexp
	summaryOnly bool
	sla         map[string]int64
	maxSamples  int
	summary     *Summary
	now         func() time.Time
}

// NewRegistry validates opts and returns an empty registry.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	pattern := opts.LabelFilter
	if pattern == "" {
		pattern = ".*"
	}
	filter, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("sampler label filter: %w", err)
	}
	sla := make(map[string]int64, len(opts.SLAThresholds))
	for k, v := range opts.SLAThresholds {
		sla[k] = v
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxSamples := opts.MaxSamples
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Registry{
		windows:     make(map[string]*Accumulator),
		cumulated:   newCumulated(maxSamples),
		filter:      filter,
		summaryOnly: opts.SummaryOnly,
		sla:         sla,
		maxSamples:  maxSamples,
		summary:     opts.Summary,
		now:         now,
	}, nil
}

// Record adds one event to its label's window and to the cumulated window.
func (r *Registry) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordLocked(ev)
}

// RecordBatch records events under a single acquisition of the lock.
func (r *Registry) RecordBatch(events []Event) {
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range events {
		r.recordLocked(ev)
	}
}

func (r *Registry) recordLocked(ev Event) {
	tracked := r.tracks(ev.Label)
	if tracked {
		r.windowLocked(ev.Label, ev.URL).Record(ev)
	}
	r.cumulated.Record(ev)
	r.seen = true
	if r.summary != nil {
		r.summary.Record(ev, tracked)
	}
}

func (r *Registry) tracks(label string) bool {
	return !r.summaryOnly && r.filter.MatchString(label)
}

// windowLocked returns the label's window, creating it on first touch.
// The caller holds r.mu, which makes the lookup-then-create race free.
func (r *Registry) windowLocked(label, url string) *Accumulator {
	if acc, ok := r.windows[label]; ok {
		return acc
	}
	acc := NewAccumulator(label, url, r.slaFor(label), r.maxSamples)
	r.windows[label] = acc
	r.order = append(r.order, label)
	return acc
}

func (r *Registry) slaFor(label string) int64 {
	if v, ok := r.sla[label]; ok {
		return v
	}
	if v, ok := r.sla[label+"_rt"]; ok {
		return v
	}
	return 0
}

// FlushAll snapshots and resets every window in first-seen order. The
// cumulated window comes last, once it has received at least one event.
func (r *Registry) FlushAll(spec PercentileSpec) []LabeledSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]LabeledSnapshot, 0, len(r.order)+1)
	for _, label := range r.order {
		acc := r.windows[label]
		out = append(out, LabeledSnapshot{Label: label, Snapshot: acc.Snapshot(spec, now)})
		acc.Reset()
	}
	if r.seen {
		out = append(out, LabeledSnapshot{Label: CumulatedLabel, Snapshot: r.cumulated.Snapshot(spec, now)})
		r.cumulated.Reset()
	}
	return out
}

// Labels returns the individually tracked labels in first-seen order.
func (r *Registry) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Report returns the lifetime summary, or false when none is attached.
func (r *Registry) Report() (Report, bool) {
	if r.summary == nil {
		return Report{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary.Report(r.now()), true
}
