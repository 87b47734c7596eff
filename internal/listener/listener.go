// Package listener owns the life of one test run: sink setup, periodic
// window flushes, run annotations and the final drain at teardown.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/pulse/internal/config"
	"github.com/torosent/pulse/internal/flush"
	"github.com/torosent/pulse/internal/metrics"
	"github.com/torosent/pulse/internal/sink"
	"github.com/torosent/pulse/internal/tracing"
)

// Annotation tag keys.
const (
	TagApplication = "application"
	TagTestTitle   = "testTitle"
	TagRunID       = "runId"
	TagPodNumber   = "podNum"
)

// ErrTornDown is returned by Setup after Teardown.
var ErrTornDown = errors.New("listener already torn down")

// Options carry the collaborators of a Listener. All are optional.
type Options struct {
	Logger   *slog.Logger
	Tracer   trace.Tracer
	SinkName string // span attribute only
	// ActiveThreads is sampled at every flush and stamped on each snapshot.
	ActiveThreads func() int64
	RunID         string // defaults to a fresh ULID
	Now           func() time.Time
}

// Listener connects producers to a sink through a metrics.Registry.
type Listener struct {
	cfg      config.Config
	sink     sink.Sink
	registry *metrics.Registry
	spec     metrics.PercentileSpec
	sched    *flush.Scheduler

	logger   *slog.Logger
	tracer   trace.Tracer
	sinkName string
	active   func() int64
	now      func() time.Time
	runID    string
	tags     map[string]string

	stopping atomic.Bool
	torndown atomic.Bool
	failures atomic.Int64
}

// New validates the aggregation settings of cfg and builds a stopped listener.
func New(cfg config.Config, s sink.Sink, opts Options) (*Listener, error) {
	if s == nil {
		return nil, errors.New("listener: sink is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracing.TracerName)
	}
	runID := opts.RunID
	if runID == "" {
		runID = ulid.Make().String()
	}
	sinkName := opts.SinkName
	if sinkName == "" {
		sinkName = cfg.Sink.Name
	}

	registry, err := metrics.NewRegistry(metrics.RegistryOptions{
		LabelFilter:   cfg.SamplerLabelFilter,
		SummaryOnly:   cfg.SummaryOnly,
		SLAThresholds: cfg.BusinessSLAThresholds,
		MaxSamples:    cfg.MaxLatencySamples,
		Summary:       metrics.NewSummary(now()),
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("listener: %w", err)
	}

	l := &Listener{
		cfg:      cfg,
		sink:     s,
		registry: registry,
		spec:     metrics.ParsePercentiles(cfg.Percentiles, logger),
		logger:   logger,
		tracer:   tracer,
		sinkName: sinkName,
		active:   opts.ActiveThreads,
		now:      now,
		runID:    runID,
		tags:     snapshotTags(cfg.Tags),
	}
	l.sched = flush.New(cfg.FlushInterval, l.flush, logger)
	return l, nil
}

func snapshotTags(configured map[string]string) map[string]string {
	tags := make(map[string]string, len(configured)+1)
	for k, v := range configured {
		tags[k] = v
	}
	if _, ok := tags[TagPodNumber]; !ok {
		tags[TagPodNumber] = os.Getenv("POD_NUMBER")
	}
	return tags
}

// RunID identifies this run on both annotations.
func (l *Listener) RunID() string { return l.runID }

// Setup prepares the sink, queues the start annotation and starts flushing.
// The first flush runs immediately.
func (l *Listener) Setup(ctx context.Context) error {
	if l.torndown.Load() {
		return ErrTornDown
	}
	if err := l.sink.Setup(ctx, l.cfg.Sink.Endpoint, l.cfg.Sink.Credential); err != nil {
		return fmt.Errorf("sink %s setup: %w", l.sinkName, err)
	}
	l.sink.AddEventAnnotation(l.annotation(metrics.AnnotationStarted))
	l.sched.Start(ctx)
	l.logger.Info("listener started",
		"run_id", l.runID,
		"sink", l.sinkName,
		"flush_interval", l.cfg.FlushInterval,
		"percentiles", l.spec.Labels(),
	)
	return nil
}

// Record adds one completed request.
func (l *Listener) Record(ev metrics.Event) {
	l.registry.Record(ev)
}

// HandleSamples adds a batch of completed requests atomically with respect
// to flushing.
func (l *Listener) HandleSamples(events []metrics.Event) {
	l.registry.RecordBatch(events)
}

// Teardown stops the scheduler, waiting up to the configured grace, queues
// the end annotation, flushes the partial last window and tears the sink
// down. Calls after the first are no-ops.
func (l *Listener) Teardown(ctx context.Context) error {
	if !l.torndown.CompareAndSwap(false, true) {
		return nil
	}
	l.stopping.Store(true)
	l.sched.Stop(l.cfg.ShutdownGrace)

	l.sink.AddEventAnnotation(l.annotation(metrics.AnnotationEnded))
	l.logger.Info("sending last metrics", "run_id", l.runID)
	l.sched.FlushNow(ctx)

	if err := l.sink.Teardown(ctx); err != nil {
		return fmt.Errorf("sink %s teardown: %w", l.sinkName, err)
	}
	return nil
}

// Report returns the lifetime summary of the run so far.
func (l *Listener) Report() metrics.Report {
	report, _ := l.registry.Report()
	return report
}

// Flushes reports how many flushes have run.
func (l *Listener) Flushes() int64 { return l.sched.Flushes() }

// FlushFailures reports how many sink flushes returned an error.
func (l *Listener) FlushFailures() int64 { return l.failures.Load() }

func (l *Listener) annotation(name metrics.AnnotationName) metrics.Annotation {
	tags := make(map[string]string, len(l.cfg.EventTags)+3)
	for k, v := range l.cfg.EventTags {
		tags[k] = v
	}
	if l.cfg.Application != "" {
		tags[TagApplication] = l.cfg.Application
	}
	if l.cfg.TestTitle != "" {
		tags[TagTestTitle] = l.cfg.TestTitle
	}
	tags[TagRunID] = l.runID
	return metrics.Annotation{Name: name, Timestamp: l.now(), Tags: tags}
}

// flush is the scheduler callback. Sink calls happen outside the registry lock.
func (l *Listener) flush(ctx context.Context) {
	trigger := "interval"
	if l.stopping.Load() {
		trigger = "final"
	}
	ctx, span := tracing.StartFlushSpan(ctx, l.tracer, l.sinkName, trigger)

	snaps := l.registry.FlushAll(l.spec)
	var threads int64
	if l.active != nil {
		threads = l.active()
	}
	for _, ls := range snaps {
		snap := ls.Snapshot
		snap.ActiveThreads = threads
		snap.Tags = make(map[string]string, len(l.tags))
		for k, v := range l.tags {
			snap.Tags[k] = v
		}
		l.sink.AddMetric(snap)
	}

	err := l.sink.Flush(ctx)
	if err != nil {
		l.failures.Add(1)
		l.logger.Warn("sink flush failed, batch dropped",
			"sink", l.sinkName,
			"windows", len(snaps),
			"trigger", trigger,
			"error", err,
		)
	} else {
		l.logger.Debug("flushed windows", "sink", l.sinkName, "windows", len(snaps), "trigger", trigger)
	}
	tracing.EndSpan(span, err, tracing.AttrWindows.Int(len(snaps)))
}
