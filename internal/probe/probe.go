// Package probe issues HTTP requests against the configured targets and
// reports each completion as a metrics.Event.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/pulse/internal/config"
	"github.com/torosent/pulse/internal/httpclient"
	"github.com/torosent/pulse/internal/metrics"
	"github.com/torosent/pulse/internal/tracing"
)

const (
	maxLoggedBodyBytes = 1024
	maxBodyReadSize    = 1024 * 1024
)

// Recorder receives completed request events.
type Recorder interface {
	Record(ev metrics.Event)
}

// HTTPError represents an HTTP request failure with status details.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Options configure an HTTP probe.
type Options struct {
	Load      config.LoadConfig
	Client    *http.Client // defaults to httpclient.NewClient(Load.Timeout)
	Recorder  Recorder
	Tracer    trace.Tracer // defaults to a no-op tracer
	Propagate bool         // inject W3C trace headers into requests
}

type target struct {
	builder *httpclient.RequestBuilder
	slaMs   int64
}

// HTTP implements runner.Requester. Targets are hit in round-robin order.
type HTTP struct {
	client    *http.Client
	targets   []target
	recorder  Recorder
	tracer    trace.Tracer
	propagate bool
	next      atomic.Uint64
}

// New builds one request builder per target.
func New(opts Options) (*HTTP, error) {
	if opts.Recorder == nil {
		return nil, errors.New("probe: recorder is required")
	}
	if len(opts.Load.Targets) == 0 {
		return nil, errors.New("probe: at least one target is required")
	}
	targets := make([]target, 0, len(opts.Load.Targets))
	for i, t := range opts.Load.Targets {
		b, err := httpclient.NewRequestBuilder(t, opts.Load.Method, opts.Load.Headers)
		if err != nil {
			return nil, fmt.Errorf("probe: target %d: %w", i, err)
		}
		targets = append(targets, target{builder: b, slaMs: t.SLAThresholdMs})
	}
	client := opts.Client
	if client == nil {
		client = httpclient.NewClient(opts.Load.Timeout)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(tracing.TracerName)
	}
	return &HTTP{
		client:    client,
		targets:   targets,
		recorder:  opts.Recorder,
		tracer:    tracer,
		propagate: opts.Propagate,
	}, nil
}

// Do executes one request and records it.
func (p *HTTP) Do(ctx context.Context) error {
	t := p.targets[(p.next.Add(1)-1)%uint64(len(p.targets))]
	b := t.builder

	ctx, span := tracing.StartRequestSpan(ctx, p.tracer, b.Method(), b.Label())
	ev := metrics.Event{Label: b.Label(), URL: b.URL(), SLAThresholdMs: t.slaMs}

	start := time.Now()
	status, sent, received, err := p.roundTrip(ctx, b)
	ev.ElapsedMs = time.Since(start).Milliseconds()
	ev.SentBytes = sent
	ev.ReceivedBytes = received

	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr):
		ev.ErrorCode = strconv.Itoa(httpErr.StatusCode)
		ev.ErrorMessage = http.StatusText(httpErr.StatusCode)
	case err != nil:
		ev.ErrorCode, ev.ErrorMessage = metrics.ClassifyError(err)
	default:
		ev.Success = true
	}
	p.recorder.Record(ev)

	if status > 0 {
		tracing.EndSpan(span, err, tracing.AttrHTTPCode.Int(status))
	} else {
		tracing.EndSpan(span, err)
	}
	return err
}

func (p *HTTP) roundTrip(ctx context.Context, b *httpclient.RequestBuilder) (status int, sent, received int64, err error) {
	req, err := b.Build(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	if p.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}
	if req.ContentLength > 0 {
		sent = req.ContentLength
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, sent, 0, err
	}
	defer resp.Body.Close()

	// Body read errors are non-fatal; the status still decides the outcome.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	received = int64(len(body))

	if resp.StatusCode >= 400 {
		snippet := body
		if len(snippet) > maxLoggedBodyBytes {
			snippet = snippet[:maxLoggedBodyBytes]
		}
		return resp.StatusCode, sent, received, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	return resp.StatusCode, sent, received, nil
}
