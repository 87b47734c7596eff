package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/pulse/internal/config"
	"github.com/torosent/pulse/internal/metrics"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []metrics.Event
}

func (c *captureRecorder) Record(ev metrics.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestDoRecordsSuccessAndFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path == "/broken" {
			http.Error(w, "nope", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(append([]byte("echo:"), body...))
	}))
	defer srv.Close()

	rec := &captureRecorder{}
	p, err := New(Options{
		Load: config.LoadConfig{
			Method: "POST",
			Targets: []config.Target{
				{Label: "ok", URL: srv.URL + "/ok", Body: "hello", SLAThresholdMs: 250},
				{Label: "broken", URL: srv.URL + "/broken"},
			},
			Timeout: time.Second,
		},
		Recorder: rec,
	})
	require.NoError(t, err)

	require.NoError(t, p.Do(context.Background()))
	err = p.Do(context.Background())
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)

	require.Len(t, rec.events, 2)
	ok := rec.events[0]
	assert.Equal(t, "ok", ok.Label)
	assert.True(t, ok.Success)
	assert.Equal(t, int64(5), ok.SentBytes)
	assert.Equal(t, int64(len("echo:hello")), ok.ReceivedBytes)
	assert.Equal(t, int64(250), ok.SLAThresholdMs)
	assert.Equal(t, srv.URL+"/ok", ok.URL)

	failed := rec.events[1]
	assert.False(t, failed.Success)
	assert.Equal(t, "503", failed.ErrorCode)
	assert.Equal(t, "Service Unavailable", failed.ErrorMessage)
}

func TestDoClassifiesTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	rec := &captureRecorder{}
	p, err := New(Options{
		Load:     config.LoadConfig{Targets: []config.Target{{Label: "slow", URL: srv.URL}}},
		Recorder: rec,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Do(ctx))

	require.Len(t, rec.events, 1)
	assert.False(t, rec.events[0].Success)
	assert.Equal(t, "timeout", rec.events[0].ErrorCode)
}

func TestDoPropagatesTraceContext(t *testing.T) {
	headers := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("Traceparent")
	}))
	defer srv.Close()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	p, err := New(Options{
		Load:      config.LoadConfig{Targets: []config.Target{{Label: "home", URL: srv.URL}}},
		Recorder:  &captureRecorder{},
		Tracer:    tp.Tracer("test"),
		Propagate: true,
	})
	require.NoError(t, err)
	require.NoError(t, p.Do(context.Background()))

	assert.NotEmpty(t, <-headers)
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET home", spans[0].Name)
}

func TestNewRequiresTargetsAndRecorder(t *testing.T) {
	_, err := New(Options{Recorder: &captureRecorder{}})
	assert.Error(t, err)
	_, err = New(Options{Load: config.LoadConfig{Targets: []config.Target{{URL: "http://x"}}}})
	assert.Error(t, err)
}
