package prometheus

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/pulse/internal/metrics"
)

func TestFlushSetsGaugesAndCounters(t *testing.T) {
	s := New()
	require.NoError(t, s.Setup(context.Background(), "", ""))

	s.AddMetric(metrics.WindowSnapshot{
		Label:           "login",
		Count:           10,
		FailureCount:    2,
		SentBytes:       100,
		ReceivedBytes:   400,
		MinMs:           5,
		MeanMs:          12.5,
		MaxMs:           40,
		SLASuccessCount: 7,
		Percentiles:     map[string]float64{"99": 40, "90": 30},
		ActiveThreads:   4,
	})
	s.AddEventAnnotation(metrics.Annotation{Name: metrics.AnnotationStarted})
	require.NoError(t, s.Flush(context.Background()))

	assert.Equal(t, 10.0, testutil.ToFloat64(s.windowCount.WithLabelValues("login")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.windowFailures.WithLabelValues("login")))
	assert.Equal(t, 12.5, testutil.ToFloat64(s.windowLatency.WithLabelValues("login", "mean")))
	assert.Equal(t, 30.0, testutil.ToFloat64(s.windowPct.WithLabelValues("login", "90")))
	assert.Equal(t, 7.0, testutil.ToFloat64(s.windowSLA.WithLabelValues("login")))
	assert.Equal(t, 4.0, testutil.ToFloat64(s.activeThreads))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.eventsTotal.WithLabelValues("started")))

	// a second window replaces gauges and accumulates counters
	s.AddMetric(metrics.WindowSnapshot{Label: "login", Count: 3, ReceivedBytes: 50})
	require.NoError(t, s.Flush(context.Background()))

	assert.Equal(t, 3.0, testutil.ToFloat64(s.windowCount.WithLabelValues("login")))
	assert.Equal(t, 13.0, testutil.ToFloat64(s.requestsTotal.WithLabelValues("login")))
	assert.Equal(t, 450.0, testutil.ToFloat64(s.bytesTotal.WithLabelValues("login", "received")))
}

func TestServesMetricsEndpoint(t *testing.T) {
	s := New()
	require.NoError(t, s.Setup(context.Background(), "127.0.0.1:0", ""))
	t.Cleanup(func() { _ = s.Teardown(context.Background()) })
	require.NotEmpty(t, s.Addr())

	s.AddMetric(metrics.WindowSnapshot{Label: "search", Count: 1})
	require.NoError(t, s.Flush(context.Background()))

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `pulse_requests_total{transaction="search"} 1`), string(body))
}

func TestTeardownWithoutServer(t *testing.T) {
	s := New()
	assert.Equal(t, "", s.Addr())
	assert.NoError(t, s.Teardown(context.Background()))
}

func TestSetupBadAddress(t *testing.T) {
	assert.Error(t, New().Setup(context.Background(), "not-an-address:-1", ""))
}
