package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/pulse/internal/metrics"
)

func TestFlushWritesOneLinePerSnapshot(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.SetPlain(true)
	require.NoError(t, s.Setup(context.Background(), "", ""))

	s.AddEventAnnotation(metrics.Annotation{
		Name:      metrics.AnnotationStarted,
		Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Tags:      map[string]string{"testTitle": "smoke", "application": "shop"},
	})
	s.AddMetric(metrics.WindowSnapshot{
		Label: "login", Count: 10, FailureCount: 2, MeanMs: 12.5, MinMs: 3, MaxMs: 40,
		Percentiles: map[string]float64{"90": 30, "99.9": 40, "95": 35},
	})
	s.AddMetric(metrics.WindowSnapshot{Label: metrics.CumulatedLabel, Count: 10})
	require.NoError(t, s.Flush(context.Background()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "== started 10:00:00 application=shop testTitle=smoke", lines[0])
	assert.Contains(t, lines[1], "login")
	assert.Contains(t, lines[1], "n=10 fail=2 mean=12.5ms min=3ms max=40ms p99.9=40ms p95=35ms p90=30ms")
	assert.True(t, strings.HasPrefix(lines[2], "all "))

	buf.Reset()
	require.NoError(t, s.Flush(context.Background()))
	assert.Empty(t, buf.String())
}

func TestSetupRejectsUnknownEndpoint(t *testing.T) {
	assert.Error(t, New(nil).Setup(context.Background(), "/tmp/out.log", ""))
	assert.NoError(t, New(nil).Setup(context.Background(), "STDERR", ""))
}
