package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/pulse/internal/metrics"
	"github.com/torosent/pulse/internal/sink"
)

func TestStreamEntries(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_000)
	doc := sink.NewDocument(
		[]metrics.WindowSnapshot{{Label: "login", Count: 2, Timestamp: ts}, {Label: metrics.CumulatedLabel, Count: 2, Timestamp: ts}},
		[]metrics.Annotation{{Name: metrics.AnnotationEnded, Timestamp: ts}},
		true,
	)

	entries, err := streamEntries("load", doc)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "load:events", entries[0].Stream)
	assert.Equal(t, "ended", entries[0].Values.(map[string]interface{})["event"])

	for i, wantTx := range []string{"login", metrics.CumulatedLabel} {
		e := entries[i+1]
		assert.Equal(t, "load:metrics", e.Stream)
		assert.True(t, e.Approx)
		assert.EqualValues(t, streamMaxLen, e.MaxLen)

		values := e.Values.(map[string]interface{})
		assert.Equal(t, wantTx, values["transaction"])
		var rec sink.MetricRecord
		require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &rec))
		assert.Equal(t, wantTx, rec.Transaction)
		assert.EqualValues(t, 2, rec.Count)
	}
}

func TestSplitPrefix(t *testing.T) {
	tests := []struct {
		in         string
		wantURL    string
		wantPrefix string
	}{
		{"redis://localhost:6379/0", "redis://localhost:6379/0", ""},
		{"redis://localhost:6379/1?prefix=nightly", "redis://localhost:6379/1", "nightly"},
		{"redis://localhost:6379?prefix=a&dial_timeout=3s", "redis://localhost:6379?dial_timeout=3s", "a"},
	}
	for _, tt := range tests {
		gotURL, gotPrefix, err := splitPrefix(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.wantURL, gotURL)
		assert.Equal(t, tt.wantPrefix, gotPrefix)
	}
}

func TestSetupRejectsBadScheme(t *testing.T) {
	err := New().Setup(context.Background(), "http://localhost:6379", "")
	assert.Error(t, err)
}

func TestFlushBeforeSetup(t *testing.T) {
	s := New()
	assert.NoError(t, s.Flush(context.Background()))
	s.AddMetric(metrics.WindowSnapshot{Label: "a"})
	assert.Error(t, s.Flush(context.Background()))
	assert.NoError(t, s.Teardown(context.Background()))
}
