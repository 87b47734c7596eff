package sink_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/pulse/internal/metrics"
	"github.com/torosent/pulse/internal/sink"
)

func TestNewDocumentShape(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	snap := metrics.WindowSnapshot{
		Label:           "login",
		URL:             "http://svc/login",
		Timestamp:       ts,
		Count:           4,
		FailureCount:    1,
		MinMs:           10,
		MaxMs:           40,
		MeanMs:          25,
		SumMs:           100,
		SLASuccessCount: 2,
		Percentiles:     map[string]float64{"99": 40},
		Errors:          []metrics.ErrorCount{{Code: "500", Message: "Internal Server Error", Count: 1}},
		ActiveThreads:   3,
	}
	ann := metrics.Annotation{Name: metrics.AnnotationStarted, Timestamp: ts}

	doc := sink.NewDocument([]metrics.WindowSnapshot{snap}, []metrics.Annotation{ann}, false)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded map[string][]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded["metrics"], 1)
	require.Len(t, decoded["events"], 1)

	m := decoded["metrics"][0]
	assert.Equal(t, "login", m["transaction"])
	assert.Equal(t, "http://svc/login", m["transactionUrl"])
	assert.Equal(t, float64(2), m["saCount"])
	assert.Equal(t, float64(1_700_000_000_123), m["timestamp"])
	assert.Equal(t, []any{}, m["errorInfos"])
	assert.Equal(t, map[string]any{}, m["tags"])

	e := decoded["events"][0]
	assert.Equal(t, "started", e["eventName"])
	assert.Equal(t, map[string]any{}, e["tags"])
}

func TestNewMetricRecordWithErrors(t *testing.T) {
	snap := metrics.WindowSnapshot{
		Label:  "a",
		Errors: []metrics.ErrorCount{{Code: "timeout", Message: "Network timeout", Count: 2}},
	}
	rec := sink.NewMetricRecord(snap, true)
	require.Len(t, rec.ErrorInfos, 1)
	assert.Equal(t, sink.ErrorInfo{ResponseCode: "timeout", ResponseMessage: "Network timeout", Count: 2}, rec.ErrorInfos[0])
}

func TestNewDocumentEmpty(t *testing.T) {
	raw, err := json.Marshal(sink.NewDocument(nil, nil, false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"metrics":[],"events":[]}`, string(raw))
}
