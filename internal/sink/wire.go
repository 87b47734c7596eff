package sink

import (
	"maps"

	"github.com/torosent/pulse/internal/metrics"
)

// MetricRecord is the wire form of one window snapshot. Timestamps are Unix
// milliseconds.
type MetricRecord struct {
	Transaction    string             `json:"transaction"`
	TransactionURL string             `json:"transactionUrl"`
	Count          int64              `json:"count"`
	FailCount      int64              `json:"failCount"`
	SentBytes      int64              `json:"sentBytes"`
	ReceivedBytes  int64              `json:"receivedBytes"`
	Rt             float64            `json:"rt"`
	MinRt          int64              `json:"minRt"`
	MaxRt          int64              `json:"maxRt"`
	SumRt          int64              `json:"sumRt"`
	SaCount        int64              `json:"saCount"`
	ActiveThreads  int64              `json:"activeThreads"`
	Percentiles    map[string]float64 `json:"percentiles"`
	Tags           map[string]string  `json:"tags"`
	ErrorInfos     []ErrorInfo        `json:"errorInfos"`
	Timestamp      int64              `json:"timestamp"`
}

// ErrorInfo is one failure class inside a MetricRecord.
type ErrorInfo struct {
	ResponseCode    string `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	Count           int64  `json:"count,omitempty"`
}

// EventRecord is the wire form of an annotation.
type EventRecord struct {
	EventName string            `json:"eventName"`
	Tags      map[string]string `json:"tags"`
	Timestamp int64             `json:"timestamp"`
}

// Document is one flush worth of records.
type Document struct {
	Metrics []MetricRecord `json:"metrics"`
	Events  []EventRecord  `json:"events"`
}

// NewMetricRecord converts a snapshot. Error detail is copied only when
// withErrors is set; otherwise ErrorInfos is an empty list.
func NewMetricRecord(s metrics.WindowSnapshot, withErrors bool) MetricRecord {
	rec := MetricRecord{
		Transaction:    s.Label,
		TransactionURL: s.URL,
		Count:          s.Count,
		FailCount:      s.FailureCount,
		SentBytes:      s.SentBytes,
		ReceivedBytes:  s.ReceivedBytes,
		Rt:             s.MeanMs,
		MinRt:          s.MinMs,
		MaxRt:          s.MaxMs,
		SumRt:          s.SumMs,
		SaCount:        s.SLASuccessCount,
		ActiveThreads:  s.ActiveThreads,
		Percentiles:    maps.Clone(s.Percentiles),
		Tags:           maps.Clone(s.Tags),
		ErrorInfos:     []ErrorInfo{},
		Timestamp:      s.Timestamp.UnixMilli(),
	}
	if rec.Percentiles == nil {
		rec.Percentiles = map[string]float64{}
	}
	if rec.Tags == nil {
		rec.Tags = map[string]string{}
	}
	if withErrors {
		for _, e := range s.Errors {
			rec.ErrorInfos = append(rec.ErrorInfos, ErrorInfo{ResponseCode: e.Code, ResponseMessage: e.Message, Count: e.Count})
		}
	}
	return rec
}

// NewEventRecord converts an annotation.
func NewEventRecord(a metrics.Annotation) EventRecord {
	tags := maps.Clone(a.Tags)
	if tags == nil {
		tags = map[string]string{}
	}
	return EventRecord{EventName: string(a.Name), Tags: tags, Timestamp: a.Timestamp.UnixMilli()}
}

// NewDocument converts a drained batch. Both lists are non-nil.
func NewDocument(snaps []metrics.WindowSnapshot, annotations []metrics.Annotation, withErrors bool) Document {
	doc := Document{
		Metrics: make([]MetricRecord, 0, len(snaps)),
		Events:  make([]EventRecord, 0, len(annotations)),
	}
	for _, s := range snaps {
		doc.Metrics = append(doc.Metrics, NewMetricRecord(s, withErrors))
	}
	for _, a := range annotations {
		doc.Events = append(doc.Events, NewEventRecord(a))
	}
	return doc
}
