package sink

import (
	"context"
	"sync"

	"github.com/torosent/pulse/internal/metrics"
)

func init() {
	Register("memory", func() Sink { return NewMemory() })
}

// Batch is what one Flush of a Memory sink delivered.
type Batch struct {
	Metrics     []metrics.WindowSnapshot
	Annotations []metrics.Annotation
}

// Memory keeps every flushed batch in memory. It is meant for tests and dry runs.
type Memory struct {
	Buffer

	mu       sync.Mutex
	batches  []Batch
	endpoint string
	setup    bool
	torndown bool
	flushErr error
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Setup(_ context.Context, endpoint, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoint = endpoint
	m.setup = true
	return nil
}

// Flush records the queued batch. After SetFlushError the batch is dropped
// and the error returned, mimicking a failed transport.
func (m *Memory) Flush(context.Context) error {
	snaps, annotations := m.Drain()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flushErr != nil {
		return m.flushErr
	}
	m.batches = append(m.batches, Batch{Metrics: snaps, Annotations: annotations})
	return nil
}

func (m *Memory) Teardown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.torndown = true
	return nil
}

// Batches returns a copy of every delivered batch.
func (m *Memory) Batches() []Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Batch(nil), m.batches...)
}

// Metrics flattens every delivered snapshot.
func (m *Memory) Metrics() []metrics.WindowSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []metrics.WindowSnapshot
	for _, b := range m.batches {
		out = append(out, b.Metrics...)
	}
	return out
}

// Annotations flattens every delivered annotation.
func (m *Memory) Annotations() []metrics.Annotation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []metrics.Annotation
	for _, b := range m.batches {
		out = append(out, b.Annotations...)
	}
	return out
}

// SetFlushError makes subsequent flushes fail with err.
func (m *Memory) SetFlushError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushErr = err
}

// State reports the endpoint and lifecycle flags.
func (m *Memory) State() (endpoint string, setup, torndown bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint, m.setup, m.torndown
}
