package sink

import (
	"sync"

	"github.com/torosent/pulse/internal/metrics"
)

// Buffer queues snapshots and annotations between flushes. Sinks embed it.
type Buffer struct {
	mu          sync.Mutex
	metrics     []metrics.WindowSnapshot
	annotations []metrics.Annotation
}

// AddMetric queues a snapshot.
func (b *Buffer) AddMetric(s metrics.WindowSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = append(b.metrics, s)
}

// AddEventAnnotation queues an annotation.
func (b *Buffer) AddEventAnnotation(a metrics.Annotation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.annotations = append(b.annotations, a)
}

// Drain returns and clears everything queued.
func (b *Buffer) Drain() ([]metrics.WindowSnapshot, []metrics.Annotation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, a := b.metrics, b.annotations
	b.metrics, b.annotations = nil, nil
	return m, a
}

// Pending reports the queued snapshot and annotation counts.
func (b *Buffer) Pending() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.metrics), len(b.annotations)
}
