// Package sink defines the boundary between window aggregation and transport.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/torosent/pulse/internal/metrics"
)

// Sink consumes window snapshots and run annotations. AddMetric and
// AddEventAnnotation only queue; Flush transports everything queued since the
// previous call. A failed Flush drops its batch.
type Sink interface {
	Setup(ctx context.Context, endpoint, credential string) error
	AddMetric(snapshot metrics.WindowSnapshot)
	AddEventAnnotation(annotation metrics.Annotation)
	Flush(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Factory creates an unconfigured Sink.
type Factory func() Sink

// ErrUnknownSink is returned by New for names nobody registered.
var ErrUnknownSink = errors.New("unknown sink")

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a sink available by name. It panics on duplicates, like
// database/sql driver registration.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("sink: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("sink: Register called twice for " + name)
	}
	factories[name] = factory
}

// New instantiates the sink registered under name.
func New(name string) (Sink, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownSink, name, Names())
	}
	return factory(), nil
}

// Names lists registered sinks in sorted order.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
