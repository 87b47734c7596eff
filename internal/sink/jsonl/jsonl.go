// Package jsonl appends flushes to a JSON Lines file. Several pulse
// processes may share one file; writes are serialized with an advisory lock
// on "<path>.lock".
package jsonl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/torosent/pulse/internal/sink"
)

// Name is the registry key of this sink.
const Name = "jsonl"

const lockRetryDelay = 20 * time.Millisecond

func init() {
	sink.Register(Name, func() sink.Sink { return New() })
}

// Line is one record of the output file.
type Line struct {
	Kind   string             `json:"kind"`
	Metric *sink.MetricRecord `json:"metric,omitempty"`
	Event  *sink.EventRecord  `json:"event,omitempty"`
}

// Sink writes one line per snapshot and per annotation.
type Sink struct {
	sink.Buffer

	mu   sync.Mutex
	path string
	file *os.File
	lock *flock.Flock
}

func New() *Sink { return &Sink{} }

// Setup opens endpoint for appending, creating it if needed.
func (s *Sink) Setup(_ context.Context, endpoint, _ string) error {
	path := strings.TrimSpace(endpoint)
	if path == "" {
		return errors.New("jsonl: endpoint must be a file path")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("jsonl: open: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	s.file = f
	s.lock = flock.New(path + ".lock")
	return nil
}

// Flush appends everything queued under the file lock. Error detail is kept.
func (s *Sink) Flush(ctx context.Context) error {
	snaps, annotations := s.Drain()
	if len(snaps) == 0 && len(annotations) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, a := range annotations {
		rec := sink.NewEventRecord(a)
		if err := enc.Encode(Line{Kind: "event", Event: &rec}); err != nil {
			return fmt.Errorf("jsonl: encode event: %w", err)
		}
	}
	for _, snap := range snaps {
		rec := sink.NewMetricRecord(snap, true)
		if err := enc.Encode(Line{Kind: "metric", Metric: &rec}); err != nil {
			return fmt.Errorf("jsonl: encode metric: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("jsonl: sink is not set up")
	}
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("jsonl: lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("jsonl: lock %s: not acquired", s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()

	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("jsonl: write: %w", err)
	}
	return nil
}

// Teardown closes the file. The lock file is left in place for other writers.
func (s *Sink) Teardown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if s.lock != nil {
		_ = s.lock.Close()
	}
	if err != nil {
		return fmt.Errorf("jsonl: close: %w", err)
	}
	return nil
}
