// Package console prints one line per window snapshot to a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/torosent/pulse/internal/metrics"
	"github.com/torosent/pulse/internal/sink"
)

// Name is the registry key of this sink.
const Name = "console"

func init() {
	sink.Register(Name, func() sink.Sink { return New(os.Stdout) })
}

type palette struct {
	label   *color.Color
	ok      *color.Color
	failed  *color.Color
	event   *color.Color
	summary *color.Color
}

func newPalette(plain bool) palette {
	p := palette{
		label:   color.New(color.FgCyan, color.Bold),
		ok:      color.New(color.FgGreen),
		failed:  color.New(color.FgRed, color.Bold),
		event:   color.New(color.FgMagenta),
		summary: color.New(color.FgYellow, color.Bold),
	}
	if plain {
		for _, c := range []*color.Color{p.label, p.ok, p.failed, p.event, p.summary} {
			c.DisableColor()
		}
	}
	return p
}

// Sink writes to an io.Writer. Colours follow color.NoColor unless
// SetPlain is called.
type Sink struct {
	sink.Buffer

	mu     sync.Mutex
	out    io.Writer
	colors palette
}

func New(out io.Writer) *Sink {
	if out == nil {
		out = os.Stdout
	}
	return &Sink{out: out, colors: newPalette(color.NoColor)}
}

// SetPlain turns colour output off or on.
func (s *Sink) SetPlain(plain bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colors = newPalette(plain)
}

// Setup accepts "", "stdout" or "stderr" as endpoint.
func (s *Sink) Setup(_ context.Context, endpoint, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(endpoint)) {
	case "":
	case "stdout":
		s.out = os.Stdout
	case "stderr":
		s.out = os.Stderr
	default:
		return fmt.Errorf("console: endpoint %q must be stdout or stderr", endpoint)
	}
	return nil
}

func (s *Sink) Flush(context.Context) error {
	snaps, annotations := s.Drain()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range annotations {
		if _, err := fmt.Fprintln(s.out, s.formatAnnotation(a)); err != nil {
			return fmt.Errorf("console: %w", err)
		}
	}
	for _, snap := range snaps {
		if _, err := fmt.Fprintln(s.out, s.formatSnapshot(snap)); err != nil {
			return fmt.Errorf("console: %w", err)
		}
	}
	return nil
}

func (s *Sink) Teardown(context.Context) error { return nil }

func (s *Sink) formatAnnotation(a metrics.Annotation) string {
	var b strings.Builder
	b.WriteString(s.colors.event.Sprintf("== %s", a.Name))
	fmt.Fprintf(&b, " %s", a.Timestamp.Format("15:04:05"))
	for _, k := range sortedKeys(a.Tags) {
		fmt.Fprintf(&b, " %s=%s", k, a.Tags[k])
	}
	return b.String()
}

func (s *Sink) formatSnapshot(snap metrics.WindowSnapshot) string {
	var b strings.Builder
	name := s.colors.label
	if snap.Label == metrics.CumulatedLabel {
		name = s.colors.summary
	}
	b.WriteString(name.Sprintf("%-20s", snap.Label))
	fmt.Fprintf(&b, " n=%d", snap.Count)
	if snap.FailureCount > 0 {
		b.WriteString(s.colors.failed.Sprintf(" fail=%d", snap.FailureCount))
	} else {
		b.WriteString(s.colors.ok.Sprint(" fail=0"))
	}
	fmt.Fprintf(&b, " mean=%.1fms min=%dms max=%dms", snap.MeanMs, snap.MinMs, snap.MaxMs)
	for _, k := range sortedPercentiles(snap.Percentiles) {
		fmt.Fprintf(&b, " p%s=%.0fms", k, snap.Percentiles[k])
	}
	if snap.SLASuccessCount > 0 {
		fmt.Fprintf(&b, " sla=%d", snap.SLASuccessCount)
	}
	fmt.Fprintf(&b, " threads=%d", snap.ActiveThreads)
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortedPercentiles orders by threshold, highest first.
func sortedPercentiles(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.ParseFloat(keys[i], 64)
		b, _ := strconv.ParseFloat(keys[j], 64)
		return a > b
	})
	return keys
}
