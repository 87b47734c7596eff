package metrics

import (
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
)

// PercentileSpec is the immutable set of percentiles reported for every window.
// Keys are canonical labels such as "99" or "99.9".
type PercentileSpec struct {
	values map[string]float64
	labels []string
}

// ParsePercentiles builds a PercentileSpec from a ';' (or ',') separated list.
// Malformed or out of range entries are logged and skipped; duplicates collapse.
func ParsePercentiles(raw string, logger *slog.Logger) PercentileSpec {
	if logger == nil {
		logger = slog.Default()
	}
	spec := PercentileSpec{values: make(map[string]float64)}
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ',' })
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed == "" {
			continue
		}
		value, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(value) || value <= 0 || value > 100 {
			logger.Error("skipping malformed percentile", "percentile", trimmed, "error", err)
			continue
		}
		key := PercentileLabel(value)
		if _, dup := spec.values[key]; dup {
			continue
		}
		spec.values[key] = value
		spec.labels = append(spec.labels, key)
	}
	sort.Slice(spec.labels, func(i, j int) bool {
		return spec.values[spec.labels[i]] > spec.values[spec.labels[j]]
	})
	return spec
}

// PercentileLabel formats a threshold with at most two decimals and no trailing zeros.
func PercentileLabel(value float64) string {
	rounded := math.Round(value*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// Len reports the number of percentile columns.
func (p PercentileSpec) Len() int { return len(p.labels) }

// Labels returns the canonical labels ordered by descending threshold.
func (p PercentileSpec) Labels() []string {
	return append([]string(nil), p.labels...)
}

// Value returns the numeric threshold for a label.
func (p PercentileSpec) Value(label string) (float64, bool) {
	v, ok := p.values[label]
	return v, ok
}

// nearestRank returns the nearest-rank percentile of an ascending slice.
func nearestRank(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(n)/100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
