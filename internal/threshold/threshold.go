// Package threshold evaluates pass/fail assertions against the lifetime
// summary of a run.
package threshold

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/pulse/internal/metrics"
)

// ErrFailed is returned by Check when at least one threshold did not hold.
var ErrFailed = errors.New("thresholds failed")

// Threshold is one assertion such as "latency:p95 < 500".
type Threshold struct {
	Metric    string  // latency, failures or requests
	Label     string  // empty means the whole run
	Aggregate string  // p50, p90, p95, p99, avg, min, max, rate, count
	Operator  string  // <, <=, >, >=, ==
	Value     float64 // threshold value
	Raw       string  // original text for display
}

// Result is the outcome of evaluating one threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// metric[label]:aggregate operator value
var pattern = regexp.MustCompile(`^([a-z_]+)(?:\[([^\]]+)\])?:([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

var (
	validAggregates = map[string][]string{
		"latency":  {"p50", "p90", "p95", "p99", "avg", "min", "max"},
		"failures": {"rate", "count"},
		"requests": {"rate", "count"},
	}
	validOperators = []string{"<", "<=", ">", ">=", "=="}
)

// Parse parses a threshold string. Supported forms:
//   - "latency:p95 < 500"          latency percentile in ms
//   - "latency[login]:avg < 200"   the same, scoped to one label
//   - "failures:rate < 0.01"       failure ratio
//   - "failures:count < 10"        failure count
//   - "requests:rate > 100"        requests per second
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, errors.New("empty threshold string")
	}
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric[label]:aggregate operator value, e.g. 'latency:p95 < 500')", s)
	}
	metric, label, aggregate, operator, raw := m[1], strings.TrimSpace(m[2]), m[3], m[4], m[5]

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %w", raw, err)
	}
	aggregates, ok := validAggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: latency, failures, requests)", metric)
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if !contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Label:     label,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses every string and reports all malformed ones at once.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}
	result := make([]Threshold, 0, len(thresholds))
	var problems []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return result, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Evaluate checks every threshold against report.
func Evaluate(thresholds []Threshold, report metrics.Report) []Result {
	if len(thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		results = append(results, evaluateOne(t, report))
	}
	return results
}

// Check evaluates thresholds and wraps ErrFailed when any of them fails.
func Check(thresholds []Threshold, report metrics.Report) ([]Result, error) {
	results := Evaluate(thresholds, report)
	var failed []string
	for _, r := range results {
		if !r.Pass {
			failed = append(failed, r.Threshold.Raw)
		}
	}
	if len(failed) > 0 {
		return results, fmt.Errorf("%w: %s", ErrFailed, strings.Join(failed, "; "))
	}
	return results, nil
}

func evaluateOne(t Threshold, report metrics.Report) Result {
	actual, err := extract(t, report)
	if err != nil {
		return Result{Threshold: t, Message: fmt.Sprintf("✗ %s: %v", t.Raw, err)}
	}
	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

func statsFor(label string, report metrics.Report) (metrics.SummaryStats, error) {
	if label == "" || label == metrics.CumulatedLabel {
		return report.Overall, nil
	}
	for _, s := range report.Labels {
		if s.Label == label {
			return s, nil
		}
	}
	return metrics.SummaryStats{}, fmt.Errorf("no requests recorded for label %q", label)
}

func extract(t Threshold, report metrics.Report) (float64, error) {
	stats, err := statsFor(t.Label, report)
	if err != nil {
		return 0, err
	}
	switch t.Metric + ":" + t.Aggregate {
	case "latency:p50":
		return stats.P50LatencyMs, nil
	case "latency:p90":
		return stats.P90LatencyMs, nil
	case "latency:p95":
		return stats.P95LatencyMs, nil
	case "latency:p99":
		return stats.P99LatencyMs, nil
	case "latency:avg":
		return stats.MeanLatencyMs, nil
	case "latency:min":
		return stats.MinLatencyMs, nil
	case "latency:max":
		return stats.MaxLatencyMs, nil
	case "failures:count":
		return float64(stats.Failures), nil
	case "failures:rate":
		if stats.Total == 0 {
			return 0, nil
		}
		return float64(stats.Failures) / float64(stats.Total), nil
	case "requests:count":
		return float64(stats.Total), nil
	case "requests:rate":
		return stats.RequestsPerSec, nil
	default:
		return 0, fmt.Errorf("unsupported threshold %s:%s", t.Metric, t.Aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
