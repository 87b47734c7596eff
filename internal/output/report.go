// Package output renders the lifetime summary of a run.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/torosent/pulse/internal/metrics"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, report metrics.Report) {
	stats := report.Overall
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintf(w, "Bytes sent/recv:   %d / %d\n", stats.SentBytes, stats.ReceivedBytes)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %.0fms\n", stats.MinLatencyMs)
	fmt.Fprintf(w, "  Max:             %.0fms\n", stats.MaxLatencyMs)
	fmt.Fprintf(w, "  Mean:            %.2fms\n", stats.MeanLatencyMs)
	fmt.Fprintf(w, "  P50:             %.0fms\n", stats.P50LatencyMs)
	fmt.Fprintf(w, "  P90:             %.0fms\n", stats.P90LatencyMs)
	fmt.Fprintf(w, "  P95:             %.0fms\n", stats.P95LatencyMs)
	fmt.Fprintf(w, "  P99:             %.0fms\n", stats.P99LatencyMs)

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		writeErrors(w, stats.Errors, "  ")
	}

	if len(report.Labels) > 0 {
		fmt.Fprintln(w, "\nLabel Breakdown:")
		for _, label := range report.Labels {
			share := 0.0
			if stats.Total > 0 {
				share = (float64(label.Total) / float64(stats.Total)) * 100
			}
			fmt.Fprintf(
				w,
				"  - %s: total=%d (%.1f%%), successes=%d, failures=%d, rps=%.2f, p99=%.0fms\n",
				label.Label,
				label.Total,
				share,
				label.Successes,
				label.Failures,
				label.RequestsPerSec,
				label.P99LatencyMs,
			)
			if len(label.Errors) > 0 {
				fmt.Fprintln(w, "    Errors:")
				writeErrors(w, label.Errors, "      ")
			}
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report metrics.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func writeErrors(w io.Writer, rows []metrics.ErrorCount, indent string) {
	for _, row := range rows {
		code := row.Code
		if code == "" {
			code = "error"
		}
		fmt.Fprintf(w, "%s%s %s: %d\n", indent, code, row.Message, row.Count)
	}
}
