package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/torosent/pulse/internal/metrics"
)

func TestPrintReportBasic(t *testing.T) {
	report := metrics.Report{
		Overall: metrics.SummaryStats{
			Label:          metrics.CumulatedLabel,
			Total:          100,
			Successes:      95,
			Failures:       5,
			RequestsPerSec: 50.0,
			Duration:       2 * time.Second,
			Errors:         []metrics.ErrorCount{{Code: "503", Message: "Service Unavailable", Count: 5}},
		},
	}

	var buf bytes.Buffer
	PrintReport(&buf, report)

	output := buf.String()
	for _, want := range []string{"Total Requests:    100", "Successful:        95", "Duration:          2s", "503 Service Unavailable: 5"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Label Breakdown") {
		t.Errorf("unexpected label breakdown without labels")
	}
}

func TestPrintReportIncludesLabelBreakdown(t *testing.T) {
	report := sampleReport()
	report.Labels[0].Errors = []metrics.ErrorCount{{Code: "timeout", Message: "Context deadline exceeded", Count: 1}}

	var buf bytes.Buffer
	PrintReport(&buf, report)

	output := buf.String()
	if !strings.Contains(output, "Label Breakdown:") {
		t.Fatalf("Expected Label Breakdown section in output")
	}
	if !strings.Contains(output, "- login: total=8 (80.0%)") {
		t.Errorf("Expected login share in output:\n%s", output)
	}
	if !strings.Contains(output, "timeout Context deadline exceeded: 1") {
		t.Errorf("Expected label errors in output:\n%s", output)
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintJSONReport failed: %v", err)
	}

	var decoded struct {
		Overall struct {
			Total int64 `json:"total"`
		} `json:"overall"`
		Labels []struct {
			Label string `json:"label"`
		} `json:"labels"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Overall.Total != 10 || len(decoded.Labels) != 2 || decoded.Labels[0].Label != "login" {
		t.Errorf("unexpected report: %+v", decoded)
	}
}
