package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt64(t *testing.T) {
	tests := []struct {
		input   interface{}
		want    int64
		wantErr bool
	}{
		{123, 123, false},
		{"456", 456, false},
		{" 250.7 ", 250, false},
		{int64(789), 789, false},
		{float64(10.0), 10, false},
		{uint64(1 << 63), 0, true},
		{"fast", 0, true},
		{[]int{1}, 0, true},
		{nil, 0, false},
	}

	for _, tt := range tests {
		got, err := asInt64(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("asInt64(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("asInt64(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{"5", 5 * time.Second},
		{10, 10 * time.Second},
		{1.5, 1500 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseSLAThresholds(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    map[string]int64
		wantErr bool
	}{
		{name: "empty string", input: "  ", want: nil},
		{name: "json string", input: `{"Login": 200, "Search_rt": 350}`, want: map[string]int64{"Login": 200, "Search_rt": 350}},
		{name: "yaml string", input: "checkout: 500\ncart: \"80\"", want: map[string]int64{"checkout": 500, "cart": 80}},
		{name: "map", input: map[string]interface{}{"a": 1, "b": "2"}, want: map[string]int64{"a": 1, "b": 2}},
		{name: "bad document", input: "{not json", wantErr: true},
		{name: "bad value", input: `{"a": "slow"}`, wantErr: true},
		{name: "bad type", input: 42, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSLAThresholds(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSLAThresholds() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseSLAThresholds() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("threshold[%s] = %d, want %d", k, got[k], v)
				}
			}
		})
	}
}

func TestParseTargetFlag(t *testing.T) {
	tests := []struct {
		in        string
		wantLabel string
		wantURL   string
	}{
		{"login=https://example.com/login", "login", "https://example.com/login"},
		{"https://example.com/search?q=a=b", "", "https://example.com/search?q=a=b"},
		{" home = http://localhost:8080/ ", "home", "http://localhost:8080/"},
	}
	for _, tt := range tests {
		got, err := parseTargetFlag(tt.in)
		if err != nil {
			t.Fatalf("parseTargetFlag(%q) error = %v", tt.in, err)
		}
		if got.Label != tt.wantLabel || got.URL != tt.wantURL {
			t.Errorf("parseTargetFlag(%q) = %+v, want label %q url %q", tt.in, got, tt.wantLabel, tt.wantURL)
		}
	}
	if _, err := parseTargetFlag(" "); err == nil {
		t.Error("parseTargetFlag(empty) should fail")
	}
}

func TestDefaultLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/api/users?id=1", "/api/users"},
		{"https://example.com", "example.com"},
		{"https://example.com/", "example.com/"},
		{"", "target-3"},
	}
	for _, tt := range tests {
		if got := defaultLabel(tt.url, 3); got != tt.want {
			t.Errorf("defaultLabel(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	// viper hands over lower-cased keys
	settings := map[string]interface{}{
		"flushintervalseconds": 10,
		"percentiles":          "99.9;50",
		"samplersregex":        "^api_",
		"summaryonly":          true,
		"businessmap":          `{"api_login": 150}`,
		"shutdowngrace":        "5s",
		"sink": map[string]interface{}{
			"name":     "httpjson",
			"endpoint": "http://collector/api",
			"token":    "secret",
		},
		"tracing": map[string]interface{}{
			"endpoint":    "localhost:4318",
			"protocol":    "HTTP",
			"sample_rate": 0.5,
			"propagate":   false,
		},
		"load": map[string]interface{}{
			"concurrency": 4,
			"timeout":     "2s",
			"targets": []interface{}{
				map[string]interface{}{"label": "api_login", "url": "http://svc/login", "slams": 90},
				"search=http://svc/search",
			},
		},
	}

	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.FlushInterval != 10*time.Second {
		t.Errorf("FlushInterval = %v, want 10s", cfg.FlushInterval)
	}
	if cfg.Percentiles != "99.9;50" {
		t.Errorf("Percentiles = %q", cfg.Percentiles)
	}
	if cfg.SamplerLabelFilter != "^api_" {
		t.Errorf("SamplerLabelFilter = %q, want ^api_", cfg.SamplerLabelFilter)
	}
	if !cfg.SummaryOnly {
		t.Error("SummaryOnly = false, want true")
	}
	if cfg.BusinessSLAThresholds["api_login"] != 150 {
		t.Errorf("BusinessSLAThresholds = %v", cfg.BusinessSLAThresholds)
	}
	if cfg.ShutdownGrace != 5*time.Second {
		t.Errorf("ShutdownGrace = %v, want 5s", cfg.ShutdownGrace)
	}
	if cfg.Sink.Name != "httpjson" || cfg.Sink.Endpoint != "http://collector/api" || cfg.Sink.Credential != "secret" {
		t.Errorf("Sink = %+v", cfg.Sink)
	}
	if cfg.Tracing.Protocol != "http" || cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.Propagate == nil || *cfg.Tracing.Propagate {
		t.Errorf("Tracing.Propagate = %v, want explicit false", cfg.Tracing.Propagate)
	}
	if cfg.Load.Concurrency != 4 || cfg.Load.Timeout != 2*time.Second {
		t.Errorf("Load = %+v", cfg.Load)
	}
	if len(cfg.Load.Targets) != 2 {
		t.Fatalf("len(Targets) = %d, want 2", len(cfg.Load.Targets))
	}
	if cfg.Load.Targets[0].SLAThresholdMs != 90 {
		t.Errorf("Targets[0].SLAThresholdMs = %d, want 90", cfg.Load.Targets[0].SLAThresholdMs)
	}
	if cfg.Load.Targets[1].Label != "search" {
		t.Errorf("Targets[1].Label = %q, want search", cfg.Load.Targets[1].Label)
	}
}

func TestApplyConfigSettingsInfluxAliases(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"influxdburl":   " http://metrics.local/write ",
		"influxdbtoken": "tok",
	}
	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}
	if cfg.Sink.Name != "httpjson" {
		t.Errorf("Sink.Name = %q, want httpjson", cfg.Sink.Name)
	}
	if cfg.Sink.Endpoint != "http://metrics.local/write" {
		t.Errorf("Sink.Endpoint = %q", cfg.Sink.Endpoint)
	}
	if cfg.Sink.Credential != "tok" {
		t.Errorf("Sink.Credential = %q, want tok", cfg.Sink.Credential)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()
	cfg.Tags = map[string]string{"region": "eu"}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--flush-interval=2",
		"--concurrency=5",
		"--method=PUT",
		"--header=X-Test=123",
		"--tag=pod=7",
		"--business-sla={\"Login\": 120}",
		"--tracing-propagate",
		"--target=login=http://localhost/login",
		"--threshold=latency:p95 < 500",
		"--threshold=failures:rate < 0.01",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.FlushInterval != 2*time.Second {
		t.Errorf("FlushInterval = %v, want 2s", cfg.FlushInterval)
	}
	if cfg.Load.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Load.Concurrency)
	}
	if len(cfg.Thresholds) != 2 || cfg.Thresholds[0] != "latency:p95 < 500" {
		t.Errorf("Thresholds = %v, want both assertions kept whole", cfg.Thresholds)
	}
	if cfg.Load.Method != "PUT" {
		t.Errorf("Method = %q, want PUT", cfg.Load.Method)
	}
	if cfg.Load.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Load.Headers["X-Test"])
	}
	if cfg.Tags["region"] != "eu" || cfg.Tags["pod"] != "7" {
		t.Errorf("Tags = %v, want region and pod merged", cfg.Tags)
	}
	if cfg.BusinessSLAThresholds["Login"] != 120 {
		t.Errorf("BusinessSLAThresholds = %v", cfg.BusinessSLAThresholds)
	}
	if !cfg.Tracing.ShouldPropagate() {
		t.Error("ShouldPropagate() = false, want true")
	}
	if len(cfg.Load.Targets) != 1 || cfg.Load.Targets[0].Label != "login" {
		t.Errorf("Targets = %+v", cfg.Load.Targets)
	}
	// untouched flags keep defaults
	if cfg.Percentiles != DefaultPercentiles {
		t.Errorf("Percentiles = %q, want default", cfg.Percentiles)
	}
}

func TestApplyFlagOverridesBadHeader(t *testing.T) {
	cfg := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{"--header=novalue"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := applyFlagOverrides(&cfg, fs); err == nil {
		t.Fatal("applyFlagOverrides() should reject a header without '='")
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--target=http://example.com/health",
		"--concurrency=2",
		"--sink=JSONL",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Load.Targets[0].Label != "/health" {
		t.Errorf("Label = %q, want /health", cfg.Load.Targets[0].Label)
	}
	if cfg.Load.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Load.Concurrency)
	}
	if cfg.Sink.Name != "jsonl" {
		t.Errorf("Sink.Name = %q, want jsonl", cfg.Sink.Name)
	}
}

func TestApplyConfigSettingsThresholds(t *testing.T) {
	cfg := Defaults()
	if err := applyConfigSettings(&cfg, map[string]interface{}{
		"thresholds": []interface{}{"latency:p99 < 800", "requests:rate > 10"},
	}); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}
	if len(cfg.Thresholds) != 2 || cfg.Thresholds[1] != "requests:rate > 10" {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}

	cfg = Defaults()
	if err := applyConfigSettings(&cfg, map[string]interface{}{"thresholds": "latency:max < 2000"}); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v, want a single entry", cfg.Thresholds)
	}
}
