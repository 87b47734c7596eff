package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/torosent/pulse/internal/logging"
	"github.com/torosent/pulse/internal/threshold"
)

// Defaults for settings the listener reads.
const (
	DefaultFlushInterval      = 5 * time.Second
	DefaultPercentiles        = "99;95;90"
	DefaultSamplerLabelFilter = ".*"
	DefaultMaxLatencySamples  = 10_000
	DefaultShutdownGrace      = 30 * time.Second
	DefaultSinkName           = "console"
)

type Config struct {
	ConfigFile string `mapstructure:"-"`

	FlushInterval         time.Duration     `mapstructure:"flushIntervalSeconds"`
	Percentiles           string            `mapstructure:"percentiles"`
	SamplerLabelFilter    string            `mapstructure:"samplerLabelFilter"`
	SummaryOnly           bool              `mapstructure:"summaryOnly"`
	BusinessSLAThresholds map[string]int64  `mapstructure:"businessSlaThresholds"`
	MaxLatencySamples     int               `mapstructure:"maxLatencySamples"`
	ShutdownGrace         time.Duration     `mapstructure:"shutdownGrace"`
	Application           string            `mapstructure:"application"`
	TestTitle             string            `mapstructure:"testTitle"`
	EventTags             map[string]string `mapstructure:"eventTags"`
	Tags                  map[string]string `mapstructure:"tags"`
	Thresholds            []string          `mapstructure:"thresholds"`

	Sink    SinkConfig    `mapstructure:"sink"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Load    LoadConfig    `mapstructure:"load"`

	LogLevel   string `mapstructure:"logLevel"`
	JSONOutput bool   `mapstructure:"jsonOutput"`
}

// SinkConfig selects the registered sink and how to reach it.
type SinkConfig struct {
	Name       string `mapstructure:"name"`
	Endpoint   string `mapstructure:"endpoint"`
	Credential string `mapstructure:"credential"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured, directly or
// through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to Enabled unless set explicitly.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// LoadConfig drives the built-in load generator.
type LoadConfig struct {
	Targets     []Target          `mapstructure:"targets"`
	Method      string            `mapstructure:"method"`
	Headers     map[string]string `mapstructure:"headers"`
	Concurrency int               `mapstructure:"concurrency"`
	Rate        int               `mapstructure:"rate"`
	Duration    time.Duration     `mapstructure:"duration"`
	Total       int               `mapstructure:"total"`
	Timeout     time.Duration     `mapstructure:"timeout"`
}

// Target is one labelled URL the load generator hits.
type Target struct {
	Label          string `mapstructure:"label"`
	URL            string `mapstructure:"url"`
	Method         string `mapstructure:"method"`
	Body           string `mapstructure:"body"`
	SLAThresholdMs int64  `mapstructure:"slaMs"`
}

// Defaults returns a Config populated with the documented default values.
func Defaults() Config {
	return Config{
		FlushInterval:      DefaultFlushInterval,
		Percentiles:        DefaultPercentiles,
		SamplerLabelFilter: DefaultSamplerLabelFilter,
		MaxLatencySamples:  DefaultMaxLatencySamples,
		ShutdownGrace:      DefaultShutdownGrace,
		Sink:               SinkConfig{Name: DefaultSinkName},
		Tracing:            TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		Load: LoadConfig{
			Method:      "GET",
			Concurrency: 1,
			Timeout:     30 * time.Second,
		},
		LogLevel: "info",
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.FlushInterval <= 0 {
		issues = append(issues, "flushIntervalSeconds must be positive")
	}
	if c.MaxLatencySamples < 0 {
		issues = append(issues, "maxLatencySamples must be non-negative")
	}
	if c.ShutdownGrace < 0 {
		issues = append(issues, "shutdownGrace must be non-negative")
	}
	if _, err := regexp.Compile(c.SamplerLabelFilter); err != nil {
		issues = append(issues, fmt.Sprintf("samplerLabelFilter: %v", err))
	}
	for label, ms := range c.BusinessSLAThresholds {
		if ms < 0 {
			issues = append(issues, fmt.Sprintf("businessSlaThresholds[%s] must be non-negative", label))
		}
	}
	if strings.TrimSpace(c.Sink.Name) == "" {
		issues = append(issues, "sink.name is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, fmt.Sprintf("logLevel: %v", err))
	}
	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}

	issues = append(issues, validateTracing(c.Tracing)...)
	issues = append(issues, validateLoad(c.Load)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol %q must be grpc or http", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing.sample_rate must be between 0 and 1")
	}
	return issues
}

func validateLoad(l LoadConfig) []string {
	var issues []string
	if len(l.Targets) == 0 {
		issues = append(issues, "at least one target is required (use --help for usage information)")
	}
	seen := make(map[string]struct{}, len(l.Targets))
	for i, t := range l.Targets {
		if strings.TrimSpace(t.URL) == "" {
			issues = append(issues, fmt.Sprintf("targets[%d]: url is required", i))
			continue
		}
		u, err := url.Parse(t.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, fmt.Sprintf("targets[%d]: %q must be an absolute http(s) URL", i, t.URL))
		}
		if t.SLAThresholdMs < 0 {
			issues = append(issues, fmt.Sprintf("targets[%d]: slaMs must be non-negative", i))
		}
		if _, dup := seen[t.Label]; dup {
			issues = append(issues, fmt.Sprintf("targets[%d]: duplicate label %q", i, t.Label))
		}
		seen[t.Label] = struct{}{}
	}
	if l.Concurrency < 1 {
		issues = append(issues, "concurrency must be at least 1")
	}
	if l.Rate < 0 {
		issues = append(issues, "rate must be non-negative")
	}
	if l.Total < 0 {
		issues = append(issues, "total must be non-negative")
	}
	if l.Duration < 0 {
		issues = append(issues, "duration must be non-negative")
	}
	if l.Timeout < 0 {
		issues = append(issues, "timeout must be non-negative")
	}
	return issues
}
