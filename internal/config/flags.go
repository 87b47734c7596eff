package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pulse",
		Short:         "Windowed load-test metrics aggregation",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Aggregation
	flags.Int("flush-interval", int(DefaultFlushInterval/time.Second), "Seconds between metric flushes")
	flags.String("percentiles", DefaultPercentiles, "Percentiles to report, ';' separated")
	flags.String("sampler-label-filter", DefaultSamplerLabelFilter, "Regular expression selecting labels tracked individually")
	flags.Bool("summary-only", false, "Only report the cumulated 'all' window")
	flags.String("business-sla", "", "SLA thresholds in ms as a JSON or YAML map, e.g. '{\"login\": 200}'")
	flags.Int("max-latency-samples", DefaultMaxLatencySamples, "Latency samples kept per window for percentiles")
	flags.Duration("shutdown-grace", DefaultShutdownGrace, "How long teardown waits for the scheduler to stop")

	flags.StringArray("threshold", nil, "Pass/fail assertion on the final report, e.g. 'latency:p95 < 500' (repeatable)")

	// Annotations
	flags.String("application", "", "Application name attached to start/end annotations")
	flags.String("test-title", "", "Test title attached to start/end annotations")
	flags.StringToString("event-tag", nil, "Extra annotation tag in key=value form (repeatable)")
	flags.StringToString("tag", nil, "Tag added to every metric in key=value form (repeatable)")

	// Sink
	flags.String("sink", DefaultSinkName, "Metrics sink: httpjson, jsonl, prometheus, redis, websocket, console or memory")
	flags.String("sink-endpoint", "", "Sink endpoint (URL, file path or listen address)")
	flags.String("sink-credential", "", "Sink credential, e.g. a bearer token")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.String("tracing-service-name", "", "service.name resource attribute")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0 and 1")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context into sink requests")

	// Load generation
	flags.StringSlice("target", nil, "Target in label=url form or a bare URL (repeatable)")
	flags.String("method", "GET", "HTTP method to use")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.IntP("concurrency", "c", 1, "Number of concurrent workers")
	flags.IntP("rate", "r", 0, "Requests per second limit (0 means unlimited)")
	flags.DurationP("duration", "d", 0, "How long to run the test (e.g. 30s, 1m)")
	flags.IntP("total", "t", 0, "Total number of requests to send (0 means unlimited)")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")

	// Output
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("json-output", false, "Emit the final report as JSON")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides copies every explicitly set flag onto cfg.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetString(name)
	}
	boolean := func(name string, dst *bool) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetBool(name)
	}
	integer := func(name string, dst *int) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetInt(name)
	}
	duration := func(name string, dst *time.Duration) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetDuration(name)
	}

	if fs.Changed("flush-interval") {
		secs, ferr := fs.GetInt("flush-interval")
		if ferr != nil {
			return ferr
		}
		cfg.FlushInterval = time.Duration(secs) * time.Second
	}
	str("percentiles", &cfg.Percentiles)
	str("sampler-label-filter", &cfg.SamplerLabelFilter)
	boolean("summary-only", &cfg.SummaryOnly)
	integer("max-latency-samples", &cfg.MaxLatencySamples)
	duration("shutdown-grace", &cfg.ShutdownGrace)
	str("application", &cfg.Application)
	str("test-title", &cfg.TestTitle)
	str("sink", &cfg.Sink.Name)
	str("sink-endpoint", &cfg.Sink.Endpoint)
	str("sink-credential", &cfg.Sink.Credential)
	str("tracing-endpoint", &cfg.Tracing.Endpoint)
	str("tracing-protocol", &cfg.Tracing.Protocol)
	boolean("tracing-insecure", &cfg.Tracing.Insecure)
	str("tracing-service-name", &cfg.Tracing.ServiceName)
	str("method", &cfg.Load.Method)
	integer("concurrency", &cfg.Load.Concurrency)
	integer("rate", &cfg.Load.Rate)
	duration("duration", &cfg.Load.Duration)
	integer("total", &cfg.Load.Total)
	duration("timeout", &cfg.Load.Timeout)
	str("log-level", &cfg.LogLevel)
	boolean("json-output", &cfg.JSONOutput)
	if err != nil {
		return err
	}

	if fs.Changed("business-sla") {
		raw, err := fs.GetString("business-sla")
		if err != nil {
			return err
		}
		sla, err := parseSLAThresholds(raw)
		if err != nil {
			return fmt.Errorf("business-sla: %w", err)
		}
		cfg.BusinessSLAThresholds = sla
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	if fs.Changed("threshold") {
		values, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = values
	}
	if fs.Changed("event-tag") {
		tags, err := fs.GetStringToString("event-tag")
		if err != nil {
			return err
		}
		cfg.EventTags = mergeTags(cfg.EventTags, tags)
	}
	if fs.Changed("tag") {
		tags, err := fs.GetStringToString("tag")
		if err != nil {
			return err
		}
		cfg.Tags = mergeTags(cfg.Tags, tags)
	}
	if fs.Changed("header") {
		values, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if cfg.Load.Headers == nil {
			cfg.Load.Headers = map[string]string{}
		}
		for _, raw := range values {
			key, value, ok := strings.Cut(raw, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return fmt.Errorf("header %q must be in key=value form", raw)
			}
			cfg.Load.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	if fs.Changed("target") {
		values, err := fs.GetStringSlice("target")
		if err != nil {
			return err
		}
		targets := make([]Target, 0, len(values))
		for _, raw := range values {
			t, err := parseTargetFlag(raw)
			if err != nil {
				return fmt.Errorf("target: %w", err)
			}
			targets = append(targets, t)
		}
		cfg.Load.Targets = targets
	}
	return nil
}

func mergeTags(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
