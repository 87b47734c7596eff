package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and the optional config file. Flags
// override file values.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
			return nil, err
		}
		if err := applyCaseSensitiveMaps(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	normalize(&cfg)
	return &cfg, nil
}

func normalize(cfg *Config) {
	cfg.Load.Method = strings.ToUpper(strings.TrimSpace(cfg.Load.Method))
	if cfg.Load.Method == "" {
		cfg.Load.Method = http.MethodGet
	}
	for i := range cfg.Load.Targets {
		t := &cfg.Load.Targets[i]
		t.URL = strings.TrimSpace(t.URL)
		t.Method = strings.ToUpper(strings.TrimSpace(t.Method))
		if t.Label == "" {
			t.Label = defaultLabel(t.URL, i)
		}
	}
	if cfg.Load.Headers != nil {
		canonical := make(map[string]string, len(cfg.Load.Headers))
		for k, v := range cfg.Load.Headers {
			canonical[http.CanonicalHeaderKey(k)] = v
		}
		cfg.Load.Headers = canonical
	}
	cfg.Sink.Name = strings.ToLower(strings.TrimSpace(cfg.Sink.Name))
}

// applyConfigSettings applies viper settings to cfg. Viper folds keys to
// lower case, so every lookup lists the documented camelCase name plus the
// aliases accepted for older listener configs.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "flushIntervalSeconds", "flush_interval_seconds", "flushInterval"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("flushIntervalSeconds: %w", err)
		}
		cfg.FlushInterval = val
	}
	if raw, ok := lookupSetting(settings, "percentiles"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("percentiles: %w", err)
		}
		cfg.Percentiles = val
	}
	if raw, ok := lookupSetting(settings, "samplerLabelFilter", "samplersRegex"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("samplerLabelFilter: %w", err)
		}
		cfg.SamplerLabelFilter = val
	}
	if raw, ok := lookupSetting(settings, "summaryOnly"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("summaryOnly: %w", err)
		}
		cfg.SummaryOnly = val
	}
	if raw, ok := lookupSetting(settings, "businessSlaThresholds", "businessMap"); ok {
		val, err := parseSLAThresholds(raw)
		if err != nil {
			return fmt.Errorf("businessSlaThresholds: %w", err)
		}
		cfg.BusinessSLAThresholds = val
	}
	if raw, ok := lookupSetting(settings, "maxLatencySamples"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("maxLatencySamples: %w", err)
		}
		cfg.MaxLatencySamples = val
	}
	if raw, ok := lookupSetting(settings, "shutdownGrace"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("shutdownGrace: %w", err)
		}
		cfg.ShutdownGrace = val
	}
	if raw, ok := lookupSetting(settings, "application"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("application: %w", err)
		}
		cfg.Application = val
	}
	if raw, ok := lookupSetting(settings, "testTitle"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("testTitle: %w", err)
		}
		cfg.TestTitle = val
	}
	if raw, ok := lookupSetting(settings, "eventTags"); ok {
		val, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("eventTags: %w", err)
		}
		cfg.EventTags = val
	}
	if raw, ok := lookupSetting(settings, "tags"); ok {
		val, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		cfg.Tags = val
	}
	if raw, ok := lookupSetting(settings, "logLevel", "log_level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
		cfg.LogLevel = val
	}
	if raw, ok := lookupSetting(settings, "jsonOutput", "json_output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	// Flat keys kept from the listener's original parameter names.
	if raw, ok := lookupSetting(settings, "influxdbUrl"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("influxdbUrl: %w", err)
		}
		cfg.Sink.Name = "httpjson"
		cfg.Sink.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "influxdbToken"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("influxdbToken: %w", err)
		}
		cfg.Sink.Credential = val
	}

	if raw, ok := lookupSetting(settings, "sink"); ok {
		if err := applySinkSettings(&cfg.Sink, raw); err != nil {
			return fmt.Errorf("sink: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "load"); ok {
		if err := applyLoadSettings(&cfg.Load, raw); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}
	return nil
}

func applySinkSettings(sink *SinkConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "name", "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("name: %w", err)
		}
		sink.Name = val
	}
	if raw, ok := lookupSetting(settings, "endpoint", "url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		sink.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "credential", "token"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("credential: %w", err)
		}
		sink.Credential = val
	}
	return nil
}

func applyTracingSettings(tracing *TracingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		tracing.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "service_name", "serviceName"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		tracing.ServiceName = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "sampleRate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		tracing.Propagate = &val
	}
	return nil
}

func applyLoadSettings(load *LoadConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "targets"); ok {
		targets, err := parseTargets(raw)
		if err != nil {
			return fmt.Errorf("targets: %w", err)
		}
		load.Targets = targets
	}
	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method: %w", err)
		}
		load.Method = val
	}
	if raw, ok := lookupSetting(settings, "headers"); ok {
		val, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		load.Headers = val
	}
	if raw, ok := lookupSetting(settings, "concurrency"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("concurrency: %w", err)
		}
		load.Concurrency = val
	}
	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		load.Rate = val
	}
	if raw, ok := lookupSetting(settings, "duration"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		load.Duration = val
	}
	if raw, ok := lookupSetting(settings, "total"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("total: %w", err)
		}
		load.Total = val
	}
	if raw, ok := lookupSetting(settings, "timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		load.Timeout = val
	}
	return nil
}

func parseTargets(value interface{}) ([]Target, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		t, err := parseTargetFlag(s)
		if err != nil {
			return nil, err
		}
		return []Target{t}, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	targets := make([]Target, 0, len(items))
	for idx, item := range items {
		if s, ok := item.(string); ok {
			t, err := parseTargetFlag(s)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", idx, err)
			}
			targets = append(targets, t)
			continue
		}
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		target, err := buildTarget(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func buildTarget(settings map[string]interface{}) (Target, error) {
	var target Target
	if raw, ok := lookupSetting(settings, "label", "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return Target{}, fmt.Errorf("label: %w", err)
		}
		target.Label = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "url", "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return Target{}, fmt.Errorf("url: %w", err)
		}
		target.URL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return Target{}, fmt.Errorf("method: %w", err)
		}
		target.Method = val
	}
	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := asString(raw)
		if err != nil {
			return Target{}, fmt.Errorf("body: %w", err)
		}
		target.Body = val
	}
	if raw, ok := lookupSetting(settings, "slaMs", "sla_ms"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return Target{}, fmt.Errorf("slaMs: %w", err)
		}
		target.SLAThresholdMs = val
	}
	return target, nil
}

// parseTargetFlag accepts "label=url" or a bare URL.
func parseTargetFlag(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("empty target")
	}
	if idx := strings.Index(raw, "="); idx > 0 && !strings.Contains(raw[:idx], "://") {
		return Target{Label: strings.TrimSpace(raw[:idx]), URL: strings.TrimSpace(raw[idx+1:])}, nil
	}
	return Target{URL: raw}, nil
}

// defaultLabel names an unlabelled target after its URL path.
func defaultLabel(rawURL string, idx int) string {
	trimmed := rawURL
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	}
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.Index(trimmed, "/"); i >= 0 && len(trimmed) > i+1 {
		return trimmed[i:]
	}
	if trimmed != "" {
		return trimmed
	}
	return fmt.Sprintf("target-%d", idx)
}

// parseSLAThresholds accepts a map or an inline JSON/YAML document mapping
// labels to milliseconds.
func parseSLAThresholds(value interface{}) (map[string]int64, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		var doc map[string]interface{}
		if err := yaml.Unmarshal([]byte(v), &doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		return slaFromMap(doc)
	case map[string]interface{}:
		return slaFromMap(v)
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			key, err := asString(k)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return slaFromMap(m)
	default:
		return nil, fmt.Errorf("unsupported threshold table type %T", value)
	}
}

func slaFromMap(m map[string]interface{}) (map[string]int64, error) {
	out := make(map[string]int64, len(m))
	for label, raw := range m {
		ms, err := asInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		out[strings.TrimSpace(label)] = ms
	}
	return out, nil
}

// applyCaseSensitiveMaps re-reads the maps whose keys are labels, tag names or
// header names. Viper folds those keys to lower case.
func applyCaseSensitiveMaps(cfg *Config, path string) error {
	var decode func([]byte, interface{}) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		decode = json.Unmarshal
	case ".yaml", ".yml":
		decode = yaml.Unmarshal
	default:
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var raw map[string]interface{}
	if err := decode(data, &raw); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	sla, ok := raw["businessSlaThresholds"]
	if !ok {
		sla = raw["businessMap"]
	}
	if sla != nil {
		val, err := parseSLAThresholds(sla)
		if err != nil {
			return fmt.Errorf("businessSlaThresholds: %w", err)
		}
		cfg.BusinessSLAThresholds = val
	}

	var headers interface{}
	if load, ok := raw["load"].(map[string]interface{}); ok {
		headers = load["headers"]
	}
	for _, m := range []struct {
		name string
		raw  interface{}
		dst  *map[string]string
	}{
		{"eventTags", raw["eventTags"], &cfg.EventTags},
		{"tags", raw["tags"], &cfg.Tags},
		{"load.headers", headers, &cfg.Load.Headers},
	} {
		if m.raw == nil {
			continue
		}
		val, err := asStringMap(m.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", m.name, err)
		}
		*m.dst = val
	}
	return nil
}
