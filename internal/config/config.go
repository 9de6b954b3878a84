package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

type Engine string

const (
	EngineHTTP     Engine = "http"
	EngineFastHTTP Engine = "fasthttp"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// Config describes one load test run. It is not modified after the run starts.
type Config struct {
	TargetURL      string            `mapstructure:"target_url"`
	VirtualUsers   int               `mapstructure:"virtual_users"`
	Duration       time.Duration     `mapstructure:"duration"`
	PacingInterval time.Duration     `mapstructure:"pacing_interval"`
	Iterations     int               `mapstructure:"iterations"`
	Timeout        time.Duration     `mapstructure:"timeout"`
	ExpectedStatus int               `mapstructure:"expected_status"`
	Headers        map[string]string `mapstructure:"headers"`
	Stages         []Stage           `mapstructure:"stages"`
	Rate           int               `mapstructure:"rate"`
	GracefulStop   time.Duration     `mapstructure:"graceful_stop"`
	Engine         Engine            `mapstructure:"engine"`
	Output         OutputFormat      `mapstructure:"output"`
	Progress       bool              `mapstructure:"progress"`
	LogErrors      bool              `mapstructure:"log_errors"`
	Log            LogConfig         `mapstructure:"log"`
	Thresholds     []string          `mapstructure:"thresholds"`
	Tracing        TracingConfig     `mapstructure:"tracing"`
	ConfigFile     string            `mapstructure:"-"`
}

// Stage ramps the number of virtual users linearly to Target over Duration.
type Stage struct {
	Duration time.Duration `mapstructure:"duration"`
	Target   int           `mapstructure:"target"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
	File   string `mapstructure:"file"`   // optional rotating log file
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// TotalDuration returns how long the run lasts: the sum of the stages when ramping,
// otherwise Duration.
func (c Config) TotalDuration() time.Duration {
	if len(c.Stages) == 0 {
		return c.Duration
	}
	var total time.Duration
	for _, s := range c.Stages {
		total += s.Duration
	}
	return total
}

// MaxVirtualUsers returns the peak number of concurrent virtual users.
func (c Config) MaxVirtualUsers() int {
	peak := c.VirtualUsers
	for _, s := range c.Stages {
		if s.Target > peak {
			peak = s.Target
		}
	}
	return peak
}

// ValidationError is returned for configurations that cannot start a run.
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

	issues = append(issues, validateTarget(c.TargetURL)...)

	if c.VirtualUsers > 1000 || c.MaxVirtualUsers() > 1000 {
		fmt.Fprintf(os.Stderr, "WARNING: %d virtual users configured. Ensure you have authorization to test the target system.\n", c.MaxVirtualUsers())
	}

	if len(c.Stages) == 0 {
		if c.VirtualUsers < 1 {
			issues = append(issues, "virtual-users must be >= 1")
		}
		if c.Duration <= 0 {
			issues = append(issues, "duration must be > 0")
		}
	} else {
		if c.VirtualUsers < 0 {
			issues = append(issues, "virtual-users must be >= 0")
		}
		issues = append(issues, validateStages(c.Stages)...)
	}

	if c.PacingInterval < 0 {
		issues = append(issues, "pacing-interval must be >= 0")
	}
	if c.Iterations < 0 {
		issues = append(issues, "iterations must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.ExpectedStatus < 100 || c.ExpectedStatus > 599 {
		issues = append(issues, fmt.Sprintf("expected-status %d is not a valid HTTP status code", c.ExpectedStatus))
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.GracefulStop < 0 {
		issues = append(issues, "graceful-stop must be >= 0")
	}

	switch c.Engine {
	case EngineHTTP, EngineFastHTTP:
	default:
		issues = append(issues, fmt.Sprintf("engine must be one of http, fasthttp (got %q)", c.Engine))
	}
	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be one of text, json, yaml (got %q)", c.Output))
	}

	for key, value := range c.Headers {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header key %q", key))
			continue
		}
		if strings.ContainsAny(value, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header value for %s", key))
		}
	}

	issues = append(issues, validateLogConfig(c.Log)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTarget(target string) []string {
	target = strings.TrimSpace(target)
	if target == "" {
		return []string{"target-url is required (use --help for usage information)"}
	}
	u, err := url.Parse(target)
	if err != nil {
		return []string{fmt.Sprintf("target-url is malformed: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{fmt.Sprintf("target-url must use http or https (got %q)", u.Scheme)}
	}
	if u.Host == "" {
		return []string{"target-url must include a host"}
	}
	return nil
}

func validateStages(stages []Stage) []string {
	var issues []string
	peak := 0
	for i, s := range stages {
		if s.Duration <= 0 {
			issues = append(issues, fmt.Sprintf("stages[%d]: duration must be > 0", i))
		}
		if s.Target < 0 {
			issues = append(issues, fmt.Sprintf("stages[%d]: target must be >= 0", i))
		}
		if s.Target > peak {
			peak = s.Target
		}
	}
	if len(issues) == 0 && peak == 0 {
		issues = append(issues, "stages must reach at least one virtual user")
	}
	return issues
}

func validateLogConfig(l LogConfig) []string {
	var issues []string
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log-level must be one of debug, info, warn, error (got %q)", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log-format must be console or json (got %q)", l.Format))
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing-protocol must be grpc or http (got %q)", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing-sample-rate must be between 0.0 and 1.0")
	}
	return issues
}
