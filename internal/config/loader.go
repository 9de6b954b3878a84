package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used when neither file nor flags set a value.
func Defaults() Config {
	return Config{
		VirtualUsers:   1,
		Duration:       30 * time.Second,
		Timeout:        30 * time.Second,
		ExpectedStatus: http.StatusOK,
		Headers:        map[string]string{},
		GracefulStop:   5 * time.Second,
		Engine:         EngineHTTP,
		Output:         OutputText,
		Progress:       true,
		Log:            LogConfig{Level: "warn", Format: "console"},
		Tracing:        TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and an optional configuration file into a Config.
// Flags always win over file values.
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
	if len(args) == 0 {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		fileSettings := settings(v.AllSettings())
		if err := validateFileSettings(fileSettings); err != nil {
			return nil, err
		}
		if err := applyConfigSettings(&cfg, fileSettings); err != nil {
			return nil, err
		}
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.Engine = Engine(strings.ToLower(string(cfg.Engine)))
	cfg.Output = OutputFormat(strings.ToLower(string(cfg.Output)))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return &cfg, nil
}

// applyConfigSettings copies config file values onto cfg.
func applyConfigSettings(cfg *Config, s settings) error {
	if len(s) == 0 {
		return nil
	}

	strField := func(key string, dst *string) error {
		if raw, ok := s.get(key); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = strings.TrimSpace(val)
		}
		return nil
	}
	intField := func(key string, dst *int) error {
		if raw, ok := s.get(key); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = val
		}
		return nil
	}
	durField := func(key string, dst *time.Duration) error {
		if raw, ok := s.get(key); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = val
		}
		return nil
	}
	boolField := func(key string, dst *bool) error {
		if raw, ok := s.get(key); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = val
		}
		return nil
	}

	var engine, output string
	steps := []error{
		strField("target_url", &cfg.TargetURL),
		intField("virtual_users", &cfg.VirtualUsers),
		durField("duration", &cfg.Duration),
		durField("pacing_interval", &cfg.PacingInterval),
		intField("iterations", &cfg.Iterations),
		durField("timeout", &cfg.Timeout),
		intField("expected_status", &cfg.ExpectedStatus),
		intField("rate", &cfg.Rate),
		durField("graceful_stop", &cfg.GracefulStop),
		strField("engine", &engine),
		strField("output", &output),
		boolField("progress", &cfg.Progress),
		boolField("log_errors", &cfg.LogErrors),
	}
	if err := errors.Join(steps...); err != nil {
		return err
	}
	if engine != "" {
		cfg.Engine = Engine(engine)
	}
	if output != "" {
		cfg.Output = OutputFormat(output)
	}

	if raw, ok := s.get("headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := s.get("stages"); ok {
		stages, err := parseStages(raw)
		if err != nil {
			return fmt.Errorf("stages: %w", err)
		}
		cfg.Stages = stages
	}

	if raw, ok := s.get("thresholds"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = vals
	}

	if raw, ok := s.get("log"); ok {
		section, err := asSettings(raw)
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
		if err := errors.Join(
			strFieldOf(section, "level", &cfg.Log.Level),
			strFieldOf(section, "format", &cfg.Log.Format),
			strFieldOf(section, "file", &cfg.Log.File),
		); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}

	if raw, ok := s.get("tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func strFieldOf(s settings, key string, dst *string) error {
	raw, ok := s.get(key)
	if !ok {
		return nil
	}
	val, err := asString(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = strings.TrimSpace(val)
	return nil
}

func parseStages(value interface{}) ([]Stage, error) {
	items, err := asList(value)
	if err != nil {
		return nil, err
	}
	stages := make([]Stage, 0, len(items))
	for i, item := range items {
		section, err := asSettings(item)
		if err != nil {
			return nil, fmt.Errorf("stages[%d]: %w", i, err)
		}
		var stage Stage
		if raw, ok := section.get("duration"); ok {
			if stage.Duration, err = asDuration(raw); err != nil {
				return nil, fmt.Errorf("stages[%d].duration: %w", i, err)
			}
		}
		if raw, ok := section.get("target"); ok {
			if stage.Target, err = asInt(raw); err != nil {
				return nil, fmt.Errorf("stages[%d].target: %w", i, err)
			}
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	section, err := asSettings(value)
	if err != nil {
		return base, err
	}
	out := base
	if err := errors.Join(
		strFieldOf(section, "endpoint", &out.Endpoint),
		strFieldOf(section, "protocol", &out.Protocol),
		strFieldOf(section, "service_name", &out.ServiceName),
	); err != nil {
		return base, err
	}
	if raw, ok := section.get("insecure"); ok {
		if out.Insecure, err = asBool(raw); err != nil {
			return base, fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := section.get("propagate"); ok {
		if out.Propagate, err = asBool(raw); err != nil {
			return base, fmt.Errorf("propagate: %w", err)
		}
	}
	if raw, ok := section.get("sample_rate"); ok {
		if out.SampleRate, err = asFloat64(raw); err != nil {
			return base, fmt.Errorf("sample_rate: %w", err)
		}
	}
	return out, nil
}
