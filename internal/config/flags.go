package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crankvu",
		Short:         "Virtual-user HTTP load generator",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	// Target
	flags.String("target-url", "", "URL each virtual user sends GET requests to")
	flags.StringArray("header", nil, "Additional request header in key=value form, repeatable")
	flags.Int("expected-status", http.StatusOK, "Status code the check expects")

	// Load shape
	flags.IntP("virtual-users", "u", 1, "Number of concurrent virtual users")
	flags.DurationP("duration", "d", 30*time.Second, "How long to run the test (e.g. 30s, 1m)")
	flags.DurationP("pacing-interval", "p", 0, "Pause between a virtual user's iterations")
	flags.IntP("iterations", "i", 0, "Iterations per virtual user (0 means unlimited until duration)")
	flags.StringSlice("stage", nil, "Ramping stage in duration:target form, repeatable (e.g. 30s:50)")
	flags.IntP("rate", "r", 0, "Global requests per second cap across all virtual users (0 means unlimited)")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.Duration("graceful-stop", 5*time.Second, "Time in-flight requests may finish after the test ends")
	flags.String("engine", string(EngineHTTP), "HTTP client engine: 'http' or 'fasthttp'")

	// Output
	flags.StringP("output", "o", string(OutputText), "Summary format: 'text', 'json' or 'yaml'")
	flags.Bool("progress", true, "Show a live progress line while the test runs (text output only)")
	flags.StringSlice("threshold", nil, "Pass/fail criteria (repeatable, e.g. 'http_req_duration:p95 < 500')")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Logging
	flags.Bool("log-errors", false, "Log each failed request")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error")
	flags.String("log-format", "console", "Log format: console or json")
	flags.String("log-file", "", "Write logs to a rotating file instead of stderr")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of requests to trace (0.0-1.0)")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context headers into requests")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides copies explicitly set flags over values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err != nil || !fs.Changed(name) {
			return
		}
		if applyErr := apply(); applyErr != nil {
			err = fmt.Errorf("--%s: %w", name, applyErr)
		}
	}

	set("target-url", func() error {
		val, e := fs.GetString("target-url")
		cfg.TargetURL = strings.TrimSpace(val)
		return e
	})
	set("header", func() error {
		vals, e := fs.GetStringArray("header")
		if e != nil {
			return e
		}
		for _, raw := range vals {
			key, value, ok := strings.Cut(raw, "=")
			if !ok {
				return fmt.Errorf("header %q must be in key=value form", raw)
			}
			cfg.Headers[http.CanonicalHeaderKey(strings.TrimSpace(key))] = strings.TrimSpace(value)
		}
		return nil
	})
	set("expected-status", func() (e error) {
		cfg.ExpectedStatus, e = fs.GetInt("expected-status")
		return
	})
	set("virtual-users", func() (e error) {
		cfg.VirtualUsers, e = fs.GetInt("virtual-users")
		return
	})
	set("duration", func() (e error) {
		cfg.Duration, e = fs.GetDuration("duration")
		return
	})
	set("pacing-interval", func() (e error) {
		cfg.PacingInterval, e = fs.GetDuration("pacing-interval")
		return
	})
	set("iterations", func() (e error) {
		cfg.Iterations, e = fs.GetInt("iterations")
		return
	})
	set("stage", func() error {
		vals, e := fs.GetStringSlice("stage")
		if e != nil {
			return e
		}
		stages := make([]Stage, 0, len(vals))
		for _, raw := range vals {
			stage, e := parseStageFlag(raw)
			if e != nil {
				return e
			}
			stages = append(stages, stage)
		}
		cfg.Stages = stages
		return nil
	})
	set("rate", func() (e error) {
		cfg.Rate, e = fs.GetInt("rate")
		return
	})
	set("timeout", func() (e error) {
		cfg.Timeout, e = fs.GetDuration("timeout")
		return
	})
	set("graceful-stop", func() (e error) {
		cfg.GracefulStop, e = fs.GetDuration("graceful-stop")
		return
	})
	set("engine", func() error {
		val, e := fs.GetString("engine")
		cfg.Engine = Engine(strings.ToLower(strings.TrimSpace(val)))
		return e
	})
	set("output", func() error {
		val, e := fs.GetString("output")
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
		return e
	})
	set("progress", func() (e error) {
		cfg.Progress, e = fs.GetBool("progress")
		return
	})
	set("threshold", func() (e error) {
		cfg.Thresholds, e = fs.GetStringSlice("threshold")
		return
	})
	set("log-errors", func() (e error) {
		cfg.LogErrors, e = fs.GetBool("log-errors")
		return
	})
	set("log-level", func() (e error) {
		cfg.Log.Level, e = fs.GetString("log-level")
		return
	})
	set("log-format", func() (e error) {
		cfg.Log.Format, e = fs.GetString("log-format")
		return
	})
	set("log-file", func() (e error) {
		cfg.Log.File, e = fs.GetString("log-file")
		return
	})
	set("tracing-endpoint", func() (e error) {
		cfg.Tracing.Endpoint, e = fs.GetString("tracing-endpoint")
		return
	})
	set("tracing-protocol", func() (e error) {
		cfg.Tracing.Protocol, e = fs.GetString("tracing-protocol")
		return
	})
	set("tracing-insecure", func() (e error) {
		cfg.Tracing.Insecure, e = fs.GetBool("tracing-insecure")
		return
	})
	set("tracing-sample-rate", func() (e error) {
		cfg.Tracing.SampleRate, e = fs.GetFloat64("tracing-sample-rate")
		return
	})
	set("tracing-propagate", func() (e error) {
		cfg.Tracing.Propagate, e = fs.GetBool("tracing-propagate")
		return
	})

	return err
}

// parseStageFlag parses "30s:50" into a Stage.
func parseStageFlag(raw string) (Stage, error) {
	durPart, targetPart, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Stage{}, fmt.Errorf("stage %q must be in duration:target form", raw)
	}
	dur, err := time.ParseDuration(strings.TrimSpace(durPart))
	if err != nil {
		return Stage{}, fmt.Errorf("stage %q: %w", raw, err)
	}
	target, err := strconv.Atoi(strings.TrimSpace(targetPart))
	if err != nil {
		return Stage{}, fmt.Errorf("stage %q: invalid target: %w", raw, err)
	}
	return Stage{Duration: dur, Target: target}, nil
}
