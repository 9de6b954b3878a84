package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/crankvu/internal/config"
)

func TestLoadNoArgsRequestsHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load() error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--target-url", "http://localhost:8080/"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.VirtualUsers != 1 {
		t.Errorf("VirtualUsers = %d, want 1", cfg.VirtualUsers)
	}
	if cfg.Duration != 30*time.Second {
		t.Errorf("Duration = %s, want 30s", cfg.Duration)
	}
	if cfg.PacingInterval != 0 {
		t.Errorf("PacingInterval = %s, want 0", cfg.PacingInterval)
	}
	if cfg.ExpectedStatus != 200 {
		t.Errorf("ExpectedStatus = %d, want 200", cfg.ExpectedStatus)
	}
	if cfg.Engine != config.EngineHTTP {
		t.Errorf("Engine = %q, want http", cfg.Engine)
	}
	if cfg.Output != config.OutputText {
		t.Errorf("Output = %q, want text", cfg.Output)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadSpecFlags(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{
		"--target-url", "http://localhost:8080/",
		"--virtual-users", "1300",
		"--duration", "30s",
		"--pacing-interval", "200ms",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VirtualUsers != 1300 {
		t.Errorf("VirtualUsers = %d, want 1300", cfg.VirtualUsers)
	}
	if cfg.PacingInterval != 200*time.Millisecond {
		t.Errorf("PacingInterval = %s, want 200ms", cfg.PacingInterval)
	}
}

func TestLoadHeaderValuesKeepCommas(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{
		"--target-url", "http://localhost:8080/",
		"--header", "Accept=text/html,application/json",
		"--header", "x-tags=a,b",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Headers["Accept"]; got != "text/html,application/json" {
		t.Errorf("Headers[Accept] = %q, want text/html,application/json", got)
	}
	if got := cfg.Headers["X-Tags"]; got != "a,b" {
		t.Errorf("Headers[X-Tags] = %q, want a,b", got)
	}
}

func TestLoadConfigFileYAMLWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crankvu.yaml")
	content := strings.Join([]string{
		"target_url: http://localhost:8080/",
		"virtual_users: 20",
		"duration: 1m",
		"pacing_interval: 200ms",
		"headers:",
		"  x-env: staging",
		"stages:",
		"  - duration: 10s",
		"    target: 20",
		"  - duration: 20s",
		"    target: 0",
		"thresholds:",
		"  - 'http_req_failed:rate < 0.01'",
		"log:",
		"  level: info",
		"tracing:",
		"  endpoint: localhost:4317",
		"  sample_rate: 0.5",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--virtual-users", "5"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.VirtualUsers != 5 {
		t.Errorf("VirtualUsers = %d, want flag override 5", cfg.VirtualUsers)
	}
	if cfg.Duration != time.Minute {
		t.Errorf("Duration = %s, want 1m", cfg.Duration)
	}
	if cfg.Headers["X-Env"] != "staging" {
		t.Errorf("Headers[X-Env] = %q, want staging", cfg.Headers["X-Env"])
	}
	if len(cfg.Stages) != 2 || cfg.Stages[0].Target != 20 || cfg.Stages[1].Duration != 20*time.Second {
		t.Errorf("Stages = %+v", cfg.Stages)
	}
	if cfg.TotalDuration() != 30*time.Second {
		t.Errorf("TotalDuration() = %s, want 30s", cfg.TotalDuration())
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v, want 1 entry", cfg.Thresholds)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crankvu.json")
	if err := os.WriteFile(path, []byte(`{
		"target_url": "http://localhost:8080/",
		"virtual_users": 3,
		"duration": 10,
		"engine": "fasthttp",
		"output": "json"
	}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VirtualUsers != 3 {
		t.Errorf("VirtualUsers = %d, want 3", cfg.VirtualUsers)
	}
	if cfg.Duration != 10*time.Second {
		t.Errorf("Duration = %s, want 10s", cfg.Duration)
	}
	if cfg.Engine != config.EngineFastHTTP {
		t.Errorf("Engine = %q, want fasthttp", cfg.Engine)
	}
	if cfg.Output != config.OutputJSON {
		t.Errorf("Output = %q, want json", cfg.Output)
	}
}

func TestLoadConfigFileSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"target_url": "http://x", "engine": "curl"}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := config.NewLoader().Load([]string{"--config", path}); err == nil {
		t.Fatal("expected schema validation error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		c := config.Defaults()
		c.TargetURL = "http://localhost:8080/"
		return c
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero virtual users", func(c *config.Config) { c.VirtualUsers = 0 }, "virtual-users must be >= 1"},
		{"missing target", func(c *config.Config) { c.TargetURL = "" }, "target-url is required"},
		{"malformed target", func(c *config.Config) { c.TargetURL = "http://%zz" }, "target-url is malformed"},
		{"wrong scheme", func(c *config.Config) { c.TargetURL = "ftp://example.com" }, "http or https"},
		{"no host", func(c *config.Config) { c.TargetURL = "http://" }, "must include a host"},
		{"zero duration", func(c *config.Config) { c.Duration = 0 }, "duration must be > 0"},
		{"negative pacing", func(c *config.Config) { c.PacingInterval = -time.Second }, "pacing-interval"},
		{"bad status", func(c *config.Config) { c.ExpectedStatus = 42 }, "expected-status"},
		{"bad engine", func(c *config.Config) { c.Engine = "curl" }, "engine must be"},
		{"bad output", func(c *config.Config) { c.Output = "xml" }, "output must be"},
		{"header injection", func(c *config.Config) { c.Headers["X-A"] = "a\r\nb" }, "invalid header value"},
		{"empty stages target", func(c *config.Config) {
			c.Stages = []config.Stage{{Duration: time.Second, Target: 0}}
		}, "at least one virtual user"},
		{"bad sample rate", func(c *config.Config) { c.Tracing.SampleRate = 2 }, "tracing-sample-rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.want)
			}
			var vErr config.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}
			if len(vErr.Issues()) == 0 {
				t.Error("ValidationError.Issues() is empty")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateStagesReplaceDuration(t *testing.T) {
	cfg := config.Defaults()
	cfg.TargetURL = "http://localhost:8080/"
	cfg.Duration = 0
	cfg.VirtualUsers = 0
	cfg.Stages = []config.Stage{{Duration: 5 * time.Second, Target: 10}, {Duration: 5 * time.Second, Target: 0}}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.MaxVirtualUsers() != 10 {
		t.Errorf("MaxVirtualUsers() = %d, want 10", cfg.MaxVirtualUsers())
	}
}
