package metrics

import (
	"maps"
	"time"
)

// Summary is the aggregated result of a run. Duration fields are for text output;
// the *Ms fields carry the same values for JSON and YAML.
type Summary struct {
	RunID           string  `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Total           int64   `json:"total" yaml:"total"`
	Successes       int64   `json:"successes" yaml:"successes"`
	Failures        int64   `json:"failures" yaml:"failures"`
	CheckFailures   int64   `json:"check_failures" yaml:"check_failures"`
	TransportErrors int64   `json:"transport_errors" yaml:"transport_errors"`
	Interrupted     int64   `json:"interrupted" yaml:"interrupted"`
	VirtualUsers    int     `json:"virtual_users" yaml:"virtual_users"`
	ChecksPassRate  float64 `json:"checks_pass_rate" yaml:"checks_pass_rate"`
	RequestsPerSec  float64 `json:"requests_per_sec" yaml:"requests_per_sec"`

	MinLatency  time.Duration `json:"-" yaml:"-"`
	MaxLatency  time.Duration `json:"-" yaml:"-"`
	MeanLatency time.Duration `json:"-" yaml:"-"`
	P50Latency  time.Duration `json:"-" yaml:"-"`
	P90Latency  time.Duration `json:"-" yaml:"-"`
	P95Latency  time.Duration `json:"-" yaml:"-"`
	P99Latency  time.Duration `json:"-" yaml:"-"`
	Duration    time.Duration `json:"-" yaml:"-"`

	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`

	StatusCodes map[string]int64 `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
	Errors      map[string]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (s *Summary) fillMillis() {
	s.MinLatencyMs = millis(s.MinLatency)
	s.MaxLatencyMs = millis(s.MaxLatency)
	s.MeanLatencyMs = millis(s.MeanLatency)
	s.P50LatencyMs = millis(s.P50Latency)
	s.P90LatencyMs = millis(s.P90Latency)
	s.P95LatencyMs = millis(s.P95Latency)
	s.P99LatencyMs = millis(s.P99Latency)
	s.DurationMs = millis(s.Duration)
}

func (s Summary) clone() Summary {
	out := s
	if s.StatusCodes != nil {
		out.StatusCodes = maps.Clone(s.StatusCodes)
	}
	if s.Errors != nil {
		out.Errors = maps.Clone(s.Errors)
	}
	return out
}

// FailureRate is the share of requests that failed, 0 when nothing ran.
func (s Summary) FailureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Total)
}
