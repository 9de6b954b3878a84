package runner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/crankvu/internal/clock"
	"github.com/torosent/crankvu/internal/metrics"
)

// Requester issues one request and reports the response status code.
// A non-nil error means no usable response was received.
type Requester interface {
	Do(ctx context.Context) (int, error)
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context) (int, error)

func (f RequesterFunc) Do(ctx context.Context) (int, error) { return f(ctx) }

// Check decides whether a response status counts as a success.
type Check func(status int) bool

// StatusCheck passes only when the status equals code.
func StatusCheck(code int) Check {
	return func(status int) bool { return status == code }
}

// Sink receives outcomes. Implementations must be safe for concurrent use.
type Sink interface {
	Record(metrics.Outcome)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(metrics.Outcome)

func (f SinkFunc) Record(o metrics.Outcome) { f(o) }

// Stage ramps the virtual user count linearly to Target over Duration.
type Stage struct {
	Duration time.Duration
	Target   int
}

// Options configure a Pool.
type Options struct {
	VirtualUsers   int           // workers at start; the starting point of the first stage
	Stages         []Stage       // optional ramping plan
	Iterations     int           // per-worker iteration budget (0 means unlimited)
	PacingInterval time.Duration // pause after each iteration
	RatePerSecond  int           // global request cap shared by all workers (0 means unlimited)
	Requester      Requester     // request executor (required)
	Check          Check         // defaults to StatusCheck(200)
	Sink           Sink          // outcome receiver
	Clock          *clock.Clock  // shared test clock; nil means no time limit
	Logger         *zap.Logger
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.VirtualUsers < 0 {
		o.VirtualUsers = 0
	}
	if o.Iterations < 0 {
		o.Iterations = 0
	}
	if o.PacingInterval < 0 {
		o.PacingInterval = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.Check == nil {
		o.Check = StatusCheck(200)
	}
	if o.Sink == nil {
		o.Sink = SinkFunc(func(metrics.Outcome) {})
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return nil
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}
