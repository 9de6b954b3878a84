package runner

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/torosent/crankvu/internal/clock"
	"github.com/torosent/crankvu/internal/metrics"
)

// Worker is a single virtual user.
type Worker struct {
	ID int

	requester  Requester
	check      Check
	sink       Sink
	clock      *clock.Clock
	source     clockwork.Clock
	limiter    *rate.Limiter
	pacing     time.Duration
	iterations int
}

// NewWorker builds a worker from opt. The limiter may be nil and is shared
// between workers of the same run.
func NewWorker(id int, opt Options, limiter *rate.Limiter) *Worker {
	opt.normalize()
	var source clockwork.Clock
	if opt.Clock != nil {
		source = opt.Clock.Source()
	} else {
		source = clockwork.NewRealClock()
	}
	return &Worker{
		ID:         id,
		requester:  opt.Requester,
		check:      opt.Check,
		sink:       opt.Sink,
		clock:      opt.Clock,
		source:     source,
		limiter:    limiter,
		pacing:     opt.PacingInterval,
		iterations: opt.Iterations,
	}
}

// Run executes iterations and returns how many it completed.
//
// stop is the soft context: once it is done no new iteration starts and any
// pacing pause ends early. ctx is the hard context handed to the requester;
// cancelling it interrupts the request in flight, which is still recorded.
func (w *Worker) Run(ctx, stop context.Context) int {
	done := 0
	for w.iterations == 0 || done < w.iterations {
		if !w.canContinue(stop) {
			return done
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(stop); err != nil {
				return done
			}
			if !w.canContinue(stop) {
				return done
			}
		}

		w.sink.Record(w.execute(ctx, done))
		done++

		if w.pacing > 0 && !w.pace(stop) {
			return done
		}
	}
	return done
}

func (w *Worker) canContinue(stop context.Context) bool {
	if stop.Err() != nil {
		return false
	}
	return w.clock == nil || w.clock.Continue()
}

// execute issues one request and always returns an outcome for it.
func (w *Worker) execute(ctx context.Context, iteration int) metrics.Outcome {
	start := w.source.Now()
	status, err := w.requester.Do(ctx)
	o := metrics.Outcome{
		Timestamp:  start,
		VU:         w.ID,
		Iteration:  iteration,
		Latency:    w.source.Since(start),
		StatusCode: status,
	}
	if err != nil {
		o.Error = err.Error()
		if o.Error == "" {
			o.Error = "unknown error"
		}
		o.ErrorKind = metrics.ClassifyError(err)
		o.Interrupted = ctx.Err() != nil
		return o
	}
	o.Success = w.check(status)
	return o
}

// pace sleeps for the pacing interval. It returns false when the wait was
// cut short by a soft stop or by the clock running out.
func (w *Worker) pace(stop context.Context) bool {
	timer := w.source.NewTimer(w.pacing)
	defer timer.Stop()

	var expired <-chan struct{}
	if w.clock != nil {
		expired = w.clock.Done()
	}
	select {
	case <-timer.Chan():
		return true
	case <-stop.Done():
		return false
	case <-expired:
		return false
	}
}
