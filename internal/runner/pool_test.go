package runner_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/torosent/crankvu/internal/clock"
	"github.com/torosent/crankvu/internal/metrics"
	"github.com/torosent/crankvu/internal/runner"
)

func waitDone(t *testing.T, p *runner.Pool, limit time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(limit):
		t.Fatalf("pool did not finish within %s", limit)
	}
}

func TestPoolIterationBudgetCompletesNaturally(t *testing.T) {
	agg := metrics.NewAggregator()
	p := runner.New(runner.Options{
		VirtualUsers: 3,
		Iterations:   4,
		Requester:    statusRequester(200),
		Sink:         agg,
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p, 5*time.Second)

	res := p.Result()
	if res.Iterations != 12 {
		t.Fatalf("Iterations = %d, want 12", res.Iterations)
	}
	if res.VirtualUsers != 3 {
		t.Fatalf("VirtualUsers = %d, want 3", res.VirtualUsers)
	}
	if agg.Total() != 12 {
		t.Fatalf("aggregator total = %d, want 12", agg.Total())
	}
	if p.Active() != 0 {
		t.Fatalf("Active() = %d after completion", p.Active())
	}
}

func TestPoolEveryVirtualUserContributes(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	requester := runner.RequesterFunc(func(ctx context.Context) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if err != nil {
			return 0, err
		}
		resp, err := srv.Client().Do(req)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	})

	agg := metrics.NewAggregator()
	clk := clock.New(300*time.Millisecond, nil)
	p := runner.New(runner.Options{
		VirtualUsers:   8,
		PacingInterval: 10 * time.Millisecond,
		Requester:      requester,
		Sink:           agg,
		Clock:          clk,
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-clk.Done()
	p.Shutdown(time.Second)

	s, err := agg.Summarize(clk.Elapsed())
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if s.VirtualUsers != 8 {
		t.Fatalf("VirtualUsers contributing = %d, want 8", s.VirtualUsers)
	}
	if s.Total < 8 {
		t.Fatalf("Total = %d, want at least one request per VU", s.Total)
	}
	if s.Total != hits.Load() {
		t.Fatalf("Total = %d, server saw %d", s.Total, hits.Load())
	}
	if s.Failures != 0 {
		t.Fatalf("Failures = %d, want 0", s.Failures)
	}
	if agg.LateRecords() != 0 {
		t.Fatalf("LateRecords() = %d", agg.LateRecords())
	}
}

func TestPoolStopLeavesNoLateRecords(t *testing.T) {
	var recorded atomic.Int64
	sink := runner.SinkFunc(func(metrics.Outcome) { recorded.Add(1) })
	p := runner.New(runner.Options{
		VirtualUsers: 4,
		Requester: runner.RequesterFunc(func(ctx context.Context) (int, error) {
			select {
			case <-time.After(5 * time.Millisecond):
				return 200, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}),
		Sink: sink,
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	after := recorded.Load()
	if after == 0 {
		t.Fatal("expected some outcomes before Stop")
	}
	time.Sleep(50 * time.Millisecond)
	if recorded.Load() != after {
		t.Fatalf("outcomes recorded after Stop returned: %d -> %d", after, recorded.Load())
	}
	if p.Active() != 0 {
		t.Fatalf("Active() = %d after Stop", p.Active())
	}
}

func TestPoolShutdownGraceLetsInFlightRequestsFinish(t *testing.T) {
	sink := &collector{}
	entered := make(chan struct{}, 1)
	p := runner.New(runner.Options{
		VirtualUsers: 1,
		Requester: runner.RequesterFunc(func(ctx context.Context) (int, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			select {
			case <-time.After(50 * time.Millisecond):
				return 200, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}),
		Sink: sink,
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-entered
	p.Shutdown(2 * time.Second)

	for _, o := range sink.all() {
		if o.Interrupted || !o.Success {
			t.Fatalf("grace period should let the request finish: %+v", o)
		}
	}
}

func TestPoolShutdownWithoutGraceInterruptsRequests(t *testing.T) {
	sink := &collector{}
	entered := make(chan struct{}, 1)
	p := runner.New(runner.Options{
		VirtualUsers: 1,
		Requester: runner.RequesterFunc(func(ctx context.Context) (int, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-ctx.Done()
			return 0, ctx.Err()
		}),
		Sink: sink,
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-entered
	p.Stop()

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("recorded %d outcomes, want 1", len(got))
	}
	if !got[0].Interrupted || got[0].Success {
		t.Fatalf("expected interrupted outcome, got %+v", got[0])
	}
}

func TestPoolParentCancelStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := runner.New(runner.Options{
		VirtualUsers:   2,
		PacingInterval: time.Millisecond,
		Requester:      statusRequester(200),
	})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
	waitDone(t, p, 2*time.Second)
}

func TestPoolStartTwice(t *testing.T) {
	p := runner.New(runner.Options{VirtualUsers: 1, Iterations: 1, Requester: statusRequester(200)})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()
	if err := p.Start(context.Background()); !errors.Is(err, runner.ErrAlreadyStarted) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestPoolRequiresRequester(t *testing.T) {
	p := runner.New(runner.Options{VirtualUsers: 1})
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected error without requester")
	}
	// Never started: these must not block.
	p.Stop()
	p.Wait()
}

func TestPoolFollowsStages(t *testing.T) {
	var peak atomic.Int32
	var active atomic.Int32
	core, logs := observer.New(zapcore.DebugLevel)
	p := runner.New(runner.Options{
		Logger:       zap.New(core),
		VirtualUsers: 0,
		Stages: []runner.Stage{
			{Duration: 300 * time.Millisecond, Target: 4},
			{Duration: 300 * time.Millisecond, Target: 0},
		},
		PacingInterval: 5 * time.Millisecond,
		Requester: runner.RequesterFunc(func(ctx context.Context) (int, error) {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				cur := peak.Load()
				if n <= cur || peak.CompareAndSwap(cur, n) {
					break
				}
			}
			return 200, nil
		}),
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p, 5*time.Second)

	res := p.Result()
	if res.VirtualUsers < 2 || res.VirtualUsers > 4 {
		t.Fatalf("VirtualUsers started = %d, want between 2 and 4", res.VirtualUsers)
	}
	if peak.Load() > 4 {
		t.Fatalf("peak concurrency %d exceeded the stage target", peak.Load())
	}
	if p.Active() != 0 {
		t.Fatalf("Active() = %d after the plan ramped to 0", p.Active())
	}
	if res.Iterations == 0 {
		t.Fatal("expected iterations while ramping")
	}

	plans := logs.FilterMessage("following stages").All()
	if len(plans) != 1 {
		t.Fatalf("got %d stage plan log entries, want 1", len(plans))
	}
	fields := plans[0].ContextMap()
	if fields["peak_virtual_users"] != int64(4) || fields["length"] != 600*time.Millisecond {
		t.Errorf("stage plan fields = %v", fields)
	}
}

func TestPoolRateLimit(t *testing.T) {
	var calls atomic.Int64
	clk := clock.New(500*time.Millisecond, nil)
	p := runner.New(runner.Options{
		VirtualUsers:  5,
		RatePerSecond: 20,
		Requester: runner.RequesterFunc(func(ctx context.Context) (int, error) {
			calls.Add(1)
			return 200, nil
		}),
		Clock: clk,
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-clk.Done()
	p.Stop()

	// Burst of 20 plus ~10 more over 500ms.
	if got := calls.Load(); got > 35 {
		t.Fatalf("rate limit not honoured: %d calls", got)
	}
	if calls.Load() < 5 {
		t.Fatalf("expected some calls, got %d", calls.Load())
	}
}

func TestPoolSingleUserPacedOverOneSecond(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	requester := runner.RequesterFunc(func(ctx context.Context) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if err != nil {
			return 0, err
		}
		resp, err := srv.Client().Do(req)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	})

	agg := metrics.NewAggregator()
	clk := clock.New(time.Second, nil)
	p := runner.New(runner.Options{
		VirtualUsers:   1,
		PacingInterval: 200 * time.Millisecond,
		Requester:      requester,
		Check:          runner.StatusCheck(http.StatusOK),
		Sink:           agg,
		Clock:          clk,
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-clk.Done()
	p.Shutdown(time.Second)

	summary, err := agg.Summarize(p.Result().Duration)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.Total < 4 || summary.Total > 5 {
		t.Fatalf("Total = %d, want 4-5", summary.Total)
	}
	if summary.Successes != summary.Total {
		t.Fatalf("Successes = %d, want all %d", summary.Successes, summary.Total)
	}
	if summary.Failures != 0 {
		t.Fatalf("Failures = %d, want 0", summary.Failures)
	}
}
