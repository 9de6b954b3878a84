package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/torosent/crankvu/internal/clock"
	"github.com/torosent/crankvu/internal/config"
	"github.com/torosent/crankvu/internal/httpclient"
	"github.com/torosent/crankvu/internal/logging"
	"github.com/torosent/crankvu/internal/metrics"
	"github.com/torosent/crankvu/internal/output"
	"github.com/torosent/crankvu/internal/runner"
	"github.com/torosent/crankvu/internal/threshold"
	"github.com/torosent/crankvu/internal/tracing"
)

const (
	progressInterval = time.Second
	tracingFlushWait = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return execute(ctx, cfg, ulid.Make().String(), logger, stdout, stderr)
}

// execute runs one load test. Cancelling ctx stops the run early; whatever
// was recorded up to then is still reported.
func execute(ctx context.Context, cfg *config.Config, runID string, logger *zap.Logger, stdout, stderr io.Writer) error {
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	provider, err := tracing.Init(ctx, cfg.Tracing, runID)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), tracingFlushWait)
		defer cancel()
		if err := provider.Shutdown(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	requester, closeRequester, err := newRequester(cfg, provider.ShouldPropagate())
	if err != nil {
		return err
	}
	defer closeRequester()

	agg := metrics.NewAggregator()
	var sink runner.Sink = agg
	if cfg.LogErrors {
		sink = runner.WithFailureLogging(sink, logger)
	}

	clk := clock.New(cfg.TotalDuration(), nil)
	pool := runner.New(runner.Options{
		VirtualUsers:   cfg.VirtualUsers,
		Stages:         toRunnerStages(cfg.Stages),
		Iterations:     cfg.Iterations,
		PacingInterval: cfg.PacingInterval,
		RatePerSecond:  cfg.Rate,
		Requester:      tracing.WrapRequester(requester, provider, cfg.TargetURL),
		Check:          runner.StatusCheck(cfg.ExpectedStatus),
		Sink:           sink,
		Clock:          clk,
		Logger:         logger,
	})

	logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("target", cfg.TargetURL),
		zap.Int("virtual_users", cfg.MaxVirtualUsers()),
		zap.Duration("duration", clk.Duration()),
		zap.String("engine", string(cfg.Engine)),
	)

	var progress *output.ProgressReporter
	if cfg.Progress && cfg.Output == config.OutputText {
		progress = output.NewProgressReporter(agg, pool.Active, progressInterval, stderr)
		progress.Start()
	}

	// Workers get their own root context so a signal goes through the
	// graceful stop below instead of cancelling requests outright.
	if err := pool.Start(context.Background()); err != nil {
		return err
	}

	select {
	case <-clk.Done():
	case <-pool.Done():
	case <-ctx.Done():
		logger.Warn("interrupted, stopping virtual users",
			zap.Duration("remaining", clk.Remaining()),
			zap.Int64("requests", agg.Total()),
			zap.Duration("graceful_stop", cfg.GracefulStop),
		)
	}
	pool.Shutdown(cfg.GracefulStop)
	if progress != nil {
		progress.Stop()
	}

	result := pool.Result()
	summary, err := agg.Summarize(result.Duration)
	if err != nil {
		return err
	}
	if late := agg.LateRecords(); late > 0 {
		return &metrics.AggregationError{Reason: fmt.Sprintf("%d outcomes recorded after the run ended", late)}
	}
	summary.RunID = runID

	logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int64("requests", summary.Total),
		zap.Int64("failures", summary.Failures),
		zap.Int64("iterations", result.Iterations),
		zap.Duration("elapsed", result.Duration),
	)

	if err := writeReport(stdout, cfg.Output, summary); err != nil {
		return err
	}

	if len(thresholds) == 0 {
		return nil
	}
	results := threshold.NewEvaluator(thresholds).Evaluate(summary)
	thresholdOut := stdout
	if cfg.Output != config.OutputText {
		thresholdOut = stderr
	}
	output.PrintThresholds(thresholdOut, results)
	return threshold.Check(results)
}

func writeReport(w io.Writer, format config.OutputFormat, s metrics.Summary) error {
	switch format {
	case config.OutputJSON:
		return output.PrintJSONReport(w, s)
	case config.OutputYAML:
		return output.PrintYAMLReport(w, s)
	default:
		output.PrintReport(w, s)
		return nil
	}
}

// newRequester builds the engine named in cfg. The returned func releases
// its connections.
func newRequester(cfg *config.Config, propagate bool) (runner.Requester, func(), error) {
	switch cfg.Engine {
	case config.EngineFastHTTP:
		// No request outlives the run plus its drain window.
		r, err := httpclient.NewFastRequester(cfg.TargetURL, cfg.Headers, httpclient.FastOptions{
			Timeout:   cfg.Timeout,
			MaxConns:  cfg.MaxVirtualUsers(),
			Propagate: propagate,
			Ceiling:   cfg.TotalDuration() + cfg.GracefulStop,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		client := httpclient.NewClient(cfg.Timeout, cfg.MaxVirtualUsers())
		r, err := httpclient.NewGetRequester(client, cfg.TargetURL, cfg.Headers, propagate)
		if err != nil {
			return nil, nil, err
		}
		return r, client.CloseIdleConnections, nil
	}
}

func toRunnerStages(stages []config.Stage) []runner.Stage {
	if len(stages) == 0 {
		return nil
	}
	out := make([]runner.Stage, len(stages))
	for i, s := range stages {
		out[i] = runner.Stage{Duration: s.Duration, Target: s.Target}
	}
	return out
}
