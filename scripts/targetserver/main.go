// Command targetserver is a small HTTP endpoint for trying crankvu locally.
//
//	go run ./scripts/targetserver --port 8080 --delay 5ms --fail-every 10
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/torosent/crankvu/internal/config"
	"github.com/torosent/crankvu/internal/logging"
)

type options struct {
	port      int
	delay     time.Duration
	failEvery int64
	logLevel  string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	fs := pflag.NewFlagSet("targetserver", pflag.ContinueOnError)
	fs.IntVar(&opts.port, "port", 8080, "Port to listen on")
	fs.DurationVar(&opts.delay, "delay", 0, "Artificial latency added to every response")
	fs.Int64Var(&opts.failEvery, "fail-every", 0, "Answer every Nth request with 500 (0 disables)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.port <= 0 || opts.port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", opts.port)
	}
	if opts.delay < 0 || opts.failEvery < 0 {
		return errors.New("delay and fail-every must not be negative")
	}

	logger, closeLog, err := logging.New(config.LogConfig{Level: opts.logLevel, Format: "console"}, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	app := newApp(opts, logger)
	addr := fmt.Sprintf(":%d", opts.port)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr),
			zap.Duration("delay", opts.delay), zap.Int64("fail_every", opts.failEvery))
		errCh <- app.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down")
	return app.ShutdownWithTimeout(5 * time.Second)
}

// newApp answers GET / with 200, or 500 on every failEvery-th request.
func newApp(opts options, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "crankvu-targetserver",
		DisableStartupMessage: true,
	})

	var served atomic.Int64
	app.Get("/", func(c *fiber.Ctx) error {
		n := served.Add(1)
		if opts.delay > 0 {
			time.Sleep(opts.delay)
		}
		if opts.failEvery > 0 && n%opts.failEvery == 0 {
			logger.Debug("injected failure", zap.Int64("request", n))
			return c.Status(fiber.StatusInternalServerError).SendString("injected failure\n")
		}
		return c.SendString("ok\n")
	})
	return app
}
