// Package logging builds the zap logger used across a run.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/torosent/crankvu/internal/config"
)

// Rotation limits for the log file.
const (
	maxSizeMB  = 50
	maxBackups = 3
	maxAgeDays = 7
)

// New returns a logger for cfg and a func that flushes it and closes the log
// file. Entries go to console, normally stderr, unless cfg.File is set, in
// which case they go to a rotating file instead. A nil console means os.Stderr.
func New(cfg config.LogConfig, console io.Writer) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "", "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, nil, fmt.Errorf("unsupported log format %q: use console or json", cfg.Format)
	}

	var sink zapcore.WriteSyncer
	var file *lumberjack.Logger
	if path := strings.TrimSpace(cfg.File); path != "" {
		file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
		sink = zapcore.AddSync(file)
	} else {
		if console == nil {
			console = os.Stderr
		}
		sink = zapcore.AddSync(console)
	}

	logger := zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller())
	closeFn := func() error {
		err := logger.Sync()
		if file != nil {
			err = errors.Join(err, file.Close())
		}
		return err
	}
	return logger, closeFn, nil
}

// ParseLevel maps debug, info, warn and error to zap levels. Empty means warn.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "", "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unsupported log level %q: use debug, info, warn or error", s)
	}
}
