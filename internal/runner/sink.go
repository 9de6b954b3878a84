package runner

import (
	"go.uber.org/zap"

	"github.com/torosent/crankvu/internal/metrics"
)

// loggingSink logs failed outcomes before passing them on.
type loggingSink struct {
	inner  Sink
	logger *zap.Logger
}

// WithFailureLogging wraps a Sink to log every failed outcome at warn level.
func WithFailureLogging(sink Sink, logger *zap.Logger) Sink {
	if logger == nil {
		return sink
	}
	return &loggingSink{inner: sink, logger: logger}
}

func (l *loggingSink) Record(o metrics.Outcome) {
	if !o.Success {
		fields := []zap.Field{
			zap.Int("vu", o.VU),
			zap.Int("iteration", o.Iteration),
			zap.Duration("latency", o.Latency),
		}
		if o.TransportFailed() {
			fields = append(fields,
				zap.String("kind", o.ErrorKind),
				zap.String("error", o.Error),
				zap.Bool("interrupted", o.Interrupted),
			)
			l.logger.Warn("request failed", fields...)
		} else {
			fields = append(fields, zap.Int("status", o.StatusCode))
			l.logger.Warn("check failed", fields...)
		}
	}
	l.inner.Record(o)
}
