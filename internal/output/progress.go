package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/crankvu/internal/metrics"
)

// Snapshotter exposes live statistics without ending the run.
type Snapshotter interface {
	Snapshot(elapsed time.Duration) metrics.Summary
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   Snapshotter
	active   func() int
	interval time.Duration
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	running  int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
// active reports the current number of virtual users and may be nil.
func NewProgressReporter(source Snapshotter, active func() int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		active:   active,
		interval: interval,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return // already running
	}
	p.start = time.Now()
	go p.run()
}

// Stop halts progress updates and ends the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		close(p.done)
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, p.line(time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line(elapsed time.Duration) string {
	s := p.source.Snapshot(elapsed)
	vus := 0
	if p.active != nil {
		vus = p.active()
	}
	return printer.Sprintf("\rVUs: %d | Requests: %d | Successes: %d | Failures: %d | RPS: %.1f",
		vus, s.Total, s.Successes, s.Failures, s.RequestsPerSec)
}
