package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/crankvu/internal/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressReporterLine(t *testing.T) {
	agg := metrics.NewAggregator()
	for i := 0; i < 2000; i++ {
		agg.Record(metrics.Outcome{VU: i % 4, Latency: time.Millisecond, StatusCode: 200, Success: i%10 != 0})
	}
	p := NewProgressReporter(agg, func() int { return 4 }, time.Second, nil)

	line := p.line(2 * time.Second)
	want := "\rVUs: 4 | Requests: 2,000 | Successes: 1,800 | Failures: 200 | RPS: 1,000.0"
	if line != want {
		t.Fatalf("line = %q, want %q", line, want)
	}
	if agg.LateRecords() != 0 {
		t.Fatal("progress must not seal the aggregator")
	}
}

func TestProgressReporterStartStop(t *testing.T) {
	agg := metrics.NewAggregator()
	agg.Record(metrics.Outcome{VU: 0, Latency: time.Millisecond, StatusCode: 200, Success: true})

	var out syncBuffer
	p := NewProgressReporter(agg, nil, 10*time.Millisecond, &out)
	p.Start()
	p.Start() // second call is a no-op

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "Requests: 1") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	p.Stop()
	p.Stop()

	got := out.String()
	if !strings.Contains(got, "VUs: 0 | Requests: 1") {
		t.Fatalf("progress output = %q", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Fatalf("Stop should end the progress line, got %q", got)
	}
}
