package metrics

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// AggregationError means the aggregator's counters disagree with each other.
// It can only happen if an update was lost or counted twice.
type AggregationError struct {
	Reason string
}

func (e *AggregationError) Error() string {
	return "aggregation invariant broken: " + e.Reason
}

// Aggregator records outcomes from many concurrent workers.
type Aggregator struct {
	mu              sync.Mutex
	hist            *hdrhistogram.Histogram
	total           int64
	successes       int64
	failures        int64
	checkFailures   int64
	transportErrors int64
	interrupted     int64
	minLatency      time.Duration
	maxLatency      time.Duration
	sumLatency      time.Duration
	statusCodes     map[int]int64
	errorKinds      map[string]int64
	perVU           map[int]int64

	sealed  bool
	summary Summary
	sumErr  error
	late    atomic.Int64
}

func NewAggregator() *Aggregator {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &Aggregator{
		hist:        hdrhistogram.New(1, 60_000_000, 3),
		statusCodes: make(map[int]int64),
		errorKinds:  make(map[string]int64),
		perVU:       make(map[int]int64),
	}
}

// Record adds one outcome. Safe for concurrent use.
// Outcomes recorded after Summarize are not counted; see LateRecords.
func (a *Aggregator) Record(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		a.late.Add(1)
		return
	}

	us := o.Latency.Microseconds()
	if us < a.hist.LowestTrackableValue() {
		us = a.hist.LowestTrackableValue()
	}
	if us > a.hist.HighestTrackableValue() {
		us = a.hist.HighestTrackableValue()
	}
	_ = a.hist.RecordValue(us)

	a.total++
	a.sumLatency += o.Latency
	if a.total == 1 || o.Latency < a.minLatency {
		a.minLatency = o.Latency
	}
	if o.Latency > a.maxLatency {
		a.maxLatency = o.Latency
	}
	a.perVU[o.VU]++

	if o.StatusCode > 0 {
		a.statusCodes[o.StatusCode]++
	}

	switch {
	case o.Success:
		a.successes++
	case o.TransportFailed():
		a.failures++
		a.transportErrors++
		kind := o.ErrorKind
		if kind == "" {
			kind = "Unknown error"
		}
		a.errorKinds[kind]++
	default:
		a.failures++
		a.checkFailures++
	}
	if o.Interrupted {
		a.interrupted++
	}
}

// Snapshot returns the current statistics without sealing the aggregator.
func (a *Aggregator) Snapshot(elapsed time.Duration) Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return a.summary.clone()
	}
	return a.buildLocked(elapsed)
}

// Summarize seals the aggregator and returns the final Summary.
// Only call it once every worker has stopped. Later calls return the same value.
func (a *Aggregator) Summarize(elapsed time.Duration) (Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.sealed {
		a.summary = a.buildLocked(elapsed)
		a.sumErr = a.verifyLocked()
		a.sealed = true
	}
	return a.summary.clone(), a.sumErr
}

// LateRecords counts outcomes that arrived after Summarize sealed the aggregator.
func (a *Aggregator) LateRecords() int64 {
	return a.late.Load()
}

// Total returns the number of outcomes recorded so far.
func (a *Aggregator) Total() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

func (a *Aggregator) verifyLocked() error {
	if a.successes+a.failures != a.total {
		return &AggregationError{Reason: fmt.Sprintf("successes (%d) + failures (%d) != total (%d)", a.successes, a.failures, a.total)}
	}
	if a.checkFailures+a.transportErrors != a.failures {
		return &AggregationError{Reason: fmt.Sprintf("check failures (%d) + transport errors (%d) != failures (%d)", a.checkFailures, a.transportErrors, a.failures)}
	}
	if a.hist.TotalCount() != a.total {
		return &AggregationError{Reason: fmt.Sprintf("histogram count (%d) != total (%d)", a.hist.TotalCount(), a.total)}
	}
	var perVU int64
	for _, n := range a.perVU {
		perVU += n
	}
	if perVU != a.total {
		return &AggregationError{Reason: fmt.Sprintf("per-VU sum (%d) != total (%d)", perVU, a.total)}
	}
	return nil
}

func (a *Aggregator) buildLocked(elapsed time.Duration) Summary {
	s := Summary{
		Total:           a.total,
		Successes:       a.successes,
		Failures:        a.failures,
		CheckFailures:   a.checkFailures,
		TransportErrors: a.transportErrors,
		Interrupted:     a.interrupted,
		VirtualUsers:    len(a.perVU),
		MinLatency:      a.minLatency,
		MaxLatency:      a.maxLatency,
		Duration:        elapsed,
	}

	if a.total > 0 {
		s.MeanLatency = time.Duration(int64(a.sumLatency) / a.total)
		s.ChecksPassRate = float64(a.successes) / float64(a.total)
	}
	if a.hist.TotalCount() > 0 {
		s.P50Latency = time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P90Latency = time.Duration(a.hist.ValueAtQuantile(90)) * time.Microsecond
		s.P95Latency = time.Duration(a.hist.ValueAtQuantile(95)) * time.Microsecond
		s.P99Latency = time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	if elapsed > 0 && a.total > 0 {
		s.RequestsPerSec = float64(a.total) / elapsed.Seconds()
	}

	if len(a.statusCodes) > 0 {
		s.StatusCodes = make(map[string]int64, len(a.statusCodes))
		for code, n := range a.statusCodes {
			s.StatusCodes[strconv.Itoa(code)] = n
		}
	}
	if len(a.errorKinds) > 0 {
		s.Errors = make(map[string]int64, len(a.errorKinds))
		for kind, n := range a.errorKinds {
			s.Errors[kind] = n
		}
	}

	s.fillMillis()
	return s
}
