// Package metrics aggregates per-request outcomes into a run summary.
//
// Workers hand each [Outcome] to an [Aggregator] by value:
//
//	agg := metrics.NewAggregator()
//	agg.Record(metrics.Outcome{VU: 0, Latency: 12 * time.Millisecond, StatusCode: 200, Success: true})
//
//	// once every worker has exited
//	summary, err := agg.Summarize(elapsed)
//
// Record is safe for concurrent use; a single mutex guards the counters and the
// HdrHistogram that backs the latency percentiles. Summarize seals the aggregator
// and is idempotent. It returns an [AggregationError] when the counters disagree.
//
// [Aggregator.Snapshot] gives a live view for progress output without sealing.
package metrics
