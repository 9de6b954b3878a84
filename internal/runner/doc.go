// Package runner drives virtual users against a target.
//
// A [Worker] is one virtual user. It loops until its stop context is
// cancelled, the shared [clock.Clock] expires or its iteration budget is
// spent. Each iteration issues exactly one request through a [Requester],
// evaluates a [Check] against the status code and hands exactly one
// [metrics.Outcome] to a [Sink].
//
// A [Pool] owns the workers of a run. It starts a fixed number of them, or
// follows a list of [Stage] values that ramp the virtual user count up and
// down over time.
//
// # Stopping
//
// Stopping uses two contexts. The soft context stops new iterations and
// interrupts pacing. The hard context cancels requests that are still in
// flight:
//
//	pool.Shutdown(5 * time.Second) // soft stop, wait up to 5s, then hard stop
//	pool.Stop()                    // soft and hard stop at once
//
// Both block until every worker has exited, so nothing reaches the Sink
// after they return.
package runner
