package metrics

import "time"

// Outcome is the result of one dispatched request. Every dispatched request
// produces exactly one Outcome, including transport failures and requests cut
// short by a hard stop.
type Outcome struct {
	Timestamp   time.Time
	VU          int
	Iteration   int
	Latency     time.Duration
	StatusCode  int    // 0 when no response was received
	Success     bool   // result of the check predicate
	Error       string // transport failure reason; empty when a response arrived
	ErrorKind   string // friendly category for Error
	Interrupted bool   // request was cancelled by a hard stop
}

// TransportFailed reports whether the request never produced a response.
func (o Outcome) TransportFailed() bool {
	return o.Error != ""
}

// CheckFailed reports whether a response arrived but failed the check.
func (o Outcome) CheckFailed() bool {
	return !o.Success && o.Error == ""
}
