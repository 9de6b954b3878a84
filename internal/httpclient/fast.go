package httpclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// defaultCeiling bounds a request that has neither a timeout nor a ceiling.
const defaultCeiling = 5 * time.Minute

// FastOptions configures a FastRequester.
type FastOptions struct {
	// Timeout bounds each request. Zero means no per-request timeout.
	Timeout time.Duration
	// MaxConns caps connections per host. Zero keeps fasthttp's default.
	MaxConns int
	// Propagate injects W3C trace context headers.
	Propagate bool
	// Ceiling is the deadline used when Timeout is zero and the context has
	// none. fasthttp cannot abort a call in flight, so every call gets one.
	// Zero means five minutes.
	Ceiling time.Duration
}

// FastRequester sends GET requests to a fixed URL with fasthttp.
type FastRequester struct {
	client    *fasthttp.Client
	target    string
	headers   http.Header
	timeout   time.Duration
	ceiling   time.Duration
	propagate bool
}

type fastResult struct {
	status int
	err    error
}

// NewFastRequester returns a fasthttp based requester.
func NewFastRequester(target string, headers map[string]string, opts FastOptions) (*FastRequester, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	hdrs, err := canonicalHeaders(headers)
	if err != nil {
		return nil, err
	}
	timeout := max(opts.Timeout, 0)
	ceiling := opts.Ceiling
	if ceiling <= 0 {
		ceiling = defaultCeiling
	}

	client := &fasthttp.Client{
		MaxIdleConnDuration:    90 * time.Second,
		DisablePathNormalizing: true,
	}
	if opts.MaxConns > 0 {
		client.MaxConnsPerHost = opts.MaxConns
	}

	return &FastRequester{
		client:    client,
		target:    target,
		headers:   hdrs,
		timeout:   timeout,
		ceiling:   ceiling,
		propagate: opts.Propagate,
	}, nil
}

// Do sends one request and returns its status code. fasthttp does not take a
// context, so the call runs in its own goroutine and Do returns as soon as
// ctx is done. The goroutine releases its buffers when the call completes.
func (r *FastRequester) Do(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	req.SetRequestURI(r.target)
	req.Header.SetMethod(fasthttp.MethodGet)
	for key, values := range r.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if r.propagate {
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		for key, v := range carrier {
			req.Header.Set(key, v)
		}
	}

	deadline, hasDeadline := ctx.Deadline()
	limit := r.timeout
	if limit == 0 {
		limit = r.ceiling
	}
	if bound := time.Now().Add(limit); !hasDeadline || bound.Before(deadline) {
		deadline = bound
	}

	done := make(chan fastResult, 1)
	go func() {
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		if err := r.client.DoDeadline(req, resp, deadline); err != nil {
			done <- fastResult{err: err}
			return
		}
		done <- fastResult{status: resp.StatusCode()}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return res.status, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close releases idle connections.
func (r *FastRequester) Close() {
	r.client.CloseIdleConnections()
}
