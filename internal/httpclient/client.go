package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// NewClient returns an http.Client tuned for many concurrent connections to
// one host. maxConnsPerHost <= 0 leaves the per-host connection count unlimited.
func NewClient(timeout time.Duration, maxConnsPerHost int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if maxConnsPerHost < 0 {
		maxConnsPerHost = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	idlePerHost := 32
	if maxConnsPerHost > idlePerHost {
		idlePerHost = maxConnsPerHost
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   idlePerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// GetRequester sends GET requests to a fixed URL with net/http.
type GetRequester struct {
	client    *http.Client
	target    string
	host      string
	headers   http.Header
	propagate bool
}

// NewGetRequester validates target and headers and returns a requester.
// A nil client uses NewClient(30s, 0).
func NewGetRequester(client *http.Client, target string, headers map[string]string, propagate bool) (*GetRequester, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	if _, err := url.Parse(target); err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	hdrs, err := canonicalHeaders(headers)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = NewClient(30*time.Second, 0)
	}

	r := &GetRequester{client: client, target: target, headers: hdrs, propagate: propagate}
	if host := hdrs.Get("Host"); host != "" {
		r.host = host
		hdrs.Del("Host")
	}
	return r, nil
}

// Do sends one request and returns its status code. The body is read to the
// end and discarded so the connection can be reused.
func (r *GetRequester) Do(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.target, nil)
	if err != nil {
		return 0, err
	}
	req.Header = r.headers.Clone()
	if r.host != "" {
		req.Host = r.host
	}
	if r.propagate {
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, nil
}

func canonicalHeaders(in map[string]string) (http.Header, error) {
	headers := make(http.Header, len(in))
	for key, value := range in {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}
	return headers, nil
}
