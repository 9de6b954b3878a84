package tracing

import sdktrace "go.opentelemetry.io/otel/sdk/trace"

// NewProvider wraps a test-owned TracerProvider.
func NewProvider(tp *sdktrace.TracerProvider, propagate bool) *Provider {
	return newProvider(tp, propagate)
}
