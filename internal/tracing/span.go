package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/crankvu/internal/runner"
)

// StartRequestSpan starts a client span for one GET against target.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, target string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "GET",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.String("http.request.method", http.MethodGet))
	if target != "" {
		span.SetAttributes(attribute.String("url.full", target))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

type tracedRequester struct {
	inner  runner.Requester
	tracer trace.Tracer
	target string
}

// WrapRequester records one client span per request. The span context is
// passed to the inner requester so it can propagate it. A nil or disabled
// provider returns r unchanged.
func WrapRequester(r runner.Requester, p *Provider, target string) runner.Requester {
	if p == nil || p.tp == nil {
		return r
	}
	return &tracedRequester{inner: r, tracer: p.Tracer(), target: target}
}

func (t *tracedRequester) Do(ctx context.Context) (int, error) {
	ctx, span := StartRequestSpan(ctx, t.tracer, t.target)
	status, err := t.inner.Do(ctx)
	var attrs []attribute.KeyValue
	if status > 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", status))
	}
	EndSpan(span, err, attrs...)
	return status, err
}
