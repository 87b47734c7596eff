package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on pulse spans.
const (
	AttrSink     = attribute.Key("pulse.sink")
	AttrWindows  = attribute.Key("pulse.windows")
	AttrLabel    = attribute.Key("pulse.label")
	AttrTrigger  = attribute.Key("pulse.flush.trigger")
	AttrHTTPCode = attribute.Key("http.response.status_code")
)

// StartFlushSpan starts an internal span covering one flush into sinkName.
func StartFlushSpan(ctx context.Context, tracer trace.Tracer, sinkName, trigger string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pulse flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrSink.String(sinkName), AttrTrigger.String(trigger)),
	)
}

// StartRequestSpan starts a client span for one probe request.
func StartRequestSpan(ctx context.Context, tracer trace.Tracer, method, label string) (context.Context, trace.Span) {
	spanName := method + " request"
	if label != "" {
		spanName = method + " " + label
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.String("http.request.method", method))
	if label != "" {
		span.SetAttributes(AttrLabel.String(label))
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
