package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer used by StartSpan. A nil tracer turns spans into no-ops.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan opens a child span named after the calling operation, e.g. "importer.Service.Import".
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail marks the span as errored. It returns err so it can wrap a return statement.
func Fail(span trace.Span, err error) error {
	if err == nil || span == nil {
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func spanContext(ctx context.Context) (trace.SpanContext, bool) {
	if tracer == nil {
		return trace.SpanContext{}, false
	}
	sc := trace.SpanContextFromContext(ctx)
	return sc, sc.IsValid()
}

// GetTraceID returns the hex trace id of the span in ctx, or "" when nothing is being traced.
func GetTraceID(ctx context.Context) string {
	sc, ok := spanContext(ctx)
	if !ok {
		return ""
	}
	return sc.TraceID().String()
}

// GetSpanID returns the hex span id of the span in ctx, or "".
func GetSpanID(ctx context.Context) string {
	sc, ok := spanContext(ctx)
	if !ok {
		return ""
	}
	return sc.SpanID().String()
}
