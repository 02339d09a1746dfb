package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope under which all convoke spans are
// created.
const tracerName = "github.com/convoke-ai/convoke"

// Tracer returns the tracer convoke spans are created from, backed by
// whatever [trace.TracerProvider] is registered globally. Before
// [InitProvider] runs this is the OTel no-op provider, so span creation is
// always safe.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a span named after the unit of work (an HTTP route, a
// pipeline stage). The caller owns span.End.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the request identifier surfaced to clients in the
// X-Correlation-ID header and stamped on completion logs. It is the active
// trace ID; outside a traced request it is empty.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger binds the default logger to the active trace so log lines emitted
// while serving a request can be joined back to the span that produced them.
// Without an active span it is just [slog.Default].
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
