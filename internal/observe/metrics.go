// Package observe provides application-wide observability primitives for
// Convoke: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Convoke metrics.
const meterName = "github.com/convoke-ai/convoke"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation. All convenience methods tolerate a nil receiver
// so components can run without metrics wired.
type Metrics struct {
	// --- Latency histograms ---

	// RequestDuration tracks end-to-end pipeline request latency.
	RequestDuration metric.Float64Histogram

	// ModelCallDuration tracks model invocation latency per pipeline stage.
	ModelCallDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// Requests counts served pipeline requests. Use with attribute:
	//   attribute.String("outcome", ...)
	Requests metric.Int64Counter

	// ModelCalls counts model invocations. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("status", ...)
	ModelCalls metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- Gauges ---

	// ActiveRequests tracks the number of in-flight pipeline requests.
	ActiveRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// model-call latencies, which dominate request time.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RequestDuration, err = m.Float64Histogram("convoke.request.duration",
		metric.WithDescription("End-to-end pipeline request latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelCallDuration, err = m.Float64Histogram("convoke.model_call.duration",
		metric.WithDescription("Model invocation latency by pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("convoke.tool_execution.duration",
		metric.WithDescription("Tool execution latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Requests, err = m.Int64Counter("convoke.requests",
		metric.WithDescription("Total served pipeline requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ModelCalls, err = m.Int64Counter("convoke.model.calls",
		metric.WithDescription("Total model invocations by stage and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("convoke.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRequests, err = m.Int64UpDownCounter("convoke.active_requests",
		metric.WithDescription("Number of in-flight pipeline requests."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("convoke.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRequest records one served pipeline request with its outcome and
// total latency.
func (m *Metrics) RecordRequest(ctx context.Context, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.Requests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.RequestDuration.Record(ctx, dur.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordModelCall records one model invocation for a pipeline stage.
func (m *Metrics) RecordModelCall(ctx context.Context, stage string, dur time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ModelCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
	m.ModelCallDuration.Record(ctx, dur.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordToolCall records one tool invocation. errKind is the failure
// classification, or empty on success.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, dur time.Duration, errKind string) {
	if m == nil {
		return
	}
	status := "ok"
	if errKind != "" {
		status = errKind
	}
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
	m.ToolExecutionDuration.Record(ctx, dur.Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}
