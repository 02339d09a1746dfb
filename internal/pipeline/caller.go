package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/convoke-ai/convoke/internal/observe"
	"github.com/convoke-ai/convoke/pkg/provider/llm"
)

const defaultModelTimeout = 60 * time.Second

// ModelCaller is the single choke point for model invocations. Every stage
// goes through Call, which applies the per-call timeout, feeds the request
// ledger and emits metrics. Keeping one path guarantees no invocation escapes
// the ledger.
type ModelCaller struct {
	provider llm.Provider
	timeout  time.Duration
	metrics  *observe.Metrics
	log      *slog.Logger
}

// CallerOption customises a ModelCaller.
type CallerOption func(*ModelCaller)

// WithCallTimeout overrides the per-invocation timeout.
func WithCallTimeout(d time.Duration) CallerOption {
	return func(c *ModelCaller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *observe.Metrics) CallerOption {
	return func(c *ModelCaller) { c.metrics = m }
}

// NewModelCaller wraps a provider for use by the pipeline stages.
func NewModelCaller(provider llm.Provider, log *slog.Logger, opts ...CallerOption) *ModelCaller {
	if log == nil {
		log = slog.Default()
	}
	c := &ModelCaller{
		provider: provider,
		timeout:  defaultModelTimeout,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs one model invocation on behalf of a stage. The full request
// and response payloads are written to the ledger; on failure the record
// carries the error string and a nil response. The returned error is a
// *ProviderError unless the parent context was cancelled.
func (c *ModelCaller) Call(ctx context.Context, led *Ledger, stage Stage, desc string, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.provider.Complete(cctx, req)
	dur := time.Since(start)

	c.metrics.RecordModelCall(ctx, string(stage), dur, err)

	rec := CallRecord{
		Stage:       stage,
		Description: desc,
		Timestamp:   start,
		Duration:    dur,
		Request:     req,
	}
	if err != nil {
		rec.Error = err.Error()
		led.Record(rec)
		c.log.Warn("model call failed",
			"stage", stage, "description", desc, "duration", dur, "error", err)
		if cause := ctx.Err(); cause != nil && errors.Is(err, cause) {
			return nil, cause
		}
		return nil, &ProviderError{Stage: stage, Err: err}
	}

	rec.Response = resp
	rec.Usage = resp.Usage
	led.Record(rec)
	c.log.Debug("model call completed",
		"stage", stage, "description", desc, "duration", dur,
		"tool_calls", len(resp.ToolCalls), "tokens", resp.Usage.TotalTokens)
	return resp, nil
}
