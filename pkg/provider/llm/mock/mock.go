// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the requests the pipeline sends and to
// feed controlled responses without a live LLM backend. Responses can either
// be fixed (CompleteResponse / CompleteErr) or scripted as an ordered queue
// (Script), which is the natural fit for exercising the retry loop where the
// first call requests tools and the second returns plain text.
//
// Example:
//
//	p := &mock.Provider{Script: []mock.Reply{
//	    {Response: &llm.CompletionResponse{ToolCalls: []types.ToolCall{{ID: "a", Name: "calculate"}}}},
//	    {Response: &llm.CompletionResponse{Content: "4"}},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/types"
)

// Reply is one scripted outcome for a Complete call. Exactly one of Response
// or Err should be set.
type Reply struct {
	Response *llm.CompletionResponse
	Err      error
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// When Script is non-empty, Complete consumes one Reply per call in order;
// calls past the end of the script fall back to CompleteResponse/CompleteErr.
// Zero values cause methods to return zero values and nil errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Script is an ordered queue of replies consumed by successive Complete
	// calls.
	Script []Reply

	// CompleteResponse is returned by Complete when the script is exhausted
	// or empty. May be nil (returns an empty response).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned by Complete when the script is
	// exhausted or empty.
	CompleteErr error

	// TokenCount is returned by CountTokens.
	TokenCount int

	// CountTokensErr, if non-nil, is returned as the error from CountTokens.
	CountTokensErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	scriptPos int
}

// Compile-time check: Provider must implement llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted Reply, or the fixed
// CompleteResponse/CompleteErr once the script is exhausted.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.scriptPos < len(p.Script) {
		reply := p.Script[p.scriptPos]
		p.scriptPos++
		if reply.Err != nil {
			return nil, reply.Err
		}
		if reply.Response != nil {
			return reply.Response, nil
		}
		return &llm.CompletionResponse{}, nil
	}

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.CompleteResponse != nil {
		return p.CompleteResponse, nil
	}
	return &llm.CompletionResponse{}, nil
}

// CountTokens returns the configured TokenCount and CountTokensErr.
func (p *Provider) CountTokens(_ []types.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.TokenCount, p.CountTokensErr
}

// Capabilities returns the configured ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a snapshot of all recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}
