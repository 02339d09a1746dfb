package resilience

import (
	"context"

	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/types"
)

// ProviderChain implements [llm.Provider] with automatic failover across
// multiple model backends. Each backend has its own circuit breaker; when the
// primary fails or its breaker is open, the next healthy fallback is tried.
type ProviderChain struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*ProviderChain)(nil)

// NewProviderChain creates a chain with primary as the preferred backend.
func NewProviderChain(primary llm.Provider, primaryName string, cfg FallbackConfig) *ProviderChain {
	return &ProviderChain{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional provider, tried after all earlier ones.
func (c *ProviderChain) AddFallback(name string, provider llm.Provider) {
	c.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider.
func (c *ProviderChain) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(c.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// CountTokens delegates to the first healthy provider's token counter.
func (c *ProviderChain) CountTokens(messages []types.Message) (int, error) {
	return ExecuteWithResult(c.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities returns the primary's capabilities. Capabilities are static
// metadata and do not participate in failover.
func (c *ProviderChain) Capabilities() types.ModelCapabilities {
	if len(c.group.entries) > 0 {
		return c.group.entries[0].value.Capabilities()
	}
	return types.ModelCapabilities{}
}
