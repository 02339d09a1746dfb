package resilience

import (
	"context"
	"testing"

	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/provider/llm/mock"
)

func TestProviderChainFailsOver(t *testing.T) {
	t.Parallel()
	primary := &mock.Provider{CompleteErr: errBoom}
	backup := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "from backup"},
	}

	chain := NewProviderChain(primary, "primary", FallbackConfig{})
	chain.AddFallback("backup", backup)

	resp, err := chain.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from backup" {
		t.Errorf("content = %q, want %q", resp.Content, "from backup")
	}
}

func TestProviderChainCapabilitiesFromPrimary(t *testing.T) {
	t.Parallel()
	primary := &mock.Provider{}
	primary.ModelCapabilities.ContextWindow = 8192

	chain := NewProviderChain(primary, "primary", FallbackConfig{})
	if got := chain.Capabilities().ContextWindow; got != 8192 {
		t.Errorf("context window = %d, want 8192", got)
	}
}
