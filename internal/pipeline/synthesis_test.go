package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/provider/llm/mock"
	"github.com/convoke-ai/convoke/pkg/types"
)

func TestSynthesizeSendsSanitizedTranscript(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "final answer"}}
	s := NewSynthesizer(newTestCaller(p), testLogger())
	led := NewLedger()

	got := s.Synthesize(context.Background(), led, pairedTranscript(), 0.7, false)
	if got != "final answer" {
		t.Errorf("reply = %q", got)
	}

	req := p.Calls()[0].Req
	if len(req.Tools) != 0 {
		t.Errorf("synthesis request carries tools: %+v", req.Tools)
	}
	if req.ToolChoice != types.ToolChoiceNone {
		t.Errorf("tool choice = %q, want none", req.ToolChoice)
	}
	for _, m := range req.Messages {
		if m.Role == types.RoleTool || len(m.ToolCalls) > 0 {
			t.Errorf("unsanitized message in synthesis request: %+v", m)
		}
	}
	if led.Len() != 1 || led.Records()[0].Stage != StageSynthesis {
		t.Errorf("ledger = %+v", led.Records())
	}
}

func TestSynthesizeExhaustedHint(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "partial answer"}}
	s := NewSynthesizer(newTestCaller(p), testLogger())

	s.Synthesize(context.Background(), NewLedger(), pairedTranscript(), 0, true)

	req := p.Calls()[0].Req
	last := req.Messages[len(req.Messages)-1]
	if last.Role != types.RoleSystem || !strings.Contains(last.Content, "Do not invent tool results") {
		t.Errorf("exhausted hint missing, last message = %+v", last)
	}
}

func TestSynthesizeFallbackReply(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		p    *mock.Provider
	}{
		{"provider error", &mock.Provider{CompleteErr: errProviderDown}},
		{"empty content", &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  "}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := NewSynthesizer(newTestCaller(tc.p), testLogger())
			got := s.Synthesize(context.Background(), NewLedger(), pairedTranscript(), 0, false)
			if got != fallbackReply {
				t.Errorf("reply = %q, want fallback", got)
			}
		})
	}
}
