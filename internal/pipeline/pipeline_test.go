package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/convoke-ai/convoke/internal/agent"
	"github.com/convoke-ai/convoke/internal/history"
	"github.com/convoke-ai/convoke/internal/toolexec"
	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/provider/llm/mock"
	"github.com/convoke-ai/convoke/pkg/types"
)

func interpretationReply(interpreted string) mock.Reply {
	return textReply(`{"interpreted": "` + interpreted + `", "intent": "request", "confidence": 0.9}`)
}

func classificationReply(requiresTools bool) mock.Reply {
	if requiresTools {
		return textReply(`{"requires_tools": true, "confidence": 0.9, "reasoning": "tools needed"}`)
	}
	return textReply(`{"requires_tools": false, "confidence": 0.9, "reasoning": "general knowledge"}`)
}

func newTestPipeline(t *testing.T, p llm.Provider, exec toolexec.Executor, invOpts ...toolexec.InvokerOption) (*Pipeline, *history.MemoryStore) {
	t.Helper()
	inv, err := toolexec.NewInvoker(exec, invOpts...)
	if err != nil {
		t.Fatalf("NewInvoker: %v", err)
	}
	agents, err := agent.NewRegistry([]*agent.Agent{
		{ID: "assistant", SystemPrompt: "You are a helpful assistant."},
		{ID: "reader", SystemPrompt: "Read-only assistant.", AllowedTools: []string{"calculate"}},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	log := testLogger()
	caller := NewModelCaller(p, log)
	store := history.NewMemoryStore()
	pipe := New(
		NewInterpreter(caller, log),
		NewClassifier(caller, log),
		NewOrchestrator(caller, inv, log),
		NewSynthesizer(caller, log),
		inv, agents, store, log,
	)
	return pipe, store
}

func stages(recs []CallRecord) []Stage {
	out := make([]Stage, len(recs))
	for i, r := range recs {
		out[i] = r.Stage
	}
	return out
}

// Full happy path: two tools requested in one round, both succeed, answer
// synthesized from the model's summary of the results.
func TestHandleToolRound(t *testing.T) {
	t.Parallel()
	exec := newStubExec()
	exec.handlers["calculate"] = func(context.Context, string) (string, error) { return "4", nil }
	exec.handlers["send_email"] = func(context.Context, string) (string, error) { return "sent", nil }

	p := &mock.Provider{Script: []mock.Reply{
		interpretationReply("Compute 2+2 and email the result to Bob"),
		classificationReply(true),
		toolCallReply(
			types.ToolCall{ID: "call-1", Name: "calculate", Arguments: `{"expr":"2+2"}`},
			types.ToolCall{ID: "call-2", Name: "send_email", Arguments: `{"to":"bob"}`},
		),
		textReply("2+2 is 4 and the email went out to Bob."),
		textReply("The answer is 4, and I have emailed it to Bob."),
	}}
	pipe, _ := newTestPipeline(t, p, exec)

	resp, err := pipe.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		AgentID:        "assistant",
		UserMessage:    "compute 2+2 and email it to bob",
		Debug:          true,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Outcome != OutcomeDone {
		t.Errorf("outcome = %s, want done", resp.Outcome)
	}
	if resp.ReplyText != "The answer is 4, and I have emailed it to Bob." {
		t.Errorf("reply = %q", resp.ReplyText)
	}
	if got := exec.executedTools(); len(got) != 2 {
		t.Errorf("executed tools = %v", got)
	}

	want := []Stage{StageInterpretation, StageClassification, StageToolCall, StageToolCall, StageSynthesis}
	got := stages(resp.Ledger)
	if len(got) != len(want) {
		t.Fatalf("ledger stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ledger stage %d = %s, want %s", i, got[i], want[i])
		}
	}

	// Synthesis request (the last call) must be sanitized and tool-free.
	synthReq := p.Calls()[len(p.Calls())-1].Req
	if len(synthReq.Tools) != 0 {
		t.Error("synthesis request carries tools")
	}
	for _, m := range synthReq.Messages {
		if m.Role == types.RoleTool || len(m.ToolCalls) > 0 {
			t.Errorf("unsanitized message reached synthesis: %+v", m)
		}
	}
}

// A tool that exceeds its deadline becomes a failed tool-role message; the
// model absorbs the failure and the request still completes.
func TestHandleToolTimeout(t *testing.T) {
	t.Parallel()
	exec := newStubExec()
	exec.handlers["calculate"] = func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	p := &mock.Provider{Script: []mock.Reply{
		interpretationReply("Compute the big sum"),
		classificationReply(true),
		toolCallReply(types.ToolCall{ID: "call-1", Name: "calculate"}),
		textReply("The calculator timed out."),
		textReply("Sorry, the calculation service did not respond in time."),
	}}
	pipe, _ := newTestPipeline(t, p, exec, toolexec.WithCallTimeout(10*time.Millisecond))

	resp, err := pipe.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		AgentID:        "assistant",
		UserMessage:    "compute the big sum",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Outcome != OutcomeDone {
		t.Errorf("outcome = %s, want done", resp.Outcome)
	}
	if resp.ReplyText == fallbackReply {
		t.Error("timeout degraded into fallback reply; synthesis should have run")
	}
}

// A near-miss tool name is corrected through the alias table and dispatched
// to the canonical tool; the model is never told it misspoke.
func TestHandleAliasedToolName(t *testing.T) {
	t.Parallel()
	exec := newStubExec()
	exec.handlers["send_email"] = func(context.Context, string) (string, error) { return "sent", nil }

	p := &mock.Provider{Script: []mock.Reply{
		interpretationReply("Email the report to Carol"),
		classificationReply(true),
		toolCallReply(types.ToolCall{ID: "call-1", Name: "gmail_send_message", Arguments: `{"to":"carol"}`}),
		textReply("Sent the report to Carol."),
		textReply("Done, the report is on its way to Carol."),
	}}
	pipe, _ := newTestPipeline(t, p, exec)

	resp, err := pipe.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		AgentID:        "assistant",
		UserMessage:    "email the report to carol",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got := exec.executedTools()
	if len(got) != 1 || got[0] != "send_email" {
		t.Errorf("executed tools = %v, want [send_email]", got)
	}
	if resp.ReplyText != "Done, the report is on its way to Carol." {
		t.Errorf("reply = %q", resp.ReplyText)
	}
}

// No tools required: interpretation, classification, synthesis only.
func TestHandleNoTools(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Script: []mock.Reply{
		interpretationReply("What is the capital of France?"),
		classificationReply(false),
		textReply("The capital of France is Paris."),
	}}
	pipe, _ := newTestPipeline(t, p, newStubExec())

	resp, err := pipe.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		AgentID:        "assistant",
		UserMessage:    "what is the capital of france?",
		Debug:          true,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := []Stage{StageInterpretation, StageClassification, StageSynthesis}
	got := stages(resp.Ledger)
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("ledger stages = %v, want %v", got, want)
	}
}

// The classifier only sees tools the agent is allowed to use.
func TestHandleAgentAllowlistFiltersCatalogue(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Script: []mock.Reply{
		interpretationReply("Add two and two"),
		classificationReply(false),
		textReply("Four."),
	}}
	pipe, _ := newTestPipeline(t, p, newStubExec())

	_, err := pipe.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		AgentID:        "reader",
		UserMessage:    "add two and two",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	classifyReq := p.Calls()[1].Req
	prompt := classifyReq.Messages[0].Content
	if strings.Contains(prompt, "send_email") {
		t.Errorf("classifier saw disallowed tool: %q", prompt)
	}
	if !strings.Contains(prompt, "calculate") {
		t.Errorf("classifier missing allowed tool: %q", prompt)
	}
}

// Synthesis failure yields the apologetic fallback, never an error.
func TestHandleSynthesisFailureFallsBack(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Script: []mock.Reply{
		interpretationReply("Say hi"),
		classificationReply(false),
		{Err: errProviderDown},
	}}
	pipe, _ := newTestPipeline(t, p, newStubExec())

	resp, err := pipe.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		AgentID:        "assistant",
		UserMessage:    "say hi",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.ReplyText != fallbackReply {
		t.Errorf("reply = %q, want fallback", resp.ReplyText)
	}
}

func TestHandlePersistsConversation(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Script: []mock.Reply{
		interpretationReply("Say hi"),
		classificationReply(false),
		textReply("Hello!"),
	}}
	pipe, store := newTestPipeline(t, p, newStubExec())

	_, err := pipe.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		AgentID:        "assistant",
		UserMessage:    "say hi",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	msgs, err := store.Window(context.Background(), "conv-1", 10)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("stored messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != types.RoleUser || msgs[0].Content != "say hi" {
		t.Errorf("stored user message = %+v", msgs[0])
	}
	if msgs[1].Role != types.RoleAssistant || msgs[1].Content != "Hello!" {
		t.Errorf("stored assistant message = %+v", msgs[1])
	}
}

func TestHandleRejectsInvalidRequests(t *testing.T) {
	t.Parallel()
	pipe, _ := newTestPipeline(t, &mock.Provider{}, newStubExec())

	tests := []struct {
		name string
		req  Request
	}{
		{"empty message", Request{ConversationID: "c", AgentID: "assistant", UserMessage: "   "}},
		{"missing conversation", Request{AgentID: "assistant", UserMessage: "hi"}},
		{"unknown agent", Request{ConversationID: "c", AgentID: "nobody", UserMessage: "hi"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := pipe.Handle(context.Background(), tc.req); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHandleNoLedgerWithoutDebug(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Script: []mock.Reply{
		interpretationReply("Say hi"),
		classificationReply(false),
		textReply("Hello!"),
	}}
	pipe, _ := newTestPipeline(t, p, newStubExec())

	resp, err := pipe.Handle(context.Background(), Request{
		ConversationID: "conv-1",
		AgentID:        "assistant",
		UserMessage:    "say hi",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Ledger != nil {
		t.Errorf("ledger present without debug: %v", stages(resp.Ledger))
	}
	if resp.Usage.TotalTokens < 0 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}
