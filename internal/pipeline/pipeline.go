// Package pipeline implements the conversational tool-orchestration flow:
// contextual interpretation, intent classification, a bounded tool-enabled
// retry loop, and a final tools-disabled synthesis call. Every model
// invocation made while serving a request lands in a request-scoped ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/convoke-ai/convoke/internal/agent"
	"github.com/convoke-ai/convoke/internal/history"
	"github.com/convoke-ai/convoke/internal/observe"
	"github.com/convoke-ai/convoke/internal/toolexec"
	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/types"
)

// Request is one inbound user message with its conversational context.
type Request struct {
	// ConversationID groups messages into one conversation. Required.
	ConversationID string

	// AgentID selects the agent persona and tool allowlist. Required.
	AgentID string

	// UserID identifies the end user for tool authorization. Optional.
	UserID string

	// UserMessage is the raw user text. Required.
	UserMessage string

	// History overrides the stored conversation window when non-nil. Used by
	// callers that manage their own transcripts.
	History []types.Message

	// Debug requests the full call ledger in the response.
	Debug bool
}

// Response is the pipeline's reply to one request.
type Response struct {
	// ReplyText is the user-facing answer. Always non-empty.
	ReplyText string

	// Outcome reports how the tool loop ended, or OutcomeDone when no tools
	// were used.
	Outcome Outcome

	// Decision is the intent classifier's verdict.
	Decision Decision

	// Interpretation is the contextual interpreter's output.
	Interpretation Interpretation

	// Usage is the total token spend across all model calls.
	Usage llm.Usage

	// Ledger holds every model invocation record when Debug was set.
	Ledger []CallRecord
}

// Pipeline wires the stages together and serves requests. It is stateless
// between requests apart from the history store; one Pipeline serves all
// conversations concurrently.
type Pipeline struct {
	interpreter *Interpreter
	classifier  *Classifier
	orch        *Orchestrator
	synth       *Synthesizer
	invoker     *toolexec.Invoker
	agents      *agent.Registry
	store       history.Store
	window      int
	metrics     *observe.Metrics
	log         *slog.Logger
}

// PipelineOption customises a Pipeline.
type PipelineOption func(*Pipeline)

// WithHistoryWindow overrides how many stored messages feed interpretation.
func WithHistoryWindow(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.window = n
		}
	}
}

// WithPipelineMetrics attaches request-level metrics.
func WithPipelineMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// New assembles a pipeline from its stages.
func New(interpreter *Interpreter, classifier *Classifier, orch *Orchestrator, synth *Synthesizer,
	invoker *toolexec.Invoker, agents *agent.Registry, store history.Store, log *slog.Logger, opts ...PipelineOption) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		interpreter: interpreter,
		classifier:  classifier,
		orch:        orch,
		synth:       synth,
		invoker:     invoker,
		agents:      agents,
		store:       store,
		window:      defaultHistoryWindow,
		log:         log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle serves one request end to end. It returns an error only for invalid
// requests and context cancellation; every downstream failure degrades into a
// usable (if apologetic) reply instead.
func (p *Pipeline) Handle(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, errors.New("pipeline: empty user message")
	}
	if req.ConversationID == "" {
		return nil, errors.New("pipeline: missing conversation id")
	}
	ag, err := p.agents.Get(req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	start := time.Now()
	log := p.log.With("conversation", req.ConversationID, "agent", ag.ID)
	led := NewLedger()

	hist := req.History
	if hist == nil {
		hist, err = p.store.Window(ctx, req.ConversationID, p.window)
		if err != nil {
			log.Warn("history window unavailable, continuing without context", "error", err)
			hist = nil
		}
	}

	interp := p.interpreter.Interpret(ctx, led, req.UserMessage, hist)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	catalogue := p.allowedCatalogue(ag)
	decision := p.classifier.Classify(ctx, led, interp.Interpreted, catalogue)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info("request classified",
		"requires_tools", decision.RequiresTools,
		"confidence", decision.Confidence,
		"degraded_interpretation", interp.Degraded)

	t := Transcript{}
	if ag.SystemPrompt != "" {
		t = append(t, types.Message{Role: types.RoleSystem, Content: ag.SystemPrompt})
	}
	t = append(t, hist...)
	t = t.AppendUser(interp.Interpreted)

	outcome := OutcomeDone
	if decision.RequiresTools {
		auth := toolexec.Auth{AgentID: ag.ID, UserID: req.UserID}
		var runErr error
		t, outcome, runErr = p.orch.Run(ctx, led, t, catalogue, ag, auth, ag.Temperature)
		switch {
		case runErr == nil:
		case errors.Is(runErr, ErrStructuralViolation):
			log.Error("tool loop aborted on structural violation, degrading to synthesis", "error", runErr)
		case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
			return nil, runErr
		default:
			log.Error("tool loop failed, degrading to synthesis", "error", runErr)
		}
	}

	reply := p.synth.Synthesize(ctx, led, t, ag.Temperature, outcome == OutcomeExhausted)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := p.store.Append(ctx, req.ConversationID,
		types.Message{Role: types.RoleUser, Content: req.UserMessage},
		types.Message{Role: types.RoleAssistant, Content: reply},
	); err != nil {
		log.Warn("failed to persist conversation turn", "error", err)
	}

	dur := time.Since(start)
	p.metrics.RecordRequest(ctx, string(outcome), dur)
	log.Info("request served",
		"outcome", outcome,
		"duration", dur,
		"model_calls", led.Len(),
		"tokens", led.TotalUsage().TotalTokens)

	resp := &Response{
		ReplyText:      reply,
		Outcome:        outcome,
		Decision:       decision,
		Interpretation: interp,
		Usage:          led.TotalUsage(),
	}
	if req.Debug {
		resp.Ledger = led.Records()
	}
	return resp, nil
}

// allowedCatalogue filters the live tool catalogue down to what the agent may
// use. The classifier and orchestrator only ever see this subset, so an agent
// can never be steered towards a tool it cannot call.
func (p *Pipeline) allowedCatalogue(ag *agent.Agent) []types.ToolDefinition {
	all := p.invoker.Catalogue()
	out := make([]types.ToolDefinition, 0, len(all))
	for _, tool := range all {
		if ag.Allows(tool.Name) {
			out = append(out, tool)
		}
	}
	return out
}
