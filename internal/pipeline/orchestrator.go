package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/convoke-ai/convoke/internal/observe"
	"github.com/convoke-ai/convoke/internal/toolexec"
	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/types"
)

// defaultAttemptBudget bounds how many tool-enabled model calls one request
// may spend before the orchestrator gives up and hands whatever it has to
// synthesis.
const defaultAttemptBudget = 3

// Outcome is the terminal state of a tool-enabled run.
type Outcome string

const (
	// OutcomeDone means the model produced an answer without requesting
	// further tools within the attempt budget.
	OutcomeDone Outcome = "done"

	// OutcomeExhausted means the attempt budget ran out while the model was
	// still requesting tools or the provider was still failing. The
	// transcript holds everything gathered so far.
	OutcomeExhausted Outcome = "exhausted"
)

// Orchestrator drives the tool-enabled conversation loop: call the model with
// the tool catalogue, execute whatever it requests, append the results and
// repeat until the model stops asking or the attempt budget runs out. Both
// provider failures and tool-requesting turns consume attempts, so a flapping
// provider cannot loop forever.
type Orchestrator struct {
	caller  *ModelCaller
	invoker *toolexec.Invoker
	budget  int
	metrics *observe.Metrics
	log     *slog.Logger
}

// OrchestratorOption customises an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithAttemptBudget overrides the tool-enabled call budget.
func WithAttemptBudget(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.budget = n
		}
	}
}

// WithOrchestratorMetrics attaches pipeline metrics.
func WithOrchestratorMetrics(m *observe.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator builds an orchestrator over the shared model caller and the
// tool invoker.
func NewOrchestrator(caller *ModelCaller, invoker *toolexec.Invoker, log *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		caller:  caller,
		invoker: invoker,
		budget:  defaultAttemptBudget,
		log:     log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the tool loop on top of the given transcript and returns the
// extended transcript together with the terminal outcome. The transcript is
// only ever appended to. A non-nil error is returned solely for context
// cancellation and structural violations; provider and tool failures are
// absorbed into the outcome and the transcript.
func (o *Orchestrator) Run(ctx context.Context, led *Ledger, t Transcript, tools []types.ToolDefinition, authz toolexec.Authorizer, auth toolexec.Auth, temperature float64) (Transcript, Outcome, error) {
	for attempt := 1; attempt <= o.budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return t, OutcomeExhausted, err
		}
		if err := ValidatePairing(t); err != nil {
			o.log.Error("refusing tool-enabled call on malformed transcript", "attempt", attempt, "error", err)
			return t, OutcomeExhausted, err
		}

		req := llm.CompletionRequest{
			Messages:    t,
			Tools:       tools,
			ToolChoice:  types.ToolChoiceAuto,
			Temperature: temperature,
		}
		resp, err := o.caller.Call(ctx, led, StageToolCall,
			fmt.Sprintf("tool-enabled attempt %d of %d", attempt, o.budget), req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if cause := ctx.Err(); cause != nil {
					return t, OutcomeExhausted, cause
				}
			}
			var pe *ProviderError
			if errors.As(err, &pe) {
				pe.Attempt = attempt
			}
			o.log.Warn("tool-enabled call failed", "attempt", attempt, "budget", o.budget, "error", err)
			continue
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Content != "" {
				t = t.AppendAssistant(resp.Content)
			}
			return t, OutcomeDone, nil
		}

		t = append(t, types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		results := o.executeAll(ctx, resp.ToolCalls, authz, auth)
		for _, res := range results {
			t = append(t, toolMessage(res))
		}
		if err := ctx.Err(); err != nil {
			return t, OutcomeExhausted, err
		}
	}

	o.log.Warn("attempt budget exhausted", "budget", o.budget)
	return t, OutcomeExhausted, nil
}

// executeAll dispatches the requested calls concurrently and returns results
// indexed by request order, regardless of completion order. Invoke never
// returns a Go error, so the group exists for structured waiting and context
// propagation only.
func (o *Orchestrator) executeAll(ctx context.Context, calls []types.ToolCall, authz toolexec.Authorizer, auth toolexec.Auth) []toolexec.Result {
	results := make([]toolexec.Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			res := o.invoker.Invoke(gctx, call, authz, auth)
			results[i] = res
			kind := ""
			if res.Err != nil {
				kind = string(res.Err.Kind)
			}
			o.metrics.RecordToolCall(ctx, res.Name, res.Duration, kind)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// toolMessage converts an invocation result into the tool-role message the
// model sees. Failures are reported as structured JSON so the model can
// reason about whether to retry, rephrase or answer without the tool.
func toolMessage(res toolexec.Result) types.Message {
	content := res.Content
	if !res.Success {
		payload, err := json.Marshal(map[string]any{
			"error": res.Err,
		})
		if err != nil {
			payload = []byte(`{"error":{"kind":"upstream","detail":"tool failed"}}`)
		}
		content = string(payload)
	}
	return types.Message{
		Role:       types.RoleTool,
		Content:    content,
		Name:       res.Name,
		ToolCallID: res.CallID,
	}
}
