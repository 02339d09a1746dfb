package toolexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/convoke-ai/convoke/pkg/types"
)

// defaultCallTimeout bounds a single tool execution when the caller supplies
// no tighter deadline.
const defaultCallTimeout = 30 * time.Second

// Authorizer answers whether the calling agent may use a tool. Implemented by
// the agent registry's Agent type.
type Authorizer interface {
	Allows(tool string) bool
}

// Invoker executes a single named tool call against an [Executor], enforcing
// catalogue membership, authorization, name normalisation, and a per-call
// timeout. Invoker is safe for concurrent use; its fields are immutable after
// construction.
type Invoker struct {
	exec    Executor
	aliases AliasTable
	timeout time.Duration
	log     *slog.Logger
}

// InvokerOption is a functional option for [NewInvoker].
type InvokerOption func(*Invoker)

// WithAliases replaces the default alias correction table.
func WithAliases(t AliasTable) InvokerOption {
	return func(inv *Invoker) { inv.aliases = t }
}

// WithCallTimeout sets the deadline applied to each individual tool
// execution. The default is 30 seconds.
func WithCallTimeout(d time.Duration) InvokerOption {
	return func(inv *Invoker) { inv.timeout = d }
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(log *slog.Logger) InvokerOption {
	return func(inv *Invoker) {
		if log != nil {
			inv.log = log
		}
	}
}

// NewInvoker creates an Invoker on top of exec.
func NewInvoker(exec Executor, opts ...InvokerOption) (*Invoker, error) {
	if exec == nil {
		return nil, fmt.Errorf("toolexec: executor must not be nil")
	}
	inv := &Invoker{
		exec:    exec,
		aliases: DefaultAliases(),
		timeout: defaultCallTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(inv)
	}
	return inv, nil
}

// Invoke executes call on behalf of the agent identified by auth. It never
// returns a Go error: every outcome, including timeouts and authorization
// failures, is represented in the returned [Result] so the orchestrator can
// append it to the transcript as data.
//
// Dispatch order: the raw name is normalised through the alias table, then
// checked against the live catalogue, then against authz. A tool that is
// absent from the catalogue is NotFound; a tool the agent may not use is
// PermissionDenied — the invoker never substitutes another tool in either
// case.
func (inv *Invoker) Invoke(ctx context.Context, call types.ToolCall, authz Authorizer, auth Auth) Result {
	canonical, aliased := inv.aliases.Canonical(call.Name)
	if aliased {
		inv.log.Debug("tool name normalised via alias table",
			"requested", call.Name, "canonical", canonical)
	}

	catalogue := inv.exec.Tools()
	if !catalogueContains(catalogue, canonical) {
		detail := fmt.Sprintf("tool %q is not in the catalogue", call.Name)
		if hint := suggest(canonical, catalogue); hint != "" {
			detail += fmt.Sprintf(" (closest catalogue entry: %q)", hint)
		}
		return failedResult(call.ID, canonical, ErrNotFound, detail)
	}

	if authz != nil && !authz.Allows(canonical) {
		return failedResult(call.ID, canonical, ErrPermissionDenied,
			fmt.Sprintf("agent %q is not permitted to call tool %q", auth.AgentID, canonical))
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	start := time.Now()
	content, err := inv.exec.Execute(callCtx, canonical, call.Arguments, auth)
	elapsed := time.Since(start)

	if err != nil {
		kind := ErrUpstream
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			kind = ErrTimeout
		}
		inv.log.Warn("tool invocation failed",
			"tool", canonical, "kind", string(kind), "duration", elapsed, "err", err)
		res := failedResult(call.ID, canonical, kind, err.Error())
		res.Duration = elapsed
		return res
	}

	return Result{
		CallID:   call.ID,
		Name:     canonical,
		Success:  true,
		Content:  content,
		Duration: elapsed,
	}
}

// Catalogue returns the executor's current tool catalogue.
func (inv *Invoker) Catalogue() []types.ToolDefinition {
	return inv.exec.Tools()
}

// catalogueContains reports whether name appears in defs.
func catalogueContains(defs []types.ToolDefinition, name string) bool {
	for _, td := range defs {
		if td.Name == name {
			return true
		}
	}
	return false
}

// failedResult builds a failure Result with a structured ToolError.
func failedResult(callID, tool string, kind ErrorKind, detail string) Result {
	return Result{
		CallID:  callID,
		Name:    tool,
		Success: false,
		Err: &ToolError{
			Kind:   kind,
			Tool:   tool,
			Detail: detail,
		},
	}
}
