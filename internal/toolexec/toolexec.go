// Package toolexec connects the Convoke pipeline to an external
// tool-execution service and provides the Tool Invoker that guards every
// dispatch.
//
// The package splits tool execution into two layers:
//
//   - [Executor] is the raw transport to the tool-execution service. The
//     production implementation, [Service], speaks the Model Context Protocol
//     via the official Go SDK (stdio and streamable-HTTP transports).
//   - [Invoker] sits on top of an Executor and enforces the pipeline's
//     guarantees: catalogue membership, per-agent authorization, tool-name
//     normalisation, per-call timeouts, and structured failure results.
//
// An Invoker never returns a Go error from [Invoker.Invoke]; every outcome is
// represented as a [Result] so the retry orchestrator can feed failures back
// to the model as data.
package toolexec

import (
	"context"
	"fmt"
	"time"

	"github.com/convoke-ai/convoke/pkg/types"
)

// ErrorKind classifies a tool invocation failure.
type ErrorKind string

const (
	// ErrNotFound means the requested tool does not exist in the catalogue,
	// even after alias normalisation.
	ErrNotFound ErrorKind = "NotFound"

	// ErrPermissionDenied means the tool exists but the calling agent is not
	// authorised to use it.
	ErrPermissionDenied ErrorKind = "PermissionDenied"

	// ErrTimeout means the call exceeded its deadline.
	ErrTimeout ErrorKind = "Timeout"

	// ErrUpstream means the tool-execution service failed or the tool itself
	// reported an application-level error.
	ErrUpstream ErrorKind = "Upstream"
)

// ToolError is the structured failure detail carried by a failed [Result].
type ToolError struct {
	// Kind classifies the failure.
	Kind ErrorKind `json:"kind"`

	// Tool is the canonical tool name the failure relates to (or the raw
	// requested name for NotFound).
	Tool string `json:"tool"`

	// Detail is a human-readable description, safe to place in a tool-role
	// message so the model can react to it.
	Detail string `json:"detail"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q: %s: %s", e.Tool, e.Kind, e.Detail)
}

// Result is the outcome of a single tool invocation. Exactly one of Content
// (Success=true) or Err (Success=false) is meaningful.
type Result struct {
	// CallID matches the [types.ToolCall.ID] this result answers.
	CallID string

	// Name is the canonical tool name that was (or would have been) dispatched.
	Name string

	// Success reports whether the tool produced a usable payload.
	Success bool

	// Content is the tool's output, ready for a tool-role message.
	Content string

	// Err holds the structured failure detail when Success is false.
	Err *ToolError

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// Auth is the caller's authorization context, forwarded unchanged to the
// tool-execution service.
type Auth struct {
	// AgentID identifies the agent on whose behalf the tool runs.
	AgentID string

	// UserID identifies the end user of the conversation, when known.
	UserID string

	// Token is an opaque bearer credential for the tool-execution service.
	Token string
}

// Executor is the transport to the external tool-execution service.
//
// Implementations must be safe for concurrent use. Execute returns the tool's
// textual output; transport and protocol failures are returned as Go errors,
// while application-level tool errors are returned as (output, err) with a
// non-nil err wrapping the tool's own message.
type Executor interface {
	// Tools returns the current tool catalogue.
	Tools() []types.ToolDefinition

	// Execute runs the named tool with JSON-encoded args. auth is forwarded
	// to the service unchanged.
	Execute(ctx context.Context, name, args string, auth Auth) (string, error)
}
