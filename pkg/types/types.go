// Package types defines the shared types used across all Convoke packages.
//
// These types form the lingua franca between the LLM providers, the tool
// execution layer, and the chat pipeline. Each package defines its own domain
// types, but cross-cutting data structures live here to avoid circular imports.
package types

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message represents a single turn in a conversation transcript.
//
// Structural contract enforced by the pipeline: an assistant message with a
// non-empty ToolCalls slice must be immediately followed by exactly one
// tool-role message per entry, matched by ToolCallID, before any other
// assistant or user message appears. The model API rejects transcripts that
// violate this pairing.
type Message struct {
	// Role is the author of this message.
	Role Role `json:"role"`

	// Content is the text content. Empty when the turn only carries
	// tool-call requests.
	Content string `json:"content"`

	// Name is an optional participant name (multi-speaker contexts).
	Name string `json:"name,omitempty"`

	// ToolCalls contains tool invocations requested by the assistant.
	// Only valid on assistant-role messages.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set when Role is RoleTool, identifying which ToolCall
	// this message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool invocation requested by the model. It is created
// by the model during a tool-enabled call, owned by the assistant message that
// emitted it, and never mutated afterwards.
type ToolCall struct {
	// ID is the provider-assigned identifier for this call.
	ID string `json:"id"`

	// Name is the tool name as the model produced it. The invoker may
	// normalise this to a canonical catalogue name before dispatch.
	Name string `json:"name"`

	// Arguments is the JSON-encoded argument payload.
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool that can be offered to the model.
type ToolDefinition struct {
	// Name is the tool's unique identifier within the catalogue.
	Name string `json:"name"`

	// Description explains what the tool does (included in model prompts).
	Description string `json:"description"`

	// Parameters is the JSON Schema describing the tool's input.
	Parameters map[string]any `json:"parameters"`
}

// ToolChoice constrains how the model may use the offered tool catalogue.
type ToolChoice string

const (
	// ToolChoiceNone is the zero value: no tool_choice directive is sent.
	// Used for synthesis calls where no tools are offered at all.
	ToolChoiceNone ToolChoice = ""

	// ToolChoiceAuto lets the model decide whether to call tools.
	ToolChoiceAuto ToolChoice = "auto"

	// ToolChoiceRequired forces the model to call at least one tool.
	ToolChoiceRequired ToolChoice = "required"
)

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one
	// completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool
}
