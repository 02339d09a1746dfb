package pipeline

import "github.com/convoke-ai/convoke/pkg/types"

// SanitizeForSynthesis returns a copy of the transcript that is safe to send
// on a call with tools disabled: tool-role messages are dropped and assistant
// messages lose their tool-call metadata. User and system messages pass
// through unchanged and relative ordering is preserved. The input is never
// mutated, and the function is idempotent.
func SanitizeForSynthesis(t Transcript) Transcript {
	out := make(Transcript, 0, len(t))
	for _, m := range t {
		switch m.Role {
		case types.RoleTool:
			continue
		case types.RoleAssistant:
			m.ToolCalls = nil
			m.ToolCallID = ""
			out = append(out, m)
		default:
			out = append(out, m)
		}
	}
	return out
}
