package pipeline

import (
	"fmt"

	"github.com/convoke-ai/convoke/pkg/types"
)

// Transcript is the ordered message sequence a pipeline run accumulates. It
// is append-only during a run: stages extend it, they never rewrite history.
type Transcript []types.Message

// AppendUser appends a user message.
func (t Transcript) AppendUser(content string) Transcript {
	return append(t, types.Message{Role: types.RoleUser, Content: content})
}

// AppendAssistant appends a plain assistant message.
func (t Transcript) AppendAssistant(content string) Transcript {
	return append(t, types.Message{Role: types.RoleAssistant, Content: content})
}

// ValidatePairing checks the structural contract for tool-enabled calls:
// every assistant message carrying tool calls must be immediately followed by
// exactly one tool-role message per call, matched by ID and in request order,
// and no tool-role message may appear without a preceding request for it.
func ValidatePairing(t Transcript) error {
	for i := 0; i < len(t); i++ {
		m := t[i]
		switch {
		case m.Role == types.RoleAssistant && len(m.ToolCalls) > 0:
			for j, call := range m.ToolCalls {
				pos := i + 1 + j
				if pos >= len(t) {
					return fmt.Errorf("%w: assistant message at index %d requests %d tool calls but transcript ends after %d result(s)",
						ErrStructuralViolation, i, len(m.ToolCalls), j)
				}
				res := t[pos]
				if res.Role != types.RoleTool {
					return fmt.Errorf("%w: expected tool result at index %d, found role %q",
						ErrStructuralViolation, pos, res.Role)
				}
				if res.ToolCallID != call.ID {
					return fmt.Errorf("%w: tool result at index %d answers call %q, expected %q",
						ErrStructuralViolation, pos, res.ToolCallID, call.ID)
				}
			}
			i += len(m.ToolCalls)
		case m.Role == types.RoleTool:
			return fmt.Errorf("%w: orphan tool result at index %d (call id %q)",
				ErrStructuralViolation, i, m.ToolCallID)
		}
	}
	return nil
}
