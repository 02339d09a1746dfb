package pipeline

import (
	"errors"
	"reflect"
	"testing"

	"github.com/convoke-ai/convoke/pkg/types"
)

func pairedTranscript() Transcript {
	return Transcript{
		{Role: types.RoleSystem, Content: "be helpful"},
		{Role: types.RoleUser, Content: "what is 2+2, then email bob"},
		{
			Role:    types.RoleAssistant,
			Content: "",
			ToolCalls: []types.ToolCall{
				{ID: "call-1", Name: "calculate", Arguments: `{"expr":"2+2"}`},
				{ID: "call-2", Name: "send_email", Arguments: `{"to":"bob"}`},
			},
		},
		{Role: types.RoleTool, Content: "4", Name: "calculate", ToolCallID: "call-1"},
		{Role: types.RoleTool, Content: "sent", Name: "send_email", ToolCallID: "call-2"},
		{Role: types.RoleAssistant, Content: "Done, the answer is 4 and Bob has been emailed."},
	}
}

func TestValidatePairingAccepts(t *testing.T) {
	t.Parallel()
	if err := ValidatePairing(pairedTranscript()); err != nil {
		t.Errorf("ValidatePairing on valid transcript: %v", err)
	}
	if err := ValidatePairing(nil); err != nil {
		t.Errorf("ValidatePairing on empty transcript: %v", err)
	}
}

func TestValidatePairingRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		t    Transcript
	}{
		{
			name: "missing tool result",
			t: Transcript{
				{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "call-1", Name: "calculate"}}},
			},
		},
		{
			name: "result id mismatch",
			t: Transcript{
				{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "call-1", Name: "calculate"}}},
				{Role: types.RoleTool, ToolCallID: "other"},
			},
		},
		{
			name: "result out of order",
			t: Transcript{
				{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
					{ID: "call-1", Name: "calculate"},
					{ID: "call-2", Name: "send_email"},
				}},
				{Role: types.RoleTool, ToolCallID: "call-2"},
				{Role: types.RoleTool, ToolCallID: "call-1"},
			},
		},
		{
			name: "orphan tool message",
			t: Transcript{
				{Role: types.RoleUser, Content: "hi"},
				{Role: types.RoleTool, ToolCallID: "call-9"},
			},
		},
		{
			name: "non-tool message interleaved",
			t: Transcript{
				{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
					{ID: "call-1", Name: "calculate"},
					{ID: "call-2", Name: "send_email"},
				}},
				{Role: types.RoleTool, ToolCallID: "call-1"},
				{Role: types.RoleAssistant, Content: "oops"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePairing(tc.t)
			if !errors.Is(err, ErrStructuralViolation) {
				t.Errorf("err = %v, want ErrStructuralViolation", err)
			}
		})
	}
}

func TestSanitizeForSynthesis(t *testing.T) {
	t.Parallel()
	in := pairedTranscript()
	got := SanitizeForSynthesis(in)

	for _, m := range got {
		if m.Role == types.RoleTool {
			t.Fatalf("tool message survived sanitization: %+v", m)
		}
		if len(m.ToolCalls) > 0 {
			t.Fatalf("tool calls survived sanitization: %+v", m)
		}
	}
	if got[0].Content != "be helpful" || got[1].Content != "what is 2+2, then email bob" {
		t.Errorf("user/system messages changed: %+v", got[:2])
	}
	if got[len(got)-1].Content != "Done, the answer is 4 and Bob has been emailed." {
		t.Errorf("final assistant message changed: %+v", got[len(got)-1])
	}

	// Input must be untouched.
	if len(in[2].ToolCalls) != 2 {
		t.Error("sanitization mutated its input")
	}
}

func TestSanitizeForSynthesisIdempotent(t *testing.T) {
	t.Parallel()
	once := SanitizeForSynthesis(pairedTranscript())
	twice := SanitizeForSynthesis(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("sanitization is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestSanitizedTranscriptPassesValidation(t *testing.T) {
	t.Parallel()
	if err := ValidatePairing(SanitizeForSynthesis(pairedTranscript())); err != nil {
		t.Errorf("sanitized transcript fails pairing validation: %v", err)
	}
}
