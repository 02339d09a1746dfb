package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/types"
)

// fallbackReply is returned when the synthesis call itself fails. The user
// gets an apology, never a raw provider or protocol error.
const fallbackReply = "I'm sorry, I ran into a problem while putting together an answer. Please try again."

// exhaustedHint is appended as a system message when the tool loop ran out of
// attempts, so the model acknowledges gaps instead of inventing results.
const exhaustedHint = `Some tool results may be missing or incomplete. Answer with the
information available and say plainly when something could not be completed.
Do not invent tool results.`

// Synthesizer produces the user-facing reply. It always runs with tools
// disabled on a sanitized transcript, so the final call can never trigger
// another tool round.
type Synthesizer struct {
	caller *ModelCaller
	log    *slog.Logger
}

// NewSynthesizer builds a synthesizer over the shared model caller.
func NewSynthesizer(caller *ModelCaller, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{caller: caller, log: log}
}

// Synthesize composes the final reply from the accumulated transcript.
// exhausted marks a run whose tool budget ran out, which softens the prompt
// towards admitting incompleteness. Synthesize always returns usable text;
// callers check the context themselves if they care about cancellation.
func (s *Synthesizer) Synthesize(ctx context.Context, led *Ledger, t Transcript, temperature float64, exhausted bool) string {
	clean := SanitizeForSynthesis(t)
	if exhausted {
		clean = append(clean, types.Message{Role: types.RoleSystem, Content: exhaustedHint})
	}

	req := llm.CompletionRequest{
		Messages:    clean,
		ToolChoice:  types.ToolChoiceNone,
		Temperature: temperature,
	}
	resp, err := s.caller.Call(ctx, led, StageSynthesis, "compose final reply", req)
	if err != nil {
		s.log.Error("synthesis failed, returning fallback reply", "error", err)
		return fallbackReply
	}
	if strings.TrimSpace(resp.Content) == "" {
		s.log.Warn("synthesis returned empty reply, returning fallback")
		return fallbackReply
	}
	return resp.Content
}
