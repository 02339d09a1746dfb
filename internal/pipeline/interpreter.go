package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/types"
)

// defaultHistoryWindow caps how many recent messages the interpreter sees.
// Older context rarely helps reference resolution and inflates token cost.
const defaultHistoryWindow = 10

const interpreterSystemPrompt = `You resolve conversational references in a user's latest message.
Given recent conversation history and the new message, rewrite the message so
it stands alone: replace pronouns and implicit references ("it", "that one",
"do the same") with the concrete things they refer to. Do not answer the
message, do not add information, do not change its meaning.

Respond with a single JSON object and nothing else:
{"interpreted": "<rewritten message>", "intent": "<short intent label>", "confidence": <0.0-1.0>, "references": ["<resolved reference>", ...]}

If the message already stands alone, return it unchanged with an empty
references list.`

// Interpretation is the contextual interpreter's output. When Degraded is
// true the model call failed or returned malformed output and Interpreted is
// the raw user text.
type Interpretation struct {
	Interpreted string   `json:"interpreted"`
	Intent      string   `json:"intent"`
	Confidence  float64  `json:"confidence"`
	References  []string `json:"references,omitempty"`
	Degraded    bool     `json:"degraded,omitempty"`
}

// Interpreter rewrites the inbound user message into a self-contained form
// using the recent conversation window. It fails closed: any error yields the
// raw message untouched so a flaky interpretation model never blocks a reply.
type Interpreter struct {
	caller      *ModelCaller
	window      int
	temperature float64
	log         *slog.Logger
}

// NewInterpreter builds an interpreter over the shared model caller.
func NewInterpreter(caller *ModelCaller, log *slog.Logger) *Interpreter {
	if log == nil {
		log = slog.Default()
	}
	return &Interpreter{
		caller:      caller,
		window:      defaultHistoryWindow,
		temperature: 0.0,
		log:         log,
	}
}

// Interpret resolves references in userMessage against the recent history.
func (in *Interpreter) Interpret(ctx context.Context, led *Ledger, userMessage string, history []types.Message) Interpretation {
	degraded := Interpretation{Interpreted: userMessage, Degraded: true}

	req := llm.CompletionRequest{
		SystemPrompt: interpreterSystemPrompt,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: in.buildPrompt(userMessage, history)},
		},
		Temperature: in.temperature,
	}

	resp, err := in.caller.Call(ctx, led, StageInterpretation, "resolve conversational references", req)
	if err != nil {
		in.log.Warn("interpretation failed, using raw message", "error", err)
		return degraded
	}

	var out Interpretation
	if err := decodeJSONObject(resp.Content, &out); err != nil {
		in.log.Warn("interpretation returned malformed JSON, using raw message", "error", err)
		return degraded
	}
	if strings.TrimSpace(out.Interpreted) == "" {
		in.log.Warn("interpretation returned empty rewrite, using raw message")
		return degraded
	}
	out.Confidence = clamp01(out.Confidence)
	return out
}

func (in *Interpreter) buildPrompt(userMessage string, history []types.Message) string {
	var b strings.Builder
	b.WriteString("Conversation history:\n")
	start := 0
	if len(history) > in.window {
		start = len(history) - in.window
	}
	if start == len(history) {
		b.WriteString("(none)\n")
	}
	for _, m := range history[start:] {
		if m.Role == types.RoleTool {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("\nNew message:\n")
	b.WriteString(userMessage)
	return b.String()
}

// decodeJSONObject extracts and decodes the first JSON object embedded in a
// model reply. Models frequently wrap JSON in prose or code fences; we take
// the outermost brace pair rather than demanding a bare object.
func decodeJSONObject(content string, v any) error {
	open := strings.Index(content, "{")
	close := strings.LastIndex(content, "}")
	if open < 0 || close <= open {
		return fmt.Errorf("no JSON object in model output")
	}
	dec := json.NewDecoder(strings.NewReader(content[open : close+1]))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
