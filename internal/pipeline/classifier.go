package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/types"
)

const classifierSystemPrompt = `You decide whether answering a user's request requires invoking external tools.
You are given the request and the catalogue of tools available. Respond with a
single JSON object and nothing else:
{"requires_tools": <true|false>, "confidence": <0.0-1.0>, "detected_intent": "<short label, e.g. calculation, correspondence, question>", "reasoning": "<one sentence>"}

Answer true only when at least one listed tool is plainly needed to fulfil the
request. Questions the assistant can answer from general knowledge or the
conversation itself require no tools.`

// Decision is the intent classifier's verdict on one request.
type Decision struct {
	RequiresTools  bool    `json:"requires_tools"`
	Confidence     float64 `json:"confidence"`
	DetectedIntent string  `json:"detected_intent,omitempty"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// Classifier gates the tool-enabled path. It fails closed: when the model
// call fails or returns malformed output the decision is "no tools", which
// degrades the answer but never wedges the request.
type Classifier struct {
	caller      *ModelCaller
	temperature float64
	log         *slog.Logger
}

// NewClassifier builds a classifier over the shared model caller.
func NewClassifier(caller *ModelCaller, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{caller: caller, temperature: 0.0, log: log}
}

// Classify decides whether the interpreted request needs tools from the given
// catalogue. An empty catalogue short-circuits to "no tools" without a model
// call; there is nothing to classify against.
func (c *Classifier) Classify(ctx context.Context, led *Ledger, interpreted string, catalogue []types.ToolDefinition) Decision {
	if len(catalogue) == 0 {
		return Decision{RequiresTools: false, Confidence: 1, Reasoning: "no tools available"}
	}

	req := llm.CompletionRequest{
		SystemPrompt: classifierSystemPrompt,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: buildClassifierPrompt(interpreted, catalogue)},
		},
		Temperature: c.temperature,
	}

	resp, err := c.caller.Call(ctx, led, StageClassification, "decide whether tools are required", req)
	if err != nil {
		c.log.Warn("classification failed, defaulting to no tools", "error", err)
		return Decision{RequiresTools: false, Reasoning: "classification unavailable"}
	}

	var out Decision
	if err := decodeJSONObject(resp.Content, &out); err != nil {
		c.log.Warn("classification returned malformed JSON, defaulting to no tools", "error", err)
		return Decision{RequiresTools: false, Reasoning: "classification unavailable"}
	}
	out.Confidence = clamp01(out.Confidence)
	return out
}

func buildClassifierPrompt(interpreted string, catalogue []types.ToolDefinition) string {
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, tool := range catalogue {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
	}
	b.WriteString("\nRequest:\n")
	b.WriteString(interpreted)
	return b.String()
}
