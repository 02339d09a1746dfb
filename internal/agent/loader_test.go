package agent

import (
	"strings"
	"testing"
)

const sampleYAML = `
agents:
  - id: assistant
    name: Assistant
    system_prompt: You are a helpful assistant.
    model: gpt-4o
    temperature: 0.7
    allowed_tools: [send_email, calculate]
  - id: reader
    system_prompt: You answer questions but never act.
    allowed_tools: []
`

// TestLoadFromReader verifies YAML agent definitions load into a registry.
func TestLoadFromReader(t *testing.T) {
	t.Parallel()
	reg, err := LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	a, err := reg.Get("assistant")
	if err != nil {
		t.Fatalf("Get(assistant): %v", err)
	}
	if a.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", a.Model)
	}
	if !a.Allows("send_email") || !a.Allows("CALCULATE") {
		t.Error("allowlisted tools should be permitted (case-insensitive)")
	}
	if a.Allows("web_search") {
		t.Error("tool outside the allowlist should be denied")
	}
}

// TestEmptyAllowlistPermitsAll verifies that an agent without an allowlist may
// use the whole catalogue.
func TestEmptyAllowlistPermitsAll(t *testing.T) {
	t.Parallel()
	reg, err := LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	a, err := reg.Get("reader")
	if err != nil {
		t.Fatalf("Get(reader): %v", err)
	}
	if !a.Allows("anything_at_all") {
		t.Error("empty allowlist should permit all tools")
	}
}

// TestDuplicateIDRejected verifies that duplicate agent IDs fail loading.
func TestDuplicateIDRejected(t *testing.T) {
	t.Parallel()
	_, err := LoadFromReader(strings.NewReader(`
agents:
  - id: twin
  - id: twin
`))
	if err == nil {
		t.Fatal("expected error for duplicate agent id")
	}
}

// TestUnknownAgent verifies Get on a missing ID returns an error.
func TestUnknownAgent(t *testing.T) {
	t.Parallel()
	reg, err := NewRegistry([]*Agent{{ID: "only"}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := reg.Get("missing"); err == nil {
		t.Fatal("expected error for unknown agent")
	}
}
