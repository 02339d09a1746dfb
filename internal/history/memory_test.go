package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/convoke-ai/convoke/pkg/types"
)

func TestWindowReturnsRecentOldestFirst(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		err := s.Append(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: fmt.Sprintf("msg %d", i)})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Window(ctx, "conv-1", 3)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].Content != "msg 3" || got[2].Content != "msg 5" {
		t.Errorf("wrong window contents: %+v", got)
	}
}

func TestWindowMissingConversation(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	got, err := s.Window(context.Background(), "nope", 10)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty window, got %d messages", len(got))
	}
}

func TestRetentionCapsConversation(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	s.retention = 4
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := s.Append(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: fmt.Sprintf("msg %d", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Window(ctx, "conv-1", 100)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 retained messages, got %d", len(got))
	}
	if got[0].Content != "msg 6" {
		t.Errorf("oldest retained message = %q, want %q", got[0].Content, "msg 6")
	}
}

func TestWindowCopyIsIsolated(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Append(ctx, "conv-1", types.Message{Role: types.RoleUser, Content: "original"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := s.Window(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	got[0].Content = "mutated"

	again, err := s.Window(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if again[0].Content != "original" {
		t.Errorf("store contents mutated through returned slice")
	}
}
