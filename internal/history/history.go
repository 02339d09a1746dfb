// Package history persists conversation transcripts across requests so the
// contextual interpreter has a window to resolve references against. Only
// plain user and assistant text is stored; tool traffic is request-scoped and
// never persisted.
package history

import (
	"context"

	"github.com/convoke-ai/convoke/pkg/types"
)

// Store is the conversation history backend.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Window returns up to n of the most recent messages for the
	// conversation, oldest first. A missing conversation yields an empty
	// slice, not an error.
	Window(ctx context.Context, conversationID string, n int) ([]types.Message, error)

	// Append adds messages to the end of the conversation.
	Append(ctx context.Context, conversationID string, msgs ...types.Message) error

	// Close releases backend resources.
	Close() error
}
