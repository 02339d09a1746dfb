package history

import (
	"context"
	"sync"

	"github.com/convoke-ai/convoke/pkg/types"
)

// defaultRetention caps how many messages one conversation keeps in memory.
// The interpreter only ever asks for a small window, so older messages are
// dead weight.
const defaultRetention = 200

// MemoryStore is an in-process Store for single-node deployments and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	retention int
	convs     map[string][]types.Message
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		retention: defaultRetention,
		convs:     make(map[string][]types.Message),
	}
}

// Window implements Store.
func (s *MemoryStore) Window(_ context.Context, conversationID string, n int) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.convs[conversationID]
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, conversationID string, msgs ...types.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := append(s.convs[conversationID], msgs...)
	if len(conv) > s.retention {
		conv = conv[len(conv)-s.retention:]
	}
	s.convs[conversationID] = conv
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
