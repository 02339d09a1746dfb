package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convoke-ai/convoke/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversation_messages (
	id              BIGSERIAL PRIMARY KEY,
	conversation_id TEXT        NOT NULL,
	role            TEXT        NOT NULL,
	content         TEXT        NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS conversation_messages_conv_idx
	ON conversation_messages (conversation_id, id);
`

// PostgresStore persists conversation history in PostgreSQL, for deployments
// where replies must survive restarts and scale past one node.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database, verifies the connection and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Window implements Store.
func (s *PostgresStore) Window(ctx context.Context, conversationID string, n int) ([]types.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, content FROM (
			SELECT id, role, content
			FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("history: query window: %w", err)
	}
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		msgs = append(msgs, types.Message{Role: types.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate rows: %w", err)
	}
	return msgs, nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, conversationID string, msgs ...types.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(`
			INSERT INTO conversation_messages (conversation_id, role, content)
			VALUES ($1, $2, $3)`, conversationID, string(m.Role), m.Content)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range msgs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("history: insert message: %w", err)
		}
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
