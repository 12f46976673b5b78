package memory

import (
	"context"
	"time"
)

// Fragment is a piece of long-term memory returned by retrieval,
// scored by relevance to the query.
type Fragment struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Content   string    `json:"content"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// LongTerm is a retrieval-backed store of durable agent memory.
// Retrieval is best-effort: an empty result is a valid answer, and the
// runtime degrades gracefully when it fails.
type LongTerm interface {
	// Remember persists a fragment of conversation for later retrieval.
	Remember(ctx context.Context, agentID, content string) error

	// Retrieve returns up to limit fragments relevant to the query,
	// most relevant first.
	Retrieve(ctx context.Context, agentID, query string, limit int) ([]Fragment, error)

	Close() error
}

// NopLongTerm remembers nothing and retrieves nothing. Used for agents
// configured without a long-term store.
type NopLongTerm struct{}

func (NopLongTerm) Remember(ctx context.Context, agentID, content string) error { return nil }

func (NopLongTerm) Retrieve(ctx context.Context, agentID, query string, limit int) ([]Fragment, error) {
	return nil, nil
}

func (NopLongTerm) Close() error { return nil }
