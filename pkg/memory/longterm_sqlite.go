package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prismworks/prism/internal/observability"
	"github.com/prismworks/prism/internal/tracing"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Embedder turns text into a fixed-dimension vector. Optional: without
// one, SQLiteLongTerm falls back to keyword retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// SQLiteLongTerm persists memory fragments in SQLite. With an Embedder
// it ranks by cosine distance over a sqlite-vec table; without one it
// falls back to FTS5 keyword search.
type SQLiteLongTerm struct {
	db       *sql.DB
	embedder Embedder
	logger   zerolog.Logger
}

// SQLiteConfig holds long-term store configuration.
type SQLiteConfig struct {
	DBPath   string
	Logger   zerolog.Logger
	Embedder Embedder // optional
}

// NewSQLiteLongTerm opens (or creates) the fragment database.
func NewSQLiteLongTerm(cfg SQLiteConfig) (*SQLiteLongTerm, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteLongTerm{db: db, embedder: cfg.Embedder, logger: cfg.Logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.DBPath).Bool("vector", cfg.Embedder != nil).
		Msg("Long-term memory store ready")
	return s, nil
}

func (s *SQLiteLongTerm) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS fragments (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_fragments_agent ON fragments(agent_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS fragments_fts USING fts5(
			fragment_id UNINDEXED,
			agent_id UNINDEXED,
			content,
			tokenize='porter unicode61'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if s.embedder != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS fragment_embeddings USING vec0(
				fragment_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, s.embedder.Dimension())
		if _, err := s.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}

	return nil
}

// Remember stores one fragment, embedding it when an Embedder is set.
func (s *SQLiteLongTerm) Remember(ctx context.Context, agentID, content string) error {
	if agentID == "" {
		return errors.New("agent id is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "prism.memory", "memory.remember",
		attribute.String("agent_id", agentID))
	defer span.End()

	start := time.Now()
	defer observability.RecordMemoryAppend(time.Since(start))

	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate fragment id: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO fragments (id, agent_id, content, created_at) VALUES (?, ?, ?, ?)",
		id, agentID, content, time.Now().Unix(),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO fragments_fts (fragment_id, agent_id, content) VALUES (?, ?, ?)",
		id, agentID, content,
	); err != nil {
		return err
	}

	if s.embedder != nil {
		embedding, err := s.embedder.Embed(ctx, content)
		if err != nil {
			// Keep the fragment searchable by keyword even when the
			// embedding call fails
			s.logger.Warn().Err(err).Str("fragment", id).Msg("Failed to embed fragment")
		} else {
			embeddingJSON, err := json.Marshal(embedding)
			if err != nil {
				return fmt.Errorf("failed to marshal embedding: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO fragment_embeddings (fragment_id, embedding) VALUES (?, ?)",
				id, string(embeddingJSON),
			); err != nil {
				return fmt.Errorf("failed to store embedding: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Retrieve returns up to limit fragments relevant to the query, most
// relevant first. Vector search when an Embedder is configured, FTS5
// keyword search otherwise.
func (s *SQLiteLongTerm) Retrieve(ctx context.Context, agentID, query string, limit int) ([]Fragment, error) {
	ctx, span := tracing.StartSpan(ctx, "prism.memory", "memory.retrieve",
		attribute.String("agent_id", agentID))
	defer span.End()

	start := time.Now()
	defer observability.RecordMemoryRetrieve(time.Since(start))

	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}

	if s.embedder != nil {
		fragments, err := s.vectorRetrieve(ctx, agentID, query, limit)
		if err == nil {
			return fragments, nil
		}
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Warn().Err(err).Msg("Vector retrieval failed, falling back to keyword")
	}

	return s.keywordRetrieve(ctx, agentID, query, limit)
}

func (s *SQLiteLongTerm) vectorRetrieve(ctx context.Context, agentID, query string, limit int) ([]Fragment, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.agent_id, f.content, f.created_at,
			vec_distance_cosine(e.embedding, ?) AS distance
		FROM fragment_embeddings e
		JOIN fragments f ON f.id = e.fragment_id
		WHERE f.agent_id = ?
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fragments []Fragment
	for rows.Next() {
		var f Fragment
		var createdAt int64
		var distance float64
		if err := rows.Scan(&f.ID, &f.AgentID, &f.Content, &createdAt, &distance); err != nil {
			return nil, err
		}
		f.CreatedAt = time.Unix(createdAt, 0)
		// cosine distance is [0, 2]; map to a descending similarity
		f.Score = 1.0 - distance
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

func (s *SQLiteLongTerm) keywordRetrieve(ctx context.Context, agentID, query string, limit int) ([]Fragment, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.agent_id, f.content, f.created_at,
			bm25(fragments_fts) AS score
		FROM fragments_fts
		JOIN fragments f ON f.id = fragments_fts.fragment_id
		WHERE fragments_fts MATCH ? AND fragments_fts.agent_id = ?
		ORDER BY score
		LIMIT ?
	`, match, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fragments []Fragment
	for rows.Next() {
		var f Fragment
		var createdAt int64
		var score float64
		if err := rows.Scan(&f.ID, &f.AgentID, &f.Content, &createdAt, &score); err != nil {
			return nil, err
		}
		f.CreatedAt = time.Unix(createdAt, 0)
		// BM25 scores are negative, convert to positive
		f.Score = -score
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

// ftsQuery reduces free text to a disjunction of bare terms so user
// punctuation cannot break FTS5 MATCH syntax.
func ftsQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9')
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}

func (s *SQLiteLongTerm) Close() error {
	return s.db.Close()
}
