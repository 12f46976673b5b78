// Package store persists conversation turns and usage records in
// SQLite. Callers treat writes as fire-and-forget: a failed write is
// logged by the caller and never fails the in-flight request.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/prismworks/prism/internal/observability"
	"github.com/prismworks/prism/pkg/memory"
	"github.com/prismworks/prism/pkg/router"
)

// Store is the SQLite-backed persistence layer. It satisfies the
// router's UsageWriter and the runtime's TurnWriter.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Config holds store configuration.
type Config struct {
	DBPath string
	Logger zerolog.Logger
}

// New opens (or creates) the store database.
func New(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.DBPath).Msg("Store initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_agent ON turns(agent_id, created_at);

		CREATE TABLE IF NOT EXISTS usage_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			backend TEXT NOT NULL,
			model TEXT NOT NULL,
			tokens_used INTEGER NOT NULL,
			cost_usd REAL NOT NULL,
			estimated INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_usage_backend ON usage_records(backend, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveTurn persists one conversation turn for an agent.
func (s *Store) SaveTurn(ctx context.Context, agentID string, turn memory.Turn) error {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO turns (agent_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		agentID, turn.Role, turn.Content, ts.Unix(),
	)
	observability.RecordTurnWrite(err == nil)
	return err
}

// RecentTurns returns up to n of an agent's most recent turns, oldest
// first. Used to rehydrate a short-term buffer on restart.
func (s *Store) RecentTurns(ctx context.Context, agentID string, n int) ([]memory.Turn, error) {
	if n <= 0 {
		n = memory.DefaultCapacity
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM (
			SELECT role, content, created_at, id FROM turns
			WHERE agent_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, agentID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []memory.Turn
	for rows.Next() {
		var t memory.Turn
		var createdAt int64
		if err := rows.Scan(&t.Role, &t.Content, &createdAt); err != nil {
			return nil, err
		}
		t.Timestamp = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// SaveUsage persists one usage record.
func (s *Store) SaveUsage(ctx context.Context, record router.UsageRecord) error {
	ts := record.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	estimated := 0
	if record.Estimated {
		estimated = 1
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO usage_records (backend, model, tokens_used, cost_usd, estimated, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		record.Backend, record.Model, record.TokensUsed, record.CostUSD, estimated, ts.Unix(),
	)
	observability.RecordUsageWrite(err == nil)
	return err
}

// UsageSummary aggregates spend per backend.
type UsageSummary struct {
	Backend    string  `json:"backend"`
	Requests   int     `json:"requests"`
	TokensUsed int64   `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
}

// UsageByBackend returns cumulative spend grouped by backend since the
// given time. A zero since covers everything.
func (s *Store) UsageByBackend(ctx context.Context, since time.Time) ([]UsageSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT backend, COUNT(*), SUM(tokens_used), SUM(cost_usd)
		FROM usage_records
		WHERE created_at >= ?
		GROUP BY backend
		ORDER BY backend
	`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []UsageSummary
	for rows.Next() {
		var u UsageSummary
		if err := rows.Scan(&u.Backend, &u.Requests, &u.TokensUsed, &u.CostUSD); err != nil {
			return nil, err
		}
		summaries = append(summaries, u)
	}
	return summaries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
