package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismworks/prism/pkg/memory"
	"github.com/prismworks/prism/pkg/router"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{
		DBPath: filepath.Join(t.TempDir(), "prism.db"),
		Logger: zerolog.New(os.Stdout).Level(zerolog.Disabled),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew(t *testing.T) {
	t.Run("should require a database path", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})
}

func TestTurns(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist and replay turns in order", func(t *testing.T) {
		s := newTestStore(t)

		for i := 1; i <= 3; i++ {
			require.NoError(t, s.SaveTurn(ctx, "agent-1", memory.Turn{
				Role:    memory.RoleUser,
				Content: fmt.Sprintf("msg %d", i),
			}))
		}

		turns, err := s.RecentTurns(ctx, "agent-1", 10)
		require.NoError(t, err)
		require.Len(t, turns, 3)
		assert.Equal(t, "msg 1", turns[0].Content)
		assert.Equal(t, "msg 3", turns[2].Content)
	})

	t.Run("should cap replay at n most recent", func(t *testing.T) {
		s := newTestStore(t)

		for i := 1; i <= 5; i++ {
			require.NoError(t, s.SaveTurn(ctx, "agent-1", memory.Turn{
				Role:    memory.RoleUser,
				Content: fmt.Sprintf("msg %d", i),
			}))
		}

		turns, err := s.RecentTurns(ctx, "agent-1", 2)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, "msg 4", turns[0].Content)
		assert.Equal(t, "msg 5", turns[1].Content)
	})

	t.Run("should scope turns to the agent", func(t *testing.T) {
		s := newTestStore(t)

		require.NoError(t, s.SaveTurn(ctx, "agent-1", memory.Turn{Role: memory.RoleUser, Content: "mine"}))
		require.NoError(t, s.SaveTurn(ctx, "agent-2", memory.Turn{Role: memory.RoleUser, Content: "theirs"}))

		turns, err := s.RecentTurns(ctx, "agent-1", 10)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, "mine", turns[0].Content)
	})
}

func TestUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("should aggregate spend per backend", func(t *testing.T) {
		s := newTestStore(t)

		require.NoError(t, s.SaveUsage(ctx, router.UsageRecord{
			Backend: "low-cost", Model: "deepseek-chat", TokensUsed: 1000, CostUSD: 0.0003,
		}))
		require.NoError(t, s.SaveUsage(ctx, router.UsageRecord{
			Backend: "low-cost", Model: "deepseek-chat", TokensUsed: 500, CostUSD: 0.00015,
		}))
		require.NoError(t, s.SaveUsage(ctx, router.UsageRecord{
			Backend: "high-reasoning", Model: "claude", TokensUsed: 200, CostUSD: 0.0018, Estimated: true,
		}))

		summaries, err := s.UsageByBackend(ctx, time.Time{})
		require.NoError(t, err)
		require.Len(t, summaries, 2)

		assert.Equal(t, "high-reasoning", summaries[0].Backend)
		assert.Equal(t, 1, summaries[0].Requests)

		assert.Equal(t, "low-cost", summaries[1].Backend)
		assert.Equal(t, 2, summaries[1].Requests)
		assert.Equal(t, int64(1500), summaries[1].TokensUsed)
		assert.InDelta(t, 0.00045, summaries[1].CostUSD, 1e-9)
	})

	t.Run("should honor the since cutoff", func(t *testing.T) {
		s := newTestStore(t)

		require.NoError(t, s.SaveUsage(ctx, router.UsageRecord{
			Backend: "low-cost", Model: "deepseek-chat", TokensUsed: 100, CostUSD: 0.00003,
			CreatedAt: time.Now().Add(-48 * time.Hour),
		}))
		require.NoError(t, s.SaveUsage(ctx, router.UsageRecord{
			Backend: "low-cost", Model: "deepseek-chat", TokensUsed: 200, CostUSD: 0.00006,
		}))

		summaries, err := s.UsageByBackend(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, 1, summaries[0].Requests)
		assert.Equal(t, int64(200), summaries[0].TokensUsed)
	})
}
