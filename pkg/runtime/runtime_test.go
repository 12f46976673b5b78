package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismworks/prism/pkg/memory"
	"github.com/prismworks/prism/pkg/provider"
	"github.com/prismworks/prism/pkg/router"
	"github.com/prismworks/prism/pkg/tool"
)

// fakeGenerator replays canned results and records requests.
type fakeGenerator struct {
	mu       sync.Mutex
	requests []router.GenerateRequest
	reply    string
	err      error
}

func (g *fakeGenerator) Generate(ctx context.Context, req router.GenerateRequest) (*router.GenerationResult, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}
	reply := g.reply
	if reply == "" {
		reply = "canned reply"
	}
	return &router.GenerationResult{
		Text:       reply,
		Backend:    provider.BackendLowCost,
		Model:      "deepseek-chat",
		TokensUsed: 100,
		CostUSD:    0.00003,
	}, nil
}

func (g *fakeGenerator) lastRequest() router.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

type erroringLongTerm struct{}

func (erroringLongTerm) Remember(ctx context.Context, agentID, content string) error { return nil }

func (erroringLongTerm) Retrieve(ctx context.Context, agentID, query string, limit int) ([]memory.Fragment, error) {
	return nil, errors.New("index offline")
}

func (erroringLongTerm) Close() error { return nil }

type staticLongTerm struct {
	fragments []memory.Fragment
}

func (s *staticLongTerm) Remember(ctx context.Context, agentID, content string) error { return nil }

func (s *staticLongTerm) Retrieve(ctx context.Context, agentID, query string, limit int) ([]memory.Fragment, error) {
	return s.fragments, nil
}

func (s *staticLongTerm) Close() error { return nil }

type capturingTurnWriter struct {
	mu    sync.Mutex
	turns []memory.Turn
}

func (w *capturingTurnWriter) SaveTurn(ctx context.Context, agentID string, turn memory.Turn) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, turn)
	return nil
}

func (w *capturingTurnWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}

func newTestRuntime(t *testing.T, gen Generator, opts ...func(*Config)) *Runtime {
	t.Helper()
	cfg := Config{
		Router: gen,
		Logger: zerolog.New(os.Stdout).Level(zerolog.Disabled),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	rt, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func testAgent(longTerm memory.LongTerm) *Agent {
	return &Agent{
		ID:          "agent-1",
		Name:        "Atlas",
		Description: "A pragmatic research assistant.",
		Backend:     provider.BackendAuto,
		Temperature: 0.4,
		Memory:      NewMemory(memory.DefaultCapacity, longTerm),
		IsActive:    true,
	}
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("should append both turns and return the reply", func(t *testing.T) {
		gen := &fakeGenerator{reply: "here is your answer"}
		rt := newTestRuntime(t, gen)
		agent := testAgent(nil)

		resp, err := rt.Execute(ctx, agent, ExecuteRequest{Message: "help me plan"})
		require.NoError(t, err)
		assert.Equal(t, "here is your answer", resp.Message)
		assert.Equal(t, provider.BackendLowCost, resp.Backend)
		assert.Equal(t, 100, resp.TokensUsed)

		turns := agent.Memory.ShortTerm.Recent(0)
		require.Len(t, turns, 2)
		assert.Equal(t, memory.RoleUser, turns[0].Role)
		assert.Equal(t, "help me plan", turns[0].Content)
		assert.Equal(t, memory.RoleAssistant, turns[1].Role)
	})

	t.Run("should keep the user turn when the router fails", func(t *testing.T) {
		gen := &fakeGenerator{err: &router.ExhaustedError{TaskType: router.TaskGeneral}}
		rt := newTestRuntime(t, gen)
		agent := testAgent(nil)

		_, err := rt.Execute(ctx, agent, ExecuteRequest{Message: "help me plan"})
		require.Error(t, err)

		var exhausted *router.ExhaustedError
		assert.ErrorAs(t, err, &exhausted)

		turns := agent.Memory.ShortTerm.Recent(0)
		require.Len(t, turns, 1)
		assert.Equal(t, memory.RoleUser, turns[0].Role)
	})

	t.Run("should reject an inactive agent", func(t *testing.T) {
		rt := newTestRuntime(t, &fakeGenerator{})
		agent := testAgent(nil)
		agent.IsActive = false

		_, err := rt.Execute(ctx, agent, ExecuteRequest{Message: "hello"})
		assert.ErrorContains(t, err, "not active")
	})

	t.Run("should reject an empty message", func(t *testing.T) {
		rt := newTestRuntime(t, &fakeGenerator{})
		_, err := rt.Execute(ctx, testAgent(nil), ExecuteRequest{})
		assert.Error(t, err)
	})

	t.Run("should reject an invalid temperature", func(t *testing.T) {
		rt := newTestRuntime(t, &fakeGenerator{})
		agent := testAgent(nil)
		agent.Temperature = 1.5

		_, err := rt.Execute(ctx, agent, ExecuteRequest{Message: "hello"})
		assert.ErrorContains(t, err, "temperature")
	})

	t.Run("should never grow short-term memory past its capacity", func(t *testing.T) {
		gen := &fakeGenerator{}
		rt := newTestRuntime(t, gen)
		agent := testAgent(nil)

		for i := 0; i < 25; i++ {
			_, err := rt.Execute(ctx, agent, ExecuteRequest{Message: fmt.Sprintf("msg %d", i)})
			require.NoError(t, err)
		}
		assert.LessOrEqual(t, agent.Memory.ShortTerm.Len(), memory.DefaultCapacity)
	})

	t.Run("should pass the agent backend as router preference", func(t *testing.T) {
		gen := &fakeGenerator{}
		rt := newTestRuntime(t, gen)
		agent := testAgent(nil)
		agent.Backend = provider.BackendHighReasoning

		_, err := rt.Execute(ctx, agent, ExecuteRequest{Message: "deep question", TaskType: router.TaskArchitecture})
		require.NoError(t, err)

		req := gen.lastRequest()
		assert.Equal(t, provider.BackendHighReasoning, req.Preference)
		assert.Equal(t, router.TaskArchitecture, req.TaskType)
		assert.Equal(t, 0.4, req.Temperature)
	})

	t.Run("should send prior turns as history", func(t *testing.T) {
		gen := &fakeGenerator{}
		rt := newTestRuntime(t, gen)
		agent := testAgent(nil)

		_, err := rt.Execute(ctx, agent, ExecuteRequest{Message: "first"})
		require.NoError(t, err)
		_, err = rt.Execute(ctx, agent, ExecuteRequest{Message: "second"})
		require.NoError(t, err)

		req := gen.lastRequest()
		require.Len(t, req.History, 2)
		assert.Equal(t, "first", req.History[0].Content)
		assert.Equal(t, memory.RoleAssistant, req.History[1].Role)
		assert.Equal(t, "second", req.Prompt)
	})

	t.Run("should tolerate a failing long-term store", func(t *testing.T) {
		gen := &fakeGenerator{}
		rt := newTestRuntime(t, gen)
		agent := testAgent(erroringLongTerm{})

		resp, err := rt.Execute(ctx, agent, ExecuteRequest{Message: "hello"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("should persist turns without blocking the reply", func(t *testing.T) {
		writer := &capturingTurnWriter{}
		rt := newTestRuntime(t, &fakeGenerator{}, func(cfg *Config) { cfg.Turns = writer })

		_, err := rt.Execute(ctx, testAgent(nil), ExecuteRequest{Message: "hello"})
		require.NoError(t, err)

		assert.Eventually(t, func() bool { return writer.count() == 2 }, time.Second, 10*time.Millisecond)
	})
}

func TestExecuteSkills(t *testing.T) {
	ctx := context.Background()

	t.Run("should learn a declared skill and strip the marker", func(t *testing.T) {
		gen := &fakeGenerator{reply: "Done.\nLEARNED_SKILL: {\"name\": \"csv-parsing\", \"description\": \"parse csv files\"}"}
		rt := newTestRuntime(t, gen)
		agent := testAgent(nil)

		resp, err := rt.Execute(ctx, agent, ExecuteRequest{Message: "parse this csv"})
		require.NoError(t, err)

		require.NotNil(t, resp.NewSkill)
		assert.Equal(t, "csv-parsing", resp.NewSkill.Name)
		assert.Equal(t, "parse this csv", resp.NewSkill.LearnedFrom)
		assert.Equal(t, "Done.", resp.Message)
		assert.Equal(t, 1, agent.Memory.Skills.Len())

		learned := agent.Memory.Skills.All()
		require.Len(t, learned, 1)
		assert.Equal(t, "parse this csv", learned[0].LearnedFrom)
	})

	t.Run("should truncate a long triggering message in the provenance", func(t *testing.T) {
		gen := &fakeGenerator{reply: "Done.\nLEARNED_SKILL: {\"name\": \"summarize\", \"description\": \"summarize text\"}"}
		rt := newTestRuntime(t, gen)
		agent := testAgent(nil)

		long := strings.Repeat("summarize this ", 20)
		resp, err := rt.Execute(ctx, agent, ExecuteRequest{Message: long})
		require.NoError(t, err)

		require.NotNil(t, resp.NewSkill)
		assert.True(t, strings.HasSuffix(resp.NewSkill.LearnedFrom, "..."))
		assert.LessOrEqual(t, len([]rune(resp.NewSkill.LearnedFrom)), provenanceMaxLen+3)
	})

	t.Run("should ignore a malformed declaration and keep the raw text", func(t *testing.T) {
		gen := &fakeGenerator{reply: "Done.\nLEARNED_SKILL: {not json"}
		rt := newTestRuntime(t, gen)
		agent := testAgent(nil)

		resp, err := rt.Execute(ctx, agent, ExecuteRequest{Message: "parse this"})
		require.NoError(t, err)
		assert.Nil(t, resp.NewSkill)
		assert.Contains(t, resp.Message, "LEARNED_SKILL")
		assert.Equal(t, 0, agent.Memory.Skills.Len())
	})
}

func TestExecuteConcurrency(t *testing.T) {
	t.Run("should order concurrent calls for one agent without losing turns", func(t *testing.T) {
		gen := &fakeGenerator{}
		rt := newTestRuntime(t, gen)
		agent := testAgent(nil)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			i := i
			go func() {
				defer wg.Done()
				_, err := rt.Execute(context.Background(), agent, ExecuteRequest{
					Message: fmt.Sprintf("msg %d", i),
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		// 5 user turns and 5 assistant turns, strictly alternating:
		// serialization means no interleaved corruption
		turns := agent.Memory.ShortTerm.Recent(0)
		require.Len(t, turns, 10)
		for i, turn := range turns {
			if i%2 == 0 {
				assert.Equal(t, memory.RoleUser, turn.Role, "turn %d", i)
			} else {
				assert.Equal(t, memory.RoleAssistant, turn.Role, "turn %d", i)
			}
		}
	})
}

func TestAssemblePrompt(t *testing.T) {
	t.Run("should include every section in order", func(t *testing.T) {
		gen := &fakeGenerator{}
		rt := newTestRuntime(t, gen)

		agent := testAgent(&staticLongTerm{fragments: []memory.Fragment{
			{Content: "the user prefers metric units", Score: 0.9},
		}})
		agent.SystemPrompt = "Always cite sources."
		agent.Capabilities = []Capability{
			{Name: "research", Description: "finds sources", Enabled: true},
			{Name: "billing", Description: "hidden", Enabled: false},
		}
		agent.Memory.Skills.Learn(memory.LearnedSkill{Name: "unit-conversion", Description: "convert units"})
		agent.Tools = []tool.Definition{
			{Name: "search", Description: "web search", Enabled: true, Handler: func(ctx context.Context, p map[string]interface{}) (interface{}, error) { return nil, nil }},
		}

		resp, err := rt.Execute(context.Background(), agent, ExecuteRequest{
			Message: "how tall is everest?",
			Context: map[string]interface{}{"locale": "en-GB"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"search"}, resp.ToolsUsed)

		system := gen.lastRequest().System
		assert.Contains(t, system, "You are Atlas.")
		assert.Contains(t, system, "Always cite sources.")
		assert.Contains(t, system, "metric units")
		assert.Contains(t, system, "unit-conversion")
		assert.Contains(t, system, "research")
		assert.NotContains(t, system, "billing")
		assert.Contains(t, system, "search: web search")
		assert.Contains(t, system, "en-GB")
		assert.Contains(t, system, "Work autonomously")
	})
}
