// Package runtime executes agent conversations: it reads memory,
// assembles the system prompt, calls the model router, and writes the
// resulting turns back. All work for one agent ID is serialized
// through a mailbox lane.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prismworks/prism/internal/observability"
	"github.com/prismworks/prism/internal/tracing"
	"github.com/prismworks/prism/pkg/mailbox"
	"github.com/prismworks/prism/pkg/memory"
	"github.com/prismworks/prism/pkg/provider"
	"github.com/prismworks/prism/pkg/router"
	"github.com/prismworks/prism/pkg/tool"
)

// Invocation states, logged as each execute call advances.
const (
	stateReceived        = "RECEIVED"
	stateMemoryRead      = "MEMORY_READ"
	statePromptAssembled = "PROMPT_ASSEMBLED"
	stateRouted          = "ROUTED"
	stateMemoryWrite     = "MEMORY_WRITE"
	stateReturned        = "RETURNED"
	stateError           = "ERROR"
)

// Generator is the slice of the model router the runtime needs.
type Generator interface {
	Generate(ctx context.Context, req router.GenerateRequest) (*router.GenerationResult, error)
}

// TurnWriter persists conversation turns. Writes are fire-and-forget:
// a failure is logged, never surfaced to the in-flight request.
type TurnWriter interface {
	SaveTurn(ctx context.Context, agentID string, turn memory.Turn) error
}

// Config holds runtime configuration.
type Config struct {
	Router          Generator
	Mailbox         *mailbox.Mailbox // optional, created when nil
	Turns           TurnWriter       // optional
	Logger          zerolog.Logger
	RetrieveLimit   int           // long-term fragments per call
	LaneIdleTTL     time.Duration // mailbox lanes idle longer than this are swept
	JanitorSchedule string        // cron spec for the sweep, empty disables it
}

// Runtime drives agent execution.
type Runtime struct {
	generator     Generator
	mailbox       *mailbox.Mailbox
	turns         TurnWriter
	logger        zerolog.Logger
	retrieveLimit int
	laneIdleTTL   time.Duration
	janitor       *cron.Cron
}

// ExecuteRequest is one user message for an agent.
type ExecuteRequest struct {
	Message  string
	TaskType router.TaskType
	Context  map[string]interface{} // serialized into the system prompt
}

const defaultRetrieveLimit = 3

// New creates a runtime. The janitor starts immediately when a
// schedule is configured.
func New(cfg Config) (*Runtime, error) {
	observability.EnsureRegistered()

	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}
	if cfg.Mailbox == nil {
		cfg.Mailbox = mailbox.New()
	}
	if cfg.RetrieveLimit <= 0 {
		cfg.RetrieveLimit = defaultRetrieveLimit
	}
	if cfg.LaneIdleTTL <= 0 {
		cfg.LaneIdleTTL = time.Hour
	}

	rt := &Runtime{
		generator:     cfg.Router,
		mailbox:       cfg.Mailbox,
		turns:         cfg.Turns,
		logger:        cfg.Logger,
		retrieveLimit: cfg.RetrieveLimit,
		laneIdleTTL:   cfg.LaneIdleTTL,
	}

	if cfg.JanitorSchedule != "" {
		rt.janitor = cron.New()
		if _, err := rt.janitor.AddFunc(cfg.JanitorSchedule, rt.sweep); err != nil {
			return nil, fmt.Errorf("invalid janitor schedule: %w", err)
		}
		rt.janitor.Start()
		rt.logger.Info().Str("schedule", cfg.JanitorSchedule).Msg("Lane janitor started")
	}

	return rt, nil
}

// Execute runs one user message through the agent. Calls for the same
// agent ID are serialized; calls for different agents run concurrently.
func (rt *Runtime) Execute(ctx context.Context, agent *Agent, req ExecuteRequest) (*AgentResponse, error) {
	if err := agent.Validate(); err != nil {
		return nil, err
	}
	if !agent.IsActive {
		return nil, fmt.Errorf("agent %s is not active", agent.ID)
	}
	if req.Message == "" {
		return nil, errors.New("message cannot be empty")
	}

	ctx = tracing.WithAgentID(ctx, agent.ID)

	value, err := rt.mailbox.Submit(ctx, agent.ID, func(taskCtx context.Context) (interface{}, error) {
		return rt.run(taskCtx, agent, req)
	})
	if err != nil {
		return nil, err
	}
	return value.(*AgentResponse), nil
}

// run is the per-invocation state machine. It executes on the agent's
// mailbox lane, so it is the only writer of this agent's memory.
func (rt *Runtime) run(ctx context.Context, agent *Agent, req ExecuteRequest) (*AgentResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "prism.runtime", "runtime.execute",
		attribute.String("task_type", string(req.TaskType)))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, rt.logger).With().Str("agent_id", agent.ID).Logger()
	start := time.Now()

	logger.Debug().Str("state", stateReceived).Msg("Message received")

	// The user's input is recorded before anything can fail, so it
	// survives a backend failure
	userTurn := memory.Turn{Role: memory.RoleUser, Content: req.Message, Timestamp: time.Now()}
	agent.Memory.ShortTerm.Append(userTurn)
	rt.persistTurn(ctx, agent.ID, userTurn, logger)

	fragments, err := agent.Memory.LongTerm.Retrieve(ctx, agent.ID, req.Message, rt.retrieveLimit)
	if err != nil {
		// Retrieval is a capability hook, not a correctness path
		logger.Warn().Err(err).Msg("Long-term retrieval failed, continuing without fragments")
		fragments = nil
	}
	logger.Debug().Str("state", stateMemoryRead).Int("fragments", len(fragments)).Msg("Memory read")

	selected := tool.Select(req.Message, agent.Tools)
	systemPrompt := assembleSystemPrompt(agent, fragments, selected, req.Context)
	logger.Debug().Str("state", statePromptAssembled).Int("tools", len(selected)).Msg("Prompt assembled")

	// Everything in the window up to (not including) the turn just
	// appended becomes history; the message itself goes as the prompt
	window := agent.Memory.ShortTerm.Recent(0)
	history := make([]provider.Message, 0, len(window)-1)
	for _, turn := range window[:len(window)-1] {
		history = append(history, provider.Message{Role: turn.Role, Content: turn.Content})
	}

	taskType := req.TaskType
	if taskType == "" {
		taskType = router.TaskGeneral
	}

	result, err := rt.generator.Generate(ctx, router.GenerateRequest{
		Prompt:      req.Message,
		System:      systemPrompt,
		History:     history,
		TaskType:    taskType,
		Preference:  agent.preference(),
		Temperature: agent.Temperature,
	})
	if err != nil {
		// The router already exhausted its fallback chain; surface the
		// terminal error without an assistant turn. The user turn stays.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordExecute(time.Since(start), false)
		logger.Error().Str("state", stateError).Err(err).Msg("Generation failed")
		return nil, err
	}
	logger.Debug().Str("state", stateRouted).Str("backend", result.Backend).Msg("Generation complete")

	skill := parseSkill(result.Text)
	message := stripSkillMarker(result.Text)

	assistantTurn := memory.Turn{Role: memory.RoleAssistant, Content: message, Timestamp: time.Now()}
	agent.Memory.ShortTerm.Append(assistantTurn)
	rt.persistTurn(ctx, agent.ID, assistantTurn, logger)

	if skill != nil {
		skill.LearnedFrom = skillProvenance(req.Message)
		agent.Memory.Skills.Learn(*skill)
		logger.Info().Str("skill", skill.Name).Msg("Agent learned a new skill")
	}
	rt.remember(agent, req.Message, message, logger)
	logger.Debug().Str("state", stateMemoryWrite).Msg("Memory written")

	agent.UpdatedAt = time.Now()
	observability.RecordExecute(time.Since(start), true)
	logger.Debug().Str("state", stateReturned).Dur("duration", time.Since(start)).Msg("Execution finished")

	return &AgentResponse{
		Message:    message,
		ToolsUsed:  tool.Names(selected),
		NewSkill:   skill,
		Backend:    result.Backend,
		Model:      result.Model,
		TokensUsed: result.TokensUsed,
		CostUSD:    result.CostUSD,
		Estimated:  result.Estimated,
	}, nil
}

// persistTurn writes a turn to durable storage without blocking or
// failing the request. The in-memory buffer is the source of truth.
func (rt *Runtime) persistTurn(ctx context.Context, agentID string, turn memory.Turn, logger zerolog.Logger) {
	if rt.turns == nil {
		return
	}

	go func() {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := rt.turns.SaveTurn(saveCtx, agentID, turn); err != nil {
			logger.Warn().Err(err).Str("role", turn.Role).Msg("Failed to persist turn")
		}
	}()
}

// remember stores the exchange in long-term memory, best-effort.
func (rt *Runtime) remember(agent *Agent, userMessage, reply string, logger zerolog.Logger) {
	exchange := fmt.Sprintf("User: %s\nAssistant: %s", userMessage, reply)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := agent.Memory.LongTerm.Remember(ctx, agent.ID, exchange); err != nil {
			logger.Warn().Err(err).Msg("Failed to store exchange in long-term memory")
		}
	}()
}

func (rt *Runtime) sweep() {
	removed := rt.mailbox.SweepIdle(rt.laneIdleTTL)
	if removed > 0 {
		rt.logger.Debug().Int("removed", removed).Msg("Janitor swept idle lanes")
	}
}

// Close stops the janitor and drains the mailbox.
func (rt *Runtime) Close() error {
	if rt.janitor != nil {
		rt.janitor.Stop()
	}
	return rt.mailbox.Close()
}
