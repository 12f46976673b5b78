// Package router selects an LLM backend for a request, invokes it, and
// absorbs backend failures by falling through a deterministic candidate
// chain. It is the only layer with retry/fallback policy; adapters
// below it never retry, and the agent runtime above it never re-routes.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prismworks/prism/internal/observability"
	"github.com/prismworks/prism/internal/tracing"
	"github.com/prismworks/prism/pkg/provider"
)

const defaultAttemptTimeout = 30 * time.Second

// GenerationResult is the normalized output of one successful routed
// call. It is complete or it does not exist; the router never returns
// a partially populated result.
type GenerationResult struct {
	Text       string  `json:"text"`
	Backend    string  `json:"backend"`
	Model      string  `json:"model"`
	TokensUsed int     `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
	// Estimated marks token counts reconstructed by the tokenizer
	// because the backend omitted usage data
	Estimated bool `json:"estimated,omitempty"`
}

// UsageRecord is the accounting row persisted after each success.
type UsageRecord struct {
	Backend    string    `json:"backend"`
	Model      string    `json:"model"`
	TokensUsed int       `json:"tokens_used"`
	CostUSD    float64   `json:"cost_usd"`
	Estimated  bool      `json:"estimated"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageWriter persists usage records. Implementations must tolerate
// being called concurrently; failures are logged by the router, never
// surfaced to the caller.
type UsageWriter interface {
	SaveUsage(ctx context.Context, record UsageRecord) error
}

// GenerateRequest is one routed generation call.
type GenerateRequest struct {
	Prompt      string
	System      string
	History     []provider.Message
	TaskType    TaskType
	Preference  string // backend ID, or "auto"/empty for table order
	Temperature float64
	MaxTokens   int // 0 means the router default
}

// Config holds router dependencies.
type Config struct {
	Factory        provider.Factory
	Table          Table
	PricePerToken  map[string]float64
	AttemptTimeout time.Duration
	MaxTokens      int
	Logger         zerolog.Logger
	Usage          UsageWriter // optional
}

// Router routes generation requests to backends.
type Router struct {
	factory        provider.Factory
	table          Table
	prices         map[string]float64
	attemptTimeout time.Duration
	maxTokens      int
	logger         zerolog.Logger
	usage          UsageWriter
}

// New creates a Router.
func New(cfg Config) (*Router, error) {
	observability.EnsureRegistered()

	if cfg.Factory == nil {
		return nil, fmt.Errorf("provider factory is required")
	}

	table := cfg.Table
	if table == nil {
		table = DefaultTable()
	}
	if _, ok := table[TaskGeneral]; !ok {
		return nil, fmt.Errorf("routing table must include the general row")
	}

	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &Router{
		factory:        cfg.Factory,
		table:          table,
		prices:         cfg.PricePerToken,
		attemptTimeout: timeout,
		maxTokens:      maxTokens,
		logger:         cfg.Logger,
		usage:          cfg.Usage,
	}, nil
}

// Candidates returns the deterministic backend order the router would
// try for a task type and preference.
func (r *Router) Candidates(task TaskType, preference string) []string {
	if preference != "" && preference != provider.BackendAuto {
		return []string{preference}
	}
	return r.table.Candidates(task)
}

// Generate routes one request through the candidate chain and returns
// a complete result or a terminal error.
func (r *Router) Generate(ctx context.Context, req GenerateRequest) (*GenerationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"prism.router",
		"router.generate",
		attribute.String("task_type", string(req.TaskType)),
		attribute.String("preference", req.Preference),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	if req.Prompt == "" {
		err := fmt.Errorf("prompt cannot be empty")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	explicit := req.Preference != "" && req.Preference != provider.BackendAuto
	candidates := r.Candidates(req.TaskType, req.Preference)

	preq := provider.Request{
		System:      req.System,
		Messages:    append(append([]provider.Message{}, req.History...), provider.Message{Role: "user", Content: req.Prompt}),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if preq.MaxTokens <= 0 {
		preq.MaxTokens = r.maxTokens
	}

	attempts := make([]Attempt, 0, len(candidates))

	for _, backend := range candidates {
		adapter, err := r.factory.Adapter(backend)
		if err != nil {
			if explicit {
				// An explicit choice the factory cannot build is a
				// caller error, not a reason to substitute
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("requested backend %s: %w", backend, err)
			}
			logger.Warn().Str("backend", backend).Err(err).Msg("Skipping unconfigured backend")
			attempts = append(attempts, Attempt{Backend: backend, Kind: provider.KindUnavailable, Reason: err.Error()})
			continue
		}

		start := time.Now()
		resp, err := r.invoke(ctx, adapter, preq)
		duration := time.Since(start)
		observability.RecordGenerate(backend, duration, err == nil)

		if err == nil {
			result := r.buildResult(backend, preq, resp)
			r.recordUsage(logger, result)
			logger.Info().
				Str("backend", backend).
				Str("model", result.Model).
				Int("tokens", result.TokensUsed).
				Float64("cost_usd", result.CostUSD).
				Bool("estimated", result.Estimated).
				Dur("duration", duration).
				Msg("Generation complete")
			return result, nil
		}

		pe := toProviderError(backend, err)
		attempts = append(attempts, Attempt{Backend: backend, Kind: pe.Kind, Reason: pe.Error()})
		observability.RecordFallback(backend, string(pe.Kind))

		// Misconfiguration deserves a louder signal than a transient
		// blip, but both advance the chain: one broken backend must
		// not block the usable ones
		if pe.Kind == provider.KindAuthInvalid {
			logger.Error().Str("backend", backend).Err(pe).Msg("Backend credentials rejected")
		} else {
			logger.Warn().Str("backend", backend).Str("kind", string(pe.Kind)).Err(pe).Msg("Backend attempt failed")
		}

		// Caller cancellation is terminal: never start the next
		// candidate on a dead request
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, ctx.Err().Error())
			return nil, ctx.Err()
		}
	}

	exhausted := &ExhaustedError{TaskType: req.TaskType, Attempted: attempts}
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, exhausted.Error())
	logger.Error().Int("attempted", len(attempts)).Msg("All backend candidates exhausted")
	return nil, exhausted
}

// invoke runs one adapter attempt under the hard per-attempt deadline.
func (r *Router) invoke(ctx context.Context, adapter provider.Adapter, req provider.Request) (*provider.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	return adapter.Invoke(attemptCtx, req)
}

func (r *Router) buildResult(backend string, req provider.Request, resp *provider.Response) *GenerationResult {
	usage := resp.Usage
	estimated := false
	if usage == nil {
		u := provider.EstimateUsage(req, resp.Text)
		usage = &u
		estimated = true
	}

	tokens := usage.Total()
	return &GenerationResult{
		Text:       resp.Text,
		Backend:    backend,
		Model:      resp.Model,
		TokensUsed: tokens,
		CostUSD:    float64(tokens) * r.prices[backend],
		Estimated:  estimated,
	}
}

// recordUsage updates accounting counters and persists the usage row
// fire-and-forget: storage trouble never fails a served request.
func (r *Router) recordUsage(logger zerolog.Logger, result *GenerationResult) {
	observability.RecordUsage(result.Backend, result.TokensUsed, result.CostUSD, result.Estimated)

	if r.usage == nil {
		return
	}
	record := UsageRecord{
		Backend:    result.Backend,
		Model:      result.Model,
		TokensUsed: result.TokensUsed,
		CostUSD:    result.CostUSD,
		Estimated:  result.Estimated,
		CreatedAt:  time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.usage.SaveUsage(ctx, record); err != nil {
			observability.RecordUsageWrite(false)
			logger.Warn().Err(err).Msg("Failed to persist usage record")
			return
		}
		observability.RecordUsageWrite(true)
	}()
}

func toProviderError(backend string, err error) *provider.Error {
	if pe, ok := provider.AsError(err); ok {
		return pe
	}
	return provider.NewError(backend, provider.KindUnavailable, err)
}
