// Package tool holds the registry of side-effecting functions an agent
// may invoke. Invocation is gated by explicit selection, never automatic.
package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/prismworks/prism/internal/observability"
)

// Parameter defines one typed parameter of a tool.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Definition declares a tool's metadata and handler.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Enabled     bool        `json:"enabled"`
	Handler     Handler     `json:"-"`
}

// Result carries the outcome of one tool execution.
type Result struct {
	Success   bool        `json:"success"`
	Output    interface{} `json:"output,omitempty"`
	Error     string      `json:"error,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
	Duration  int64       `json:"duration_ms"`
}

// Registry manages tool definitions and executes them with schema
// validation and a hard per-call timeout.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	timeout time.Duration
}

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 30 * time.Second

// NewRegistry creates an empty registry. A non-positive timeout falls
// back to DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	observability.EnsureRegistered()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
		timeout: timeout,
	}
}

// Register validates a definition, compiles its parameter schema, and
// adds it to the registry. Registering an existing name replaces it.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	log.Info().Str("tool", def.Name).Bool("enabled", def.Enabled).Msg("Tool registered")
	return nil
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	if !ok {
		return Definition{}, false
	}
	return *def, true
}

// All returns every registered tool in registration order.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.tools[name])
	}
	return out
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name after validating params against its
// schema. The handler runs under a hard deadline.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) Result {
	start := time.Now()

	r.mu.RLock()
	def := r.tools[name]
	schema := r.schemas[name]
	timeout := r.timeout
	r.mu.RUnlock()

	if def == nil {
		return Result{Success: false, Error: fmt.Sprintf("tool not found: %s", name)}
	}
	if !def.Enabled {
		return Result{Success: false, Error: fmt.Sprintf("tool disabled: %s", name)}
	}

	if err := validateParams(schema, params); err != nil {
		log.Error().Str("tool", name).Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(name, time.Since(start), false)
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("parameter validation failed: %v", err),
			Duration: time.Since(start).Milliseconds(),
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		output, err := def.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- output
	}()

	select {
	case output := <-resultChan:
		duration := time.Since(start)
		output, truncated := truncateOutput(output)
		observability.RecordToolExecution(name, duration, true)
		log.Debug().Str("tool", name).Dur("duration", duration).Msg("Tool execution completed")
		return Result{
			Success:   true,
			Output:    output,
			Truncated: truncated,
			Duration:  duration.Milliseconds(),
		}

	case err := <-errChan:
		duration := time.Since(start)
		observability.RecordToolExecution(name, duration, false)
		log.Error().Str("tool", name).Dur("duration", duration).Err(err).Msg("Tool execution failed")
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: duration.Milliseconds(),
		}

	case <-timeoutCtx.Done():
		duration := time.Since(start)
		observability.RecordToolExecution(name, duration, false)
		log.Error().Str("tool", name).Dur("duration", duration).Msg("Tool execution timeout")
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("tool execution timeout after %v", timeout),
			Duration: duration.Milliseconds(),
		}
	}
}

var validParamTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validParamTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}

// truncateOutput caps oversized tool output before it reaches a prompt.
func truncateOutput(output interface{}) (interface{}, bool) {
	const maxSize = 10 * 1024

	str := fmt.Sprintf("%v", output)
	if len(str) <= maxSize {
		return output, false
	}
	return str[:maxSize] + "\n... [output truncated]", true
}
