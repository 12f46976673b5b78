// Package provider defines the uniform call surface over concrete LLM
// backends. Each adapter normalizes its SDK's failures into the closed
// error taxonomy in errors.go; retry and fallback policy live one layer
// up, in the router.
package provider

import (
	"context"
)

// Backend identifiers for the supported backend families.
const (
	BackendHighReasoning = "high-reasoning"
	BackendFastIteration = "fast-iteration"
	BackendLowCost       = "low-cost"

	// BackendAuto lets the router pick the candidate order
	BackendAuto = "auto"
)

// Message is one conversation turn handed to a backend.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// Request contains the parameters for one backend invocation.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage is backend-reported token consumption. A nil Usage on Response
// means the backend did not report it and the caller must estimate.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Response is a successful backend reply.
type Response struct {
	Text  string
	Model string
	Usage *Usage
}

// Adapter is the uniform surface over one concrete LLM backend. Invoke
// must not retry and must not leak SDK error types: every failure is a
// *provider.Error.
type Adapter interface {
	// Invoke submits a prompt and returns the reply
	Invoke(ctx context.Context, req Request) (*Response, error)

	// Backend returns the backend identifier
	Backend() string
}

// Factory builds adapters for a backend identifier. The router depends
// on this interface so tests can inject scripted fakes.
type Factory interface {
	Adapter(backend string) (Adapter, error)
}
