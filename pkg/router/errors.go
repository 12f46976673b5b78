package router

import (
	"fmt"
	"strings"

	"github.com/prismworks/prism/pkg/provider"
)

// Attempt records one failed backend try for diagnostics.
type Attempt struct {
	Backend string        `json:"backend"`
	Kind    provider.Kind `json:"kind"`
	Reason  string        `json:"reason"`
}

// ExhaustedError is the terminal router failure: every candidate in the
// fallback chain was tried and none produced a result. The attempt
// history is carried so callers can report which backends were tried
// and why each failed, never a bare empty response.
type ExhaustedError struct {
	TaskType  TaskType
	Attempted []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Attempted))
	for i, a := range e.Attempted {
		parts[i] = fmt.Sprintf("%s (%s)", a.Backend, a.Kind)
	}
	last := "no backends attempted"
	if n := len(e.Attempted); n > 0 {
		last = e.Attempted[n-1].Reason
	}
	return fmt.Sprintf("all backends exhausted for task %q: tried %s; last failure: %s",
		e.TaskType, strings.Join(parts, ", "), last)
}

// LastKind returns the failure kind of the final attempt.
func (e *ExhaustedError) LastKind() provider.Kind {
	if n := len(e.Attempted); n > 0 {
		return e.Attempted[n-1].Kind
	}
	return ""
}
