package router

import (
	"github.com/prismworks/prism/pkg/provider"
)

// TaskType tags the kind of work a request carries. It biases backend
// selection and nothing else.
type TaskType string

const (
	TaskGeneral      TaskType = "general"
	TaskCode         TaskType = "code"
	TaskArchitecture TaskType = "architecture"
	TaskDesign       TaskType = "design"
	TaskContent      TaskType = "content"
	TaskData         TaskType = "data"
)

// Table maps a task type to its backend candidate order. The order is
// static configuration: identical inputs always produce identical
// fallback chains, which keeps failed requests reproducible.
type Table map[TaskType][]string

// DefaultTable returns the standard candidate ordering. Reasoning-heavy
// work pays for the strong backend first; conversational work inverts
// the order to favor cost.
func DefaultTable() Table {
	return Table{
		TaskArchitecture: {provider.BackendHighReasoning, provider.BackendFastIteration, provider.BackendLowCost},
		TaskCode:         {provider.BackendHighReasoning, provider.BackendFastIteration, provider.BackendLowCost},
		TaskData:         {provider.BackendHighReasoning, provider.BackendFastIteration, provider.BackendLowCost},
		TaskDesign:       {provider.BackendFastIteration, provider.BackendHighReasoning, provider.BackendLowCost},
		TaskContent:      {provider.BackendFastIteration, provider.BackendLowCost, provider.BackendHighReasoning},
		TaskGeneral:      {provider.BackendLowCost, provider.BackendFastIteration, provider.BackendHighReasoning},
	}
}

// Candidates returns a copy of the candidate order for a task type.
// Unknown task types fall through to the general row.
func (t Table) Candidates(task TaskType) []string {
	order, ok := t[task]
	if !ok {
		order = t[TaskGeneral]
	}
	out := make([]string, len(order))
	copy(out, order)
	return out
}
