package runtime

import (
	"fmt"
	"time"

	"github.com/prismworks/prism/pkg/memory"
	"github.com/prismworks/prism/pkg/provider"
	"github.com/prismworks/prism/pkg/tool"
)

// Capability is a declarative flag surfaced to the backend through the
// system prompt. Capabilities are never executed directly.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// Memory bundles an agent's conversational state.
type Memory struct {
	ShortTerm *memory.Buffer
	LongTerm  memory.LongTerm
	Skills    *memory.SkillSet
}

// NewMemory creates fresh agent memory. A nil longTerm falls back to
// the no-op store.
func NewMemory(capacity int, longTerm memory.LongTerm) Memory {
	if longTerm == nil {
		longTerm = memory.NopLongTerm{}
	}
	return Memory{
		ShortTerm: memory.NewBuffer(capacity),
		LongTerm:  longTerm,
		Skills:    memory.NewSkillSet(),
	}
}

// Agent is one configured assistant. Created with fresh memory,
// mutated only through runtime calls, and never written concurrently
// for the same ID (the mailbox serializes writers).
type Agent struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Avatar       string            `json:"avatar,omitempty"`
	Capabilities []Capability      `json:"capabilities"`
	Backend      string            `json:"backend"`
	SystemPrompt string            `json:"system_prompt"`
	Temperature  float64           `json:"temperature"`
	Memory       Memory            `json:"-"`
	Tools        []tool.Definition `json:"tools"`
	IsActive     bool              `json:"is_active"`
	CurrentTask  string            `json:"current_task,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Validate checks the fields the runtime depends on.
func (a *Agent) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("agent id cannot be empty")
	}
	if a.Name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}
	if a.Temperature < 0 || a.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if a.Memory.ShortTerm == nil {
		return fmt.Errorf("agent memory is not initialized")
	}
	return nil
}

// preference maps the agent's backend setting to a router preference.
func (a *Agent) preference() string {
	if a.Backend == "" {
		return provider.BackendAuto
	}
	return a.Backend
}

// AgentResponse is what one execute call returns to the caller.
type AgentResponse struct {
	Message    string               `json:"message"`
	ToolsUsed  []string             `json:"tools_used"`
	NewSkill   *memory.LearnedSkill `json:"new_skill,omitempty"`
	Backend    string               `json:"backend"`
	Model      string               `json:"model"`
	TokensUsed int                  `json:"tokens_used"`
	CostUSD    float64              `json:"cost_usd"`
	Estimated  bool                 `json:"estimated,omitempty"`
}
