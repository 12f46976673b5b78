package memory

import (
	"sync"
	"time"
)

// LearnedSkill is a named capability an agent picked up from a past
// interaction. Skills are appended, never removed.
type LearnedSkill struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	LearnedFrom string    `json:"learned_from"`
	UsageCount  int       `json:"usage_count"`
	LearnedAt   time.Time `json:"learned_at"`
}

// SkillSet is an append-only collection of learned skills keyed by name.
type SkillSet struct {
	mu     sync.RWMutex
	order  []string
	skills map[string]*LearnedSkill
}

func NewSkillSet() *SkillSet {
	return &SkillSet{skills: make(map[string]*LearnedSkill)}
}

// Learn records a new skill. Re-learning an existing skill bumps its
// usage count instead of duplicating it.
func (s *SkillSet) Learn(skill LearnedSkill) {
	if skill.Name == "" {
		return
	}
	if skill.LearnedAt.IsZero() {
		skill.LearnedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.skills[skill.Name]; ok {
		existing.UsageCount++
		return
	}
	skill.UsageCount = 1
	s.skills[skill.Name] = &skill
	s.order = append(s.order, skill.Name)
}

// Use bumps the usage count of a known skill. Unknown names are ignored.
func (s *SkillSet) Use(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if skill, ok := s.skills[name]; ok {
		skill.UsageCount++
	}
}

// All returns the skills in the order they were learned.
func (s *SkillSet) All() []LearnedSkill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]LearnedSkill, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.skills[name])
	}
	return out
}

// Len reports how many distinct skills have been learned.
func (s *SkillSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.skills)
}
