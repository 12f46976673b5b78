package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer(t *testing.T) {
	t.Run("should append turns in order", func(t *testing.T) {
		b := NewBuffer(5)
		b.Append(Turn{Role: RoleUser, Content: "first"})
		b.Append(Turn{Role: RoleAssistant, Content: "second"})

		turns := b.Recent(0)
		require.Len(t, turns, 2)
		assert.Equal(t, "first", turns[0].Content)
		assert.Equal(t, "second", turns[1].Content)
	})

	t.Run("should evict the oldest turn past capacity", func(t *testing.T) {
		b := NewBuffer(3)
		for i := 1; i <= 5; i++ {
			b.Append(Turn{Role: RoleUser, Content: fmt.Sprintf("msg %d", i)})
		}

		turns := b.Recent(0)
		require.Len(t, turns, 3)
		assert.Equal(t, "msg 3", turns[0].Content)
		assert.Equal(t, "msg 5", turns[2].Content)
	})

	t.Run("should default the capacity", func(t *testing.T) {
		b := NewBuffer(0)
		assert.Equal(t, DefaultCapacity, b.Capacity())

		for i := 0; i < DefaultCapacity+7; i++ {
			b.Append(Turn{Role: RoleUser, Content: "x"})
		}
		assert.Equal(t, DefaultCapacity, b.Len())
	})

	t.Run("should stamp missing timestamps", func(t *testing.T) {
		b := NewBuffer(2)
		b.Append(Turn{Role: RoleUser, Content: "hello"})
		assert.False(t, b.Recent(1)[0].Timestamp.IsZero())
	})

	t.Run("should limit Recent to n most recent turns", func(t *testing.T) {
		b := NewBuffer(10)
		for i := 1; i <= 4; i++ {
			b.Append(Turn{Role: RoleUser, Content: fmt.Sprintf("msg %d", i)})
		}

		turns := b.Recent(2)
		require.Len(t, turns, 2)
		assert.Equal(t, "msg 3", turns[0].Content)
		assert.Equal(t, "msg 4", turns[1].Content)
	})

	t.Run("should return a copy callers cannot mutate", func(t *testing.T) {
		b := NewBuffer(5)
		b.Append(Turn{Role: RoleUser, Content: "original"})

		turns := b.Recent(0)
		turns[0].Content = "mutated"
		assert.Equal(t, "original", b.Recent(0)[0].Content)
	})
}

func TestSkillSet(t *testing.T) {
	t.Run("should record new skills with an initial usage count", func(t *testing.T) {
		s := NewSkillSet()
		s.Learn(LearnedSkill{Name: "summarize", Description: "condense long text"})

		skills := s.All()
		require.Len(t, skills, 1)
		assert.Equal(t, "summarize", skills[0].Name)
		assert.Equal(t, 1, skills[0].UsageCount)
		assert.False(t, skills[0].LearnedAt.IsZero())
	})

	t.Run("should bump usage when relearning", func(t *testing.T) {
		s := NewSkillSet()
		s.Learn(LearnedSkill{Name: "summarize"})
		s.Learn(LearnedSkill{Name: "summarize"})

		require.Equal(t, 1, s.Len())
		assert.Equal(t, 2, s.All()[0].UsageCount)
	})

	t.Run("should preserve learning order", func(t *testing.T) {
		s := NewSkillSet()
		s.Learn(LearnedSkill{Name: "alpha"})
		s.Learn(LearnedSkill{Name: "beta"})
		s.Learn(LearnedSkill{Name: "gamma"})

		skills := s.All()
		require.Len(t, skills, 3)
		assert.Equal(t, "alpha", skills[0].Name)
		assert.Equal(t, "gamma", skills[2].Name)
	})

	t.Run("should ignore unnamed skills", func(t *testing.T) {
		s := NewSkillSet()
		s.Learn(LearnedSkill{Description: "no name"})
		assert.Equal(t, 0, s.Len())
	})

	t.Run("should bump usage via Use", func(t *testing.T) {
		s := NewSkillSet()
		s.Learn(LearnedSkill{Name: "translate"})
		s.Use("translate")
		s.Use("unknown")

		assert.Equal(t, 2, s.All()[0].UsageCount)
	})
}
