package memory

import (
	"sync"
	"time"

	"github.com/prismworks/prism/internal/observability"
)

// DefaultCapacity is the short-term window used when none is configured.
const DefaultCapacity = 20

// Roles a turn can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one message in an agent's conversation history. Immutable
// once appended.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Buffer is a fixed-capacity FIFO of recent turns. Once full, each
// append evicts the oldest turn. Safe for concurrent use, though the
// runtime serializes writers per agent anyway.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	turns    []Turn
}

// NewBuffer creates a buffer holding at most capacity turns.
// Non-positive capacities fall back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		turns:    make([]Turn, 0, capacity),
	}
}

// Append records a turn, evicting the oldest when the window is full.
func (b *Buffer) Append(turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.turns) >= b.capacity {
		evict := len(b.turns) - b.capacity + 1
		b.turns = append(b.turns[:0], b.turns[evict:]...)
		observability.RecordShortTermEviction()
	}
	b.turns = append(b.turns, turn)
}

// Recent returns up to n of the most recent turns, oldest first.
// n <= 0 returns the full window.
func (b *Buffer) Recent(n int) []Turn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > len(b.turns) {
		n = len(b.turns)
	}
	out := make([]Turn, n)
	copy(out, b.turns[len(b.turns)-n:])
	return out
}

// Len reports how many turns the window currently holds.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns)
}

// Capacity reports the window size.
func (b *Buffer) Capacity() int {
	return b.capacity
}
