package mailbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prismworks/prism/internal/observability"
	"github.com/prismworks/prism/internal/tracing"
)

// Task is one unit of work executed on an agent's lane.
type Task func(ctx context.Context) (interface{}, error)

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	result     chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

// lane holds the serial execution state for one agent.
type lane struct {
	mu         sync.Mutex
	queue      []*taskRecord
	running    bool
	lastActive time.Time
}

// Mailbox dispatches tasks onto per-agent lanes. Within a lane tasks
// run one at a time in arrival order.
type Mailbox struct {
	mu        sync.RWMutex
	lanes     map[string]*lane
	taskIDSeq int
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closed    bool
}

// New creates an empty mailbox.
func New() *Mailbox {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &Mailbox{
		lanes:  make(map[string]*lane),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit enqueues a task on the agent's lane and blocks until it
// completes. Tasks submitted for the same agent execute in submission
// order; tasks for different agents do not wait on each other.
func (m *Mailbox) Submit(ctx context.Context, agentID string, task Task) (interface{}, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(ctx, "prism.mailbox", "mailbox.submit",
		attribute.String("agent_id", agentID))
	defer span.End()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("mailbox closed")
	}
	m.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", agentID, m.taskIDSeq)
	ln, ok := m.lanes[agentID]
	if !ok {
		ln = &lane{}
		m.lanes[agentID] = ln
		observability.SetActiveLanes(len(m.lanes))
	}
	m.mu.Unlock()

	record := &taskRecord{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		result:     make(chan taskResult, 1),
	}

	ln.mu.Lock()
	ln.queue = append(ln.queue, record)
	ln.lastActive = time.Now()
	depth := len(ln.queue)
	ln.mu.Unlock()

	observability.SetLaneDepth(agentID, depth)
	log.Debug().Str("agent_id", agentID).Str("task_id", taskID).Int("depth", depth).
		Msg("Task enqueued")

	go m.drain(agentID, ln)

	result := <-record.result
	if result.err != nil {
		span.RecordError(result.err)
		span.SetStatus(codes.Error, result.err.Error())
	}
	return result.value, result.err
}

// drain runs queued tasks one at a time until the lane is empty.
func (m *Mailbox) drain(agentID string, ln *lane) {
	ln.mu.Lock()
	if ln.running || len(ln.queue) == 0 {
		ln.mu.Unlock()
		return
	}
	ln.running = true
	record := ln.queue[0]
	ln.queue = ln.queue[1:]
	ln.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		taskCtx, cancel := context.WithCancel(record.ctx)
		stopCancel := context.AfterFunc(m.ctx, cancel)
		defer func() {
			stopCancel()
			cancel()
		}()

		start := time.Now()
		value, err := record.task(taskCtx)
		duration := time.Since(start)

		ln.mu.Lock()
		ln.running = false
		ln.lastActive = time.Now()
		depth := len(ln.queue)
		ln.mu.Unlock()

		record.result <- taskResult{value: value, err: err}
		close(record.result)

		observability.SetLaneDepth(agentID, depth)
		logger := tracing.LoggerFromContext(record.ctx, log.Logger)
		if err != nil {
			logger.Error().Str("agent_id", agentID).Str("task_id", record.id).
				Dur("duration", duration).Err(err).Msg("Task failed")
		} else {
			logger.Debug().Str("agent_id", agentID).Str("task_id", record.id).
				Dur("duration", duration).Msg("Task completed")
		}

		m.drain(agentID, ln)
	}()
}

// Depth reports how many tasks are queued (not running) for an agent.
func (m *Mailbox) Depth(agentID string) int {
	m.mu.RLock()
	ln, ok := m.lanes[agentID]
	m.mu.RUnlock()
	if !ok {
		return 0
	}

	ln.mu.Lock()
	defer ln.mu.Unlock()
	return len(ln.queue)
}

// ActiveLanes reports how many agent lanes currently exist.
func (m *Mailbox) ActiveLanes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lanes)
}

// SweepIdle removes lanes with no queued or running work whose last
// activity is older than ttl. Returns how many lanes were removed.
func (m *Mailbox) SweepIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for agentID, ln := range m.lanes {
		ln.mu.Lock()
		idle := !ln.running && len(ln.queue) == 0 && ln.lastActive.Before(cutoff)
		ln.mu.Unlock()
		if idle {
			delete(m.lanes, agentID)
			removed++
		}
	}

	if removed > 0 {
		observability.SetActiveLanes(len(m.lanes))
		log.Info().Int("removed", removed).Int("remaining", len(m.lanes)).
			Msg("Swept idle agent lanes")
	}
	return removed
}

// Close stops accepting work, cancels in-flight tasks, and waits for
// them to finish.
func (m *Mailbox) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	return nil
}
