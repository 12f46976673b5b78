package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	t.Run("should return the task's value", func(t *testing.T) {
		m := New()
		defer m.Close()

		value, err := m.Submit(context.Background(), "agent-1", func(ctx context.Context) (interface{}, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, value)
	})

	t.Run("should return the task's error", func(t *testing.T) {
		m := New()
		defer m.Close()

		_, err := m.Submit(context.Background(), "agent-1", func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("task failed")
		})
		assert.EqualError(t, err, "task failed")
	})

	t.Run("should require an agent id", func(t *testing.T) {
		m := New()
		defer m.Close()

		_, err := m.Submit(context.Background(), "", func(ctx context.Context) (interface{}, error) {
			return nil, nil
		})
		assert.Error(t, err)
	})

	t.Run("should serialize tasks for the same agent", func(t *testing.T) {
		m := New()
		defer m.Close()

		var mu sync.Mutex
		var order []int
		var active int
		var maxActive int

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			i := i
			go func() {
				defer wg.Done()
				_, err := m.Submit(context.Background(), "agent-1", func(ctx context.Context) (interface{}, error) {
					mu.Lock()
					active++
					if active > maxActive {
						maxActive = active
					}
					mu.Unlock()

					time.Sleep(5 * time.Millisecond)

					mu.Lock()
					active--
					order = append(order, i)
					mu.Unlock()
					return nil, nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, maxActive, "same-agent tasks must never overlap")
		assert.Len(t, order, 10, "no task may be lost")
	})

	t.Run("should run different agents concurrently", func(t *testing.T) {
		m := New()
		defer m.Close()

		release := make(chan struct{})
		started := make(chan string, 2)

		var wg sync.WaitGroup
		for _, agentID := range []string{"agent-1", "agent-2"} {
			wg.Add(1)
			agentID := agentID
			go func() {
				defer wg.Done()
				_, _ = m.Submit(context.Background(), agentID, func(ctx context.Context) (interface{}, error) {
					started <- agentID
					<-release
					return nil, nil
				})
			}()
		}

		// Both lanes must start without waiting on each other
		for i := 0; i < 2; i++ {
			select {
			case <-started:
			case <-time.After(time.Second):
				t.Fatal("lanes did not run concurrently")
			}
		}
		close(release)
		wg.Wait()
	})
}

func TestSweepIdle(t *testing.T) {
	t.Run("should remove idle lanes past the ttl", func(t *testing.T) {
		m := New()
		defer m.Close()

		for i := 0; i < 3; i++ {
			agentID := fmt.Sprintf("agent-%d", i)
			_, err := m.Submit(context.Background(), agentID, func(ctx context.Context) (interface{}, error) {
				return nil, nil
			})
			require.NoError(t, err)
		}
		require.Equal(t, 3, m.ActiveLanes())

		time.Sleep(20 * time.Millisecond)
		removed := m.SweepIdle(10 * time.Millisecond)
		assert.Equal(t, 3, removed)
		assert.Equal(t, 0, m.ActiveLanes())
	})

	t.Run("should keep busy lanes", func(t *testing.T) {
		m := New()
		defer m.Close()

		release := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = m.Submit(context.Background(), "agent-1", func(ctx context.Context) (interface{}, error) {
				<-release
				return nil, nil
			})
		}()

		assert.Eventually(t, func() bool { return m.ActiveLanes() == 1 }, time.Second, 5*time.Millisecond)

		removed := m.SweepIdle(0)
		assert.Equal(t, 0, removed)
		assert.Equal(t, 1, m.ActiveLanes())

		close(release)
		<-done
	})
}

func TestClose(t *testing.T) {
	t.Run("should reject submissions after close", func(t *testing.T) {
		m := New()
		require.NoError(t, m.Close())

		_, err := m.Submit(context.Background(), "agent-1", func(ctx context.Context) (interface{}, error) {
			return nil, nil
		})
		assert.Error(t, err)
	})

	t.Run("should cancel in-flight tasks", func(t *testing.T) {
		m := New()

		started := make(chan struct{})
		errCh := make(chan error, 1)
		go func() {
			_, err := m.Submit(context.Background(), "agent-1", func(ctx context.Context) (interface{}, error) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			})
			errCh <- err
		}()

		<-started
		require.NoError(t, m.Close())
		assert.ErrorIs(t, <-errCh, context.Canceled)
	})
}
