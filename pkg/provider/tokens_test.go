package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	t.Run("should return zero for empty text", func(t *testing.T) {
		assert.Equal(t, 0, CountTokens(""))
	})

	t.Run("should return a positive count for prose", func(t *testing.T) {
		n := CountTokens("explain the architecture of a model router")
		assert.Greater(t, n, 0)
		assert.Less(t, n, 50)
	})

	t.Run("should grow with input size", func(t *testing.T) {
		short := CountTokens("hello")
		long := CountTokens("hello hello hello hello hello hello hello hello")
		assert.Greater(t, long, short)
	})
}

func TestEstimateUsage(t *testing.T) {
	t.Run("should count prompt and completion sides separately", func(t *testing.T) {
		req := Request{
			System: "You are a helpful assistant.",
			Messages: []Message{
				{Role: "user", Content: "summarize the project"},
			},
		}

		usage := EstimateUsage(req, "The project routes work to model backends.")
		assert.Greater(t, usage.InputTokens, 0)
		assert.Greater(t, usage.OutputTokens, 0)
		assert.Equal(t, usage.InputTokens+usage.OutputTokens, usage.Total())
	})

	t.Run("should handle empty completion", func(t *testing.T) {
		usage := EstimateUsage(Request{System: "system"}, "")
		assert.Equal(t, 0, usage.OutputTokens)
		assert.Greater(t, usage.InputTokens, 0)
	})
}
