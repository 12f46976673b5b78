package provider

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens returns a token count for text using the cl100k_base
// encoding. When the encoding cannot be initialized it falls back to
// the rough 4-characters-per-token approximation, which overshoots on
// code and undershoots on prose but is close enough for accounting
// marked as estimated.
func CountTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})

	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// EstimateUsage reconstructs token usage for a backend that did not
// report it: the prompt side is counted from the request, the
// completion side from the reply text.
func EstimateUsage(req Request, completion string) Usage {
	prompt := CountTokens(req.System)
	for _, msg := range req.Messages {
		prompt += CountTokens(msg.Content)
	}
	return Usage{
		InputTokens:  prompt,
		OutputTokens: CountTokens(completion),
	}
}
