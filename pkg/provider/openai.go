package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIAdapter implements Adapter for backends speaking the OpenAI
// chat-completions protocol. The fast-iteration backend uses the
// default endpoint; the low-cost backend points the same client at an
// OpenAI-compatible host via NewLowCostAdapter.
type OpenAIAdapter struct {
	client  openai.Client
	backend string
	model   string
}

// NewOpenAIAdapter creates the fast-iteration adapter
func NewOpenAIAdapter(apiKey, model string) *OpenAIAdapter {
	return &OpenAIAdapter{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		backend: BackendFastIteration,
		model:   model,
	}
}

// NewLowCostAdapter creates the low-cost adapter against an
// OpenAI-compatible endpoint.
func NewLowCostAdapter(apiKey, model, baseURL string) *OpenAIAdapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client:  openai.NewClient(opts...),
		backend: BackendLowCost,
		model:   model,
	}
}

// Backend returns the backend identifier
func (a *OpenAIAdapter) Backend() string {
	return a.backend
}

// Invoke makes a chat-completions API call
func (a *OpenAIAdapter) Invoke(ctx context.Context, req Request) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: messages,
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	response, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, fromStatus(a.backend, apierr.StatusCode, err)
		}
		return nil, normalize(a.backend, err)
	}

	if len(response.Choices) == 0 {
		return nil, NewError(a.backend, KindMalformed, fmt.Errorf("no response choices returned"))
	}

	text := response.Choices[0].Message.Content
	if text == "" {
		return nil, NewError(a.backend, KindMalformed, fmt.Errorf("empty completion content"))
	}

	resp := &Response{
		Text:  text,
		Model: response.Model,
	}

	// Some OpenAI-compatible hosts omit the usage block
	if response.Usage.TotalTokens > 0 {
		resp.Usage = &Usage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		}
	}

	return resp, nil
}
