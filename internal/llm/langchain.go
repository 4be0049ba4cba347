package llm

import (
	"context"
	"errors"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/rahul/archcopilot/internal/failure"
)

// LangChainClient adapts any langchaingo model. It backs the openai and
// openrouter providers.
type LangChainClient struct {
	Model       llms.Model
	provider    string
	modelName   string
	temperature float64
	maxTokens   int
}

// NewOpenAIClient builds an OpenAI-compatible client. baseURL selects
// OpenRouter or another compatible endpoint.
func NewOpenAIClient(provider, apiKey, model, baseURL string, temperature float64, maxTokens int) (*LangChainClient, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewLangChainClient(m, provider, model, temperature, maxTokens), nil
}

func NewLangChainClient(model llms.Model, provider, modelName string, temperature float64, maxTokens int) *LangChainClient {
	return &LangChainClient{
		Model:       model,
		provider:    provider,
		modelName:   modelName,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (c *LangChainClient) Name() string { return c.provider }

func (c *LangChainClient) Complete(ctx context.Context, p Prompt, timeout time.Duration) (*Completion, error) {
	callCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	var messages []llms.MessageContent
	if p.System != "" {
		messages = append(messages, llms.MessageContent{
			Role: schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(p.System),
			},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role: schema.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextPart(p.User),
		},
	})

	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	resp, err := c.Model.GenerateContent(callCtx, messages, opts...)
	if err != nil {
		return nil, classify(ctx, callCtx, c.provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, failure.Wrap(failure.KindProvider, errors.New("empty choices"), "%s returned no completion", c.provider)
	}

	choice := resp.Choices[0]
	return &Completion{
		Text:             choice.Content,
		Model:            c.modelName,
		PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
	}, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
