package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rahul/archcopilot/internal/failure"
)

const defaultAnthropicMaxTokens = 4096

// MessagesAPI is the slice of the Anthropic SDK the adapter uses.
type MessagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClient struct {
	messages    MessagesAPI
	model       string
	temperature float64
	maxTokens   int64
}

// NewAnthropicClient builds a client with the SDK's own retries switched
// off.
func NewAnthropicClient(apiKey, model, baseURL string, temperature float64, maxTokens int) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return NewAnthropicClientWith(&client.Messages, model, temperature, maxTokens)
}

func NewAnthropicClientWith(messages MessagesAPI, model string, temperature float64, maxTokens int) *AnthropicClient {
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicClient{
		messages:    messages,
		model:       model,
		temperature: temperature,
		maxTokens:   int64(maxTokens),
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) Complete(ctx context.Context, p Prompt, timeout time.Duration) (*Completion, error) {
	callCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}

	message, err := c.messages.New(callCtx, params)
	if err != nil {
		return nil, classify(ctx, callCtx, c.Name(), err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, failure.Wrap(failure.KindProvider, errors.New("no text blocks"), "anthropic returned no completion")
	}

	return &Completion{
		Text:             text,
		Model:            c.model,
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
	}, nil
}
