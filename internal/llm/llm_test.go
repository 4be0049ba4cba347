package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
	"github.com/rahul/archcopilot/pkg/config"
)

type fakeModel struct {
	resp  *llms.ContentResponse
	err   error
	block bool
	got   []llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.got = messages
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.resp, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestLangChainClient_Complete(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        `{"ok":true}`,
		GenerationInfo: map[string]any{"PromptTokens": 12, "CompletionTokens": 3},
	}}}}
	c := NewLangChainClient(m, "openai", "gpt-4o-mini", 0.2, 0)

	out, err := c.Complete(context.Background(), Prompt{System: "sys", User: "user"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out.Text)
	assert.Equal(t, 12, out.PromptTokens)
	assert.Equal(t, 3, out.CompletionTokens)
	require.Len(t, m.got, 2)
	assert.Equal(t, schema.ChatMessageTypeSystem, m.got[0].Role)
}

func TestLangChainClient_Timeout(t *testing.T) {
	c := NewLangChainClient(&fakeModel{block: true}, "openai", "m", 0, 0)
	_, err := c.Complete(context.Background(), Prompt{User: "x"}, 10*time.Millisecond)
	assert.Equal(t, failure.KindTimeout, failure.KindOf(err))
}

func TestLangChainClient_CallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewLangChainClient(&fakeModel{block: true}, "openai", "m", 0, 0)
	_, err := c.Complete(ctx, Prompt{User: "x"}, time.Second)
	assert.Equal(t, failure.KindCancelled, failure.KindOf(err))
}

func TestLangChainClient_NoChoices(t *testing.T) {
	c := NewLangChainClient(&fakeModel{resp: &llms.ContentResponse{}}, "openai", "m", 0, 0)
	_, err := c.Complete(context.Background(), Prompt{User: "x"}, time.Second)
	assert.Equal(t, failure.KindProvider, failure.KindOf(err))
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		msg  string
		want failure.Kind
	}{
		{"API returned unexpected status code: 401: invalid key", failure.KindAuth},
		{"API returned unexpected status code: 429: slow down", failure.KindRateLimit},
		{"API returned unexpected status code: 500: oops", failure.KindProvider},
		{"API returned unexpected status code: 504: upstream", failure.KindTimeout},
		{"Incorrect API key provided", failure.KindAuth},
		{"Rate limit reached for requests", failure.KindRateLimit},
		{"connection reset by peer", failure.KindProvider},
		{"net/http: request canceled (Client.Timeout exceeded)", failure.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := classify(ctx, ctx, "openai", errors.New(tt.msg))
			assert.Equal(t, tt.want, failure.KindOf(err))
		})
	}
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, failure.KindAuth, kindForStatus(403))
	assert.Equal(t, failure.KindRateLimit, kindForStatus(529))
	assert.Equal(t, failure.KindProvider, kindForStatus(400))
}

type fakeMessages struct {
	msg    *anthropic.Message
	err    error
	params anthropic.MessageNewParams
}

func (f *fakeMessages) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = params
	return f.msg, f.err
}

func TestAnthropicClient_Complete(t *testing.T) {
	fm := &fakeMessages{msg: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: `{"a":1}`}},
		Usage:   anthropic.Usage{InputTokens: 7, OutputTokens: 2},
	}}
	c := NewAnthropicClientWith(fm, "claude-x", 0, 0)

	out, err := c.Complete(context.Background(), Prompt{System: "sys", User: "u"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out.Text)
	assert.Equal(t, 7, out.PromptTokens)
	assert.Equal(t, int64(defaultAnthropicMaxTokens), fm.params.MaxTokens)
	require.Len(t, fm.params.System, 1)
	assert.Equal(t, "sys", fm.params.System[0].Text)
}

func TestAnthropicClient_ErrorClassified(t *testing.T) {
	c := NewAnthropicClientWith(&fakeMessages{err: errors.New("overloaded_error: Overloaded")}, "m", 0, 0)
	_, err := c.Complete(context.Background(), Prompt{User: "u"}, time.Second)
	assert.Equal(t, failure.KindRateLimit, failure.KindOf(err))
}

func TestGate(t *testing.T) {
	g := NewGate(1)
	require.NoError(t, g.Acquire(context.Background()))
	assert.Equal(t, int64(1), g.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx)
	assert.Equal(t, failure.KindCancelled, failure.KindOf(err))

	g.Release()
	assert.Equal(t, int64(0), g.InFlight())
	require.NoError(t, g.Acquire(context.Background()))
	g.Release()
}

func TestFixtureClient_EveryStep(t *testing.T) {
	c := NewFixtureClient()
	for _, step := range design.AllSteps() {
		out, err := c.Complete(context.Background(), Prompt{Step: step, Attributes: map[string]string{
			"app_name": "GlobalPay", "budget_level": "low", "effective_peak_qps": "1500",
		}}, time.Second)
		require.NoError(t, err, step)
		assert.NotEmpty(t, out.Text)
	}
	_, err := c.Complete(context.Background(), Prompt{Step: "nope"}, time.Second)
	assert.Equal(t, failure.KindProvider, failure.KindOf(err))
}

func TestFromConfig(t *testing.T) {
	c, err := FromConfig("fixture", config.ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "fixture", c.Name())

	c, err = FromConfig("anthropic", config.ProviderConfig{APIKey: "k", Model: "claude"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	_, err = FromConfig("gemini", config.ProviderConfig{})
	assert.Error(t, err)
}
