package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/governance"
	"github.com/rahul/archcopilot/internal/llm"
	"github.com/rahul/archcopilot/internal/schema"
)

// scriptedClient records every call and answers through respond.
type scriptedClient struct {
	mu      sync.Mutex
	calls   map[design.StepID]int
	prompts map[design.StepID][]llm.Prompt
	respond func(ctx context.Context, p llm.Prompt, call int) (*llm.Completion, error)
}

func newScriptedClient(respond func(ctx context.Context, p llm.Prompt, call int) (*llm.Completion, error)) *scriptedClient {
	return &scriptedClient{
		calls:   map[design.StepID]int{},
		prompts: map[design.StepID][]llm.Prompt{},
		respond: respond,
	}
}

func fixtureAnswer(ctx context.Context, p llm.Prompt, _ int) (*llm.Completion, error) {
	return llm.NewFixtureClient().Complete(ctx, p, 0)
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Complete(ctx context.Context, p llm.Prompt, _ time.Duration) (*llm.Completion, error) {
	c.mu.Lock()
	c.calls[p.Step]++
	n := c.calls[p.Step]
	c.prompts[p.Step] = append(c.prompts[p.Step], p)
	c.mu.Unlock()
	return c.respond(ctx, p, n)
}

func (c *scriptedClient) callsFor(step design.StepID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[step]
}

func (c *scriptedClient) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		StepTimeout:    time.Second,
		MaxRetries:     2,
		OutputRetries:  1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		Multiplier:     2,
	}
}

func newTestExecutor(t *testing.T, client llm.Client) *Executor {
	t.Helper()
	pm, err := NewPromptManager("", nil)
	require.NoError(t, err)
	return &Executor{
		Client:    client,
		Gate:      llm.NewGate(4),
		Prompts:   pm,
		Validator: schema.NewValidator(),
		Policy:    testPolicy(),
		Sleep:     func(context.Context, time.Duration) error { return nil },
	}
}

func newTestCopilot(t *testing.T, client llm.Client) *Copilot {
	t.Helper()
	policy, err := governance.NewContentPolicy()
	require.NoError(t, err)
	return &Copilot{
		Validator: schema.NewValidator(),
		Policy:    policy,
		Orchestrator: &Orchestrator{
			Graph:       DefaultGraph(),
			Runner:      newTestExecutor(t, client),
			MaxParallel: 3,
		},
		Provider:   client.Name(),
		RunTimeout: 10 * time.Second,
	}
}

func globalPayBody() map[string]any {
	return map[string]any{
		"app_name":         "GlobalPay",
		"description":      "Cross-border payments for small merchants",
		"dau":              200000,
		"peak_rps":         1500,
		"read_write_ratio": 4,
		"regions":          []any{"us-east-1", "eu-west-1"},
		"budget_level":     "medium",
		"domain":           "fintech",
		"compliance":       []any{"PCI", "GDPR"},
		"data_types":       []any{"PII"},
	}
}

func globalPayJSON(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(globalPayBody())
	require.NoError(t, err)
	return b
}

func globalPayRequest(t *testing.T) design.DesignRequest {
	t.Helper()
	req, err := schema.NewValidator().ValidateRequest(globalPayJSON(t))
	require.NoError(t, err)
	return req
}

func outcomeOf(r *RunResult, step design.StepID) StepOutcome {
	for _, s := range r.Steps {
		if s.Step == step {
			return s
		}
	}
	return StepOutcome{}
}
