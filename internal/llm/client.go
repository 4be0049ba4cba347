// Package llm talks to hosted language-model providers. Every adapter makes
// exactly one outbound call per Complete and classifies failures into
// failure kinds; retrying is the caller's job.
package llm

import (
	"context"
	"time"

	"github.com/rahul/archcopilot/internal/design"
)

// Prompt is one fully rendered request for a step.
type Prompt struct {
	Step   design.StepID `json:"step"`
	System string        `json:"system"`
	User   string        `json:"user"`
	// Attributes carries the structured values the prompt was rendered
	// from. Remote providers ignore it.
	Attributes map[string]string `json:"-"`
}

// Completion is the provider's raw answer.
type Completion struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// Client performs a single model call bounded by timeout.
type Client interface {
	Complete(ctx context.Context, p Prompt, timeout time.Duration) (*Completion, error)
	Name() string
}

// withTimeout derives the per-call context. A non-positive timeout leaves
// the caller's deadline in charge.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
