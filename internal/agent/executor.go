package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
	"github.com/rahul/archcopilot/internal/llm"
	"github.com/rahul/archcopilot/internal/observability"
	"github.com/rahul/archcopilot/internal/schema"
)

// StepRunner executes a single step. The orchestrator depends on this rather
// than on Executor so tests can script step outcomes.
type StepRunner interface {
	RunStep(ctx context.Context, runID string, step design.StepID, req design.DesignRequest, snap Snapshot) StepResult
}

// Executor runs one step end to end: render, call, parse, retry.
type Executor struct {
	Client    llm.Client
	Gate      *llm.Gate
	Prompts   *PromptManager
	Validator *schema.Validator
	Policy    RetryPolicy
	Logger    *observability.Logger

	// Sleep waits between transport retries. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

const correctionNote = "\n\nYour previous answer was rejected: %s\nReturn only one JSON object with exactly the requested fields."

func (e *Executor) RunStep(ctx context.Context, runID string, step design.StepID, req design.DesignRequest, snap Snapshot) StepResult {
	logger := e.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	started := time.Now()
	res := StepResult{Step: step}
	finish := func(status StepStatus, payload design.Payload, err error) StepResult {
		res.Status = status
		res.Payload = payload
		res.Err = err
		res.Kind = failure.KindOf(err)
		res.Duration = time.Since(started)
		logger.LogStep(runID, string(step), string(status), res.Attempts, string(res.Kind), failure.Message(err))
		return res
	}

	prompt, err := e.Prompts.Build(step, req, snap)
	if err != nil {
		return finish(StatusFailed, nil, err)
	}
	current := prompt

	schedule := e.Policy.NewBackOff(ctx)
	outputRetries := 0
	for {
		if ctx.Err() != nil {
			return finish(StatusCancelled, nil, failure.Wrap(failure.KindCancelled, ctx.Err(), "step %s cancelled", step))
		}
		res.Attempts++

		comp, err := e.call(ctx, current)
		if err != nil {
			kind := failure.KindOf(err)
			if kind == failure.KindCancelled {
				return finish(StatusCancelled, nil, err)
			}
			if kind.Retryable() {
				delay := schedule.NextBackOff()
				if delay == backoff.Stop && ctx.Err() != nil {
					return finish(StatusCancelled, nil, failure.Wrap(failure.KindCancelled, ctx.Err(), "step %s cancelled", step))
				}
				if delay != backoff.Stop {
					logger.LogRetry(runID, string(step), res.Attempts, string(kind), delay)
					if err := sleep(ctx, delay); err != nil {
						return finish(StatusCancelled, nil, failure.Wrap(failure.KindCancelled, err, "step %s cancelled during backoff", step))
					}
					continue
				}
			}
			return finish(StatusFailed, nil, err)
		}

		logger.LogLLM(runID, string(step), current, comp.Text, time.Since(started))
		logger.LogCost(runID, string(step), comp.PromptTokens, comp.CompletionTokens, comp.Model)

		payload, err := e.Validator.ParseOutput(step, comp.Text)
		if err == nil {
			return finish(StatusSucceeded, payload, nil)
		}
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			logger.LogValidation(runID, string(step), verr.Issues)
		}
		if failure.KindOf(err) == failure.KindModelOutput && outputRetries < e.Policy.OutputRetries {
			outputRetries++
			logger.LogRetry(runID, string(step), res.Attempts, string(failure.KindModelOutput), 0)
			current = prompt
			current.User += correction(err)
			continue
		}
		return finish(StatusFailed, nil, err)
	}
}

func (e *Executor) call(ctx context.Context, p llm.Prompt) (*llm.Completion, error) {
	if e.Gate != nil {
		if err := e.Gate.Acquire(ctx); err != nil {
			return nil, err
		}
		defer e.Gate.Release()
	}
	return e.Client.Complete(ctx, p, e.Policy.StepTimeout)
}

// correction tells the model what was wrong with its last answer.
func correction(err error) string {
	msg := failure.Message(err)
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		msg = verr.Error()
	}
	return fmt.Sprintf(correctionNote, msg)
}
