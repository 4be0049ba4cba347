package agent

import (
	"context"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
	"github.com/rahul/archcopilot/internal/observability"
)

// RunStatus is the outcome of a whole run.
type RunStatus string

const (
	RunSucceeded      RunStatus = "succeeded"
	RunPartialFailure RunStatus = "partial_failure"
	RunCancelled      RunStatus = "cancelled"
)

// StepOutcome is the per-step part of a run result.
type StepOutcome struct {
	Step           design.StepID `json:"step"`
	Status         StepStatus    `json:"status"`
	Attempts       int           `json:"attempts"`
	ErrorKind      failure.Kind  `json:"error_kind,omitempty"`
	Error          string        `json:"error,omitempty"`
	SkippedBecause design.StepID `json:"skipped_because,omitempty"`
	DurationMS     int64         `json:"duration_ms"`
}

// RunResult describes a finished run. Report is set only when every step
// succeeded.
type RunResult struct {
	RunID  string               `json:"run_id"`
	Status RunStatus            `json:"status"`
	Steps  []StepOutcome        `json:"steps"`
	Report *design.DesignReport `json:"report,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// Failed returns the outcomes of steps that ran and failed.
func (r *RunResult) Failed() []StepOutcome {
	var out []StepOutcome
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// Orchestrator drives the step graph for one request at a time. Only the
// goroutine inside Run mutates run state; steps receive snapshots and report
// back over a channel.
type Orchestrator struct {
	Graph       *Graph
	Runner      StepRunner
	MaxParallel int
	Logger      *observability.Logger
}

func (o *Orchestrator) Run(ctx context.Context, runID string, req design.DesignRequest) *RunResult {
	logger := o.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	graph := o.Graph
	if graph == nil {
		graph = DefaultGraph()
	}
	limit := o.MaxParallel
	if limit < 1 {
		limit = 1
	}

	steps := graph.Steps()
	outcomes := make(map[design.StepID]*StepOutcome, len(steps))
	for _, id := range steps {
		outcomes[id] = &StepOutcome{Step: id, Status: StatusPending}
	}
	state := NewPipelineState()
	// buffered so a step finishing after the run gave up never blocks
	results := make(chan StepResult, len(steps))
	running := 0
	cancelled := false

	logger.LogRun(runID, "started", map[string]any{"steps": len(steps), "max_parallel": limit})

	ready := func(id design.StepID) bool {
		for _, dep := range graph.Deps(id) {
			if outcomes[dep].Status != StatusSucceeded {
				return false
			}
		}
		return true
	}

loop:
	for {
		if ctx.Err() == nil {
			for _, id := range steps {
				if running >= limit {
					break
				}
				if outcomes[id].Status != StatusPending || !ready(id) {
					continue
				}
				outcomes[id].Status = StatusRunning
				running++
				snap := state.Snapshot()
				stepReq := req.Clone()
				go func(id design.StepID) {
					results <- o.Runner.RunStep(ctx, runID, id, stepReq, snap)
				}(id)
			}
		}
		if running == 0 {
			break
		}

		select {
		case <-ctx.Done():
			cancelled = true
			break loop
		case res := <-results:
			running--
			if ctx.Err() != nil {
				cancelled = true
				break loop
			}
			o.apply(graph, state, outcomes, res, runID, logger)
		}
	}

	result := &RunResult{RunID: runID}
	allSucceeded := true
	for _, id := range steps {
		out := outcomes[id]
		if out.Status == StatusPending || out.Status == StatusRunning {
			if cancelled || ctx.Err() != nil {
				out.Status = StatusCancelled
				out.ErrorKind = failure.KindCancelled
				logger.LogStep(runID, string(id), string(StatusCancelled), out.Attempts, string(failure.KindCancelled), "")
			}
		}
		if out.Status != StatusSucceeded {
			allSucceeded = false
		}
		result.Steps = append(result.Steps, *out)
	}

	switch {
	case allSucceeded:
		report, err := Assemble(ctx, req, state.Snapshot())
		if err != nil {
			result.Status = RunPartialFailure
			result.Error = err.Error()
		} else {
			result.Status = RunSucceeded
			result.Report = report
		}
	case cancelled || ctx.Err() != nil:
		result.Status = RunCancelled
		result.Error = failure.Message(failure.Wrap(failure.KindCancelled, ctx.Err(), "run cancelled"))
	default:
		result.Status = RunPartialFailure
	}

	logger.LogRun(runID, string(result.Status), map[string]any{"failed": len(result.Failed())})
	return result
}

// apply folds one step result into the run state and skips everything
// downstream of a failure.
func (o *Orchestrator) apply(graph *Graph, state *PipelineState, outcomes map[design.StepID]*StepOutcome, res StepResult, runID string, logger *observability.Logger) {
	out := outcomes[res.Step]
	out.Attempts = res.Attempts
	out.DurationMS = res.Duration.Milliseconds()

	if res.Status == StatusSucceeded {
		err := state.Put(res.Payload)
		if err == nil {
			out.Status = StatusSucceeded
			return
		}
		res.Err = failure.Wrap(failure.KindInternal, err, "record %s payload", res.Step)
	}

	out.Status = StatusFailed
	out.ErrorKind = failure.KindOf(res.Err)
	if out.ErrorKind == "" {
		out.ErrorKind = failure.KindInternal
	}
	out.Error = failure.Message(res.Err)

	for _, dep := range graph.Dependents(res.Step) {
		d := outcomes[dep]
		if d.Status != StatusPending {
			continue
		}
		d.Status = StatusSkipped
		d.SkippedBecause = res.Step
		logger.LogStep(runID, string(dep), string(StatusSkipped), 0, "", "upstream "+string(res.Step)+" failed")
	}
}

