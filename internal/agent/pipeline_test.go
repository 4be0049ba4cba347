package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
	"github.com/rahul/archcopilot/internal/llm"
)

func TestOrchestrator_GlobalPay(t *testing.T) {
	client := newScriptedClient(fixtureAnswer)
	orch := &Orchestrator{Graph: DefaultGraph(), Runner: newTestExecutor(t, client), MaxParallel: 3}

	res := orch.Run(context.Background(), "run-1", globalPayRequest(t))
	require.Equal(t, RunSucceeded, res.Status, "steps: %+v", res.Steps)
	require.NotNil(t, res.Report)
	for _, s := range res.Steps {
		assert.Equal(t, StatusSucceeded, s.Status, s.Step)
		assert.Equal(t, 1, s.Attempts, s.Step)
	}

	r := res.Report
	assert.NotEmpty(t, r.Summary)
	assert.NotEmpty(t, r.Assumptions)
	assert.Contains(t, r.Architecture.MermaidFlow, "flowchart TD")
	assert.NotEmpty(t, r.TechStack)
	assert.Contains(t, r.API.OpenAPI, "openapi: 3.0.3")
	assert.GreaterOrEqual(t, r.Sizing.Baseline.EffectivePeakQPS, 1500.0)
	assert.NotEmpty(t, r.PerformancePlan)
	assert.NotEmpty(t, r.ReliabilityPlan)
	assert.NotEmpty(t, r.Security.ComplianceChecklist)
	assert.Len(t, r.PhasedRollout, 3)
	assert.Contains(t, r.Risks, modelRisks[0])
}

func TestOrchestrator_AuthFailureSkipsEverything(t *testing.T) {
	client := newScriptedClient(func(context.Context, llm.Prompt, int) (*llm.Completion, error) {
		return nil, failure.New(failure.KindAuth, "invalid api key")
	})
	orch := &Orchestrator{Graph: DefaultGraph(), Runner: newTestExecutor(t, client), MaxParallel: 3}

	res := orch.Run(context.Background(), "run-1", globalPayRequest(t))
	assert.Equal(t, RunPartialFailure, res.Status)
	assert.Nil(t, res.Report)

	for _, step := range []design.StepID{design.StepArchitecture, design.StepSizing} {
		out := outcomeOf(res, step)
		assert.Equal(t, StatusFailed, out.Status, step)
		assert.Equal(t, failure.KindAuth, out.ErrorKind, step)
		assert.Equal(t, 1, out.Attempts, step)
	}
	for _, step := range []design.StepID{design.StepTechStack, design.StepAPIDesign, design.StepPerformance, design.StepSecurity, design.StepSummary} {
		assert.Equal(t, StatusSkipped, outcomeOf(res, step).Status, step)
	}
	assert.Equal(t, 2, client.totalCalls())
}

func TestOrchestrator_SkippedStepsNeverRun(t *testing.T) {
	client := newScriptedClient(func(ctx context.Context, p llm.Prompt, call int) (*llm.Completion, error) {
		if p.Step == design.StepAPIDesign {
			return nil, failure.New(failure.KindProvider, "status 500")
		}
		return fixtureAnswer(ctx, p, call)
	})
	orch := &Orchestrator{Graph: DefaultGraph(), Runner: newTestExecutor(t, client), MaxParallel: 2}

	res := orch.Run(context.Background(), "run-1", globalPayRequest(t))
	assert.Equal(t, RunPartialFailure, res.Status)

	assert.Equal(t, StatusSucceeded, outcomeOf(res, design.StepTechStack).Status)
	assert.Equal(t, StatusSucceeded, outcomeOf(res, design.StepPerformance).Status)
	assert.Equal(t, StatusFailed, outcomeOf(res, design.StepAPIDesign).Status)

	for _, step := range []design.StepID{design.StepSecurity, design.StepSummary} {
		out := outcomeOf(res, step)
		assert.Equal(t, StatusSkipped, out.Status, step)
		assert.Equal(t, design.StepAPIDesign, out.SkippedBecause, step)
		assert.Zero(t, client.callsFor(step), step)
	}
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, failure.KindProvider, res.Failed()[0].ErrorKind)
}

func TestOrchestrator_RespectsMaxParallel(t *testing.T) {
	var current, peak atomic.Int32
	client := newScriptedClient(func(ctx context.Context, p llm.Prompt, call int) (*llm.Completion, error) {
		n := current.Add(1)
		defer current.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return fixtureAnswer(ctx, p, call)
	})
	orch := &Orchestrator{Graph: DefaultGraph(), Runner: newTestExecutor(t, client), MaxParallel: 1}

	res := orch.Run(context.Background(), "run-1", globalPayRequest(t))
	require.Equal(t, RunSucceeded, res.Status)
	assert.Equal(t, int32(1), peak.Load())
}

func TestOrchestrator_Cancelled(t *testing.T) {
	started := make(chan struct{}, 8)
	client := newScriptedClient(func(ctx context.Context, p llm.Prompt, call int) (*llm.Completion, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, failure.Wrap(failure.KindCancelled, ctx.Err(), "caller went away")
	})
	orch := &Orchestrator{Graph: DefaultGraph(), Runner: newTestExecutor(t, client), MaxParallel: 3}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *RunResult, 1)
	go func() { done <- orch.Run(ctx, "run-1", globalPayRequest(t)) }()

	<-started
	cancel()

	var res *RunResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	assert.Equal(t, RunCancelled, res.Status)
	for _, s := range res.Steps {
		assert.Equal(t, StatusCancelled, s.Status, s.Step)
	}
}

func TestOrchestrator_Deterministic(t *testing.T) {
	run := func() *design.DesignReport {
		client := newScriptedClient(fixtureAnswer)
		orch := &Orchestrator{Graph: DefaultGraph(), Runner: newTestExecutor(t, client), MaxParallel: 3}
		res := orch.Run(context.Background(), "run", globalPayRequest(t))
		require.Equal(t, RunSucceeded, res.Status)
		return res.Report
	}
	first, second := run(), run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("reports differ (-first +second):\n%s", diff)
	}
}
