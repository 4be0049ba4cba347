package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rahul/archcopilot/internal/cache"
	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/governance"
	"github.com/rahul/archcopilot/internal/observability"
	"github.com/rahul/archcopilot/internal/schema"
	"github.com/rahul/archcopilot/internal/tools"
)

// Copilot is the entry point used by the CLI and the HTTP server: validate,
// police, consult the cache, run the graph.
type Copilot struct {
	Validator    *schema.Validator
	Policy       governance.PolicyEngine
	Orchestrator *Orchestrator
	Cache        *cache.ReportCache
	Provider     string
	RunTimeout   time.Duration
	Tracker      *observability.Tracker
	Logger       *observability.Logger
}

// Analysis is the outcome of Analyze once the request was accepted.
type Analysis struct {
	Request design.DesignRequest
	Result  *RunResult
	Cached  bool
}

// Validate checks the request shape and the content policy. It never calls a
// model.
func (c *Copilot) Validate(ctx context.Context, raw []byte) (design.DesignRequest, error) {
	req, err := c.Validator.ValidateRequest(raw)
	if err != nil {
		return design.DesignRequest{}, err
	}
	if c.Policy != nil {
		if err := governance.CheckRequest(ctx, c.Policy, req); err != nil {
			var v *governance.Violation
			if errors.As(err, &v) {
				c.logger().LogPolicy(v.Field, v.Reason)
			}
			return design.DesignRequest{}, err
		}
	}
	return req, nil
}

// Estimate returns the deterministic sizing baseline for a valid request.
func (c *Copilot) Estimate(ctx context.Context, raw []byte) (design.Baseline, error) {
	req, err := c.Validate(ctx, raw)
	if err != nil {
		return design.Baseline{}, err
	}
	return tools.Baseline(req), nil
}

// Analyze runs the full pipeline for raw. A rejected request is returned as
// an error before any model call; run outcomes, including partial failures,
// come back in the Analysis.
func (c *Copilot) Analyze(ctx context.Context, raw []byte) (*Analysis, error) {
	req, err := c.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	return c.AnalyzeRequest(ctx, req), nil
}

// AnalyzeRequest runs the pipeline for an already validated request.
func (c *Copilot) AnalyzeRequest(ctx context.Context, req design.DesignRequest) *Analysis {
	runID := uuid.NewString()
	key := cache.Key(c.Provider, req)
	if c.Cache != nil {
		if report, ok := c.Cache.Get(key); ok {
			c.logger().LogRun(runID, "cache_hit", map[string]any{"provider": c.Provider})
			return &Analysis{Request: req, Result: cachedResult(runID, c.graph(), report), Cached: true}
		}
	}

	if c.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.RunTimeout)
		defer cancel()
	}
	if c.Tracker != nil {
		c.Tracker.RunStarted(runID)
	}
	result := c.Orchestrator.Run(ctx, runID, req)
	if c.Tracker != nil {
		c.Tracker.RunFinished(string(result.Status))
	}

	if result.Status == RunSucceeded && c.Cache != nil {
		c.Cache.Set(key, result.Report)
	}
	return &Analysis{Request: req, Result: result}
}

func (c *Copilot) graph() *Graph {
	if c.Orchestrator != nil && c.Orchestrator.Graph != nil {
		return c.Orchestrator.Graph
	}
	return DefaultGraph()
}

func (c *Copilot) logger() *observability.Logger {
	if c.Logger == nil {
		return observability.NopLogger()
	}
	return c.Logger
}

func cachedResult(runID string, g *Graph, report *design.DesignReport) *RunResult {
	res := &RunResult{RunID: runID, Status: RunSucceeded, Report: report}
	for _, id := range g.Steps() {
		res.Steps = append(res.Steps, StepOutcome{Step: id, Status: StatusSucceeded})
	}
	return res
}
