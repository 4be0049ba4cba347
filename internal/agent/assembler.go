package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
	"github.com/rahul/archcopilot/internal/schema"
	"github.com/rahul/archcopilot/internal/tools"
)

// Risks every report carries because the design itself is produced by a
// hosted model.
var modelRisks = []string{
	"LLM dependency latency/availability; keep mock fallback",
	"Cost overrun if prompt volume spikes; add budget guardrails",
}

// Assemble merges the validated payloads of a fully successful run into a
// report. It is deterministic: equal inputs give equal reports.
func Assemble(ctx context.Context, req design.DesignRequest, snap Snapshot) (*design.DesignReport, error) {
	arch, ok := snap.Architecture()
	if !ok {
		return nil, missing(design.StepArchitecture)
	}
	sizing, ok := snap.Sizing()
	if !ok {
		return nil, missing(design.StepSizing)
	}
	stack, ok := snap.TechStack()
	if !ok {
		return nil, missing(design.StepTechStack)
	}
	api, ok := snap.APIDesign()
	if !ok {
		return nil, missing(design.StepAPIDesign)
	}
	perf, ok := snap.Performance()
	if !ok {
		return nil, missing(design.StepPerformance)
	}
	sec, ok := snap.Security()
	if !ok {
		return nil, missing(design.StepSecurity)
	}
	summary, ok := snap.Summary()
	if !ok {
		return nil, missing(design.StepSummary)
	}

	openapi, err := schema.BuildOpenAPISketch(ctx, req.AppName, api.Endpoints)
	if err != nil {
		return nil, failure.Wrap(failure.KindInternal, err, "assemble openapi sketch")
	}

	var risks []string
	risks = append(risks, summary.Risks...)
	risks = append(risks, sec.ThreatModel...)
	risks = append(risks, modelRisks...)

	return &design.DesignReport{
		Request:     req.Clone(),
		Summary:     summary.Summary,
		Assumptions: Assumptions(req),
		Architecture: design.ArchitectureSection{
			Options:           arch.Options,
			RecommendedOption: arch.RecommendedOption,
			Components:        arch.Components,
			Flows:             arch.Flows,
			MermaidFlow:       tools.MermaidFlow(arch.Components, arch.Flows),
			MermaidComponents: tools.MermaidComponents(arch.Components),
		},
		TechStack: stack.TechStack,
		API:       design.APISection{Endpoints: api.Endpoints, OpenAPI: openapi},
		Sizing: design.SizingSection{
			Baseline: tools.Baseline(req),
			Estimate: sizing,
		},
		PerformancePlan: perf.PerformancePlan,
		ReliabilityPlan: perf.ReliabilityPlan,
		Security: design.SecuritySection{
			Plan:                sec.SecurityPlan,
			ThreatModel:         sec.ThreatModel,
			Observability:       sec.Observability,
			ComplianceChecklist: tools.RiskChecklist(req.Compliance, req.DataTypes),
		},
		Risks:         dedupe(risks),
		PhasedRollout: summary.PhasedRollout,
	}, nil
}

// Assumptions lists what the design takes as given about the request.
func Assumptions(req design.DesignRequest) []string {
	out := []string{
		fmt.Sprintf("Traffic pattern is %s with peak %d rps", req.Pattern(), req.PeakRPS),
		"Regions: " + strings.Join(req.Regions, ", "),
		"Budget level: " + req.BudgetLevel,
	}
	if req.Domain != "" {
		out = append(out, "Application domain: "+req.Domain)
	}
	if req.PeakConcurrentUsers == nil {
		out = append(out, fmt.Sprintf("Peak concurrency taken as 10%% of DAU (%d users)", req.PeakConcurrency()))
	}
	out = append(out, fmt.Sprintf("Storage sized for %d records per user at %gKB over %d days",
		tools.RecordsPerUser, tools.AvgRecordSizeKB, tools.RetentionDays))
	return dedupe(out)
}

func missing(step design.StepID) error {
	return failure.New(failure.KindInternal, "cannot assemble report without %s payload", step)
}

// dedupe drops repeated entries keeping first occurrences.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
