package design

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Markdown renders the report as a standalone markdown document.
func (r *DesignReport) Markdown() string {
	var sections []string
	add := func(s string) { sections = append(sections, s) }

	add("# Architecture Report: " + r.Request.AppName)
	add("## Summary\n" + r.Summary)
	add("## Assumptions\n" + bullets(r.Assumptions))

	add("## Architecture Options")
	for _, opt := range r.Architecture.Options {
		add("### " + opt.Title + "\n" + bullets(opt.Bullets))
	}
	add("## Recommendation\n" + r.Architecture.RecommendedOption)

	stack := make([]string, 0, len(r.TechStack))
	for _, t := range r.TechStack {
		line := fmt.Sprintf("%s: %s", t.Layer, t.Choice)
		if t.Rationale != "" {
			line += " (" + t.Rationale + ")"
		}
		stack = append(stack, line)
	}
	add("## Tech Stack\n" + bullets(stack))

	add("## Sizing\n### Baseline\n" + jsonBlock(r.Sizing.Baseline) + "\n### Estimate\n" + jsonBlock(r.Sizing.Estimate))

	add("## APIs")
	for _, ep := range r.API.Endpoints {
		add(fmt.Sprintf("### %s %s\n%s\n**Request**\n%s\n**Response**\n%s",
			ep.Method, ep.Path, ep.Description, jsonBlock(ep.Request), jsonBlock(ep.Response)))
	}
	if r.API.OpenAPI != "" {
		add("### OpenAPI sketch\n```yaml\n" + strings.TrimRight(r.API.OpenAPI, "\n") + "\n```")
	}

	add("## Performance\n" + bullets(r.PerformancePlan))
	add("## Reliability\n" + bullets(r.ReliabilityPlan))
	add("## Security\n" + bullets(r.Security.Plan))
	add("## Threat Model\n" + bullets(r.Security.ThreatModel))
	add("## Compliance\n" + bullets(r.Security.ComplianceChecklist))
	add("## Observability\n" + bullets(r.Security.Observability))
	add("## Risks\n" + bullets(r.Risks))
	add("## Phased Rollout\n" + bullets(r.PhasedRollout))
	add("## Diagrams\n```mermaid\n" + r.Architecture.MermaidFlow + "\n```\n```mermaid\n" + r.Architecture.MermaidComponents + "\n```")

	return strings.Join(sections, "\n\n") + "\n"
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}

func jsonBlock(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte("{}")
	}
	return "```json\n" + string(data) + "\n```"
}
