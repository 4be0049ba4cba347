package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
	"github.com/rahul/archcopilot/internal/tools"
)

// FixtureClient answers every step with canned, schema-valid JSON derived
// from the prompt attributes. It never leaves the process and is selected
// only when the "fixture" provider is enabled explicitly.
type FixtureClient struct{}

func NewFixtureClient() *FixtureClient { return &FixtureClient{} }

func (f *FixtureClient) Name() string { return "fixture" }

func (f *FixtureClient) Complete(ctx context.Context, p Prompt, _ time.Duration) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure.Wrap(failure.KindCancelled, err, "fixture call abandoned")
	}
	body, err := fixtureBody(p.Step, attrs(p.Attributes))
	if err != nil {
		return nil, failure.Wrap(failure.KindProvider, err, "fixture")
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, failure.Wrap(failure.KindInternal, err, "fixture encode")
	}
	return &Completion{
		Text:             string(data),
		Model:            "fixture",
		PromptTokens:     len(strings.Fields(p.System + " " + p.User)),
		CompletionTokens: len(data) / 4,
	}, nil
}

type attrs map[string]string

func (a attrs) str(key, def string) string {
	if v := strings.TrimSpace(a[key]); v != "" {
		return v
	}
	return def
}

func (a attrs) num(key string) float64 {
	v, _ := strconv.ParseFloat(a[key], 64)
	return v
}

func (a attrs) list(key string, def ...string) []string {
	var out []string
	for _, s := range strings.Split(a[key], ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func fixtureBody(step design.StepID, a attrs) (any, error) {
	lowBudget := a.str("budget_level", design.BudgetMedium) == design.BudgetLow

	switch step {
	case design.StepArchitecture:
		recommended := "Scale-out"
		if lowBudget {
			recommended = "MVP (monolith)"
		}
		return design.ArchitecturePayload{
			Options: []design.ArchitectureOption{
				{Title: "MVP (monolith)", Bullets: []string{"Single Go service with Postgres", "Redis cache"}},
				{Title: "Scale-out", Bullets: []string{"Services on Kubernetes", "Managed Postgres with read replicas", "Kafka for async work"}},
			},
			RecommendedOption: recommended,
			Components:        []string{"A[Client]", "B[LB]", "C[App Server]", "D[(Database)]", "E[(Cache)]"},
			Flows:             []string{"A[Client]-->B[LB]", "B-->C[App Server]", "C-->E[(Cache)]", "C-->D[(Database)]"},
		}, nil

	case design.StepSizing:
		peak := a.num("effective_peak_qps")
		storage := a.num("storage_gb")
		return design.SizingPayload{
			PeakQPS:         peak,
			ReadQPS:         a.num("read_qps"),
			WriteQPS:        a.num("write_qps"),
			StorageGB:       storage,
			MonthlyGrowthGB: a.num("monthly_growth_gb"),
			BandwidthGbps:   a.num("bandwidth_gbps"),
			AppInstances:    int(math.Max(2, math.Ceil(peak/500))),
			DBInstances:     dbInstances(peak),
			CacheGB:         math.Max(1, math.Round(storage*0.1)),
			Notes: []string{
				fmt.Sprintf("Sized for %.0f peak QPS", peak),
				"Assumes 2KB average payload and 8KB records",
			},
		}, nil

	case design.StepTechStack:
		infra := "Kubernetes on a managed cloud"
		if lowBudget {
			infra = "Docker on a single VM"
		}
		return design.TechStackPayload{TechStack: []design.TechChoice{
			{Layer: "Frontend", Choice: "React", Rationale: "Large ecosystem"},
			{Layer: "API", Choice: "Go", Rationale: "Low latency and small footprint"},
			{Layer: "Database", Choice: "Postgres", Rationale: "Relational data with strong consistency"},
			{Layer: "Cache", Choice: "Redis", Rationale: "Read-heavy endpoints"},
			{Layer: "Queue", Choice: "Kafka", Rationale: "Async processing"},
			{Layer: "Infrastructure", Choice: infra, Rationale: "Matches the budget level"},
		}}, nil

	case design.StepAPIDesign:
		limit := 60
		return design.APIDesignPayload{Endpoints: []design.APIEndpoint{
			{
				Method:       "POST",
				Path:         "/api/v1/resource",
				Description:  "Create a new resource.",
				Request:      map[string]any{"name": "string"},
				Response:     map[string]any{"id": "string"},
				RateLimitRPM: &limit,
			},
			{
				Method:      "GET",
				Path:        "/api/v1/resource/{id}",
				Description: "Fetch a resource by id.",
				Response:    map[string]any{"id": "string", "name": "string"},
				Idempotent:  true,
			},
		}}, nil

	case design.StepPerformance:
		return design.PerformancePayload{
			PerformancePlan: []string{
				"Edge CDN for static assets, API behind reverse proxy with HTTP keep-alive",
				"Redis caching with 70-90% target hit rate for read-heavy endpoints",
				"Async workers for generating reports; queue depth alarms",
				"Pagination + index on created_at for submissions table",
				"Blue/green deploys and feature flags for rollouts",
			},
			ReliabilityPlan: []string{
				"SLO: 99.5% availability, p95 < 400ms for analyze endpoint",
				"Retries with jitter for downstream LLM calls, idempotency keys on POST",
				"Backups daily, PITR for Postgres, replica in second region for DR (RPO 1h, RTO 4h)",
				"Health checks, autoscale based on queue length and CPU",
			},
		}, nil

	case design.StepSecurity:
		return design.SecurityPayload{
			SecurityPlan:  []string{"AuthN with OIDC", "mTLS", "Secrets Vault", "WAF", "Encryption at rest"},
			ThreatModel:   tools.RiskChecklist(a.list("compliance", "SOC2", "GDPR"), a.list("data_types", "PII")),
			Observability: []string{"Prometheus metrics", "ELK logging", "Jaeger tracing", "PagerDuty alerts"},
		}, nil

	case design.StepSummary:
		return design.SummaryPayload{
			Summary: fmt.Sprintf("System design for %s supporting %s DAU using the %s architecture.",
				a.str("app_name", "the application"), a.str("dau", "the expected"), a.str("recommended_option", "recommended")),
			PhasedRollout: []string{"Phase 1: MVP", "Phase 2: Scale", "Phase 3: Global"},
			Risks:         []string{"Cost overrun if traffic exceeds the sizing baseline"},
		}, nil
	}
	return nil, fmt.Errorf("no fixture for step %q", step)
}

func dbInstances(peak float64) int {
	switch {
	case peak > 5000:
		return 3
	case peak > 1000:
		return 2
	default:
		return 1
	}
}
