package agent

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
	"github.com/rahul/archcopilot/internal/llm"
	"github.com/rahul/archcopilot/internal/tools"
)

//go:embed prompts/*.tpl
var embeddedPrompts embed.FS

const systemTemplate = "system.tpl"

var stepRoles = map[design.StepID]string{
	design.StepArchitecture: "a senior software architect",
	design.StepSizing:       "a capacity planning engineer",
	design.StepTechStack:    "a pragmatic staff engineer choosing a technology stack",
	design.StepAPIDesign:    "an API designer",
	design.StepPerformance:  "a site reliability engineer",
	design.StepSecurity:     "an application security engineer",
	design.StepSummary:      "a principal engineer writing the executive summary",
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// PromptManager renders step prompts from pongo2 templates. Templates in
// Directory shadow the embedded defaults file by file.
type PromptManager struct {
	Directory string

	graph     *Graph
	set       *pongo2.TemplateSet
	templates map[string]*pongo2.Template
}

// NewPromptManager loads and parses every step template up front so a broken
// override fails at startup rather than mid run.
func NewPromptManager(dir string, graph *Graph) (*PromptManager, error) {
	if graph == nil {
		graph = DefaultGraph()
	}
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("prompts: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("prompts: %s is not a directory", dir)
		}
	}
	sub, err := fs.Sub(embeddedPrompts, "prompts")
	if err != nil {
		return nil, fmt.Errorf("prompts: open embedded templates: %w", err)
	}

	pm := &PromptManager{
		Directory: dir,
		graph:     graph,
		set:       pongo2.NewSet("archcopilot", overlayLoader{dir: dir, embedded: sub}),
		templates: make(map[string]*pongo2.Template),
	}
	names := []string{systemTemplate}
	for _, step := range graph.Steps() {
		names = append(names, string(step)+".tpl")
	}
	for _, name := range names {
		tpl, err := pm.set.FromFile(name)
		if err != nil {
			return nil, fmt.Errorf("prompts: parse %s: %w", name, err)
		}
		pm.templates[name] = tpl
	}
	return pm, nil
}

// overlayLoader resolves every template name, includes too, in dir first and
// in the embedded set second. Names are never made relative to the including
// template, so an embedded template can include an overridden one and the
// other way round.
type overlayLoader struct {
	dir      string
	embedded fs.FS
}

func (l overlayLoader) Abs(_, name string) string {
	return path.Clean(filepath.ToSlash(name))
}

func (l overlayLoader) Get(name string) (io.Reader, error) {
	if l.dir != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, filepath.FromSlash(name)))
		if err == nil {
			return bytes.NewReader(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	data, err := fs.ReadFile(l.embedded, name)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// Build renders the prompt for step from the request and the payloads of the
// steps it depends on. Identical inputs render byte-identical prompts.
func (pm *PromptManager) Build(step design.StepID, req design.DesignRequest, snap Snapshot) (llm.Prompt, error) {
	tpl, ok := pm.templates[string(step)+".tpl"]
	if !ok || !pm.graph.Has(step) {
		return llm.Prompt{}, failure.New(failure.KindTemplate, "no template for step %q", step)
	}
	for _, dep := range pm.graph.Deps(step) {
		if !snap.Has(dep) {
			return llm.Prompt{}, failure.New(failure.KindTemplate, "step %q needs the %q payload", step, dep)
		}
	}

	view := viewModel(req, snap)
	view["role"] = stepRoles[step]
	if view["role"] == "" {
		view["role"] = "a software architect"
	}

	system, err := render(pm.templates[systemTemplate], systemTemplate, view)
	if err != nil {
		return llm.Prompt{}, err
	}
	user, err := render(tpl, string(step)+".tpl", view)
	if err != nil {
		return llm.Prompt{}, err
	}
	return llm.Prompt{Step: step, System: system, User: user, Attributes: view}, nil
}

func render(t *pongo2.Template, name string, view map[string]string) (string, error) {
	ctx := make(pongo2.Context, len(view))
	for k, v := range view {
		ctx[k] = v
	}
	out, err := t.Execute(ctx)
	if err != nil {
		return "", failure.Wrap(failure.KindTemplate, err, "render %s", name)
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(out, "\n\n")), nil
}

// viewModel flattens the request, the deterministic baseline and any upstream
// payloads into pre-formatted strings.
func viewModel(req design.DesignRequest, snap Snapshot) map[string]string {
	base := tools.Baseline(req)
	v := map[string]string{
		"app_name":            req.AppName,
		"description":         req.Description,
		"dau":                 strconv.Itoa(req.DAU),
		"peak_rps":            strconv.Itoa(req.PeakRPS),
		"read_write_ratio":    num(req.ReadWriteRatio),
		"regions":             strings.Join(req.Regions, ", "),
		"budget_level":        req.BudgetLevel,
		"traffic_pattern":     req.Pattern(),
		"domain":              req.Domain,
		"end_users":           req.EndUsers,
		"user_roles":          strings.Join(req.UserRoles, ", "),
		"data_types":          strings.Join(req.DataTypes, ", "),
		"compliance":          strings.Join(req.Compliance, ", "),
		"apis_needed":         strings.Join(req.APIsNeeded, ", "),
		"special_constraints": strings.Join(req.SpecialConstraints, "; "),

		"base_qps":           num(base.BaseQPS),
		"peak_qps":           num(base.PeakQPS),
		"effective_peak_qps": num(base.EffectivePeakQPS),
		"read_qps":           num(base.ReadQPS),
		"write_qps":          num(base.WriteQPS),
		"storage_gb":         num(base.RetentionGB),
		"monthly_growth_gb":  num(base.MonthlyGrowthGB),
		"bandwidth_gbps":     num(base.BandwidthGbps),
	}
	if req.PeakConcurrentUsers != nil {
		v["peak_concurrent_users"] = strconv.Itoa(*req.PeakConcurrentUsers)
	}
	if req.APIRateLimitRPM != nil {
		v["api_rate_limits_rpm"] = strconv.Itoa(*req.APIRateLimitRPM)
	}
	if req.TeamSize != nil {
		v["team_size"] = strconv.Itoa(*req.TeamSize)
	}
	if req.AvailabilityTarget != nil {
		v["availability_target"] = num(*req.AvailabilityTarget*100) + "%"
	}
	var latency []string
	if req.LatencyTargetP50Ms != nil {
		latency = append(latency, "p50 "+strconv.Itoa(*req.LatencyTargetP50Ms)+"ms")
	}
	if req.LatencyTargetP95Ms != nil {
		latency = append(latency, "p95 "+strconv.Itoa(*req.LatencyTargetP95Ms)+"ms")
	}
	v["latency"] = strings.Join(latency, ", ")
	var recovery []string
	if req.RPOHours != nil {
		recovery = append(recovery, "RPO "+num(*req.RPOHours)+"h")
	}
	if req.RTOHours != nil {
		recovery = append(recovery, "RTO "+num(*req.RTOHours)+"h")
	}
	v["recovery"] = strings.Join(recovery, ", ")

	if a, ok := snap.Architecture(); ok {
		v["recommended_option"] = a.RecommendedOption
		v["components"] = strings.Join(a.Components, ", ")
	}
	if s, ok := snap.Sizing(); ok {
		v["sizing_summary"] = fmt.Sprintf("peak %s QPS (read %s, write %s), storage %s GB, %d app instances, %d database instances, %s GB cache",
			num(s.PeakQPS), num(s.ReadQPS), num(s.WriteQPS), num(s.StorageGB), s.AppInstances, s.DBInstances, num(s.CacheGB))
	}
	if t, ok := snap.TechStack(); ok {
		parts := make([]string, len(t.TechStack))
		for i, c := range t.TechStack {
			parts[i] = c.Layer + ": " + c.Choice
		}
		v["tech_stack"] = strings.Join(parts, "; ")
	}
	if a, ok := snap.APIDesign(); ok {
		lines := make([]string, len(a.Endpoints))
		for i, ep := range a.Endpoints {
			lines[i] = "- " + ep.Method + " " + ep.Path
			if ep.Description != "" {
				lines[i] += ": " + ep.Description
			}
		}
		v["endpoints"] = strings.Join(lines, "\n")
	}
	if p, ok := snap.Performance(); ok {
		v["performance_plan"] = strings.Join(p.PerformancePlan, "; ")
		v["reliability_plan"] = strings.Join(p.ReliabilityPlan, "; ")
	}
	if s, ok := snap.Security(); ok {
		v["security_plan"] = strings.Join(s.SecurityPlan, "; ")
		v["threat_model"] = strings.Join(s.ThreatModel, "; ")
	}
	return v
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
