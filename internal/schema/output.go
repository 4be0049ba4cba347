package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
)

var httpMethods = []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}

func nonEmptyString() *openapi3.Schema { return openapi3.NewStringSchema().WithMinLength(1) }

func stringArray(minItems int64) *openapi3.Schema {
	s := openapi3.NewArraySchema().WithItems(nonEmptyString())
	if minItems > 0 {
		s = s.WithMinItems(minItems)
	}
	return s
}

func outputSchemas() map[design.StepID]*openapi3.Schema {
	nonNegative := func() *openapi3.Schema { return openapi3.NewFloat64Schema().WithMin(0) }

	option := openapi3.NewObjectSchema().
		WithProperty("title", nonEmptyString()).
		WithProperty("bullets", stringArray(0)).
		WithRequired([]string{"title", "bullets"})

	choice := openapi3.NewObjectSchema().
		WithProperty("layer", nonEmptyString()).
		WithProperty("choice", nonEmptyString()).
		WithProperty("rationale", openapi3.NewStringSchema()).
		WithRequired([]string{"layer", "choice"})

	endpoint := openapi3.NewObjectSchema().
		WithProperty("method", openapi3.NewStringSchema().WithEnum(httpMethods...)).
		WithProperty("path", openapi3.NewStringSchema().WithPattern(`^/`)).
		WithProperty("description", openapi3.NewStringSchema()).
		WithProperty("request", openapi3.NewObjectSchema().WithNullable()).
		WithProperty("response", openapi3.NewObjectSchema().WithNullable()).
		WithProperty("rate_limit_rpm", openapi3.NewIntegerSchema().WithMin(0).WithNullable()).
		WithProperty("idempotent", openapi3.NewBoolSchema()).
		WithRequired([]string{"method", "path"})

	return map[design.StepID]*openapi3.Schema{
		design.StepArchitecture: openapi3.NewObjectSchema().
			WithProperty("options", openapi3.NewArraySchema().WithItems(option).WithMinItems(1)).
			WithProperty("recommended_option", nonEmptyString()).
			WithProperty("components", stringArray(1)).
			WithProperty("flows", stringArray(0)).
			WithRequired([]string{"options", "recommended_option", "components", "flows"}),

		design.StepSizing: openapi3.NewObjectSchema().
			WithProperty("peak_qps", nonNegative()).
			WithProperty("read_qps", nonNegative()).
			WithProperty("write_qps", nonNegative()).
			WithProperty("storage_gb", nonNegative()).
			WithProperty("monthly_growth_gb", nonNegative()).
			WithProperty("bandwidth_gbps", nonNegative()).
			WithProperty("app_instances", openapi3.NewIntegerSchema().WithMin(0)).
			WithProperty("db_instances", openapi3.NewIntegerSchema().WithMin(0)).
			WithProperty("cache_gb", nonNegative()).
			WithProperty("notes", stringArray(0)).
			WithRequired([]string{"peak_qps", "read_qps", "write_qps", "storage_gb"}),

		design.StepTechStack: openapi3.NewObjectSchema().
			WithProperty("tech_stack", openapi3.NewArraySchema().WithItems(choice).WithMinItems(1)).
			WithRequired([]string{"tech_stack"}),

		design.StepAPIDesign: openapi3.NewObjectSchema().
			WithProperty("endpoints", openapi3.NewArraySchema().WithItems(endpoint).WithMinItems(1)).
			WithRequired([]string{"endpoints"}),

		design.StepPerformance: openapi3.NewObjectSchema().
			WithProperty("performance_plan", stringArray(1)).
			WithProperty("reliability_plan", stringArray(1)).
			WithRequired([]string{"performance_plan", "reliability_plan"}),

		design.StepSecurity: openapi3.NewObjectSchema().
			WithProperty("security_plan", stringArray(1)).
			WithProperty("threat_model", stringArray(1)).
			WithProperty("observability", stringArray(0)).
			WithRequired([]string{"security_plan", "threat_model"}),

		design.StepSummary: openapi3.NewObjectSchema().
			WithProperty("summary", nonEmptyString()).
			WithProperty("phased_rollout", stringArray(1)).
			WithProperty("risks", stringArray(0)).
			WithRequired([]string{"summary", "phased_rollout"}),
	}
}

// ParseOutput turns raw model text into the typed payload for step. The text
// may wrap the JSON in prose or markdown fences. Every string is sanitised
// before validation. Failures are MODEL_OUTPUT_ERROR wrapping a
// *ValidationError.
func (v *Validator) ParseOutput(step design.StepID, text string) (design.Payload, error) {
	s, ok := v.outputs[step]
	if !ok {
		return nil, failure.New(failure.KindTemplate, "no output schema for step %q", step)
	}

	generic, err := extractJSON(text)
	if err != nil {
		return nil, outputError(step, []Issue{{Field: rootField, Constraint: "json", Message: err.Error()}})
	}
	generic = v.sanitizer.Value(prepareOutput(step, generic))

	if err := s.VisitJSON(generic, openapi3.MultiErrors()); err != nil {
		return nil, outputError(step, issuesFromSchemaError(err))
	}

	payload, err := decodePayload(step, generic)
	if err != nil {
		return nil, outputError(step, []Issue{{Field: rootField, Constraint: "type", Message: err.Error()}})
	}
	payload, issues := v.outputRules(payload)
	if len(issues) > 0 {
		return nil, outputError(step, issues)
	}
	return payload, nil
}

func outputError(step design.StepID, issues []Issue) error {
	return failure.Wrap(failure.KindModelOutput, newValidationError(issues), "%s output rejected", step)
}

var fence = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// extractJSON pulls the first JSON object or array out of text.
func extractJSON(text string) (any, error) {
	text = strings.TrimSpace(text)
	if m := fence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	var out any
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}

// prepareOutput tolerates the common shape slips models make before the
// schema is applied.
func prepareOutput(step design.StepID, v any) any {
	if step == design.StepAPIDesign {
		if list, ok := v.([]any); ok {
			v = map[string]any{"endpoints": list}
		}
		if obj, ok := v.(map[string]any); ok {
			if eps, ok := obj["endpoints"].([]any); ok {
				for _, ep := range eps {
					if m, ok := ep.(map[string]any); ok {
						if method, ok := m["method"].(string); ok {
							m["method"] = strings.ToUpper(strings.TrimSpace(method))
						}
					}
				}
			}
		}
	}
	if obj, ok := v.(map[string]any); ok {
		dropNulls(obj)
	}
	return v
}

func decodePayload(step design.StepID, generic any) (design.Payload, error) {
	switch step {
	case design.StepArchitecture:
		var p design.ArchitecturePayload
		err := remarshal(generic, &p)
		return p, err
	case design.StepSizing:
		var p design.SizingPayload
		err := remarshal(generic, &p)
		return p, err
	case design.StepTechStack:
		var p design.TechStackPayload
		err := remarshal(generic, &p)
		return p, err
	case design.StepAPIDesign:
		var p design.APIDesignPayload
		err := remarshal(generic, &p)
		return p, err
	case design.StepPerformance:
		var p design.PerformancePayload
		err := remarshal(generic, &p)
		return p, err
	case design.StepSecurity:
		var p design.SecurityPayload
		err := remarshal(generic, &p)
		return p, err
	case design.StepSummary:
		var p design.SummaryPayload
		err := remarshal(generic, &p)
		return p, err
	}
	return nil, fmt.Errorf("unknown step %q", step)
}

// outputRules applies the cross-field checks and may canonicalise the payload.
func (v *Validator) outputRules(p design.Payload) (design.Payload, []Issue) {
	switch p := p.(type) {
	case design.ArchitecturePayload:
		want := strings.TrimSpace(p.RecommendedOption)
		for _, o := range p.Options {
			if strings.EqualFold(strings.TrimSpace(o.Title), want) {
				p.RecommendedOption = o.Title
				return p, nil
			}
		}
		return p, []Issue{{
			Field:      "recommended_option",
			Constraint: "enum",
			Message:    fmt.Sprintf("%q is not one of the option titles", p.RecommendedOption),
		}}

	case design.APIDesignPayload:
		var issues []Issue
		seen := map[string]int{}
		for i, ep := range p.Endpoints {
			key := ep.Method + " " + OpenAPIPath(ep.Path)
			if j, dup := seen[key]; dup {
				issues = append(issues, Issue{
					Field:      "endpoints." + strconv.Itoa(i),
					Constraint: "uniqueItems",
					Message:    fmt.Sprintf("%s duplicates endpoints.%d", key, j),
				})
				continue
			}
			seen[key] = i
		}
		if len(issues) > 0 {
			return p, issues
		}
		if _, err := BuildOpenAPISketch(context.Background(), "sketch", p.Endpoints); err != nil {
			return p, []Issue{{Field: "endpoints", Constraint: "openapi", Message: err.Error()}}
		}
		return p, nil
	}
	return p, nil
}
