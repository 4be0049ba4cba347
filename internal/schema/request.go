package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/rahul/archcopilot/internal/design"
)

// RequiredRequestFields are the core drivers every request must carry.
var RequiredRequestFields = []string{
	"app_name",
	"description",
	"dau",
	"peak_rps",
	"read_write_ratio",
	"regions",
	"budget_level",
}

// maxInteger is the largest count accepted for integer fields; it is exact
// in a float64 and fits an int.
const maxInteger = 1<<53 - 1

func requestSchema() *openapi3.Schema {
	nonEmpty := func() *openapi3.Schema { return openapi3.NewStringSchema().WithMinLength(1) }
	stringList := func() *openapi3.Schema { return openapi3.NewArraySchema().WithItems(nonEmpty()) }
	atLeast := func(min float64) *openapi3.Schema { return openapi3.NewIntegerSchema().WithMin(min).WithMax(maxInteger) }

	return openapi3.NewObjectSchema().
		WithProperty("app_name", nonEmpty().WithMaxLength(200)).
		WithProperty("description", nonEmpty().WithMaxLength(4000)).
		WithProperty("dau", atLeast(1)).
		WithProperty("peak_rps", atLeast(1)).
		WithProperty("read_write_ratio", openapi3.NewFloat64Schema().WithMin(0)).
		WithProperty("regions", stringList().WithMinItems(1).WithUniqueItems(true)).
		WithProperty("budget_level", openapi3.NewStringSchema().WithEnum(design.BudgetLow, design.BudgetMedium, design.BudgetHigh)).
		WithProperty("domain", openapi3.NewStringSchema()).
		WithProperty("end_users", openapi3.NewStringSchema()).
		WithProperty("user_roles", stringList()).
		WithProperty("peak_concurrent_users", atLeast(1)).
		WithProperty("traffic_pattern", openapi3.NewStringSchema().WithEnum(design.TrafficSteady, design.TrafficSpiky)).
		WithProperty("data_types", stringList()).
		WithProperty("compliance", stringList()).
		WithProperty("latency_target_ms_p50", atLeast(1)).
		WithProperty("latency_target_ms_p95", atLeast(1)).
		WithProperty("availability_target", openapi3.NewFloat64Schema().WithMin(0.9).WithMax(1.0)).
		WithProperty("rpo_hours", openapi3.NewFloat64Schema().WithMin(0)).
		WithProperty("rto_hours", openapi3.NewFloat64Schema().WithMin(0)).
		WithProperty("apis_needed", stringList()).
		WithProperty("api_rate_limits_rpm", atLeast(0)).
		WithProperty("team_size", atLeast(1)).
		WithProperty("special_constraints", stringList()).
		WithRequired(RequiredRequestFields)
}

// ValidateRequest checks raw JSON against the request schema and returns the
// normalised request. Nothing is fetched or logged.
func (v *Validator) ValidateRequest(raw []byte) (design.DesignRequest, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&generic); err != nil {
		return design.DesignRequest{}, newValidationError([]Issue{{
			Field: rootField, Constraint: "json", Message: "body is not valid JSON: " + err.Error(),
		}})
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		return design.DesignRequest{}, newValidationError([]Issue{{
			Field: rootField, Constraint: "json", Message: "body must hold a single JSON value",
		}})
	}
	return v.ValidateRequestValue(generic)
}

// ValidateRequestValue validates an already decoded JSON value.
func (v *Validator) ValidateRequestValue(generic any) (design.DesignRequest, error) {
	if obj, ok := generic.(map[string]any); ok {
		dropNulls(obj)
	}
	if err := v.request.VisitJSON(generic, openapi3.MultiErrors()); err != nil {
		return design.DesignRequest{}, newValidationError(issuesFromSchemaError(err))
	}

	var req design.DesignRequest
	if err := remarshal(generic, &req); err != nil {
		return design.DesignRequest{}, newValidationError([]Issue{typeIssue(err)})
	}

	req = normalizeRequest(req)
	if issues := requestRules(req); len(issues) > 0 {
		return design.DesignRequest{}, newValidationError(issues)
	}
	return req, nil
}

func normalizeRequest(req design.DesignRequest) design.DesignRequest {
	req = req.Clone()
	req.AppName = strings.TrimSpace(req.AppName)
	req.Description = strings.TrimSpace(req.Description)
	req.Domain = strings.TrimSpace(req.Domain)
	req.EndUsers = strings.TrimSpace(req.EndUsers)
	for i := range req.Regions {
		req.Regions[i] = strings.TrimSpace(req.Regions[i])
	}
	if req.TrafficPattern == "" {
		req.TrafficPattern = design.TrafficSteady
	}
	return req
}

// requestRules covers constraints the schema cannot express.
func requestRules(req design.DesignRequest) []Issue {
	var issues []Issue
	if req.AppName == "" {
		issues = append(issues, Issue{Field: "app_name", Constraint: "minLength", Message: "must not be blank"})
	}
	if req.Description == "" {
		issues = append(issues, Issue{Field: "description", Constraint: "minLength", Message: "must not be blank"})
	}
	if req.ReadWriteRatio <= 0 {
		issues = append(issues, Issue{Field: "read_write_ratio", Constraint: "exclusiveMinimum", Message: "must be greater than 0"})
	}
	seen := make(map[string]int, len(req.Regions))
	for i, r := range req.Regions {
		field := "regions." + strconv.Itoa(i)
		if r == "" {
			issues = append(issues, Issue{Field: field, Constraint: "minLength", Message: "must not be blank"})
			continue
		}
		key := strings.ToLower(r)
		if j, dup := seen[key]; dup {
			issues = append(issues, Issue{Field: field, Constraint: "uniqueItems", Message: fmt.Sprintf("duplicates regions.%d", j)})
			continue
		}
		seen[key] = i
	}
	if p50, p95 := req.LatencyTargetP50Ms, req.LatencyTargetP95Ms; p50 != nil && p95 != nil && *p95 < *p50 {
		issues = append(issues, Issue{Field: "latency_target_ms_p95", Constraint: "minimum", Message: "must be at least latency_target_ms_p50"})
	}
	return issues
}

// typeIssue names the field a decode error refers to when it can.
func typeIssue(err error) Issue {
	field := rootField
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		field = te.Field
	}
	return Issue{Field: field, Constraint: "type", Message: err.Error()}
}

// dropNulls treats explicit nulls like absent optional fields.
func dropNulls(obj map[string]any) {
	for k, val := range obj {
		if val == nil {
			delete(obj, k)
		}
	}
}

func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
