package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/rahul/archcopilot/internal/design"
)

var (
	colonParam = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)
	braceParam = regexp.MustCompile(`\{([^}/]+)\}`)
	nonWord    = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// OpenAPIPath rewrites an endpoint path into OpenAPI templating: ":id"
// becomes "{id}" and any query string is dropped.
func OpenAPIPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = colonParam.ReplaceAllString(path, "{$1}")
	if path == "" {
		return "/"
	}
	return path
}

// BuildOpenAPISketch renders endpoints as a validated OpenAPI 3 document in
// YAML. Request and response examples become schemas: a type name such as
// "string" or "int" maps to that type, any other value is typed by its JSON
// kind.
func BuildOpenAPISketch(ctx context.Context, title string, endpoints []design.APIEndpoint) (string, error) {
	if strings.TrimSpace(title) == "" {
		title = "API"
	}
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: title + " API", Version: "0.1.0"},
		Paths:   openapi3.NewPaths(),
	}

	usedIDs := map[string]int{}
	for _, ep := range endpoints {
		method := strings.ToUpper(strings.TrimSpace(ep.Method))
		path := OpenAPIPath(ep.Path)

		op := openapi3.NewOperation()
		op.Summary = ep.Description
		op.OperationID = uniqueOperationID(usedIDs, method, path)

		seen := map[string]bool{}
		for _, m := range braceParam.FindAllStringSubmatch(path, -1) {
			if seen[m[1]] {
				continue
			}
			seen[m[1]] = true
			op.AddParameter(openapi3.NewPathParameter(m[1]).WithSchema(openapi3.NewStringSchema()))
		}

		if len(ep.Request) > 0 && acceptsBody(method) {
			op.RequestBody = &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(schemaForExample(ep.Request)),
			}
		}

		resp := openapi3.NewResponse().WithDescription("OK")
		if len(ep.Response) > 0 {
			resp = resp.WithJSONSchema(schemaForExample(ep.Response))
		}
		op.Responses = openapi3.NewResponses(openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{Value: resp}))

		if ep.RateLimitRPM != nil {
			op.Extensions = map[string]any{"x-rate-limit-rpm": *ep.RateLimitRPM}
		}
		if ep.Idempotent {
			if op.Extensions == nil {
				op.Extensions = map[string]any{}
			}
			op.Extensions["x-idempotent"] = true
		}

		doc.AddOperation(path, method, op)
	}

	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return "", fmt.Errorf("openapi sketch: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("openapi sketch: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("openapi sketch: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("openapi sketch: %w", err)
	}
	return string(out), nil
}

func acceptsBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
		return false
	}
	return true
}

func uniqueOperationID(used map[string]int, method, path string) string {
	base := strings.ToLower(method) + strings.TrimRight("_"+strings.Trim(nonWord.ReplaceAllString(path, "_"), "_"), "_")
	used[base]++
	if n := used[base]; n > 1 {
		return fmt.Sprintf("%s_%d", base, n)
	}
	return base
}

var exampleTypes = map[string]func() *openapi3.Schema{
	"string":    openapi3.NewStringSchema,
	"str":       openapi3.NewStringSchema,
	"text":      openapi3.NewStringSchema,
	"uuid":      openapi3.NewStringSchema,
	"date":      openapi3.NewDateTimeSchema,
	"datetime":  openapi3.NewDateTimeSchema,
	"timestamp": openapi3.NewDateTimeSchema,
	"int":       openapi3.NewIntegerSchema,
	"integer":   openapi3.NewIntegerSchema,
	"number":    openapi3.NewFloat64Schema,
	"float":     openapi3.NewFloat64Schema,
	"decimal":   openapi3.NewFloat64Schema,
	"bool":      openapi3.NewBoolSchema,
	"boolean":   openapi3.NewBoolSchema,
	"object":    openapi3.NewObjectSchema,
	"array":     func() *openapi3.Schema { return openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()) },
}

func schemaForExample(v any) *openapi3.Schema {
	switch v := v.(type) {
	case string:
		if mk, ok := exampleTypes[strings.ToLower(strings.TrimSpace(v))]; ok {
			return mk()
		}
		return openapi3.NewStringSchema()
	case float64, int:
		return openapi3.NewFloat64Schema()
	case bool:
		return openapi3.NewBoolSchema()
	case []any:
		items := openapi3.NewStringSchema()
		if len(v) > 0 {
			items = schemaForExample(v[0])
		}
		return openapi3.NewArraySchema().WithItems(items)
	case map[string]any:
		obj := openapi3.NewObjectSchema()
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			obj = obj.WithProperty(k, schemaForExample(v[k]))
		}
		return obj
	}
	return openapi3.NewStringSchema().WithNullable()
}
