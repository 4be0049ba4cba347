package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/rahul/archcopilot/internal/failure"
)

// Issue is one constraint violation. Field is a dotted path ("regions.1"),
// Constraint the violated schema keyword ("required", "minimum", "enum", ...).
type Issue struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

// ValidationError reports every issue found in a document.
type ValidationError struct {
	Issues []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	first := e.Issues[0]
	msg := fmt.Sprintf("%s: %s (%s)", first.Field, first.Message, first.Constraint)
	if n := len(e.Issues) - 1; n > 0 {
		msg += fmt.Sprintf(" and %d more", n)
	}
	return msg
}

// FailureKind implements failure.Kinded.
func (e *ValidationError) FailureKind() failure.Kind { return failure.KindValidation }

// Fields returns the offending field names in issue order.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		out[i] = is.Field
	}
	return out
}

// Has reports whether field was flagged, optionally for a specific constraint.
func (e *ValidationError) Has(field string, constraint ...string) bool {
	for _, is := range e.Issues {
		if is.Field != field {
			continue
		}
		if len(constraint) == 0 || is.Constraint == constraint[0] {
			return true
		}
	}
	return false
}

const rootField = "(root)"

var missingProperty = regexp.MustCompile(`property "([^"]+)" is missing`)

// issuesFromSchemaError flattens kin-openapi errors into issues.
func issuesFromSchemaError(err error) []Issue {
	var out []Issue
	var walk func(error)
	walk = func(err error) {
		var multi openapi3.MultiError
		if errors.As(err, &multi) {
			for _, e := range multi {
				walk(e)
			}
			return
		}
		var se *openapi3.SchemaError
		if errors.As(err, &se) {
			out = append(out, issueFromSchemaError(se))
			return
		}
		out = append(out, Issue{Field: rootField, Constraint: "schema", Message: err.Error()})
	}
	walk(err)
	return out
}

func issueFromSchemaError(se *openapi3.SchemaError) Issue {
	path := se.JSONPointer()
	if se.SchemaField == "required" {
		if m := missingProperty.FindStringSubmatch(se.Reason); m != nil {
			if len(path) == 0 || path[len(path)-1] != m[1] {
				path = append(path, m[1])
			}
		}
	}
	field := strings.Join(path, ".")
	if field == "" {
		field = rootField
	}
	return Issue{Field: field, Constraint: se.SchemaField, Message: se.Reason}
}

func newValidationError(issues []Issue) *ValidationError {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Field != issues[j].Field {
			return issues[i].Field < issues[j].Field
		}
		return issues[i].Constraint < issues[j].Constraint
	})
	return &ValidationError{Issues: dedupeIssues(issues)}
}

func dedupeIssues(in []Issue) []Issue {
	out := in[:0]
	seen := make(map[Issue]bool, len(in))
	for _, is := range in {
		if seen[is] {
			continue
		}
		seen[is] = true
		out = append(out, is)
	}
	return out
}
