// Package schema validates design requests and model step outputs against
// JSON schemas built with kin-openapi.
package schema

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/rahul/archcopilot/internal/design"
)

// Validator holds the compiled request and per-step output schemas. It is
// safe for concurrent use.
type Validator struct {
	request   *openapi3.Schema
	outputs   map[design.StepID]*openapi3.Schema
	sanitizer *Sanitizer
}

func NewValidator() *Validator {
	return &Validator{
		request:   requestSchema(),
		outputs:   outputSchemas(),
		sanitizer: NewSanitizer(),
	}
}

// Sanitizer exposes the string sanitiser used on model output.
func (v *Validator) Sanitizer() *Sanitizer { return v.sanitizer }
