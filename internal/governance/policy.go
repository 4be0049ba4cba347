package governance

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rahul/archcopilot/internal/design"
	"github.com/rahul/archcopilot/internal/failure"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// DefaultDenyPatterns reject the usual prompt-injection phrasings in user
// supplied prose.
var DefaultDenyPatterns = []string{
	`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`,
	`(?i)disregard\s+(the\s+)?(system|previous)\s+prompt`,
	`(?i)reveal\s+(your\s+)?(system\s+prompt|instructions)`,
	`(?i)you\s+are\s+now\s+(in\s+)?developer\s+mode`,
	`(?i)<\s*/?\s*system\s*>`,
}

// Request is one free-text field to be evaluated.
type Request struct {
	Field string
	Text  string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates free text against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine.
type DefaultPolicyEngine struct {
	DeniedFields map[string]bool
	DeniedRegex  []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedFields: make(map[string]bool),
		DeniedRegex:  make([]*regexp.Regexp, 0),
	}
}

// NewContentPolicy builds an engine with the default deny patterns plus
// any extra ones.
func NewContentPolicy(extra ...string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, p := range append(append([]string{}, DefaultDenyPatterns...), extra...) {
		if err := e.DenyPattern(p); err != nil {
			return nil, fmt.Errorf("policy pattern %q: %w", p, err)
		}
	}
	return e, nil
}

// DenyField rejects any non-empty value for field. A list field such as
// "special_constraints" covers each of its items.
func (e *DefaultPolicyEngine) DenyField(name string) {
	e.DeniedFields[name] = true
}

func (e *DefaultPolicyEngine) DenyPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if req.Text == "" {
		return Result{Effect: EffectAllow, Reason: "Empty field"}, nil
	}
	base, _, _ := strings.Cut(req.Field, ".")
	if e.DeniedFields[req.Field] || e.DeniedFields[base] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Field '%s' is restricted by system policy", req.Field),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Text) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Text matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

// Violation is returned when a request is denied.
type Violation struct {
	Field  string
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

func (v *Violation) FailureKind() failure.Kind { return failure.KindPolicy }

// CheckRequest evaluates every free-text field of req in field order and
// returns the first denial as a *Violation.
func CheckRequest(ctx context.Context, engine PolicyEngine, req design.DesignRequest) error {
	fields := req.FreeText()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res, err := engine.Evaluate(ctx, Request{Field: name, Text: fields[name]})
		if err != nil {
			return err
		}
		if res.Effect == EffectDeny {
			return &Violation{Field: name, Reason: res.Reason}
		}
	}
	return nil
}
