// Package failure defines the error kinds shared by every stage of a design run.
// Kinds are strings so they serialise naturally into API payloads and log events.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	// KindValidation marks malformed input or output shape.
	KindValidation Kind = "VALIDATION_ERROR"
	// KindPolicy marks input rejected by the content policy.
	KindPolicy Kind = "POLICY_VIOLATION"
	// KindTemplate marks an unknown step or missing upstream state when building a prompt.
	KindTemplate Kind = "TEMPLATE_ERROR"
	// KindTimeout marks a provider call that exceeded its deadline.
	KindTimeout Kind = "TIMEOUT"
	// KindRateLimit marks a provider throttling response.
	KindRateLimit Kind = "RATE_LIMIT_EXCEEDED"
	// KindAuth marks rejected provider credentials.
	KindAuth Kind = "AUTH_ERROR"
	// KindProvider marks any other non-success provider response.
	KindProvider Kind = "PROVIDER_ERROR"
	// KindModelOutput marks a provider response that could not be parsed or validated.
	KindModelOutput Kind = "MODEL_OUTPUT_ERROR"
	// KindCancelled marks work abandoned because the caller went away.
	KindCancelled Kind = "CANCELLED"
	// KindInternal marks defects and infrastructure failures.
	KindInternal Kind = "INTERNAL_ERROR"
)

// Retryable reports whether a step may try again after this kind of failure.
func (k Kind) Retryable() bool {
	return k == KindTimeout || k == KindRateLimit
}

// HTTPStatus maps a kind onto the status code returned by the API.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindPolicy:
		return http.StatusUnprocessableEntity
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimit:
		return http.StatusServiceUnavailable
	case KindAuth, KindProvider, KindModelOutput:
		return http.StatusBadGateway
	case KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Kinded is implemented by errors that carry their own kind.
type Kinded interface {
	FailureKind() Kind
}

// Error is a classified error with an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// FailureKind implements Kinded.
func (e *Error) FailureKind() Kind { return e.Kind }

// New creates an Error without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of err. Bare context errors map to cancellation and
// timeouts; anything else unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.FailureKind()
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Message returns the human readable part of err without the kind prefix.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Message == "" && fe.Err != nil {
			return fe.Err.Error()
		}
		if fe.Err != nil {
			return fe.Message + ": " + fe.Err.Error()
		}
		return fe.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
