package llm

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/rahul/archcopilot/internal/failure"
)

var statusCodePattern = regexp.MustCompile(`(?i)status(?: code)?:?\s*(\d{3})`)

var (
	authKeywords      = []string{"unauthorized", "invalid api key", "incorrect api key", "invalid x-api-key", "authentication", "permission denied", "forbidden"}
	rateLimitKeywords = []string{"rate limit", "rate_limit", "too many requests", "quota", "overloaded"}
	timeoutKeywords   = []string{"timeout", "timed out", "deadline exceeded"}
)

// classify turns a provider error into a *failure.Error. parent is the
// caller's context and call the per-call context derived from it, so a
// cancelled caller is told apart from a call that ran out of time.
func classify(parent, call context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return failure.Wrap(failure.KindCancelled, parent.Err(), "%s call abandoned", provider)
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return failure.Wrap(failure.KindTimeout, err, "%s call timed out", provider)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := kindForStatus(apiErr.StatusCode)
		return &failure.Error{Kind: kind, Status: apiErr.StatusCode, Message: provider + " returned " + strconv.Itoa(apiErr.StatusCode), Err: err}
	}

	msg := err.Error()
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		if code >= 400 {
			return &failure.Error{Kind: kindForStatus(code), Status: code, Message: provider + " returned " + m[1], Err: err}
		}
	}
	return failure.Wrap(kindForMessage(msg), err, "%s call failed", provider)
}

func kindForStatus(code int) failure.Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return failure.KindAuth
	case code == http.StatusTooManyRequests || code == 529:
		return failure.KindRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return failure.KindTimeout
	default:
		return failure.KindProvider
	}
}

func kindForMessage(msg string) failure.Kind {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, authKeywords):
		return failure.KindAuth
	case containsAny(lower, rateLimitKeywords):
		return failure.KindRateLimit
	case containsAny(lower, timeoutKeywords):
		return failure.KindTimeout
	default:
		return failure.KindProvider
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
