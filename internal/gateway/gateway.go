// Package gateway delivers notifications about finished design runs to chat
// services.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Notifier defines the interface for outbound gateways (Telegram, Discord, etc.)
type Notifier interface {
	// Name identifies the gateway in logs
	Name() string
	// Notify delivers one notification
	Notify(ctx context.Context, n Notification) error
}

// Notification describes a finished run.
type Notification struct {
	SubmissionID string
	RunID        string
	AppName      string
	Status       string
	Summary      string
	FailedSteps  []string
}

// FormatNotification renders n as a short plain-text message.
func FormatNotification(n Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design report for %s: %s\n", n.AppName, n.Status)
	if n.Summary != "" {
		fmt.Fprintf(&b, "%s\n", n.Summary)
	}
	if len(n.FailedSteps) > 0 {
		fmt.Fprintf(&b, "Failed steps: %s\n", strings.Join(n.FailedSteps, ", "))
	}
	fmt.Fprintf(&b, "Submission: %s (run %s)", n.SubmissionID, n.RunID)
	return b.String()
}

// Multi fans a notification out to every gateway.
type Multi []Notifier

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return strings.Join(names, ",")
}

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, g := range m {
		if err := g.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
		}
	}
	return errors.Join(errs...)
}
