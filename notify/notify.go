// Package notify delivers operator notifications about leads and failures.
// Delivery is best effort: callers log errors and carry on.
package notify

import (
	"context"
	"errors"
)

// ErrClosed is returned by Async after Close.
var ErrClosed = errors.New("notifier closed")

// Kind classifies a notification.
type Kind string

const (
	KindLeadSaved   Kind = "lead_saved"
	KindLeadError   Kind = "lead_error"
	KindSystemError Kind = "system_error"
	KindAPIFailure  Kind = "api_failure"
	KindMediaError  Kind = "media_error"
)

// Notification is a single operator alert.
type Notification struct {
	Kind      Kind
	Detail    string
	LeadPhone string
}

// Notifier delivers notifications to operators.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Templates maps a notification kind to its headline.
type Templates map[Kind]string

// DefaultTemplates returns the built-in headlines.
func DefaultTemplates() Templates {
	return Templates{
		KindLeadSaved:   "Lead successfully saved",
		KindLeadError:   "Error occurred while saving lead, intervention required",
		KindSystemError: "Critical system error occurred",
		KindAPIFailure:  "Problem in API connection",
		KindMediaError:  "Media processing error",
	}
}

// Render formats n as "<headline>: <detail>, Lead phone number: <phone>".
func (t Templates) Render(n Notification) string {
	headline, ok := t[n.Kind]
	if !ok || headline == "" {
		headline, ok = DefaultTemplates()[n.Kind]
		if !ok {
			headline = string(n.Kind)
		}
	}

	text := headline
	if n.Detail != "" {
		text += ": " + n.Detail
	}
	if n.LeadPhone != "" {
		text += ", Lead phone number: " + n.LeadPhone
	}
	return text
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Notification) error { return nil }

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
