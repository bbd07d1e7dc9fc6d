package driven

import "context"

// Notifier defines the driven port for outbound email. Delivery is
// best-effort: callers log failures and never fail the triggering operation.
type Notifier interface {
	// Send delivers a plain-text message to a single recipient.
	Send(ctx context.Context, to, subject, body string) error
}
