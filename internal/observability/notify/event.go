// Package notify defines the operator escalation contract for notifications
// that exhausted their delivery retries.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// ExhaustionPayload captures the canonical data emitted when a notification
// fails delivery its final time and will never be attempted again.
type ExhaustionPayload struct {
	NotificationID string
	Channel        string
	AttemptCount   int
	LastError      string
	Severity       string
	OccurredAt     time.Time
}

// Sink describes a destination capable of consuming exhaustion escalations.
type Sink interface {
	SendExhaustion(ctx context.Context, payload ExhaustionPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload ExhaustionPayload) error

// SendExhaustion implements the Sink interface.
func (f SinkFunc) SendExhaustion(ctx context.Context, payload ExhaustionPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
