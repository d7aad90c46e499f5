package core

import (
	"context"
	"time"

	"github.com/farmkonnect/scheduler/internal/domain/model"
)

// This file contains the interface definitions (ports in hexagonal architecture)
// between the scheduler/retry services and their collaborators. Service
// implementations should depend on these interfaces, not concrete implementations.

// NotificationStore is the durable retry queue consumed by the retry
// coordinator. Rows are created by the platform's notification send path and
// mutated exclusively by the coordinator; they are never deleted here.
type NotificationStore interface {
	// Enqueue records a notification whose initial delivery failed.
	// The first attempt is already spent, so the row starts at attempt_count=1.
	Enqueue(ctx context.Context, params model.EnqueueNotificationParams) (*model.Notification, error)
	// FindDue returns pending/retrying notifications with next_attempt_at <= now.
	FindDue(ctx context.Context, now time.Time, limit int) ([]model.Notification, error)
	// MarkDelivered moves a notification to its delivered terminal state.
	MarkDelivered(ctx context.Context, id string, now time.Time) error
	// ScheduleRetry records a failed attempt and the backoff-derived next attempt time.
	ScheduleRetry(ctx context.Context, params model.ScheduleRetryParams) error
	// MarkExhausted moves a notification to its exhausted terminal state.
	MarkExhausted(ctx context.Context, id string, attemptCount int, lastError string) error
	// Counts aggregates all non-pending rows for the statistics API.
	Counts(ctx context.Context) (model.RetryCounts, error)
}

// NotificationTransport attempts delivery of a single notification.
// The payload and channel are opaque to the coordinator; implementations are
// the platform's SMS/email/push providers.
type NotificationTransport interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// TransportFunc adapts a function to the NotificationTransport interface (useful for tests).
type TransportFunc func(ctx context.Context, n model.Notification) error

// Deliver implements the NotificationTransport interface.
func (f TransportFunc) Deliver(ctx context.Context, n model.Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

// StatusPublisher mirrors scheduler job state to an external read model so
// the web tier can render it without reaching into this process.
type StatusPublisher interface {
	PublishJobStatuses(ctx context.Context, views []model.JobStatusView) error
}
