package model

import (
	"encoding/json"
	"time"
)

// NotificationStatus represents the delivery state of a retryable notification.
//
// Lifecycle: rows are created as pending by the notification send path when an
// initial delivery fails. The retry coordinator moves rows to retrying,
// delivered, or exhausted. Delivered and exhausted are terminal.
type NotificationStatus string

const (
	// NotificationStatusPending indicates a notification awaiting its first retry attempt.
	NotificationStatusPending NotificationStatus = "pending"
	// NotificationStatusRetrying indicates a notification scheduled for another attempt.
	NotificationStatusRetrying NotificationStatus = "retrying"
	// NotificationStatusDelivered indicates the transport accepted the notification.
	NotificationStatusDelivered NotificationStatus = "delivered"
	// NotificationStatusExhausted indicates delivery failed the maximum number of times.
	NotificationStatusExhausted NotificationStatus = "exhausted"
)

// Valid returns true if the NotificationStatus is valid.
func (s NotificationStatus) Valid() bool {
	return s == NotificationStatusPending || s == NotificationStatusRetrying ||
		s == NotificationStatusDelivered || s == NotificationStatusExhausted
}

// Terminal returns true for states that permit no further delivery attempts.
func (s NotificationStatus) Terminal() bool {
	return s == NotificationStatusDelivered || s == NotificationStatusExhausted
}

// Notification is a failed notification tracked by the retry store.
// The payload and channel are opaque to the scheduler; only the transport
// interprets them.
type Notification struct {
	ID            string             `json:"id"              db:"id"`
	Channel       string             `json:"channel"         db:"channel"`
	Payload       json.RawMessage    `json:"payload"         db:"payload"`
	Status        NotificationStatus `json:"status"          db:"status"`
	AttemptCount  int                `json:"attempt_count"   db:"attempt_count"`
	NextAttemptAt time.Time          `json:"next_attempt_at" db:"next_attempt_at"`
	LastError     *string            `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time          `json:"created_at"      db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"      db:"updated_at"`
}

// EnqueueNotificationParams captures a freshly failed notification entering
// the retry queue. The first delivery attempt is already spent by the send
// path, so AttemptCount starts at 1.
type EnqueueNotificationParams struct {
	Channel       string
	Payload       json.RawMessage
	LastError     string
	NextAttemptAt time.Time
}

// ScheduleRetryParams records a failed attempt and the next attempt time.
type ScheduleRetryParams struct {
	ID            string
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
}

// RetrySweepResult summarises a single coordinator sweep.
type RetrySweepResult struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Scheduled  int `json:"scheduled"`
	Exhausted  int `json:"exhausted"`
}

// RetryCounts are raw aggregates over all non-pending notification rows,
// as reported by the store.
type RetryCounts struct {
	TotalFailed   int
	TotalAttempts int
	Delivered     int
	Exhausted     int
}

// RetryStatistics is the derived reporting view over the retry queue history.
type RetryStatistics struct {
	TotalFailed    int     `json:"total_failed"`
	TotalRetried   int     `json:"total_retried"`
	AverageRetries float64 `json:"average_retries"`
	SuccessRate    float64 `json:"success_rate"`
}
