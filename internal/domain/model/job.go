// Package model defines the core data types and structures used throughout the farmkonnect scheduler.
package model

import (
	"context"
	"time"
)

// JobStatus represents the lifecycle state of a scheduled job.
type JobStatus string

const (
	// JobStatusIdle indicates a job that has never run or is between runs.
	JobStatusIdle JobStatus = "idle"
	// JobStatusRunning indicates a job whose task is currently executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the most recent run finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the most recent run returned an error (or panicked).
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusIdle || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Task is an opaque unit of work bound to a scheduled job. Tasks run until
// completion; the scheduler never cancels an in-flight task, it only stops
// producing future firings.
type Task func(ctx context.Context) error

// TriggerKind distinguishes how an execution was initiated.
type TriggerKind string

const (
	// TriggerCron marks an execution started by a cron firing.
	TriggerCron TriggerKind = "cron"
	// TriggerManual marks an execution started by TriggerNow.
	TriggerManual TriggerKind = "manual"
)

// JobStatusView is a read-only snapshot of a scheduled job's record,
// suitable for status APIs and the Redis snapshot publisher.
type JobStatusView struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Status    JobStatus  `json:"status"`
	Paused    bool       `json:"paused"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastError *string    `json:"last_error,omitempty"`
	// SkippedRuns counts firings refused because a previous execution of the
	// same job was still running.
	SkippedRuns uint64 `json:"skipped_runs"`
}

// TriggerResult reports the outcome of a manual, out-of-band job execution.
type TriggerResult struct {
	Success bool    `json:"success"`
	Error   *string `json:"error,omitempty"`
}
