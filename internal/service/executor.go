package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/farmkonnect/scheduler/internal/data"
	"github.com/farmkonnect/scheduler/internal/domain/model"
	apperrors "github.com/farmkonnect/scheduler/internal/errors"
	"github.com/farmkonnect/scheduler/internal/observability/metrics"
	"github.com/farmkonnect/scheduler/internal/observability/statsd"
)

// Executor runs a single job's task to completion and records the outcome on
// the registry record. A task failure is contained here: it is captured into
// status/lastError and never propagates to the scheduler or to other jobs.
type Executor struct {
	clock   data.Clock
	logger  *slog.Logger
	metrics statsd.Sink
}

// ExecutorOptions holds the dependencies for creating an Executor.
type ExecutorOptions struct {
	Clock   data.Clock   // Optional: defaults to the system clock
	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: metrics sink (StatsD-compatible)
}

// NewExecutor creates a new Executor with the given dependencies.
func NewExecutor(opts ExecutorOptions) *Executor {
	clock := opts.Clock
	if clock == nil {
		clock = data.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		clock:   clock,
		logger:  logger.With("component", "job_executor"),
		metrics: opts.Metrics,
	}
}

// Execute runs the job's task synchronously and updates the record.
//
// If a previous execution of the same job is still running, the firing is
// skipped, logged, and counted; it is never queued or run concurrently.
// The returned error reflects the outcome for callers that surface results
// (manual triggers); scheduled ticks ignore it.
func (e *Executor) Execute(ctx context.Context, job *Job, kind model.TriggerKind) error {
	if !job.tryBeginRun() {
		skips := job.recordSkip()
		e.logger.WarnContext(ctx, "skipping job run: previous execution still running",
			"job", job.Name(),
			"trigger", string(kind),
			"skipped_runs", skips,
		)
		metrics.EmitJobSkip(e.metrics, job.Name(), kind)
		return apperrors.Conflictf("job %q is already running", job.Name())
	}

	started := e.clock.Now()
	job.beginRun(started)

	err := runTask(ctx, job.taskFn())
	finished := e.clock.Now()
	job.finishRun(err, finished)

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		e.logger.ErrorContext(ctx, "job run failed",
			"job", job.Name(),
			"trigger", string(kind),
			"duration", finished.Sub(started),
			"error", err,
		)
	} else {
		e.logger.InfoContext(ctx, "job run completed",
			"job", job.Name(),
			"trigger", string(kind),
			"duration", finished.Sub(started),
		)
	}

	metrics.EmitJobRun(e.metrics, metrics.JobRun{
		Job:      job.Name(),
		Trigger:  kind,
		Result:   result,
		Duration: finished.Sub(started),
		Err:      err,
	})
	return err
}

// runTask invokes the task, converting panics into errors so a misbehaving
// task cannot take down the scheduler.
func runTask(ctx context.Context, task model.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// taskFn returns the job's task under the record lock; the task reference can
// only change through UpdateSchedule-free paths, but reading it consistently
// is cheap.
func (j *Job) taskFn() model.Task {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.task
}

// beginRun marks the start of an execution. The status CAS has already
// happened; this records lastRun under the record lock.
func (j *Job) beginRun(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t := now
	j.lastRun = &t
}

// finishRun records the outcome of an execution. On success lastError is
// cleared; on failure it captures the error text. nextRun is always
// recomputed from the cron expression and the clock, so manual triggers never
// drift the schedule.
func (j *Job) finishRun(err error, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err != nil {
		msg := err.Error()
		j.lastError = &msg
		j.status.Store(statusFailed)
	} else {
		j.lastError = nil
		j.status.Store(statusCompleted)
	}

	if j.bound {
		next := j.schedule.Next(now)
		j.nextRun = &next
	} else {
		j.nextRun = nil
	}
}
