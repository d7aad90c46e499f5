// Package metrics provides standardised metric emission for the scheduler
// and the notification retry coordinator.
package metrics

import (
	"time"

	"github.com/farmkonnect/scheduler/internal/domain/model"
	apperrors "github.com/farmkonnect/scheduler/internal/errors"
	"github.com/farmkonnect/scheduler/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobRun captures details about one job execution for metric emission.
type JobRun struct {
	Job      string
	Trigger  model.TriggerKind
	Result   string
	Duration time.Duration
	Err      error
}

// EmitJobRun emits standardised job run metrics.
func EmitJobRun(sink statsd.Sink, in JobRun) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job":     in.Job,
		"trigger": string(in.Trigger),
		"result":  in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if code := apperrors.GetCode(in.Err); code != "" {
			tags["error_class"] = string(code)
		}
	}

	sink.Count("scheduler.job_run", 1, tags)
	if in.Duration > 0 {
		sink.Timing("scheduler.job_duration", in.Duration, CloneTags(tags))
	}
}

// EmitJobSkip counts a firing refused by the re-entrancy guard. This is the
// observable signal that overlapping runs of the same job were prevented.
func EmitJobSkip(sink statsd.Sink, job string, trigger model.TriggerKind) {
	if sink == nil {
		return
	}
	sink.Count("scheduler.job_skipped", 1, map[string]string{
		"job":     job,
		"trigger": string(trigger),
	})
}

// RetrySweep captures details about one coordinator sweep for metric emission.
type RetrySweep struct {
	Result   model.RetrySweepResult
	Duration time.Duration
	Err      error
}

// EmitRetrySweep emits standardised retry sweep metrics.
func EmitRetrySweep(sink statsd.Sink, in RetrySweep) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Result.Processed == 0:
		result = ResultNoop
	}
	tags := map[string]string{"result": result}

	sink.Count("retry.sweep", 1, tags)
	if in.Result.Processed > 0 {
		sink.Count("retry.notifications_processed", int64(in.Result.Processed), CloneTags(tags))
		sink.Count("retry.notifications_delivered", int64(in.Result.Successful), CloneTags(tags))
		sink.Count("retry.notifications_rescheduled", int64(in.Result.Scheduled), CloneTags(tags))
		sink.Count("retry.notifications_exhausted", int64(in.Result.Exhausted), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("retry.sweep_duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
