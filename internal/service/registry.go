// Package service provides the job scheduling and notification retry services
// for the farmkonnect platform.
package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/farmkonnect/scheduler/internal/domain/model"
	apperrors "github.com/farmkonnect/scheduler/internal/errors"
)

// cronParser accepts standard 5-field POSIX cron expressions
// (minute hour day-of-month month day-of-week).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseSchedule validates a 5-field cron expression and returns its schedule.
func ParseSchedule(spec string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "invalid cron expression %q", spec)
	}
	return schedule, nil
}

// Job is a registered scheduled job record. All mutable record state is
// guarded by mu (single writer per job name); the lifecycle status uses an
// atomic compare-and-set so a tick and a manual trigger can never start two
// concurrent executions of the same job.
type Job struct {
	name string

	mu       sync.Mutex
	spec     string
	schedule cron.Schedule
	task     model.Task

	lastRun   *time.Time
	nextRun   *time.Time
	lastError *string

	// Clock binding state. A paused job keeps its record but produces no
	// future firings.
	bound bool
	timer stoppable

	status  atomic.Int32
	skipped atomic.Uint64
}

// stoppable is the subset of data.Timer the registry needs; it keeps this
// package decoupled from the clock implementation.
type stoppable interface {
	Stop() bool
}

const (
	statusIdle int32 = iota
	statusRunning
	statusCompleted
	statusFailed
)

func statusValue(s int32) model.JobStatus {
	switch s {
	case statusRunning:
		return model.JobStatusRunning
	case statusCompleted:
		return model.JobStatusCompleted
	case statusFailed:
		return model.JobStatusFailed
	default:
		return model.JobStatusIdle
	}
}

// Name returns the job's unique registry key.
func (j *Job) Name() string {
	return j.name
}

// Status returns the job's current lifecycle status.
func (j *Job) Status() model.JobStatus {
	return statusValue(j.status.Load())
}

// SkippedRuns reports how many firings were refused by the re-entrancy guard.
func (j *Job) SkippedRuns() uint64 {
	return j.skipped.Load()
}

// tryBeginRun attempts the idle/completed/failed → running transition.
// It fails exactly when a previous execution is still running.
func (j *Job) tryBeginRun() bool {
	for {
		cur := j.status.Load()
		if cur == statusRunning {
			return false
		}
		if j.status.CompareAndSwap(cur, statusRunning) {
			return true
		}
	}
}

// recordSkip counts a firing refused by the re-entrancy guard.
func (j *Job) recordSkip() uint64 {
	return j.skipped.Add(1)
}

// View returns a read-only snapshot of the job record.
func (j *Job) View() model.JobStatusView {
	j.mu.Lock()
	defer j.mu.Unlock()

	view := model.JobStatusView{
		Name:        j.name,
		Schedule:    j.spec,
		Status:      statusValue(j.status.Load()),
		Paused:      !j.bound,
		SkippedRuns: j.skipped.Load(),
	}
	if j.lastRun != nil {
		t := *j.lastRun
		view.LastRun = &t
	}
	if j.nextRun != nil {
		t := *j.nextRun
		view.NextRun = &t
	}
	if j.lastError != nil {
		msg := *j.lastError
		view.LastError = &msg
	}
	return view
}

// Registry is the in-memory mapping from job name to job record. It owns
// record storage and atomic status transitions; clock bindings are managed
// by the Scheduler through the records it hands out.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Register creates a job record with idle status and no run history.
// Registering an existing name returns a Conflict error and leaves the
// original registration untouched.
func (r *Registry) Register(name, spec string, task model.Task) (*Job, error) {
	if name == "" {
		return nil, apperrors.Validation("job name is required")
	}
	if task == nil {
		return nil, apperrors.Validationf("job %q requires a task", name)
	}
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return nil, apperrors.Conflictf("job %q is already registered", name)
	}

	job := &Job{
		name:     name,
		spec:     spec,
		schedule: schedule,
		task:     task,
	}
	r.jobs[name] = job
	return job, nil
}

// Get returns the job record for name or a NotFound error.
func (r *Registry) Get(name string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[name]
	if !ok {
		return nil, apperrors.NotFoundf("job %q is not registered", name)
	}
	return job, nil
}

// List returns all registered job records.
func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// UpdateSchedule atomically replaces a job's cron expression. Run history
// (lastRun, lastError) is preserved; rebinding to the clock is the caller's
// responsibility.
func (r *Registry) UpdateSchedule(name, newSpec string) (*Job, error) {
	schedule, err := ParseSchedule(newSpec)
	if err != nil {
		return nil, err
	}

	job, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	job.spec = newSpec
	job.schedule = schedule
	return job, nil
}
