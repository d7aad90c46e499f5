package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/farmkonnect/scheduler/internal/data"
	"github.com/farmkonnect/scheduler/internal/domain/model"
	"github.com/farmkonnect/scheduler/internal/observability/statsd"
)

// Scheduler binds registry entries to the clock and fires each job's task on
// its cron schedule. It owns the registry explicitly; there is no process-wide
// job map. Construct one at startup and pass it to whatever exposes the API.
//
// Ordering guarantees: firings for different jobs may run concurrently;
// firings for the same job are serialized by the executor's status guard.
// Manual operations on a job are serialized against its ticks through the
// per-record lock.
type Scheduler struct {
	registry *Registry
	clock    data.Clock
	executor *Executor
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	runCtx  context.Context
}

// SchedulerOptions holds the dependencies for creating a Scheduler.
type SchedulerOptions struct {
	Clock   data.Clock   // Optional: defaults to the system clock
	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: metrics sink (StatsD-compatible)
}

// NewScheduler creates a Scheduler with an empty registry.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	clock := opts.Clock
	if clock == nil {
		clock = data.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		registry: NewRegistry(),
		clock:    clock,
		logger:   logger.With("component", "scheduler"),
		executor: NewExecutor(ExecutorOptions{
			Clock:   clock,
			Logger:  logger,
			Metrics: opts.Metrics,
		}),
		runCtx: context.Background(),
	}
}

// Register adds a named job with a 5-field cron expression. If the scheduler
// has already been started, the job is bound to the clock immediately.
// Registering an existing name returns a Conflict error.
func (s *Scheduler) Register(name, spec string, task model.Task) error {
	job, err := s.registry.Register(name, spec, task)
	if err != nil {
		return err
	}

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		s.bind(job)
	}
	return nil
}

// StartAll binds every registered job to the clock. It is idempotent for
// jobs that are already bound. Scheduled executions run under ctx; the
// context is not used to cancel in-flight tasks.
func (s *Scheduler) StartAll(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.started = true
	s.runCtx = ctx
	s.mu.Unlock()

	for _, job := range s.registry.List() {
		s.bind(job)
	}
	s.logger.InfoContext(ctx, "scheduler started", "jobs", len(s.registry.List()))
}

// StopAll detaches every clock binding. Jobs that are currently running
// finish their execution; only future ticks are prevented.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	for _, job := range s.registry.List() {
		s.unbind(job)
	}
	s.logger.Info("scheduler stopped")
}

// Pause detaches the job from the clock, leaving its last known status and
// history untouched. Returns false without error when already paused.
func (s *Scheduler) Pause(name string) (bool, error) {
	job, err := s.registry.Get(name)
	if err != nil {
		return false, err
	}
	changed := s.unbind(job)
	if changed {
		s.logger.Info("job paused", "job", name)
	}
	return changed, nil
}

// Resume reattaches the job using its stored cron expression, recomputing the
// next occurrence from now. Missed executions are not replayed. Returns false
// without error when already bound.
func (s *Scheduler) Resume(name string) (bool, error) {
	job, err := s.registry.Get(name)
	if err != nil {
		return false, err
	}
	changed := s.bind(job)
	if changed {
		s.logger.Info("job resumed", "job", name)
	}
	return changed, nil
}

// TriggerNow executes the job immediately, out of band from its cron
// schedule, through the same executor path used by ticks. lastRun, status and
// lastError update exactly as a scheduled firing would; the cron-derived next
// occurrence is preserved. A run that is refused because the job is already
// running is reported as an unsuccessful result, not an error.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) (model.TriggerResult, error) {
	job, err := s.registry.Get(name)
	if err != nil {
		return model.TriggerResult{}, err
	}

	if runErr := s.executor.Execute(ctx, job, model.TriggerManual); runErr != nil {
		msg := runErr.Error()
		return model.TriggerResult{Success: false, Error: &msg}, nil
	}
	return model.TriggerResult{Success: true}, nil
}

// UpdateSchedule replaces the job's cron expression, preserving run history,
// and rebinds the clock if the job was bound. Returns whether a rebind
// happened. Unknown names return NotFound; malformed expressions return a
// Validation error.
func (s *Scheduler) UpdateSchedule(name, newSpec string) (bool, error) {
	job, err := s.registry.UpdateSchedule(name, newSpec)
	if err != nil {
		return false, err
	}

	rebound := s.rebind(job)
	s.logger.Info("job schedule updated", "job", name, "schedule", newSpec, "rebound", rebound)
	return rebound, nil
}

// JobsStatus returns a snapshot of every registered job.
func (s *Scheduler) JobsStatus() []model.JobStatusView {
	jobs := s.registry.List()
	views := make([]model.JobStatusView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.View())
	}
	return views
}

// JobStatus returns a snapshot of one job, or a NotFound error.
func (s *Scheduler) JobStatus(name string) (*model.JobStatusView, error) {
	job, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	view := job.View()
	return &view, nil
}

// bind attaches the job to the clock, arming a timer for the next cron
// occurrence computed from now. Reports whether the binding state changed.
func (s *Scheduler) bind(job *Job) bool {
	job.mu.Lock()
	defer job.mu.Unlock()

	if job.bound {
		return false
	}
	job.bound = true
	s.armLocked(job)
	return true
}

// unbind stops the job's timer. Reports whether the binding state changed.
func (s *Scheduler) unbind(job *Job) bool {
	job.mu.Lock()
	defer job.mu.Unlock()

	if !job.bound {
		return false
	}
	job.bound = false
	if job.timer != nil {
		job.timer.Stop()
		job.timer = nil
	}
	job.nextRun = nil
	return true
}

// rebind re-arms a bound job after a schedule change. A paused job stays
// paused and picks up the new expression on resume.
func (s *Scheduler) rebind(job *Job) bool {
	job.mu.Lock()
	defer job.mu.Unlock()

	if !job.bound {
		return false
	}
	if job.timer != nil {
		job.timer.Stop()
		job.timer = nil
	}
	s.armLocked(job)
	return true
}

// armLocked arms the timer for the next occurrence. Caller holds job.mu.
func (s *Scheduler) armLocked(job *Job) {
	now := s.clock.Now()
	next := job.schedule.Next(now)
	job.nextRun = &next
	job.timer = s.clock.AfterFunc(next.Sub(now), func() {
		s.fire(job)
	})
}

// fire handles one cron firing: re-arm for the following occurrence, then
// dispatch the execution without waiting for it. The scheduler never blocks
// on a task; the executor's completion path flips status back out of running.
func (s *Scheduler) fire(job *Job) {
	job.mu.Lock()
	if !job.bound {
		job.mu.Unlock()
		return
	}
	s.armLocked(job)
	job.mu.Unlock()

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	go func() {
		// Outcome is contained by the executor; ticks do not surface it.
		_ = s.executor.Execute(ctx, job, model.TriggerCron)
	}()
}
