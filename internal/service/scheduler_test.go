package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmkonnect/scheduler/internal/data"
	"github.com/farmkonnect/scheduler/internal/domain/model"
	apperrors "github.com/farmkonnect/scheduler/internal/errors"
)

const eventuallyTick = 2 * time.Millisecond

func newTestScheduler(t *testing.T, start time.Time) (*Scheduler, *data.FakeClock) {
	t.Helper()
	clock := data.NewFakeClock(start)
	return NewScheduler(SchedulerOptions{Clock: clock}), clock
}

func TestScheduler_StartAll_ComputesNextRun(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, start)

	require.NoError(t, s.Register("report", "*/5 * * * *", noopTask))

	// Unstarted: no clock binding yet.
	view, err := s.JobStatus("report")
	require.NoError(t, err)
	assert.True(t, view.Paused)
	assert.Nil(t, view.NextRun)

	s.StartAll(context.Background())
	defer s.StopAll()

	view, err = s.JobStatus("report")
	require.NoError(t, err)
	assert.False(t, view.Paused)
	require.NotNil(t, view.NextRun)
	assert.Equal(t, start.Add(5*time.Minute), *view.NextRun)
}

func TestScheduler_TickRunsJob(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s, clock := newTestScheduler(t, start)

	var runs atomic.Int32
	require.NoError(t, s.Register("report", "*/5 * * * *", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.StartAll(context.Background())
	defer s.StopAll()

	clock.Advance(5 * time.Minute)

	// Executions are dispatched asynchronously from the tick.
	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, time.Second, eventuallyTick)

	require.Eventually(t, func() bool {
		view, err := s.JobStatus("report")
		require.NoError(t, err)
		return view.Status == model.JobStatusCompleted
	}, time.Second, eventuallyTick)

	view, err := s.JobStatus("report")
	require.NoError(t, err)
	require.NotNil(t, view.LastRun)
	assert.Equal(t, start.Add(5*time.Minute), *view.LastRun)
	require.NotNil(t, view.NextRun)
	assert.Equal(t, start.Add(10*time.Minute), *view.NextRun)
}

func TestScheduler_OverlappingTickIsSkipped(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s, clock := newTestScheduler(t, start)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register("slow", "* * * * *", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))

	s.StartAll(context.Background())
	defer s.StopAll()

	// First tick starts the long execution.
	clock.Advance(time.Minute)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first tick never started the task")
	}

	// Second tick fires while the first execution is still running: it must
	// be skipped, never queued.
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		view, err := s.JobStatus("slow")
		require.NoError(t, err)
		return view.SkippedRuns == 1
	}, time.Second, eventuallyTick)

	view, err := s.JobStatus("slow")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, view.Status)

	close(release)
	require.Eventually(t, func() bool {
		view, err := s.JobStatus("slow")
		require.NoError(t, err)
		return view.Status == model.JobStatusCompleted
	}, time.Second, eventuallyTick)
}

func TestScheduler_PauseAndResume(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s, clock := newTestScheduler(t, start)

	var runs atomic.Int32
	require.NoError(t, s.Register("report", "*/5 * * * *", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.StartAll(context.Background())
	defer s.StopAll()

	changed, err := s.Pause("report")
	require.NoError(t, err)
	assert.True(t, changed)

	view, err := s.JobStatus("report")
	require.NoError(t, err)
	assert.True(t, view.Paused)
	assert.Nil(t, view.NextRun)

	// Pausing twice is a no-op, not an error.
	changed, err = s.Pause("report")
	require.NoError(t, err)
	assert.False(t, changed)

	// Missed occurrences are not replayed while paused.
	clock.Advance(30 * time.Minute)
	assert.Equal(t, int32(0), runs.Load())

	changed, err = s.Resume("report")
	require.NoError(t, err)
	assert.True(t, changed)

	// Next occurrence is computed from now (12:30), not from the pause point.
	view, err = s.JobStatus("report")
	require.NoError(t, err)
	require.NotNil(t, view.NextRun)
	assert.Equal(t, start.Add(35*time.Minute), *view.NextRun)

	clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, time.Second, eventuallyTick)
}

func TestScheduler_PauseResume_UnknownJob(t *testing.T) {
	s, _ := newTestScheduler(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	_, err := s.Pause("missing")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = s.Resume("missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestScheduler_TriggerNow(t *testing.T) {
	// A daily 09:00 job triggered manually at 14:00 runs immediately; the
	// cron-derived next occurrence stays at the following 09:00.
	start := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, start)

	var runs atomic.Int32
	require.NoError(t, s.Register("daily-report", "0 9 * * *", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	s.StartAll(context.Background())
	defer s.StopAll()

	result, err := s.TriggerNow(context.Background(), "daily-report")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.Error)
	assert.Equal(t, int32(1), runs.Load())

	view, err := s.JobStatus("daily-report")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, view.Status)
	require.NotNil(t, view.LastRun)
	assert.Equal(t, start, *view.LastRun)
	require.NotNil(t, view.NextRun)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), *view.NextRun)
}

func TestScheduler_TriggerNow_TaskFailure(t *testing.T) {
	s, _ := newTestScheduler(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, s.Register("broken", "0 9 * * *", func(ctx context.Context) error {
		return apperrors.Internal("gateway down")
	}))

	result, err := s.TriggerNow(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "gateway down")
}

func TestScheduler_TriggerNow_WhileRunning(t *testing.T) {
	s, _ := newTestScheduler(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, s.Register("busy", "0 9 * * *", noopTask))
	job, err := s.registry.Get("busy")
	require.NoError(t, err)
	require.True(t, job.tryBeginRun())

	result, err := s.TriggerNow(context.Background(), "busy")
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Contains(t, *result.Error, "already running")
}

func TestScheduler_TriggerNow_UnknownJob(t *testing.T) {
	s, _ := newTestScheduler(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	_, err := s.TriggerNow(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestScheduler_UpdateSchedule_Rebinds(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s, clock := newTestScheduler(t, start)

	var runs atomic.Int32
	require.NoError(t, s.Register("report", "0 9 * * *", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	s.StartAll(context.Background())
	defer s.StopAll()

	rebound, err := s.UpdateSchedule("report", "*/15 * * * *")
	require.NoError(t, err)
	assert.True(t, rebound)

	view, err := s.JobStatus("report")
	require.NoError(t, err)
	assert.Equal(t, "*/15 * * * *", view.Schedule)
	require.NotNil(t, view.NextRun)
	assert.Equal(t, start.Add(15*time.Minute), *view.NextRun)

	clock.Advance(15 * time.Minute)
	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, time.Second, eventuallyTick)
}

func TestScheduler_UpdateSchedule_PausedStaysPaused(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, start)

	require.NoError(t, s.Register("report", "0 9 * * *", noopTask))
	s.StartAll(context.Background())
	defer s.StopAll()

	_, err := s.Pause("report")
	require.NoError(t, err)

	rebound, err := s.UpdateSchedule("report", "*/15 * * * *")
	require.NoError(t, err)
	assert.False(t, rebound)

	view, err := s.JobStatus("report")
	require.NoError(t, err)
	assert.True(t, view.Paused)
	assert.Equal(t, "*/15 * * * *", view.Schedule)
	assert.Nil(t, view.NextRun)
}

func TestScheduler_StopAll(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s, clock := newTestScheduler(t, start)

	var runs atomic.Int32
	require.NoError(t, s.Register("report", "*/5 * * * *", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	s.StartAll(context.Background())
	s.StopAll()

	clock.Advance(time.Hour)
	assert.Equal(t, int32(0), runs.Load())
	assert.Zero(t, clock.PendingTimers())

	view, err := s.JobStatus("report")
	require.NoError(t, err)
	assert.True(t, view.Paused)
	assert.Nil(t, view.NextRun)
}

func TestScheduler_RegisterAfterStart_BindsImmediately(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s, clock := newTestScheduler(t, start)

	s.StartAll(context.Background())
	defer s.StopAll()

	var runs atomic.Int32
	require.NoError(t, s.Register("late", "*/5 * * * *", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	view, err := s.JobStatus("late")
	require.NoError(t, err)
	assert.False(t, view.Paused)
	require.NotNil(t, view.NextRun)

	clock.Advance(5 * time.Minute)
	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, time.Second, eventuallyTick)
}

func TestScheduler_JobsStatus(t *testing.T) {
	s, _ := newTestScheduler(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, s.Register("a", "* * * * *", noopTask))
	require.NoError(t, s.Register("b", "*/5 * * * *", noopTask))

	views := s.JobsStatus()
	assert.Len(t, views, 2)

	names := map[string]bool{}
	for _, v := range views {
		names[v.Name] = true
	}
	assert.True(t, names["a"])
	assert.True(t, names["b"])
}
