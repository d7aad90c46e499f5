package data

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmkonnect/scheduler/internal/domain/model"
)

func newTestStatusRepo(t *testing.T) (*RedisStatusRepo, *miniredis.Miniredis, *FakeClock) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("close redis client: %v", err)
		}
	})

	clock := NewFakeClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewRedisStatusRepoWithClock(client, clock), srv, clock
}

func TestRedisStatusRepo_PublishAndRead(t *testing.T) {
	repo, _, clock := newTestStatusRepo(t)
	ctx := context.Background()

	next := clock.Now().Add(5 * time.Minute)
	views := []model.JobStatusView{
		{
			Name:     "daily-report",
			Schedule: "0 9 * * *",
			Status:   model.JobStatusCompleted,
			NextRun:  &next,
		},
		{
			Name:     "notification-retry-sweep",
			Schedule: "*/5 * * * *",
			Status:   model.JobStatusIdle,
			Paused:   true,
		},
	}

	require.NoError(t, repo.PublishJobStatuses(ctx, views))

	got, err := repo.ReadJobStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "daily-report", got[0].Name)
	assert.Equal(t, model.JobStatusCompleted, got[0].Status)
	require.NotNil(t, got[0].NextRun)
	assert.True(t, got[0].NextRun.Equal(next))
	assert.True(t, got[1].Paused)
}

func TestRedisStatusRepo_PublishOverwrites(t *testing.T) {
	repo, _, _ := newTestStatusRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.PublishJobStatuses(ctx, []model.JobStatusView{{Name: "a"}}))
	require.NoError(t, repo.PublishJobStatuses(ctx, []model.JobStatusView{{Name: "b"}}))

	got, err := repo.ReadJobStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)
}

func TestRedisStatusRepo_Read_MissingKey(t *testing.T) {
	repo, _, _ := newTestStatusRepo(t)

	got, err := repo.ReadJobStatuses(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStatusRepo_SnapshotExpires(t *testing.T) {
	repo, srv, _ := newTestStatusRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.PublishJobStatuses(ctx, []model.JobStatusView{{Name: "a"}}))

	// A stale snapshot disappears rather than lying about scheduler state.
	srv.FastForward(6 * time.Minute)

	got, err := repo.ReadJobStatuses(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStatusRepo_Health(t *testing.T) {
	repo, srv, _ := newTestStatusRepo(t)

	require.NoError(t, repo.Health(context.Background()))

	srv.Close()
	assert.Error(t, repo.Health(context.Background()))
}
