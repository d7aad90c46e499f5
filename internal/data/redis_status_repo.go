package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/farmkonnect/scheduler/internal/domain/model"
)

const (
	// jobStatusKey is where the latest scheduler snapshot lives. The web tier
	// reads it to render the jobs dashboard without reaching into this process.
	jobStatusKey = "farmkonnect:scheduler:job_status"

	// jobStatusTTL bounds staleness if the scheduler process dies; the web
	// tier treats a missing key as "scheduler offline".
	jobStatusTTL = 5 * time.Minute
)

// RedisStatusRepo mirrors scheduler job state into Redis as a JSON document.
type RedisStatusRepo struct {
	client redis.UniversalClient
	clock  Clock
}

// NewRedisStatusRepo creates a new RedisStatusRepo with the given Redis client.
func NewRedisStatusRepo(client redis.UniversalClient) *RedisStatusRepo {
	return &RedisStatusRepo{client: client, clock: RealClock{}}
}

// NewRedisStatusRepoWithClock creates a RedisStatusRepo with a custom Clock (useful for testing).
func NewRedisStatusRepoWithClock(client redis.UniversalClient, clock Clock) *RedisStatusRepo {
	return &RedisStatusRepo{client: client, clock: clock}
}

// statusSnapshot is the wire format written to Redis.
type statusSnapshot struct {
	PublishedAt time.Time             `json:"published_at"`
	Jobs        []model.JobStatusView `json:"jobs"`
}

// PublishJobStatuses overwrites the snapshot with the given job views.
func (r *RedisStatusRepo) PublishJobStatuses(ctx context.Context, views []model.JobStatusView) error {
	snapshot := statusSnapshot{
		PublishedAt: r.clock.Now().UTC(),
		Jobs:        views,
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode job status snapshot: %w", err)
	}

	if err := r.client.Set(ctx, jobStatusKey, body, jobStatusTTL).Err(); err != nil {
		return fmt.Errorf("redis set job status: %w", err)
	}
	return nil
}

// ReadJobStatuses returns the last published snapshot, or nil when absent or
// expired.
func (r *RedisStatusRepo) ReadJobStatuses(ctx context.Context) ([]model.JobStatusView, error) {
	body, err := r.client.Get(ctx, jobStatusKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get job status: %w", err)
	}

	var snapshot statusSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("decode job status snapshot: %w", err)
	}
	return snapshot.Jobs, nil
}

// Health checks the health of the Redis connection.
func (r *RedisStatusRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
