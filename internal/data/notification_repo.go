package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/farmkonnect/scheduler/internal/domain/model"
	apperrors "github.com/farmkonnect/scheduler/internal/errors"
)

// NotificationRepo is the PostgreSQL-backed retry queue for failed
// notifications. Rows are created by the platform's send path and mutated by
// the retry coordinator; this subsystem never deletes them.
type NotificationRepo struct {
	DB    *sql.DB
	clock Clock
}

// NewNotificationRepo creates a new NotificationRepo instance with the given database connection.
func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{DB: db, clock: RealClock{}}
}

// NewNotificationRepoWithClock creates a NotificationRepo with a custom Clock (useful for testing).
func NewNotificationRepoWithClock(db *sql.DB, clock Clock) *NotificationRepo {
	return &NotificationRepo{DB: db, clock: clock}
}

const notificationColumns = `
  id,
  channel,
  payload,
  status,
  attempt_count,
  next_attempt_at,
  last_error,
  created_at,
  updated_at
`

// Enqueue records a notification whose initial delivery already failed once.
func (r *NotificationRepo) Enqueue(
	ctx context.Context,
	params model.EnqueueNotificationParams,
) (*model.Notification, error) {
	if len(params.Payload) == 0 {
		return nil, apperrors.Validation("notification payload is required")
	}

	now := r.clock.Now().UTC()
	id := uuid.New().String()

	query := `
		INSERT INTO notifications
			(id, channel, payload, status, attempt_count, next_attempt_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 1, $4, NULLIF($5, ''), $6, $6)
		RETURNING ` + notificationColumns

	row := r.DB.QueryRowContext(ctx, query,
		id, params.Channel, []byte(params.Payload), params.NextAttemptAt.UTC(), params.LastError, now)

	n, err := scanNotification(row)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return n, nil
}

// FindDue returns pending/retrying notifications whose next attempt time has
// arrived, oldest first. The scheduler runs a single coordinator instance, so
// no cross-process row locking is needed here.
func (r *NotificationRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status IN ('pending', 'retrying')
		  AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC, created_at ASC
		LIMIT $2
	`

	// Use pgx via the stdlib bridge to leverage pgx v5 row collection helpers.
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	defer func() {
		// Closing the acquired *sql.Conn returns it to the pool; it does not
		// close the shared *sql.DB.
		_ = conn.Close()
	}()

	var due []model.Notification
	err = conn.Raw(func(dc any) error {
		stdConn, ok := dc.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type: %T", dc)
		}
		rows, queryErr := stdConn.Conn().Query(ctx, query, now.UTC(), limit)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		collected, collectErr := pgx.CollectRows(rows, rowToNotification)
		if collectErr != nil {
			return collectErr
		}
		due = collected
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return due, nil
}

// MarkDelivered moves a notification into its delivered terminal state.
// Rows already in a terminal state are left untouched and reported NotFound.
func (r *NotificationRepo) MarkDelivered(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE notifications
		SET status = 'delivered', last_error = NULL, updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'retrying')
	`
	return r.execExpectingRow(ctx, id, query, now.UTC())
}

// ScheduleRetry records a failed attempt and the next attempt time.
func (r *NotificationRepo) ScheduleRetry(ctx context.Context, params model.ScheduleRetryParams) error {
	query := `
		UPDATE notifications
		SET status = 'retrying',
		    attempt_count = $2,
		    next_attempt_at = $3,
		    last_error = NULLIF($4, ''),
		    updated_at = $5
		WHERE id = $1 AND status IN ('pending', 'retrying')
	`
	return r.execExpectingRow(ctx, params.ID, query,
		params.AttemptCount, params.NextAttemptAt.UTC(), params.LastError, r.clock.Now().UTC())
}

// MarkExhausted moves a notification into its exhausted terminal state.
func (r *NotificationRepo) MarkExhausted(ctx context.Context, id string, attemptCount int, lastError string) error {
	query := `
		UPDATE notifications
		SET status = 'exhausted',
		    attempt_count = $2,
		    last_error = NULLIF($3, ''),
		    updated_at = $4
		WHERE id = $1 AND status IN ('pending', 'retrying')
	`
	return r.execExpectingRow(ctx, id, query, attemptCount, lastError, r.clock.Now().UTC())
}

// Counts aggregates all rows that ever entered the retry path (everything
// past pending) for the statistics API.
func (r *NotificationRepo) Counts(ctx context.Context) (model.RetryCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status <> 'pending'),
			COALESCE(SUM(attempt_count) FILTER (WHERE status <> 'pending'), 0),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'exhausted')
		FROM notifications
	`

	var counts model.RetryCounts
	err := r.DB.QueryRowContext(ctx, query).Scan(
		&counts.TotalFailed,
		&counts.TotalAttempts,
		&counts.Delivered,
		&counts.Exhausted,
	)
	if err != nil {
		return model.RetryCounts{}, apperrors.MapDBError(err)
	}
	return counts, nil
}

// GetByID fetches a single notification row.
func (r *NotificationRepo) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return n, nil
}

// execExpectingRow runs an update that must touch exactly one live row.
func (r *NotificationRepo) execExpectingRow(
	ctx context.Context,
	id string,
	query string,
	args ...any,
) error {
	res, err := r.DB.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFoundf("notification %q not found or already terminal", id)
	}
	return nil
}

func rowToNotification(row pgx.CollectableRow) (model.Notification, error) {
	var n model.Notification
	err := row.Scan(
		&n.ID,
		&n.Channel,
		&n.Payload,
		&n.Status,
		&n.AttemptCount,
		&n.NextAttemptAt,
		&n.LastError,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	return n, err
}

func scanNotification(row *sql.Row) (*model.Notification, error) {
	var n model.Notification
	var payload []byte
	err := row.Scan(
		&n.ID,
		&n.Channel,
		&payload,
		&n.Status,
		&n.AttemptCount,
		&n.NextAttemptAt,
		&n.LastError,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Payload = payload
	return &n, nil
}
