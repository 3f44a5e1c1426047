package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booksync/internal/models"
)

// ErrTaskAlreadyClaimed means another worker won the claim or the task is no
// longer pending.
var ErrTaskAlreadyClaimed = errors.New("sync task already claimed")

var ErrTaskNotFound = errors.New("sync task not found")

const syncTaskColumns = `id, event_type, booking_id, owner_id, payload, status, attempts, last_error, claimed_by,
        next_retry_at, created_at, updated_at`

func scanSyncTask(row interface{ Scan(...any) error }) (*models.SyncTask, error) {
	var t models.SyncTask
	err := row.Scan(
		&t.ID, &t.EventType, &t.BookingID, &t.OwnerID, &t.Payload, &t.Status, &t.Attempts, &t.LastError,
		&t.ClaimedBy, &t.NextRetryAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	query := `INSERT INTO calendar_sync_queue (event_type, booking_id, owner_id, payload, status, attempts, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, 0, ?, ?)`
	ts := now()
	if task.Status == "" {
		task.Status = models.SyncStatusPending
	}
	result, err := db.ExecContext(ctx, query,
		task.EventType,
		task.BookingID,
		task.OwnerID,
		task.Payload,
		task.Status,
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.Attempts = 0
	task.CreatedAt = ts
	task.UpdatedAt = ts
	return nil
}

func (db *DB) GetSyncTask(ctx context.Context, id int64) (*models.SyncTask, error) {
	t, err := scanSyncTask(db.QueryRowContext(ctx, `SELECT `+syncTaskColumns+` FROM calendar_sync_queue WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get sync task %d: %w", id, err)
	}
	return t, nil
}

// GetPendingSyncTasks lists due pending tasks, oldest first. ownerID 0 means
// every owner.
func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int, ownerID int64) ([]models.SyncTask, error) {
	query := `SELECT ` + syncTaskColumns + `
              FROM calendar_sync_queue
              WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?) AND (? = 0 OR owner_id = ?)
              ORDER BY created_at ASC, id ASC LIMIT ?`
	return db.querySyncTasks(ctx, query, models.SyncStatusPending, now(), ownerID, ownerID, limit)
}

func (db *DB) GetFailedSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	query := `SELECT ` + syncTaskColumns + `
              FROM calendar_sync_queue WHERE status = ? ORDER BY updated_at DESC, id DESC LIMIT ?`
	return db.querySyncTasks(ctx, query, models.SyncStatusFailed, limit)
}

func (db *DB) querySyncTasks(ctx context.Context, query string, args ...any) ([]models.SyncTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		t, err := scanSyncTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// ClaimSyncTask moves a pending task to processing and bumps attempts. The
// conditional UPDATE is the only exclusivity guarantee between workers.
func (db *DB) ClaimSyncTask(ctx context.Context, id int64, workerID string) (*models.SyncTask, error) {
	var claimed *models.SyncTask
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE calendar_sync_queue
              SET status = ?, attempts = attempts + 1, claimed_by = ?, updated_at = ?
              WHERE id = ? AND status = ?`,
			models.SyncStatusProcessing, workerID, now(), id, models.SyncStatusPending)
		if err != nil {
			return fmt.Errorf("failed to claim sync task %d: %w", id, err)
		}
		if err := expectRow(res, ErrTaskAlreadyClaimed); err != nil {
			return err
		}

		claimed, err = scanSyncTask(tx.QueryRowContext(ctx,
			`SELECT `+syncTaskColumns+` FROM calendar_sync_queue WHERE id = ?`, id))
		if err != nil {
			return fmt.Errorf("failed to read claimed task %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (db *DB) CompleteSyncTask(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE calendar_sync_queue
              SET status = ?, last_error = NULL, next_retry_at = NULL, updated_at = ?
              WHERE id = ? AND status = ?`,
		models.SyncStatusDone, now(), id, models.SyncStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete sync task %d: %w", id, err)
	}
	return expectRow(res, ErrTaskNotFound)
}

// RetrySyncTask returns a processing task to pending, due at nextRetryAt.
func (db *DB) RetrySyncTask(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE calendar_sync_queue
              SET status = ?, last_error = ?, next_retry_at = ?, claimed_by = NULL, updated_at = ?
              WHERE id = ? AND status = ?`,
		models.SyncStatusPending, errMsg, nextRetryAt.UTC(), now(), id, models.SyncStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to reschedule sync task %d: %w", id, err)
	}
	return expectRow(res, ErrTaskNotFound)
}

func (db *DB) FailSyncTask(ctx context.Context, id int64, errMsg string) error {
	res, err := db.ExecContext(ctx, `UPDATE calendar_sync_queue
              SET status = ?, last_error = ?, next_retry_at = NULL, updated_at = ?
              WHERE id = ? AND status = ?`,
		models.SyncStatusFailed, errMsg, now(), id, models.SyncStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark sync task %d failed: %w", id, err)
	}
	return expectRow(res, ErrTaskNotFound)
}

// RequeueStaleSyncTasks releases tasks stuck in processing since before
// olderThan, e.g. after a worker crash.
func (db *DB) RequeueStaleSyncTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE calendar_sync_queue
              SET status = ?, claimed_by = NULL, updated_at = ?
              WHERE status = ? AND updated_at < ?`,
		models.SyncStatusPending, now(), models.SyncStatusProcessing, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale sync tasks: %w", err)
	}
	return res.RowsAffected()
}

// PruneSyncTasks deletes finished tasks created before the cutoff. Pending
// and processing tasks are kept regardless of age.
func (db *DB) PruneSyncTasks(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM calendar_sync_queue WHERE created_at < ? AND status IN (?, ?)`,
		before.UTC(), models.SyncStatusDone, models.SyncStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sync tasks: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) SyncQueueStats(ctx context.Context) (models.SyncQueueStats, error) {
	var stats models.SyncQueueStats
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM calendar_sync_queue GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("failed to get sync queue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("failed to scan sync queue stats: %w", err)
		}
		switch status {
		case models.SyncStatusPending:
			stats.Pending = n
		case models.SyncStatusProcessing:
			stats.Processing = n
		case models.SyncStatusDone:
			stats.Done = n
		case models.SyncStatusFailed:
			stats.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if stats.PendingHints, err = db.CountUnprocessedWakeHints(ctx, 0); err != nil {
		return stats, err
	}
	if stats.LiveCredentials, err = db.CountLiveCredentials(ctx); err != nil {
		return stats, err
	}
	return stats, nil
}
