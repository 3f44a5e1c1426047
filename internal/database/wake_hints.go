package database

import (
	"context"
	"fmt"
	"time"

	"booksync/internal/models"
)

func (db *DB) CreateWakeHint(ctx context.Context, hint *models.WakeHint) error {
	ts := now()
	res, err := db.ExecContext(ctx, `INSERT INTO calendar_wake_hints (owner_id, booking_id, event_type, processed, created_at)
              VALUES (?, ?, ?, 0, ?)`, hint.OwnerID, hint.BookingID, hint.EventType, ts)
	if err != nil {
		return fmt.Errorf("failed to create wake hint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	hint.ID = id
	hint.CreatedAt = ts
	return nil
}

// CountUnprocessedWakeHints counts hints not yet consumed. ownerID 0 means
// every owner.
func (db *DB) CountUnprocessedWakeHints(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calendar_wake_hints
              WHERE processed = 0 AND (? = 0 OR owner_id = ?)`, ownerID, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count wake hints: %w", err)
	}
	return n, nil
}

func (db *DB) MarkWakeHintsProcessed(ctx context.Context, ownerID int64) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE calendar_wake_hints SET processed = 1
              WHERE processed = 0 AND (? = 0 OR owner_id = ?)`, ownerID, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark wake hints processed: %w", err)
	}
	return res.RowsAffected()
}

// PruneWakeHints drops processed hints older than processedBefore and any
// hint older than before.
func (db *DB) PruneWakeHints(ctx context.Context, processedBefore, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM calendar_wake_hints
              WHERE (processed = 1 AND created_at < ?) OR created_at < ?`, processedBefore.UTC(), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune wake hints: %w", err)
	}
	return res.RowsAffected()
}
