package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booksync/internal/models"
)

var ErrCredentialNotFound = errors.New("calendar credential not found")

// GetCredential returns the owner's credential, or nil when the owner never
// connected a calendar.
func (db *DB) GetCredential(ctx context.Context, ownerID int64) (*models.Credential, error) {
	query := `SELECT id, owner_id, owner_name, calendar_id, calendar_name, access_token, refresh_token,
                     expiry, status, updated_at
              FROM calendar_credentials WHERE owner_id = ?`
	var c models.Credential
	err := db.QueryRowContext(ctx, query, ownerID).Scan(
		&c.ID, &c.OwnerID, &c.OwnerName, &c.CalendarID, &c.CalendarName, &c.AccessToken, &c.RefreshToken,
		&c.Expiry, &c.Status, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential for owner %d: %w", ownerID, err)
	}
	return &c, nil
}

// SaveCredential inserts or replaces the owner's credential.
func (db *DB) SaveCredential(ctx context.Context, c *models.Credential) error {
	query := `INSERT INTO calendar_credentials (
                owner_id, owner_name, calendar_id, calendar_name, access_token, refresh_token, expiry, status, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(owner_id) DO UPDATE SET
                owner_name = excluded.owner_name,
                calendar_id = excluded.calendar_id,
                calendar_name = excluded.calendar_name,
                access_token = excluded.access_token,
                refresh_token = excluded.refresh_token,
                expiry = excluded.expiry,
                status = excluded.status,
                updated_at = excluded.updated_at`
	ts := now()
	var expiry *time.Time
	if c.Expiry != nil {
		e := c.Expiry.UTC()
		expiry = &e
	}
	_, err := db.ExecContext(ctx, query,
		c.OwnerID, c.OwnerName, c.CalendarID, c.CalendarName, c.AccessToken, c.RefreshToken, expiry, c.Status, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential for owner %d: %w", c.OwnerID, err)
	}

	err = db.QueryRowContext(ctx, `SELECT id FROM calendar_credentials WHERE owner_id = ?`, c.OwnerID).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to read credential id: %w", err)
	}
	c.UpdatedAt = ts
	return nil
}

// UpdateCredentialToken stores a refreshed token in one statement. An empty
// refreshToken keeps the stored one.
func (db *DB) UpdateCredentialToken(ctx context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error {
	query := `UPDATE calendar_credentials
              SET access_token = ?,
                  refresh_token = CASE WHEN ? = '' THEN refresh_token ELSE ? END,
                  expiry = ?, updated_at = ?
              WHERE id = ?`
	res, err := db.ExecContext(ctx, query, accessToken, refreshToken, refreshToken, expiry.UTC(), now(), id)
	if err != nil {
		return fmt.Errorf("failed to update credential token: %w", err)
	}
	return expectRow(res, ErrCredentialNotFound)
}

func (db *DB) SetCredentialStatus(ctx context.Context, ownerID int64, status string) error {
	res, err := db.ExecContext(ctx, `UPDATE calendar_credentials SET status = ?, updated_at = ? WHERE owner_id = ?`,
		status, now(), ownerID)
	if err != nil {
		return fmt.Errorf("failed to set credential status: %w", err)
	}
	return expectRow(res, ErrCredentialNotFound)
}

// DisconnectCredential wipes tokens and the calendar id and disables sync
// for the owner.
func (db *DB) DisconnectCredential(ctx context.Context, ownerID int64) error {
	query := `UPDATE calendar_credentials
              SET access_token = '', refresh_token = '', expiry = NULL, calendar_id = '',
                  status = ?, updated_at = ?
              WHERE owner_id = ?`
	res, err := db.ExecContext(ctx, query, models.CredentialDisabled, now(), ownerID)
	if err != nil {
		return fmt.Errorf("failed to disconnect credential: %w", err)
	}
	return expectRow(res, ErrCredentialNotFound)
}

func (db *DB) CountLiveCredentials(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calendar_credentials WHERE status IN (?, ?, ?)`,
		models.CredentialConnected, models.CredentialActive, models.CredentialEnabled).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count live credentials: %w", err)
	}
	return n, nil
}
