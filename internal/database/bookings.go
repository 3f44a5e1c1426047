package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booksync/internal/models"
)

var ErrBookingNotFound = errors.New("booking not found")

const bookingColumns = `id, specialist_id, working_point_id, service_id, service_name, client_full_name,
        client_phone, start_at, end_at, received_through, country, status, google_event_id, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.SpecialistID, &b.WorkingPointID, &b.ServiceID, &b.ServiceName, &b.ClientFullName,
		&b.ClientPhone, &b.Start, &b.End, &b.ReceivedThrough, &b.Country, &b.Status, &b.GoogleEventID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				specialist_id, working_point_id, service_id, service_name, client_full_name, client_phone,
				start_at, end_at, received_through, country, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	ts := now()
	if booking.Status == "" {
		booking.Status = models.BookingStatusActive
	}
	result, err := db.ExecContext(ctx, query,
		booking.SpecialistID,
		booking.WorkingPointID,
		booking.ServiceID,
		booking.ServiceName,
		booking.ClientFullName,
		booking.ClientPhone,
		booking.Start,
		booking.End,
		booking.ReceivedThrough,
		booking.Country,
		booking.Status,
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = ts
	booking.UpdatedAt = ts
	return nil
}

// UpsertBooking stores a booking pushed by the booking application. The
// event binding is never overwritten here; only the sync manager moves it.
func (db *DB) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking.ID == 0 {
		return db.CreateBooking(ctx, booking)
	}
	if booking.Status == "" {
		booking.Status = models.BookingStatusActive
	}
	ts := now()
	createdAt := booking.CreatedAt
	if createdAt.IsZero() {
		createdAt = ts
	}

	query := `INSERT INTO bookings (
				id, specialist_id, working_point_id, service_id, service_name, client_full_name, client_phone,
				start_at, end_at, received_through, country, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				specialist_id = excluded.specialist_id,
				working_point_id = excluded.working_point_id,
				service_id = excluded.service_id,
				service_name = excluded.service_name,
				client_full_name = excluded.client_full_name,
				client_phone = excluded.client_phone,
				start_at = excluded.start_at,
				end_at = excluded.end_at,
				received_through = excluded.received_through,
				country = excluded.country,
				status = excluded.status,
				updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query,
		booking.ID,
		booking.SpecialistID,
		booking.WorkingPointID,
		booking.ServiceID,
		booking.ServiceName,
		booking.ClientFullName,
		booking.ClientPhone,
		booking.Start,
		booking.End,
		booking.ReceivedThrough,
		booking.Country,
		booking.Status,
		createdAt,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert booking %d: %w", booking.ID, err)
	}

	stored, err := db.GetBooking(ctx, booking.ID)
	if err != nil {
		return err
	}
	*booking = *stored
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %d: %w", id, err)
	}
	return b, nil
}

// CancelBooking soft-deletes a booking so its binding stays resolvable for
// the pending delete task.
func (db *DB) CancelBooking(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		models.BookingStatusCancelled, now(), id)
	if err != nil {
		return fmt.Errorf("failed to cancel booking %d: %w", id, err)
	}
	return expectRow(res, ErrBookingNotFound)
}

// GetEventID returns the remote event bound to the booking, or "" when the
// booking is unbound.
func (db *DB) GetEventID(ctx context.Context, bookingID int64) (string, error) {
	var eventID sql.NullString
	err := db.QueryRowContext(ctx, `SELECT google_event_id FROM bookings WHERE id = ?`, bookingID).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrBookingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get event id for booking %d: %w", bookingID, err)
	}
	return eventID.String, nil
}

// GetBookingStatus returns the booking's lifecycle status.
func (db *DB) GetBookingStatus(ctx context.Context, bookingID int64) (string, error) {
	var status string
	err := db.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, bookingID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrBookingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get status for booking %d: %w", bookingID, err)
	}
	return status, nil
}

func (db *DB) SetEventID(ctx context.Context, bookingID int64, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("empty event id for booking %d", bookingID)
	}
	res, err := db.ExecContext(ctx, `UPDATE bookings SET google_event_id = ?, updated_at = ? WHERE id = ?`,
		eventID, now(), bookingID)
	if err != nil {
		return fmt.Errorf("failed to set event id for booking %d: %w", bookingID, err)
	}
	return expectRow(res, ErrBookingNotFound)
}

// ClearEventID unbinds the booking. Clearing a missing booking is a no-op.
func (db *DB) ClearEventID(ctx context.Context, bookingID int64) error {
	_, err := db.ExecContext(ctx, `UPDATE bookings SET google_event_id = NULL, updated_at = ? WHERE id = ?`,
		now(), bookingID)
	if err != nil {
		return fmt.Errorf("failed to clear event id for booking %d: %w", bookingID, err)
	}
	return nil
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
