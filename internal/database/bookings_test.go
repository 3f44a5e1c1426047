package database

import (
	"context"
	"os"
	"testing"
	"time"

	"booksync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	return db
}

func newTestBooking() *models.Booking {
	serviceID := int64(4)
	return &models.Booking{
		SpecialistID:    7,
		WorkingPointID:  3,
		ServiceID:       &serviceID,
		ServiceName:     "Haircut",
		ClientFullName:  "Jane Doe",
		ClientPhone:     "+44 20 7946 0000",
		Start:           time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		End:             time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC),
		ReceivedThrough: "web",
		Country:         "GB",
	}
}

func TestBookingCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newTestBooking()
	require.NoError(t, db.CreateBooking(ctx, b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, models.BookingStatusActive, b.Status)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Haircut", got.ServiceName)
	assert.Equal(t, int64(4), *got.ServiceID)
	assert.True(t, b.Start.Equal(got.Start))
	assert.Nil(t, got.GoogleEventID)

	require.NoError(t, db.CancelBooking(ctx, b.ID))
	got, err = db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)

	_, err = db.GetBooking(ctx, 9999)
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.ErrorIs(t, db.CancelBooking(ctx, 9999), ErrBookingNotFound)
}

func TestUpsertBooking_KeepsBinding(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newTestBooking()
	b.ID = 120
	require.NoError(t, db.UpsertBooking(ctx, b))
	require.NoError(t, db.SetEventID(ctx, 120, "evt_1"))

	b.ServiceName = "Colouring"
	b.GoogleEventID = nil
	require.NoError(t, db.UpsertBooking(ctx, b))

	assert.Equal(t, "Colouring", b.ServiceName)
	require.NotNil(t, b.GoogleEventID)
	assert.Equal(t, "evt_1", *b.GoogleEventID)
}

func TestEventBinding(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newTestBooking()
	require.NoError(t, db.CreateBooking(ctx, b))

	id, err := db.GetEventID(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, db.SetEventID(ctx, b.ID, "evt_123"))
	id, err = db.GetEventID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", id)

	require.NoError(t, db.ClearEventID(ctx, b.ID))
	id, err = db.GetEventID(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, id)

	assert.Error(t, db.SetEventID(ctx, b.ID, ""))
	assert.ErrorIs(t, db.SetEventID(ctx, 9999, "evt"), ErrBookingNotFound)
	_, err = db.GetEventID(ctx, 9999)
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.NoError(t, db.ClearEventID(ctx, 9999))
}

func TestGetBookingStatus(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	b := newTestBooking()
	require.NoError(t, db.CreateBooking(ctx, b))

	status, err := db.GetBookingStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusActive, status)

	require.NoError(t, db.CancelBooking(ctx, b.ID))
	status, err = db.GetBookingStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, status)

	_, err = db.GetBookingStatus(ctx, 9999)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}
