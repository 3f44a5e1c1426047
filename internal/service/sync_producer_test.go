package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"booksync/internal/database"
	"booksync/internal/domain"
	"booksync/internal/events"
	"booksync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, hint models.WakeHint) error {
	return m.Called(ctx, hint).Error(0)
}

func countRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func newProducer(t *testing.T, status string, notifier *mockNotifier, enabled bool) (*SyncProducer, *database.DB) {
	t.Helper()
	db := newTestDB(t)
	logger := zerolog.Nop()
	creds := NewCredentialStore(db, nil, 0, nil, &logger)
	if status != "" {
		seedCredential(t, creds, status, time.Now().Add(time.Hour))
	}
	var n domain.WakeNotifier
	if notifier != nil {
		n = notifier
	}
	return NewSyncProducer(db, creds, n, enabled, nil, &logger), db
}

func TestSyncProducer_Enqueue(t *testing.T) {
	ctx := context.Background()
	bookingID := int64(5)
	payload := models.SyncPayload{BookingID: 5, ServiceName: "Cut"}

	t.Run("LiveOwner", func(t *testing.T) {
		notifier := &mockNotifier{}
		notifier.On("Notify", mock.Anything, mock.MatchedBy(func(h models.WakeHint) bool {
			return h.OwnerID == 7 && h.EventType == models.SyncEventCreated && *h.BookingID == 5
		})).Return(nil).Once()

		p, db := newProducer(t, models.CredentialConnected, notifier, true)
		p.Enqueue(ctx, models.SyncEventCreated, &bookingID, 7, payload)
		p.Wait()

		tasks, err := db.GetPendingSyncTasks(ctx, 10, 7)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, models.SyncStatusPending, tasks[0].Status)
		assert.Zero(t, tasks[0].Attempts)
		var stored models.SyncPayload
		require.NoError(t, json.Unmarshal([]byte(tasks[0].Payload), &stored))
		assert.Equal(t, int64(5), stored.BookingID)
		assert.Equal(t, "Cut", stored.ServiceName)

		hints, err := db.CountUnprocessedWakeHints(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, 1, hints)
		notifier.AssertExpectations(t)
	})

	t.Run("NoLiveCredentialIsSilent", func(t *testing.T) {
		for _, status := range []string{"", models.CredentialDisconnected, models.CredentialDisabled, models.CredentialError} {
			notifier := &mockNotifier{}
			p, db := newProducer(t, status, notifier, true)
			p.Enqueue(ctx, models.SyncEventUpdated, &bookingID, 7, payload)

			assert.Zero(t, countRows(t, db, "calendar_sync_queue"), status)
			assert.Zero(t, countRows(t, db, "calendar_wake_hints"), status)
			notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
		}
	})

	t.Run("IntegrationDisabled", func(t *testing.T) {
		p, db := newProducer(t, models.CredentialConnected, nil, false)
		p.Enqueue(ctx, models.SyncEventCreated, &bookingID, 7, payload)
		assert.Zero(t, countRows(t, db, "calendar_sync_queue"))
	})

	t.Run("NotifierFailureStillQueues", func(t *testing.T) {
		notifier := &mockNotifier{}
		notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("redis down"))
		p, db := newProducer(t, models.CredentialActive, notifier, true)
		p.Enqueue(ctx, models.SyncEventDeleted, nil, 7, payload)
		p.Wait()

		assert.Equal(t, 1, countRows(t, db, "calendar_sync_queue"))
		notifier.AssertExpectations(t)
	})

	t.Run("StalledNotifierDoesNotBlock", func(t *testing.T) {
		stalled := &stalledNotifier{done: make(chan time.Duration, 1)}
		db := newTestDB(t)
		logger := zerolog.Nop()
		creds := NewCredentialStore(db, nil, 0, nil, &logger)
		seedCredential(t, creds, models.CredentialConnected, time.Now().Add(time.Hour))
		p := NewSyncProducer(db, creds, stalled, true, nil, &logger)

		reqCtx, cancel := context.WithCancel(ctx)
		started := time.Now()
		p.Enqueue(reqCtx, models.SyncEventCreated, &bookingID, 7, payload)
		cancel()
		assert.Less(t, time.Since(started), 500*time.Millisecond)
		assert.Equal(t, 1, countRows(t, db, "calendar_sync_queue"))

		p.Wait()
		select {
		case left := <-stalled.done:
			assert.Positive(t, left, "signal context must outlive the cancelled request")
		default:
			t.Fatal("notifier was not called")
		}
	})

	t.Run("StoreFailureIsSwallowed", func(t *testing.T) {
		p, db := newProducer(t, models.CredentialActive, nil, true)
		require.NoError(t, db.Close())
		assert.NotPanics(t, func() {
			p.Enqueue(ctx, models.SyncEventCreated, &bookingID, 7, payload)
		})
	})

	t.Run("UnknownEventType", func(t *testing.T) {
		p, db := newProducer(t, models.CredentialActive, nil, true)
		p.Enqueue(ctx, "moved", &bookingID, 7, payload)
		assert.Zero(t, countRows(t, db, "calendar_sync_queue"))
	})
}

// stalledNotifier blocks like a Redis server that accepts but never replies.
type stalledNotifier struct {
	done chan time.Duration
}

func (s *stalledNotifier) Notify(ctx context.Context, _ models.WakeHint) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		s.done <- 0
		return errors.New("no deadline")
	}
	s.done <- time.Until(deadline)
	<-ctx.Done()
	return ctx.Err()
}

type recordingFanout struct {
	eventType string
	data      events.BookingData
	calls     int
}

func (r *recordingFanout) Publish(_ context.Context, eventType string, data events.BookingData) {
	r.eventType = eventType
	r.data = data
	r.calls++
}

func TestChangeNotifier_BookingChanged(t *testing.T) {
	ctx := context.Background()
	p, db := newProducer(t, models.CredentialConnected, nil, true)
	fanout := &recordingFanout{}
	logger := zerolog.Nop()
	n := NewChangeNotifier(p, fanout, &logger)

	b := newTestBooking(t, db)
	n.BookingChanged(ctx, models.SyncEventUpdated, b)

	tasks, err := db.GetPendingSyncTasks(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, b.SpecialistID, tasks[0].OwnerID)
	assert.Equal(t, b.ID, *tasks[0].BookingID)

	assert.Equal(t, 1, fanout.calls)
	assert.Equal(t, models.SyncEventUpdated, fanout.eventType)
	assert.Equal(t, int64(3), fanout.data.WorkingPointID)

	n.BookingChanged(ctx, "moved", b)
	n.BookingChanged(ctx, models.SyncEventCreated, nil)
	assert.Equal(t, 1, fanout.calls)

	assert.NotPanics(t, func() {
		NewChangeNotifier(nil, nil, nil).BookingChanged(ctx, models.SyncEventDeleted, b)
	})
}
