package domain

import (
	"context"
	"time"

	"booksync/internal/events"
	"booksync/internal/google"
	"booksync/internal/models"

	"golang.org/x/oauth2"
)

// BindingStore tracks which remote event mirrors a booking.
type BindingStore interface {
	GetBookingStatus(ctx context.Context, bookingID int64) (string, error)
	GetEventID(ctx context.Context, bookingID int64) (string, error)
	SetEventID(ctx context.Context, bookingID int64, eventID string) error
	ClearEventID(ctx context.Context, bookingID int64) error
}

type CredentialRepository interface {
	GetCredential(ctx context.Context, ownerID int64) (*models.Credential, error)
	SaveCredential(ctx context.Context, c *models.Credential) error
	UpdateCredentialToken(ctx context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error
	SetCredentialStatus(ctx context.Context, ownerID int64, status string) error
	DisconnectCredential(ctx context.Context, ownerID int64) error
	CountLiveCredentials(ctx context.Context) (int, error)
}

type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// CalendarAPI is the remote calendar as seen by the sync manager.
type CalendarAPI interface {
	CreateEvent(ctx context.Context, cred *models.Credential, payload google.EventPayload) (*google.CallResult, error)
	UpdateEvent(ctx context.Context, cred *models.Credential, eventID string, payload google.EventPayload) (*google.CallResult, error)
	DeleteEvent(ctx context.Context, cred *models.Credential, eventID string) (*google.CallResult, error)
}

// SyncQueueWriter is the producer side of the durable queue.
type SyncQueueWriter interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	CreateWakeHint(ctx context.Context, hint *models.WakeHint) error
}

// SyncQueue is the consumer side of the durable queue.
type SyncQueue interface {
	GetPendingSyncTasks(ctx context.Context, limit int, ownerID int64) ([]models.SyncTask, error)
	ClaimSyncTask(ctx context.Context, id int64, workerID string) (*models.SyncTask, error)
	CompleteSyncTask(ctx context.Context, id int64) error
	RetrySyncTask(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error
	FailSyncTask(ctx context.Context, id int64, errMsg string) error
	RequeueStaleSyncTasks(ctx context.Context, olderThan time.Time) (int64, error)
	CountUnprocessedWakeHints(ctx context.Context, ownerID int64) (int, error)
	MarkWakeHintsProcessed(ctx context.Context, ownerID int64) (int64, error)
}

// WakeNotifier raises the advisory "work available" signal.
type WakeNotifier interface {
	Notify(ctx context.Context, hint models.WakeHint) error
}

// WakeListener delivers wake signals until ctx is done.
type WakeListener interface {
	Listen(ctx context.Context) (<-chan models.WakeHint, error)
}

type SyncEnqueuer interface {
	Enqueue(ctx context.Context, eventType string, bookingID *int64, ownerID int64, payload models.SyncPayload)
}

type FanoutPublisher interface {
	Publish(ctx context.Context, eventType string, data events.BookingData)
}
