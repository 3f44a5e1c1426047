package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"booksync/internal/database"
	"booksync/internal/domain"
	"booksync/internal/google"
	"booksync/internal/logging"
	"booksync/internal/models"
	"booksync/internal/timezone"

	"github.com/rs/zerolog"
)

const (
	remoteTimeLayout = "2006-01-02T15:04:05"
	wallClockLayout  = "2006-01-02 15:04:05"
	defaultSummary   = "Booking"
	notAvailable     = "N/A"
)

// Sync outcomes reported in SyncResult.Action.
const (
	ActionCreated        = "created"
	ActionUpdated        = "updated"
	ActionDeleted        = "deleted"
	ActionNothingToDo    = "nothing_to_delete"
	ActionAlreadyDeleted = "already_deleted"
)

type SyncResult struct {
	Action  string
	EventID string
}

// CredentialSource resolves the credential used for an owner's calls.
type CredentialSource interface {
	Get(ctx context.Context, ownerID int64) (*models.Credential, error)
}

// SyncEventManager reconciles one booking with its remote event. Every
// combination of bound/unbound and remote 2xx/404/other ends in a defined
// state, so replays of the same task converge.
type SyncEventManager struct {
	api      domain.CalendarAPI
	bindings domain.BindingStore
	creds    CredentialSource
	zoneFor  func(country string) string
	oplog    *logging.Operational
	logger   *zerolog.Logger
}

func NewSyncEventManager(api domain.CalendarAPI, bindings domain.BindingStore, creds CredentialSource, oplog *logging.Operational, logger *zerolog.Logger) *SyncEventManager {
	return &SyncEventManager{
		api:      api,
		bindings: bindings,
		creds:    creds,
		zoneFor:  timezone.ForCountry,
		oplog:    oplog,
		logger:   logging.Component(logger, "sync_manager"),
	}
}

// Create mirrors a new booking. A booking that is already bound is updated
// instead, so duplicate creates never produce duplicate events.
func (m *SyncEventManager) Create(ctx context.Context, cred *models.Credential, bookingID int64, payload google.EventPayload) (*SyncResult, error) {
	eventID, err := m.bindings.GetEventID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if eventID != "" {
		m.oplog.LogOperation("CREATE_REDIRECT_UPDATE", bookingID, map[string]any{"event_id": eventID})
		return m.update(ctx, cred, bookingID, eventID, payload)
	}
	return m.create(ctx, cred, bookingID, payload)
}

// Update pushes booking changes. An unbound booking is created instead; a
// remote 404 drops the stale binding and recreates the event.
func (m *SyncEventManager) Update(ctx context.Context, cred *models.Credential, bookingID int64, payload google.EventPayload) (*SyncResult, error) {
	eventID, err := m.bindings.GetEventID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if eventID == "" {
		m.oplog.LogOperation("UPDATE_REDIRECT_CREATE", bookingID, nil)
		return m.create(ctx, cred, bookingID, payload)
	}
	return m.update(ctx, cred, bookingID, eventID, payload)
}

// Delete removes the bound remote event. Unbound bookings and events that
// are already gone count as success; other failures keep the binding.
func (m *SyncEventManager) Delete(ctx context.Context, cred *models.Credential, bookingID int64) (*SyncResult, error) {
	eventID, err := m.bindings.GetEventID(ctx, bookingID)
	if err != nil && !errors.Is(err, database.ErrBookingNotFound) {
		return nil, err
	}
	if eventID == "" {
		m.oplog.LogDeletion(bookingID, "", ActionNothingToDo, nil)
		return &SyncResult{Action: ActionNothingToDo}, nil
	}

	res, err := m.deleteRemote(ctx, cred, bookingID, eventID)
	if err != nil {
		return nil, err
	}
	if err := m.bindings.ClearEventID(ctx, bookingID); err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteByEventID removes a remote event known only by id.
func (m *SyncEventManager) DeleteByEventID(ctx context.Context, cred *models.Credential, eventID string) (*SyncResult, error) {
	if eventID == "" {
		return &SyncResult{Action: ActionNothingToDo}, nil
	}
	return m.deleteRemote(ctx, cred, 0, eventID)
}

func (m *SyncEventManager) deleteRemote(ctx context.Context, cred *models.Credential, bookingID int64, eventID string) (*SyncResult, error) {
	_, err := m.api.DeleteEvent(ctx, cred, eventID)
	switch {
	case err == nil:
		m.oplog.LogDeletion(bookingID, eventID, ActionDeleted, nil)
		return &SyncResult{Action: ActionDeleted, EventID: eventID}, nil
	case errors.Is(err, google.ErrRemoteNotFound):
		m.oplog.LogDeletion(bookingID, eventID, ActionAlreadyDeleted, nil)
		return &SyncResult{Action: ActionAlreadyDeleted, EventID: eventID}, nil
	default:
		m.oplog.LogError("DELETE", err, map[string]any{"booking_id": bookingID, "event_id": eventID})
		return nil, fmt.Errorf("delete event %s: %w", eventID, err)
	}
}

func (m *SyncEventManager) create(ctx context.Context, cred *models.Credential, bookingID int64, payload google.EventPayload) (*SyncResult, error) {
	res, err := m.api.CreateEvent(ctx, cred, payload)
	if err != nil {
		m.oplog.LogError("CREATE", err, map[string]any{"booking_id": bookingID})
		return nil, fmt.Errorf("create event for booking %d: %w", bookingID, err)
	}
	if res == nil || res.EventID == "" {
		err := errors.New("calendar accepted the event but returned no id")
		m.oplog.LogError("CREATE", err, map[string]any{"booking_id": bookingID})
		return nil, err
	}

	if err := m.bindings.SetEventID(ctx, bookingID, res.EventID); err != nil {
		m.oplog.LogError("STORE_EVENT_ID", err, map[string]any{"booking_id": bookingID, "event_id": res.EventID})
		return nil, fmt.Errorf("bind event %s to booking %d: %w", res.EventID, bookingID, err)
	}

	m.oplog.LogSuccess("CREATE", map[string]any{"booking_id": bookingID, "event_id": res.EventID})
	return &SyncResult{Action: ActionCreated, EventID: res.EventID}, nil
}

func (m *SyncEventManager) update(ctx context.Context, cred *models.Credential, bookingID int64, eventID string, payload google.EventPayload) (*SyncResult, error) {
	_, err := m.api.UpdateEvent(ctx, cred, eventID, payload)
	if err == nil {
		m.oplog.LogSuccess("UPDATE", map[string]any{"booking_id": bookingID, "event_id": eventID})
		return &SyncResult{Action: ActionUpdated, EventID: eventID}, nil
	}
	if !errors.Is(err, google.ErrRemoteNotFound) {
		m.oplog.LogError("UPDATE", err, map[string]any{"booking_id": bookingID, "event_id": eventID})
		return nil, fmt.Errorf("update event %s: %w", eventID, err)
	}

	m.oplog.LogOperation("UPDATE_NOT_FOUND_RECREATE", bookingID, map[string]any{"event_id": eventID})
	if err := m.bindings.ClearEventID(ctx, bookingID); err != nil {
		return nil, err
	}
	return m.create(ctx, cred, bookingID, payload)
}

// BuildEventPayload renders the remote event for a booking. It is pure.
func (m *SyncEventManager) BuildEventPayload(b *models.Booking, serviceName, ownerCountry string) google.EventPayload {
	return BuildEventPayload(b, serviceName, m.zoneFor(ownerCountry))
}

// BuildEventPayload renders the remote event for a booking in zone tz.
func BuildEventPayload(b *models.Booking, serviceName, tz string) google.EventPayload {
	summary := strings.TrimSpace(serviceName)
	if summary == "" {
		summary = defaultSummary
	}
	if tz == "" {
		tz = timezone.Default
	}

	bookedOn := notAvailable
	if !b.CreatedAt.IsZero() {
		bookedOn = b.CreatedAt.Format(wallClockLayout)
	}

	description := fmt.Sprintf("Booking ID: %s\nClient: %s\nPhone: %s\nService: %s\nBooked on: %s\nBooked via: %s",
		strconv.FormatInt(b.ID, 10),
		orNA(b.ClientFullName),
		orNA(b.ClientPhone),
		orNA(serviceName),
		bookedOn,
		orNA(b.ReceivedThrough),
	)

	return google.EventPayload{
		Summary:     summary,
		Description: description,
		Start:       google.EventTime{DateTime: b.Start.Format(remoteTimeLayout), TimeZone: tz},
		End:         google.EventTime{DateTime: b.End.Format(remoteTimeLayout), TimeZone: tz},
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}

// Sync executes one queued task: decode the snapshot, resolve the
// credential, then dispatch by event type.
func (m *SyncEventManager) Sync(ctx context.Context, task *models.SyncTask) (*SyncResult, error) {
	var payload models.SyncPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		return nil, fmt.Errorf("%w: task %d payload: %v", ErrInvalidTask, task.ID, err)
	}

	bookingID := payload.BookingID
	if task.BookingID != nil {
		bookingID = *task.BookingID
	}

	cred, err := m.creds.Get(ctx, task.OwnerID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("%w: owner %d has no calendar connected", ErrCredentialUnusable, task.OwnerID)
	}

	logger := m.logger.With().Int64("task_id", task.ID).Int64("booking_id", bookingID).Str("event_type", task.EventType).Logger()
	logger.Debug().Msg("Syncing booking")

	switch task.EventType {
	case models.SyncEventCreated, models.SyncEventUpdated:
		if bookingID == 0 {
			return nil, fmt.Errorf("%w: task %d has no booking id", ErrInvalidTask, task.ID)
		}
		status, err := m.bindings.GetBookingStatus(ctx, bookingID)
		if errors.Is(err, database.ErrBookingNotFound) {
			return nil, fmt.Errorf("%w: booking %d no longer exists", ErrInvalidTask, bookingID)
		}
		if err != nil {
			return nil, err
		}
		if status == models.BookingStatusCancelled {
			// A retry can run after the booking's delete task; never mirror
			// a cancelled booking, and remove anything still bound to it.
			logger.Info().Msg("Booking cancelled, removing mirror instead")
			return m.Delete(ctx, cred, bookingID)
		}

		body := m.BuildEventPayload(payload.Booking(), payload.ServiceName, payload.Country)
		var res *SyncResult
		if task.EventType == models.SyncEventCreated {
			res, err = m.Create(ctx, cred, bookingID, body)
		} else {
			res, err = m.Update(ctx, cred, bookingID, body)
		}
		if errors.Is(err, database.ErrBookingNotFound) {
			return nil, fmt.Errorf("%w: booking %d no longer exists", ErrInvalidTask, bookingID)
		}
		return res, err

	case models.SyncEventDeleted:
		if bookingID != 0 {
			res, err := m.Delete(ctx, cred, bookingID)
			if err != nil || res.Action != ActionNothingToDo || payload.GoogleEventID == "" {
				return res, err
			}
		}
		// The booking row is gone or was never bound here; fall back to the
		// event id captured at enqueue time.
		return m.DeleteByEventID(ctx, cred, payload.GoogleEventID)

	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidTask, task.EventType)
	}
}
