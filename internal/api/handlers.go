package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"booksync/internal/database"
	"booksync/internal/models"
	"booksync/internal/realtime"
	"booksync/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	dateLayout       = "2006-01-02"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type bookingEventRequest struct {
	EventType string          `json:"event_type"`
	BookingID int64           `json:"booking_id,omitempty"`
	Booking   *models.Booking `json:"booking,omitempty"`
}

// handleBookingEvent is the intake for booking mutations made by the booking
// application. The booking row is stored first; calendar sync and realtime
// fan-out follow and never affect the response.
func (s *HTTPServer) handleBookingEvent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "booking store is not configured")
		return
	}

	var req bookingEventRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !models.ValidSyncEvent(req.EventType) {
		writeError(w, http.StatusBadRequest, "event_type must be one of created, updated, deleted")
		return
	}

	ctx := r.Context()
	var booking *models.Booking

	switch req.EventType {
	case models.SyncEventCreated, models.SyncEventUpdated:
		if err := validateBooking(req.Booking); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		booking = req.Booking
		if err := s.deps.Store.UpsertBooking(ctx, booking); err != nil {
			s.logger.Error().Err(err).Msg("Failed to store booking")
			writeError(w, http.StatusInternalServerError, "failed to store booking")
			return
		}

	case models.SyncEventDeleted:
		id := req.BookingID
		if id == 0 && req.Booking != nil {
			id = req.Booking.ID
		}
		if id <= 0 {
			writeError(w, http.StatusBadRequest, "booking_id is required")
			return
		}
		if err := s.deps.Store.CancelBooking(ctx, id); err != nil {
			if errors.Is(err, database.ErrBookingNotFound) {
				writeError(w, http.StatusNotFound, "booking not found")
				return
			}
			s.logger.Error().Err(err).Int64("booking_id", id).Msg("Failed to cancel booking")
			writeError(w, http.StatusInternalServerError, "failed to cancel booking")
			return
		}
		var err error
		if booking, err = s.deps.Store.GetBooking(ctx, id); err != nil {
			s.logger.Error().Err(err).Int64("booking_id", id).Msg("Failed to reload cancelled booking")
			writeError(w, http.StatusInternalServerError, "failed to load booking")
			return
		}
	}

	if s.deps.Notifier != nil {
		s.deps.Notifier.BookingChanged(ctx, req.EventType, booking)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"event_type": req.EventType, "booking": booking})
}

func validateBooking(b *models.Booking) error {
	switch {
	case b == nil:
		return errors.New("booking is required")
	case b.SpecialistID <= 0:
		return errors.New("booking.specialist_id is required")
	case b.Start.IsZero() || b.End.IsZero():
		return errors.New("booking.start and booking.end are required")
	case !b.End.After(b.Start):
		return errors.New("booking.end must be after booking.start")
	}
	return nil
}

func (s *HTTPServer) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "booking store is not configured")
		return
	}
	stats, err := s.deps.Store.SyncQueueStats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read queue stats")
		writeError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleFailedTasks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "booking store is not configured")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tasks, err := s.deps.Store.GetFailedSyncTasks(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list failed tasks")
		writeError(w, http.StatusInternalServerError, "failed to list failed tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Credentials == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar integration is not configured")
		return
	}
	ownerID, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner id")
		return
	}
	if err := s.deps.Credentials.Disconnect(r.Context(), ownerID); err != nil {
		s.logger.Error().Err(err).Int64("owner_id", ownerID).Msg("Failed to disconnect calendar")
		writeError(w, http.StatusInternalServerError, "failed to disconnect calendar")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoteEvents previews the events on an owner's calendar, defaulting
// to the next seven days.
func (s *HTTPServer) handleRemoteEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Credentials == nil || s.deps.Calendar == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar integration is not configured")
		return
	}
	ownerID, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	from := time.Now().UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, 7)
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if from, err = time.Parse(dateLayout, v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
			return
		}
		to = from.AddDate(0, 0, 7)
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if to, err = time.Parse(dateLayout, v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
			return
		}
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "to must be after from")
		return
	}

	ctx := r.Context()
	cred, err := s.deps.Credentials.Get(ctx, ownerID)
	switch {
	case errors.Is(err, service.ErrCredentialUnusable):
		writeError(w, http.StatusConflict, "calendar credential is not usable")
		return
	case err != nil:
		s.logger.Error().Err(err).Int64("owner_id", ownerID).Msg("Failed to load credential")
		writeError(w, http.StatusInternalServerError, "failed to load credential")
		return
	case cred == nil:
		writeError(w, http.StatusNotFound, "no calendar connected")
		return
	}

	list, err := s.deps.Calendar.ListEvents(ctx, cred, from, to)
	if err != nil {
		writeError(w, http.StatusBadGateway, "calendar request failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner_id": ownerID, "events": list})
}

func (s *HTTPServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	if s.deps.Realtime == nil {
		writeError(w, http.StatusServiceUnavailable, "realtime is not configured")
		return
	}
	scope, err := parseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.deps.Realtime.Version(r.Context(), scope)
	if err != nil {
		s.realtimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "version": v})
}

func (s *HTTPServer) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Realtime == nil {
		writeError(w, http.StatusServiceUnavailable, "realtime is not configured")
		return
	}
	q := r.URL.Query()
	scope, err := parseScope(q.Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.deps.Realtime.Recent(r.Context(), scope, limit)
	if err != nil {
		s.realtimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "events": list})
}

func (s *HTTPServer) realtimeError(w http.ResponseWriter, err error) {
	if errors.Is(err, realtime.ErrNoRedis) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Error().Err(err).Msg("Realtime read failed")
	writeError(w, http.StatusInternalServerError, "realtime read failed")
}

// parseScope accepts "global" (the default), "specialist:<id>" and
// "workpoint:<id>".
func parseScope(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == realtime.ScopeGlobal {
		return realtime.ScopeGlobal, nil
	}
	kind, idStr, ok := strings.Cut(raw, ":")
	if !ok {
		return "", errors.New("invalid scope")
	}
	id, err := parseID(idStr)
	if err != nil {
		return "", errors.New("invalid scope id")
	}
	switch kind {
	case "specialist":
		return realtime.SpecialistScope(id), nil
	case "workpoint":
		return realtime.WorkpointScope(id), nil
	}
	return "", errors.New("invalid scope")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}
