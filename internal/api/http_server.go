package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"booksync/internal/config"
	"booksync/internal/events"
	"booksync/internal/google"
	"booksync/internal/logging"
	"booksync/internal/metrics"
	"booksync/internal/models"
	"booksync/internal/realtime"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingStore is the persistence the API writes booking changes to and
// reads queue state from.
type BookingStore interface {
	UpsertBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, id int64) error
	SyncQueueStats(ctx context.Context) (models.SyncQueueStats, error)
	GetFailedSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
}

type ChangeNotifier interface {
	BookingChanged(ctx context.Context, eventType string, b *models.Booking)
}

// RealtimeReader serves polling clients.
type RealtimeReader interface {
	Version(ctx context.Context, scope string) (int64, error)
	Recent(ctx context.Context, scope string, n int) ([]events.Event, error)
}

type CredentialService interface {
	Get(ctx context.Context, ownerID int64) (*models.Credential, error)
	Disconnect(ctx context.Context, ownerID int64) error
}

type EventLister interface {
	ListEvents(ctx context.Context, cred *models.Credential, from, to time.Time) ([]google.RemoteEvent, error)
}

// Deps are the collaborators behind the HTTP surface. Nil members disable
// the routes that need them.
type Deps struct {
	Store       BookingStore
	Notifier    ChangeNotifier
	Realtime    RealtimeReader
	Stream      realtime.Subscriber
	Credentials CredentialService
	Calendar    EventLister
}

// HTTPServer exposes the booking change intake, queue inspection and the
// realtime polling and streaming endpoints.
type HTTPServer struct {
	cfg    config.APIConfig
	rtCfg  config.RealtimeConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, rtCfg config.RealtimeConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if rtCfg.Heartbeat <= 0 {
		rtCfg.Heartbeat = 30 * time.Second
	}
	srv := &HTTPServer{
		cfg:    cfg,
		rtCfg:  rtCfg,
		deps:   deps,
		auth:   NewHTTPAuth(cfg),
		logger: logging.Component(logger, "http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	srv.handle(mux, "POST /api/v1/booking-events", PermWriteBookings, srv.handleBookingEvent)
	srv.handle(mux, "GET /api/v1/sync/stats", PermReadSync, srv.handleSyncStats)
	srv.handle(mux, "GET /api/v1/sync/failed", PermReadSync, srv.handleFailedTasks)
	srv.handle(mux, "POST /api/v1/owners/{id}/disconnect", PermWriteCredentials, srv.handleDisconnect)
	srv.handle(mux, "GET /api/v1/owners/{id}/calendar/events", PermReadCalendar, srv.handleRemoteEvents)
	srv.handle(mux, "GET /api/v1/realtime/version", PermReadRealtime, srv.handleVersion)
	srv.handle(mux, "GET /api/v1/realtime/events", PermReadRealtime, srv.handleRecentEvents)
	srv.handle(mux, "GET /stream/admin", PermReadRealtime, srv.handleStream)
	srv.handle(mux, "GET /stream/{kind}/{id}", PermReadRealtime, srv.handleStream)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

func (s *HTTPServer) handle(mux *http.ServeMux, pattern, perm string, h http.HandlerFunc) {
	guarded := s.auth.Require(perm, h)
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		guarded(w, r)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

const requestIDHeader = "X-Request-ID"

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is required by the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}
