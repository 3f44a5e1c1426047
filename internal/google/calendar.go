package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"booksync/internal/logging"
	"booksync/internal/metrics"
	"booksync/internal/models"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// ErrRemoteNotFound is matched by errors for calls the calendar answered
// with 404. The sync manager treats it as a reconciliation signal.
var ErrRemoteNotFound = errors.New("remote calendar resource not found")

// EventTime is a wall-clock time qualified by an IANA zone name.
type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// EventPayload is the body sent for create and update.
type EventPayload struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

// RemoteEvent is a calendar entry returned by ListEvents.
type RemoteEvent struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// CallResult describes a completed remote call. It is returned alongside a
// nil error; failures come back as *APIError.
type CallResult struct {
	HTTPStatus int
	EventID    string
	Body       []byte
}

// APIError is a failed remote call. Status is 0 for transport errors and
// timeouts.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "request failed: " + e.Message
	}
	return fmt.Sprintf("HTTP %d - %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrRemoteNotFound && e.Status == http.StatusNotFound
}

// CalendarClient issues single authenticated calls against the calendar API
// on behalf of one owner's credential. It keeps no per-owner state and never
// retries.
type CalendarClient struct {
	endpoint  string
	timeout   time.Duration
	transport http.RoundTripper
	oplog     *logging.Operational
}

type CalendarOption func(*CalendarClient)

// WithEndpoint points the client at another API root, e.g. a test server.
func WithEndpoint(endpoint string) CalendarOption {
	return func(c *CalendarClient) { c.endpoint = strings.TrimRight(endpoint, "/") }
}

func WithTransport(rt http.RoundTripper) CalendarOption {
	return func(c *CalendarClient) { c.transport = rt }
}

func NewCalendarClient(timeout time.Duration, oplog *logging.Operational, opts ...CalendarOption) *CalendarClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &CalendarClient{
		endpoint:  defaultBaseURL,
		timeout:   timeout,
		transport: http.DefaultTransport,
		oplog:     oplog,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CalendarClient) service(ctx context.Context, cred *models.Credential) (*calendar.Service, error) {
	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient), option.WithEndpoint(c.endpoint+"/"))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %w", err)
	}
	return srv, nil
}

func (c *CalendarClient) eventsURL(calendarID string, eventID string) string {
	u := c.endpoint + "/calendars/" + url.PathEscape(calendarID) + "/events"
	if eventID != "" {
		u += "/" + url.PathEscape(eventID)
	}
	return u
}

// CreateEvent inserts a new event into the owner's calendar.
func (c *CalendarClient) CreateEvent(ctx context.Context, cred *models.Credential, payload EventPayload) (*CallResult, error) {
	target := c.eventsURL(cred.CalendarID, "")
	return c.call(ctx, cred, http.MethodPost, target, payload, func(srv *calendar.Service) (*calendar.Event, error) {
		return srv.Events.Insert(cred.CalendarID, toEvent(payload)).Context(ctx).Do()
	})
}

// UpdateEvent replaces an existing event.
func (c *CalendarClient) UpdateEvent(ctx context.Context, cred *models.Credential, eventID string, payload EventPayload) (*CallResult, error) {
	target := c.eventsURL(cred.CalendarID, eventID)
	return c.call(ctx, cred, http.MethodPut, target, payload, func(srv *calendar.Service) (*calendar.Event, error) {
		return srv.Events.Update(cred.CalendarID, eventID, toEvent(payload)).Context(ctx).Do()
	})
}

// DeleteEvent removes an event. A 404 is reported as ErrRemoteNotFound and
// left to the caller to interpret.
func (c *CalendarClient) DeleteEvent(ctx context.Context, cred *models.Credential, eventID string) (*CallResult, error) {
	target := c.eventsURL(cred.CalendarID, eventID)
	return c.call(ctx, cred, http.MethodDelete, target, nil, func(srv *calendar.Service) (*calendar.Event, error) {
		return nil, srv.Events.Delete(cred.CalendarID, eventID).Context(ctx).Do()
	})
}

// ListEvents returns single (expanded) events between from and to.
func (c *CalendarClient) ListEvents(ctx context.Context, cred *models.Credential, from, to time.Time) ([]RemoteEvent, error) {
	target := c.eventsURL(cred.CalendarID, "")
	srv, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	c.oplog.LogAPIRequest(http.MethodGet, target, nil, cred.TokenPrefix())
	start := time.Now()

	var out []RemoteEvent
	err = srv.Events.List(cred.CalendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Pages(ctx, func(page *calendar.Events) error {
			for _, ev := range page.Items {
				out = append(out, RemoteEvent{
					ID:      ev.Id,
					Summary: ev.Summary,
					Status:  ev.Status,
					Start:   eventTimeString(ev.Start),
					End:     eventTimeString(ev.End),
				})
			}
			return nil
		})
	elapsed := time.Since(start)
	if err != nil {
		apiErr := classify(err)
		c.oplog.LogAPIResponse(http.MethodGet, target, apiErr.Status, apiErr.Body, elapsed, apiErr)
		metrics.ObserveRemoteCall(http.MethodGet, outcome(apiErr.Status, apiErr), elapsed)
		return nil, apiErr
	}

	c.oplog.LogAPIResponse(http.MethodGet, target, http.StatusOK, nil, elapsed, nil)
	metrics.ObserveRemoteCall(http.MethodGet, "success", elapsed)
	return out, nil
}

func (c *CalendarClient) call(
	ctx context.Context,
	cred *models.Credential,
	method, target string,
	payload any,
	do func(srv *calendar.Service) (*calendar.Event, error),
) (*CallResult, error) {
	srv, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	c.oplog.LogAPIRequest(method, target, payload, cred.TokenPrefix())
	start := time.Now()
	ev, err := do(srv)
	elapsed := time.Since(start)

	if err != nil {
		apiErr := classify(err)
		c.oplog.LogAPIResponse(method, target, apiErr.Status, apiErr.Body, elapsed, apiErr)
		metrics.ObserveRemoteCall(method, outcome(apiErr.Status, apiErr), elapsed)
		return nil, apiErr
	}

	res := &CallResult{HTTPStatus: http.StatusNoContent}
	if ev != nil {
		res.EventID = ev.Id
		res.HTTPStatus = ev.HTTPStatusCode
		if res.HTTPStatus == 0 {
			res.HTTPStatus = http.StatusOK
		}
		res.Body, _ = json.Marshal(ev)
	}
	c.oplog.LogAPIResponse(method, target, res.HTTPStatus, res.Body, elapsed, nil)
	metrics.ObserveRemoteCall(method, "success", elapsed)
	return res, nil
}

func classify(err error) *APIError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &APIError{Status: gerr.Code, Message: msg, Body: []byte(gerr.Body)}
	}
	return &APIError{Message: err.Error()}
}

func outcome(status int, err error) string {
	switch {
	case errors.Is(err, ErrRemoteNotFound):
		return "not_found"
	case status == 0:
		return "transport_error"
	default:
		return "error"
	}
}

func toEvent(p EventPayload) *calendar.Event {
	return &calendar.Event{
		Summary:     p.Summary,
		Description: p.Description,
		Start:       &calendar.EventDateTime{DateTime: p.Start.DateTime, TimeZone: p.Start.TimeZone},
		End:         &calendar.EventDateTime{DateTime: p.End.DateTime, TimeZone: p.End.TimeZone},
	}
}

func eventTimeString(t *calendar.EventDateTime) string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}
