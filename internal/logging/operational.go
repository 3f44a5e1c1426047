package logging

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"booksync/internal/config"

	"github.com/rs/zerolog"
)

const maxLoggedBody = 4096

// Log categories written to the operational streams.
const (
	CategoryOperation = "operation"
	CategoryRequest   = "api_request"
	CategoryResponse  = "api_response"
	CategoryError     = "error"
	CategorySuccess   = "success"
	CategoryDeletion  = "deletion"
	CategoryQueue     = "queue"
)

// Operational is the calendar sync audit log: one JSON line per event,
// split into an info stream and an error stream. Methods never fail the
// caller; write errors go to zerolog.ErrorHandler. A nil *Operational
// discards everything.
type Operational struct {
	info    zerolog.Logger
	errs    zerolog.Logger
	closers []io.Closer
}

// NewOperational writes info lines to info and error lines to errs.
func NewOperational(info, errs io.Writer) *Operational {
	return &Operational{
		info: zerolog.New(info).With().Timestamp().Logger(),
		errs: zerolog.New(errs).With().Timestamp().Logger(),
	}
}

// OpenOperational opens the streams configured in cfg. Empty paths use
// stdout for info and stderr for errors.
func OpenOperational(cfg config.LoggingConfig) (*Operational, error) {
	var info, errs io.Writer = os.Stdout, os.Stderr
	var closers []io.Closer

	if cfg.InfoFile != "" {
		f, err := openLogFile(cfg.InfoFile)
		if err != nil {
			return nil, err
		}
		info = f
		closers = append(closers, f)
	}
	if cfg.ErrorFile != "" {
		f, err := openLogFile(cfg.ErrorFile)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, err
		}
		errs = f
		closers = append(closers, f)
	}

	op := NewOperational(info, errs)
	op.closers = closers
	return op, nil
}

// Close releases file streams opened by OpenOperational.
func (o *Operational) Close() error {
	if o == nil {
		return nil
	}
	var first error
	for _, c := range o.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogOperation records a sync manager decision for a booking.
func (o *Operational) LogOperation(operation string, bookingID int64, details map[string]any) {
	if o == nil {
		return
	}
	o.info.Info().
		Str("category", CategoryOperation).
		Str("operation", operation).
		Int64("booking_id", bookingID).
		Fields(details).
		Send()
}

// LogAPIRequest records an outbound call. Only a token prefix is logged.
func (o *Operational) LogAPIRequest(method, url string, body any, tokenPrefix string) {
	if o == nil {
		return
	}
	ev := o.info.Info().
		Str("category", CategoryRequest).
		Str("method", method).
		Str("url", url).
		Str("token_prefix", tokenPrefix)
	if body != nil {
		ev = ev.RawJSON("body", encodeBody(body))
	}
	ev.Send()
}

// LogAPIResponse records the outcome of an outbound call. Non-2xx statuses
// and transport errors go to the error stream.
func (o *Operational) LogAPIResponse(method, url string, status int, body []byte, elapsed time.Duration, err error) {
	if o == nil {
		return
	}
	logger := o.info
	level := zerolog.InfoLevel
	if err != nil || status < 200 || status >= 300 {
		logger = o.errs
		level = zerolog.ErrorLevel
	}
	ev := logger.WithLevel(level).
		Str("category", CategoryResponse).
		Str("method", method).
		Str("url", url).
		Int("http_status", status).
		Dur("elapsed", elapsed)
	if len(body) > 0 {
		ev = ev.Str("body", truncate(string(body)))
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Send()
}

// LogError records a failure with free-form context.
func (o *Operational) LogError(operation string, err error, details map[string]any) {
	if o == nil {
		return
	}
	o.errs.Error().
		Str("category", CategoryError).
		Str("operation", operation).
		Err(err).
		Fields(details).
		Send()
}

// LogSuccess records a completed sync step.
func (o *Operational) LogSuccess(operation string, details map[string]any) {
	if o == nil {
		return
	}
	o.info.Info().
		Str("category", CategorySuccess).
		Str("operation", operation).
		Fields(details).
		Send()
}

// LogDeletion records the outcome of a remote event deletion.
func (o *Operational) LogDeletion(bookingID int64, eventID, outcome string, details map[string]any) {
	if o == nil {
		return
	}
	o.info.Info().
		Str("category", CategoryDeletion).
		Int64("booking_id", bookingID).
		Str("event_id", eventID).
		Str("outcome", outcome).
		Fields(details).
		Send()
}

// LogQueue records queue lifecycle events (enqueue, claim, retry, fail).
func (o *Operational) LogQueue(action string, taskID int64, details map[string]any) {
	if o == nil {
		return
	}
	o.info.Info().
		Str("category", CategoryQueue).
		Str("action", action).
		Int64("task_id", taskID).
		Fields(details).
		Send()
}

func encodeBody(body any) []byte {
	switch v := body.(type) {
	case []byte:
		if json.Valid(v) {
			return v
		}
		raw, _ := json.Marshal(truncate(string(v)))
		return raw
	}
	raw, err := json.Marshal(body)
	if err != nil {
		raw, _ = json.Marshal(err.Error())
	}
	return raw
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "...(truncated)"
}
