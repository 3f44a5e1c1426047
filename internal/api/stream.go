package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"booksync/internal/realtime"

	"nhooyr.io/websocket"
)

const streamWriteTimeout = 5 * time.Second

type heartbeat struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// handleStream upgrades to a websocket and relays every event broadcast to
// the requested recipient until the client leaves.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stream == nil {
		writeError(w, http.StatusServiceUnavailable, "realtime stream is not configured")
		return
	}

	key := realtime.AdminKey
	if kind := r.PathValue("kind"); kind != "" {
		id, err := parseID(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		switch kind {
		case "specialist":
			key = realtime.SpecialistScope(id)
		case "workpoint":
			key = realtime.WorkpointScope(id)
		default:
			writeError(w, http.StatusNotFound, "unknown stream")
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.rtCfg.AllowedOrigins})
	if err != nil {
		s.logger.Warn().Err(err).Str("recipient", key).Msg("Websocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	msgs, cancel, err := s.deps.Stream.Subscribe(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("recipient", key).Msg("Stream subscription failed")
		_ = conn.Close(websocket.StatusInternalError, "subscription failed")
		return
	}
	defer cancel()

	logger := s.logger.With().Str("recipient", key).Logger()
	logger.Debug().Msg("Stream client connected")
	defer logger.Debug().Msg("Stream client disconnected")

	ticker := time.NewTicker(s.rtCfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			if err := write(ctx, conn, msg); err != nil {
				return
			}
		case now := <-ticker.C:
			raw, _ := json.Marshal(heartbeat{Type: "heartbeat", Timestamp: now.Unix()})
			if err := write(ctx, conn, raw); err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
