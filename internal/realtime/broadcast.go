package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"booksync/internal/events"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "bookings:"

// Channel is the pub/sub channel a recipient key is delivered on.
func Channel(key string) string { return channelPrefix + key }

// HTTPBroadcaster posts events to an nchan-style publisher endpoint, one
// request per recipient with the key in the channel query parameter.
type HTTPBroadcaster struct {
	endpoint string
	client   *http.Client
}

func NewHTTPBroadcaster(endpoint string, client *http.Client) *HTTPBroadcaster {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBroadcaster{endpoint: endpoint, client: client}
}

func (b *HTTPBroadcaster) Broadcast(ctx context.Context, key string, payload []byte) error {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return fmt.Errorf("invalid broadcast endpoint: %w", err)
	}
	q := u.Query()
	q.Set("channel", key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("broadcast to %s: %w", key, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("broadcast to %s: unexpected status %d", key, resp.StatusCode)
	}
	return nil
}

// RedisBroadcaster publishes on Redis pub/sub channels that the stream
// endpoint subscribes to.
type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, key string, payload []byte) error {
	if err := b.client.Publish(ctx, Channel(key), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", key, err)
	}
	return nil
}

// BusBroadcaster delivers in-process when no Redis is configured.
type BusBroadcaster struct {
	bus *events.Bus
}

func NewBusBroadcaster(bus *events.Bus) *BusBroadcaster {
	return &BusBroadcaster{bus: bus}
}

func (b *BusBroadcaster) Broadcast(_ context.Context, key string, payload []byte) error {
	b.bus.Publish(Channel(key), payload)
	return nil
}
