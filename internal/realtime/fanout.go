package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"booksync/internal/events"
	"booksync/internal/logging"
	"booksync/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	queuePrefix   = "bookings:queue:"
	versionPrefix = "bookings:version"

	ScopeGlobal = "global"
	AdminKey    = "admin"
)

// Broadcaster pushes one serialized event to a recipient key.
type Broadcaster interface {
	Broadcast(ctx context.Context, key string, payload []byte) error
}

// Fanout delivers booking changes to live subscribers along two independent
// paths: Redis lists with version counters for polling clients, and a
// broadcast bridge for push clients. Publish never fails the caller.
type Fanout struct {
	redis       *redis.Client
	broadcaster Broadcaster
	ttl         time.Duration
	timeout     time.Duration
	now         func() time.Time
	logger      *zerolog.Logger
	wg          sync.WaitGroup
}

// NewFanout builds a fan-out. Either path may be nil.
func NewFanout(client *redis.Client, broadcaster Broadcaster, ttl, timeout time.Duration, logger *zerolog.Logger) *Fanout {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Fanout{
		redis:       client,
		broadcaster: broadcaster,
		ttl:         ttl,
		timeout:     timeout,
		now:         time.Now,
		logger:      logging.Component(logger, "fanout"),
	}
}

func SpecialistScope(id int64) string { return "specialist:" + strconv.FormatInt(id, 10) }
func WorkpointScope(id int64) string  { return "workpoint:" + strconv.FormatInt(id, 10) }

func QueueKey(scope string) string { return queuePrefix + scope }

func VersionKey(scope string) string {
	if scope == ScopeGlobal || scope == "" {
		return versionPrefix
	}
	return versionPrefix + ":" + scope
}

// Scopes lists the list/version scopes touched by data.
func Scopes(data events.BookingData) []string {
	scopes := make([]string, 0, 3)
	if data.SpecialistID > 0 {
		scopes = append(scopes, SpecialistScope(data.SpecialistID))
	}
	if data.WorkingPointID > 0 {
		scopes = append(scopes, WorkpointScope(data.WorkingPointID))
	}
	return append(scopes, ScopeGlobal)
}

// RecipientKeys lists the broadcast recipients for data. Admin receives
// every event.
func RecipientKeys(data events.BookingData) []string {
	keys := make([]string, 0, 3)
	if data.SpecialistID > 0 {
		keys = append(keys, SpecialistScope(data.SpecialistID))
	}
	if data.WorkingPointID > 0 {
		keys = append(keys, WorkpointScope(data.WorkingPointID))
	}
	return append(keys, AdminKey)
}

func (f *Fanout) Publish(ctx context.Context, eventType string, data events.BookingData) {
	if f == nil {
		return
	}
	payload, err := json.Marshal(events.NewEvent(eventType, data, f.now()))
	if err != nil {
		f.logger.Error().Err(err).Msg("Failed to encode realtime event")
		return
	}

	logger := f.logger.With().Str("event_type", eventType).Int64("booking_id", data.BookingID).Logger()

	if f.redis != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			defer cancel()
			if err := f.pushToRedis(rctx, Scopes(data), payload); err != nil {
				metrics.IncFanoutFailure("redis")
				logger.Warn().Err(err).Msg("Realtime redis path failed")
			}
		}()
	}

	if f.broadcaster != nil {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			defer cancel()
			for _, key := range RecipientKeys(data) {
				if err := f.broadcaster.Broadcast(bctx, key, payload); err != nil {
					metrics.IncFanoutFailure("broadcast")
					logger.Warn().Err(err).Str("recipient", key).Msg("Realtime broadcast failed")
				}
			}
		}()
	}
}

func (f *Fanout) pushToRedis(ctx context.Context, scopes []string, payload []byte) error {
	_, err := f.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, scope := range scopes {
			key := QueueKey(scope)
			pipe.LPush(ctx, key, payload)
			pipe.Expire(ctx, key, f.ttl)
			pipe.Incr(ctx, VersionKey(scope))
		}
		return nil
	})
	return err
}

// Wait blocks until in-flight redis pushes and broadcasts finish.
func (f *Fanout) Wait() {
	if f != nil {
		f.wg.Wait()
	}
}

// Version returns the change counter for scope; 0 when nothing was published.
func (f *Fanout) Version(ctx context.Context, scope string) (int64, error) {
	if f.redis == nil {
		return 0, ErrNoRedis
	}
	v, err := f.redis.Get(ctx, VersionKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read version for %s: %w", scope, err)
	}
	return v, nil
}

// Recent returns up to n of the newest events for scope, newest first.
func (f *Fanout) Recent(ctx context.Context, scope string, n int) ([]events.Event, error) {
	if f.redis == nil {
		return nil, ErrNoRedis
	}
	if n <= 0 {
		n = 50
	}
	raw, err := f.redis.LRange(ctx, QueueKey(scope), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events for %s: %w", scope, err)
	}
	out := make([]events.Event, 0, len(raw))
	for _, item := range raw {
		var ev events.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			f.logger.Warn().Err(err).Str("scope", scope).Msg("Skipping malformed realtime event")
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

var ErrNoRedis = errors.New("realtime redis path is not configured")
