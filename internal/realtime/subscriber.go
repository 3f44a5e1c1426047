package realtime

import (
	"context"
	"fmt"

	"booksync/internal/events"

	"github.com/redis/go-redis/v9"
)

const subscriberBuffer = 32

// Subscriber streams raw event payloads for recipient keys until the cancel
// func is called or ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, keys ...string) (<-chan []byte, func(), error)
}

type RedisSubscriber struct {
	client *redis.Client
}

func NewRedisSubscriber(client *redis.Client) *RedisSubscriber {
	return &RedisSubscriber{client: client}
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, keys ...string) (<-chan []byte, func(), error) {
	channels := make([]string, len(keys))
	for i, k := range keys {
		channels[i] = Channel(k)
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := s.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
				}
			}
		}
	}()
	return out, cancel, nil
}

type BusSubscriber struct {
	bus *events.Bus
}

func NewBusSubscriber(bus *events.Bus) *BusSubscriber {
	return &BusSubscriber{bus: bus}
}

func (s *BusSubscriber) Subscribe(ctx context.Context, keys ...string) (<-chan []byte, func(), error) {
	out := make(chan []byte, subscriberBuffer)
	done := make(chan struct{})
	unsubs := make([]func(), 0, len(keys))
	for _, k := range keys {
		unsubs = append(unsubs, s.bus.Subscribe(Channel(k), func(payload []byte) {
			select {
			case <-done:
			case out <- payload:
			default:
			}
		}))
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		for _, u := range unsubs {
			u()
		}
		close(done)
	}()
	return out, cancel, nil
}
