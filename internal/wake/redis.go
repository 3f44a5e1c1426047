package wake

import (
	"context"
	"encoding/json"
	"fmt"

	"booksync/internal/config"
	"booksync/internal/metrics"
	"booksync/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
		// Honor caller deadlines instead of the fixed read timeout.
		ContextTimeoutEnabled: true,
	})
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// RedisNotifier carries wake hints over Redis pub/sub so that workers in
// other processes hear about new tasks.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zerolog.Logger
}

func NewRedisNotifier(client *redis.Client, channel string, logger *zerolog.Logger) *RedisNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context, hint models.WakeHint) error {
	if n.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(hint)
	if err != nil {
		return fmt.Errorf("failed to marshal wake hint: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish wake hint: %w", err)
	}
	metrics.IncWakeSignal("redis")
	return nil
}

// Listen subscribes to the wake channel. The returned channel is closed when
// ctx is done.
func (n *RedisNotifier) Listen(ctx context.Context) (<-chan models.WakeHint, error) {
	if n.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	sub := n.client.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	out := make(chan models.WakeHint, listenBuffer)
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
				var hint models.WakeHint
				if err := json.Unmarshal([]byte(msg.Payload), &hint); err != nil {
					n.logger.Warn().Err(err).Msg("Dropping malformed wake hint")
					continue
				}
				select {
				case out <- hint:
				default:
				}
			}
		}
	}()
	return out, nil
}

// NewTransport picks the wake transport for a process: Redis with an
// in-process fallback when a client is available, in-process only otherwise.
func NewTransport(client *redis.Client, channel string, logger *zerolog.Logger) Transport {
	if client == nil {
		return NewMemoryNotifier()
	}
	return NewFailoverNotifier(NewRedisNotifier(client, channel, logger), NewMemoryNotifier(), logger)
}
