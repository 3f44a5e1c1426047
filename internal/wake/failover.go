package wake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"booksync/internal/domain"
	"booksync/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// Transport is a wake notifier that can also be listened to.
type Transport interface {
	domain.WakeNotifier
	domain.WakeListener
}

// FailoverNotifier signals through primary (Redis) and switches to fallback
// (in-process) while primary is failing, retrying primary once a minute.
type FailoverNotifier struct {
	primary   Transport
	fallback  Transport
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverNotifier(primary, fallback Transport, logger *zerolog.Logger) *FailoverNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverNotifier{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (n *FailoverNotifier) markDown(err error) {
	if !n.isDown.Swap(true) {
		n.logger.Error().Err(err).Msg("Primary wake transport failed, falling back to memory")
	}
	n.lastCheck.Store(n.now().UnixNano())
}

func (n *FailoverNotifier) shouldTryPrimary() bool {
	if !n.isDown.Load() {
		return true
	}
	return n.now().Sub(time.Unix(0, n.lastCheck.Load())) > recoveryInterval
}

func (n *FailoverNotifier) Notify(ctx context.Context, hint models.WakeHint) error {
	if n.shouldTryPrimary() {
		err := n.primary.Notify(ctx, hint)
		if err == nil {
			if n.isDown.Swap(false) {
				n.logger.Info().Msg("Primary wake transport recovered")
			}
			return nil
		}
		n.markDown(err)
	}
	return n.fallback.Notify(ctx, hint)
}

// Listen merges both transports so a listener hears signals regardless of
// which one the notifying side is currently using. A primary that cannot be
// subscribed to is skipped.
func (n *FailoverNotifier) Listen(ctx context.Context) (<-chan models.WakeHint, error) {
	fb, err := n.fallback.Listen(ctx)
	if err != nil {
		return nil, err
	}
	sources := []<-chan models.WakeHint{fb}
	if pr, err := n.primary.Listen(ctx); err != nil {
		n.logger.Warn().Err(err).Msg("Primary wake transport unavailable for listening")
	} else {
		sources = append(sources, pr)
	}

	out := make(chan models.WakeHint, listenBuffer)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src <-chan models.WakeHint) {
			defer wg.Done()
			for hint := range src {
				select {
				case out <- hint:
				default:
				}
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}
