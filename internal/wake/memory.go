package wake

import (
	"context"
	"sync"

	"booksync/internal/metrics"
	"booksync/internal/models"
)

const listenBuffer = 16

// MemoryNotifier delivers wake hints to listeners in the same process.
// Signals are dropped for listeners that are not keeping up.
type MemoryNotifier struct {
	mu        sync.Mutex
	listeners map[chan models.WakeHint]struct{}
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{listeners: make(map[chan models.WakeHint]struct{})}
}

func (n *MemoryNotifier) Notify(_ context.Context, hint models.WakeHint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.listeners {
		select {
		case ch <- hint:
		default:
		}
	}
	metrics.IncWakeSignal("memory")
	return nil
}

func (n *MemoryNotifier) Listen(ctx context.Context) (<-chan models.WakeHint, error) {
	ch := make(chan models.WakeHint, listenBuffer)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.listeners, ch)
		close(ch)
		n.mu.Unlock()
	}()
	return ch, nil
}
