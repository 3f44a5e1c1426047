package wake

import (
	"context"
	"testing"

	"booksync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryNotifier(t *testing.T) {
	n := NewMemoryNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("NoListeners", func(t *testing.T) {
		assert.NoError(t, n.Notify(ctx, models.WakeHint{OwnerID: 1}))
	})

	t.Run("FanOutToListeners", func(t *testing.T) {
		a, err := n.Listen(ctx)
		require.NoError(t, err)
		b, err := n.Listen(ctx)
		require.NoError(t, err)

		require.NoError(t, n.Notify(ctx, models.WakeHint{OwnerID: 2}))
		assert.Equal(t, int64(2), receive(t, a).OwnerID)
		assert.Equal(t, int64(2), receive(t, b).OwnerID)
	})

	t.Run("SlowListenerDoesNotBlock", func(t *testing.T) {
		_, err := n.Listen(ctx)
		require.NoError(t, err)
		for i := 0; i < listenBuffer*2; i++ {
			require.NoError(t, n.Notify(ctx, models.WakeHint{OwnerID: int64(i)}))
		}
	})
}
