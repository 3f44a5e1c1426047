package realtime

import (
	"context"
	"testing"
	"time"

	"booksync/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return ""
}

func TestRedisSubscriber(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	ch, cancel, err := NewRedisSubscriber(client).Subscribe(ctx, "specialist:7", "admin")
	require.NoError(t, err)
	defer cancel()

	b := NewRedisBroadcaster(client)
	require.NoError(t, b.Broadcast(ctx, "workpoint:3", []byte("ignored")))
	require.NoError(t, b.Broadcast(ctx, "admin", []byte("one")))
	require.NoError(t, b.Broadcast(ctx, "specialist:7", []byte("two")))

	assert.Equal(t, "one", next(t, ch))
	assert.Equal(t, "two", next(t, ch))

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestBusSubscriber(t *testing.T) {
	bus := events.NewBus()
	ctx := context.Background()

	ch, cancel, err := NewBusSubscriber(bus).Subscribe(ctx, "admin")
	require.NoError(t, err)

	b := NewBusBroadcaster(bus)
	require.NoError(t, b.Broadcast(ctx, "specialist:1", []byte("other")))
	require.NoError(t, b.Broadcast(ctx, "admin", []byte("hello")))
	assert.Equal(t, "hello", next(t, ch))

	cancel()
	require.Eventually(t, func() bool {
		return bus.Publish(Channel("admin"), []byte("late")) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestFanoutThroughBus(t *testing.T) {
	bus := events.NewBus()
	ctx := context.Background()
	ch, cancel, err := NewBusSubscriber(bus).Subscribe(ctx, "workpoint:3")
	require.NoError(t, err)
	defer cancel()

	f := NewFanout(nil, NewBusBroadcaster(bus), 0, 0, nil)
	f.Publish(ctx, "created", events.BookingData{BookingID: 9, SpecialistID: 7, WorkingPointID: 3})
	f.Wait()

	assert.Contains(t, next(t, ch), `"booking_id":9`)
}
