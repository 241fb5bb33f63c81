package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversPerUser(t *testing.T) {
	hub := NewHub[string](4)
	ctx := context.Background()

	a, err := hub.Subscribe(ctx, "a")
	require.NoError(t, err)
	b, err := hub.Subscribe(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, "a", "hello"))

	assert.Equal(t, "hello", <-a.Events())
	select {
	case ev := <-b.Events():
		t.Fatalf("b received %q", ev)
	default:
	}
}

func TestHub_FullSubscriberIsDropped(t *testing.T) {
	hub := NewHub[int](1)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "u")
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, "u", 1))
	require.NoError(t, hub.Publish(ctx, "u", 2), "publish never blocks")
	assert.Equal(t, 0, hub.Subscribers("u"))

	assert.Equal(t, 1, <-sub.Events())
	_, ok := <-sub.Events()
	assert.False(t, ok, "dropped subscription is closed")
}

func TestHub_CloseSubscription(t *testing.T) {
	hub := NewHub[int](1)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers("u"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, hub.Subscribers("u"))
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestHub_Closed(t *testing.T) {
	hub := NewHub[int](1)
	ctx := context.Background()
	sub, err := hub.Subscribe(ctx, "u")
	require.NoError(t, err)

	require.NoError(t, hub.Close())
	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.NoError(t, sub.Close())

	assert.ErrorIs(t, hub.Publish(ctx, "u", 1), ErrClosed)
	_, err = hub.Subscribe(ctx, "u")
	assert.ErrorIs(t, err, ErrClosed)
}
