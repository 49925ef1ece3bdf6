package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestHub_FiltersByOwner(t *testing.T) {
	t.Parallel()

	hub := NewHub()

	mine, cancelMine := hub.Subscribe(1, false)
	defer cancelMine()

	admin, cancelAdmin := hub.Subscribe(0, true)
	defer cancelAdmin()

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, Event{Topic: TopicWallet, OwnerID: 2, EntityID: "2"}))
	require.NoError(t, hub.Publish(ctx, Event{Topic: TopicWallet, OwnerID: 1, EntityID: "1"}))

	got := <-mine
	require.Equal(t, "1", got.EntityID)

	require.Equal(t, "2", (<-admin).EntityID)
	require.Equal(t, "1", (<-admin).EntityID)

	select {
	case ev := <-mine:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	hub := NewHub()

	_, cancel := hub.Subscribe(1, false)
	defer cancel()

	for range subscriberBuffer + 5 {
		require.NoError(t, hub.Publish(context.Background(), Event{OwnerID: 1}))
	}

	require.Equal(t, uint64(5), hub.Dropped())
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := NewHub()

	ch, cancel := hub.Subscribe(1, false)
	cancel()
	cancel()

	_, open := <-ch
	require.False(t, open)
	require.NoError(t, hub.Publish(context.Background(), Event{OwnerID: 1}))
}

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("down") }

func TestMulti_JoinsErrors(t *testing.T) {
	t.Parallel()

	hub := NewHub()

	ch, cancel := hub.Subscribe(1, false)
	defer cancel()

	err := Multi{failing{}, hub}.Publish(context.Background(), Event{OwnerID: 1})
	require.Error(t, err)
	require.Equal(t, uint64(1), (<-ch).OwnerID)
}

func TestRedisBridge_RelaysToHub(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := NewHub()

	ch, cancel := hub.Subscribe(7, false)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	ready := make(chan struct{})
	done := make(chan error, 1)

	go func() { done <- NewBridge(rdb, "test", hub, nil).Run(ctx, ready) }()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not subscribe")
	}

	pub := NewRedisPublisher(rdb, "test")
	require.NoError(t, pub.Publish(ctx, Event{Topic: TopicOrder, Type: "order.fulfilled", OwnerID: 7, EntityID: "o-1"}))

	select {
	case ev := <-ch:
		require.Equal(t, TopicOrder, ev.Topic)
		require.Equal(t, "order.fulfilled", ev.Type)
		require.Equal(t, "o-1", ev.EntityID)
	case <-time.After(5 * time.Second):
		t.Fatal("event not relayed")
	}

	stop()
	require.NoError(t, <-done)
}
