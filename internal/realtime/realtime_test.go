package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/errs"
)

func waitTick(t *testing.T, l Listener) {
	t.Helper()
	select {
	case <-l.C():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestMemoryBus_PublishNotifiesTopicOnly(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	a, err := bus.Subscribe(ctx, "channels")
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, "messages.public")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "channels"))
	waitTick(t, a)

	select {
	case <-b.C():
		t.Fatal("listener on another topic was notified")
	default:
	}

	require.NoError(t, a.Close())
	assert.Equal(t, 0, bus.ListenerCount("channels"))
	assert.Equal(t, 1, bus.ListenerCount("messages.public"))
}

func TestMemoryBus_Coalesces(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()
	l, err := bus.Subscribe(ctx, "t")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(ctx, "t"))
	}
	waitTick(t, l)

	select {
	case <-l.C():
		t.Fatal("expected notifications to coalesce into one tick")
	default:
	}
}

func TestMemoryBus_ClosedRejects(t *testing.T) {
	bus := NewMemoryBus()
	require.NoError(t, bus.Close())

	_, err := bus.Subscribe(context.Background(), "t")
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.ErrorIs(t, bus.Publish(context.Background(), "t"), ErrBusClosed)
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = client.Close() })

	bus := NewRedisBus(client, "huddle:", zap.NewNop())
	ctx := context.Background()

	l, err := bus.Subscribe(ctx, "channels")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, bus.Publish(ctx, "channels"))
	waitTick(t, l)
}

func TestWatch_ReloadsOnEveryChange(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	var version atomic.Int32
	sub := Watch(ctx, bus, "things", "things", func(context.Context) (int32, error) {
		return version.Load(), nil
	})
	defer sub.Close()

	assert.Equal(t, int32(0), <-sub.Updates())

	// Wait for the watcher to be registered before publishing.
	require.Eventually(t, func() bool { return bus.ListenerCount("things") == 1 }, time.Second, 5*time.Millisecond)

	version.Store(7)
	require.NoError(t, bus.Publish(ctx, "things"))

	select {
	case v := <-sub.Updates():
		assert.Equal(t, int32(7), v)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after change")
	}
}

func TestWatch_CloseReleasesListener(t *testing.T) {
	bus := NewMemoryBus()
	sub := Watch(context.Background(), bus, "things", "things", func(context.Context) (int, error) {
		return 1, nil
	})
	<-sub.Updates()
	require.Equal(t, 1, bus.ListenerCount("things"))

	sub.Close()

	require.Eventually(t, func() bool { return bus.ListenerCount("things") == 0 }, time.Second, 5*time.Millisecond)
	for range sub.Updates() {
	}
	assert.NoError(t, sub.Err())
}

func TestWatch_LoadFailureEndsWithLoadError(t *testing.T) {
	bus := NewMemoryBus()
	boom := errors.New("db down")

	sub := Watch(context.Background(), bus, "channels", "channels", func(context.Context) ([]string, error) {
		return nil, boom
	})
	defer sub.Close()

	_, err := sub.Drain()
	var le *errs.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "channels", le.What)
	assert.ErrorIs(t, err, boom)
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "carrier-pigeon"}, zap.NewNop())
	assert.Error(t, err)
}
