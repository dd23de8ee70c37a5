package messages

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository/memory"
	"github.com/lalith-99/huddle/internal/subscription"
)

type recordingRemover struct {
	mu   sync.Mutex
	refs []models.FileRef
}

func (r *recordingRemover) DeleteBlob(_ context.Context, ref models.FileRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs = append(r.refs, ref)
}

type fixture struct {
	bus      *realtime.MemoryBus
	channels *memory.ChannelStore
	store    *memory.MessageStore
	removed  *recordingRemover
	stream   *Stream
}

func newFixture(t *testing.T, clock memory.Clock) *fixture {
	t.Helper()
	bus := realtime.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })
	f := &fixture{
		bus:      bus,
		channels: memory.NewChannelStore(nil),
		store:    memory.NewMessageStore(clock),
		removed:  &recordingRemover{},
	}
	f.stream = NewStream(f.store, f.channels, f.removed, bus, Options{}, zap.NewNop())
	return f
}

// waitFor reads snapshots until ok accepts one.
func waitFor[T any](t *testing.T, sub *subscription.Subscription[T], ok func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, open := <-sub.Updates():
			require.True(t, open, "stream ended: %v", sub.Err())
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func bodies(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func TestObserveMessages_TimestampOrder(t *testing.T) {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	// The store clock steps backwards for m2: order follows timestamps.
	ticks := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}
	var mu sync.Mutex
	i := 0
	f := newFixture(t, func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick := ticks[i]
		i++
		return tick
	})
	ctx := context.Background()
	sender := uuid.New()

	sub := f.stream.ObserveMessages(ctx, models.PublicScope())
	defer sub.Close()
	waitFor(t, sub, func(m []models.Message) bool { return len(m) == 0 })

	for _, body := range []string{"m1", "m2", "m3"} {
		_, err := f.stream.SendText(ctx, models.PublicScope(), sender, "Alice", body)
		require.NoError(t, err)
	}

	got := waitFor(t, sub, func(m []models.Message) bool { return len(m) == 3 })
	assert.Equal(t, []string{"m2", "m1", "m3"}, bodies(got))
}

func TestSendText_BlankIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	msg, err := f.stream.SendText(ctx, models.PublicScope(), uuid.New(), "Alice", " \n\t ")
	assert.NoError(t, err)
	assert.Nil(t, msg)

	all, _ := f.store.ListByScope(ctx, models.PublicScope(), 0)
	assert.Empty(t, all)
}

func TestSend_ChannelRequiresMembership(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	ch, _ := f.channels.Create(ctx, "general", alice)
	scope := models.ChannelScope(ch.ID)

	_, err := f.stream.SendText(ctx, scope, bob, "Bob", "hi")
	assert.ErrorIs(t, err, errs.ErrNotMember)

	_, err = f.stream.SendText(ctx, models.ChannelScope(uuid.New()), alice, "Alice", "hi")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	msg, err := f.stream.SendText(ctx, scope, alice, "Alice", "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, models.KindText, msg.Kind)
	assert.Equal(t, scope, msg.Scope)

	_, err = f.stream.List(ctx, scope, bob)
	assert.ErrorIs(t, err, errs.ErrNotMember)
	list, err := f.stream.List(ctx, scope, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSendFileReference(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.stream.SendFileReference(ctx, models.PublicScope(), uuid.New(), "Alice", models.FileRef{})
	var ve *errs.ValidationError
	assert.ErrorAs(t, err, &ve)

	ref := models.FileRef{URL: "mem://blobs/a", Name: "a.png", ContentType: "image/png", Size: 3}
	msg, err := f.stream.SendFileReference(ctx, models.PublicScope(), uuid.New(), "Alice", ref)
	require.NoError(t, err)
	assert.Equal(t, models.KindFile, msg.Kind)
	assert.Equal(t, &ref, msg.File)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	ref := models.FileRef{URL: "mem://blobs/a", Name: "a.png"}

	msg, err := f.stream.SendFileReference(ctx, models.PublicScope(), alice, "Alice", ref)
	require.NoError(t, err)

	assert.ErrorIs(t, f.stream.DeleteMessage(ctx, models.PublicScope(), msg.ID, bob, nil), errs.ErrPermission)
	assert.ErrorIs(t, f.stream.DeleteMessage(ctx, models.PublicScope(), uuid.New(), alice, nil), errs.ErrNotFound)
	assert.Empty(t, f.removed.refs)

	require.NoError(t, f.stream.DeleteMessage(ctx, models.PublicScope(), msg.ID, alice, nil))
	assert.Equal(t, []models.FileRef{ref}, f.removed.refs, "stored ref is used when none is passed")

	left, _ := f.store.ListByScope(ctx, models.PublicScope(), 0)
	assert.Empty(t, left)
}

func TestDeleteMessage_TextHasNoBlob(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice := uuid.New()

	msg, err := f.stream.SendText(ctx, models.PublicScope(), alice, "Alice", "bye")
	require.NoError(t, err)
	require.NoError(t, f.stream.DeleteMessage(ctx, models.PublicScope(), msg.ID, alice, nil))
	assert.Empty(t, f.removed.refs)
}

func TestObserveMessages_ScopeIsolation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	alice := uuid.New()
	ch, _ := f.channels.Create(ctx, "general", alice)

	sub := f.stream.ObserveMessages(ctx, models.ChannelScope(ch.ID))
	defer sub.Close()
	waitFor(t, sub, func(m []models.Message) bool { return len(m) == 0 })

	_, err := f.stream.SendText(ctx, models.PublicScope(), alice, "Alice", "public")
	require.NoError(t, err)
	_, err = f.stream.SendText(ctx, models.ChannelScope(ch.ID), alice, "Alice", "channel")
	require.NoError(t, err)

	got := waitFor(t, sub, func(m []models.Message) bool { return len(m) > 0 })
	assert.Equal(t, []string{"channel"}, bodies(got))
}
