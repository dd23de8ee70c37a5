package channels

import (
	"context"
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

type fixture struct {
	bus        *realtime.MemoryBus
	store      *memory.ChannelStore
	users      *memory.UserStore
	directory  *Directory
	membership *Membership
}

func newFixture(t *testing.T, opts MembershipOptions) *fixture {
	t.Helper()
	bus := realtime.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })
	store := memory.NewChannelStore(nil)
	users := memory.NewUserStore(nil)
	return &fixture{
		bus:        bus,
		store:      store,
		users:      users,
		directory:  NewDirectory(store, bus, zap.NewNop()),
		membership: NewMembership(store, users, bus, opts, zap.NewNop()),
	}
}

func next[T any](t *testing.T, sub *subscription.Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.Updates():
		require.True(t, ok, "stream ended: %v", sub.Err())
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

func assertAdminsSubsetOfMembers(t *testing.T, ch *models.Channel) {
	t.Helper()
	for _, a := range ch.Admins {
		assert.Contains(t, ch.Members, a, "admin %s is not a member", a)
	}
}

func TestCreateChannel(t *testing.T) {
	f := newFixture(t, MembershipOptions{RetainAdminOnLeave: true})
	ctx := context.Background()
	alice := uuid.New()

	ch, err := f.membership.CreateChannel(ctx, "  general  ", alice)
	require.NoError(t, err)
	assert.Equal(t, "general", ch.Name)
	assert.Equal(t, []uuid.UUID{alice}, ch.Members)
	assert.Equal(t, []uuid.UUID{alice}, ch.Admins)
	assertAdminsSubsetOfMembers(t, ch)

	_, err = f.membership.CreateChannel(ctx, "   ", alice)
	var ve *errs.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "empty_name", ve.Reason)
}

func TestJoinChannel_Errors(t *testing.T) {
	f := newFixture(t, MembershipOptions{RetainAdminOnLeave: true})
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	ch, err := f.membership.CreateChannel(ctx, "general", alice)
	require.NoError(t, err)

	tests := []struct {
		name  string
		rawID string
		check func(t *testing.T, err error)
	}{
		{name: "blank id", rawID: " ", check: func(t *testing.T, err error) {
			var ve *errs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "empty_id", ve.Reason)
		}},
		{name: "not an id", rawID: "general", check: func(t *testing.T, err error) {
			assert.ErrorIs(t, err, errs.ErrNotFound)
		}},
		{name: "unknown id", rawID: uuid.NewString(), check: func(t *testing.T, err error) {
			assert.ErrorIs(t, err, errs.ErrNotFound)
		}},
		{name: "creator is already a member", rawID: ch.ID.String(), check: func(t *testing.T, err error) {
			assert.ErrorIs(t, err, errs.ErrAlreadyMember)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			joiner := bob
			if tt.name == "creator is already a member" {
				joiner = alice
			}
			tt.check(t, f.membership.JoinChannel(ctx, tt.rawID, joiner))
		})
	}
}

func TestDoubleJoinLeavesMembersUnchanged(t *testing.T) {
	f := newFixture(t, MembershipOptions{RetainAdminOnLeave: true})
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	ch, _ := f.membership.CreateChannel(ctx, "general", alice)

	require.NoError(t, f.membership.JoinChannel(ctx, ch.ID.String(), bob))
	before, _ := f.directory.Get(ctx, ch.ID)

	assert.ErrorIs(t, f.membership.JoinChannel(ctx, ch.ID.String(), bob), errs.ErrAlreadyMember)
	after, _ := f.directory.Get(ctx, ch.ID)
	assert.Equal(t, before.Members, after.Members)
	assertAdminsSubsetOfMembers(t, after)
}

func TestPromoteToAdmin(t *testing.T) {
	f := newFixture(t, MembershipOptions{RetainAdminOnLeave: true})
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	ch, _ := f.membership.CreateChannel(ctx, "general", alice)
	require.NoError(t, f.membership.JoinChannel(ctx, ch.ID.String(), bob))

	assert.ErrorIs(t, f.membership.PromoteToAdmin(ctx, ch.ID, bob, bob), errs.ErrPermission)
	assert.ErrorIs(t, f.membership.PromoteToAdmin(ctx, ch.ID, alice, carol), errs.ErrNotMember)
	require.NoError(t, f.membership.PromoteToAdmin(ctx, ch.ID, alice, bob))
	assert.ErrorIs(t, f.membership.PromoteToAdmin(ctx, ch.ID, alice, bob), errs.ErrAlreadyAdmin)
	assert.ErrorIs(t, f.membership.PromoteToAdmin(ctx, uuid.New(), alice, bob), errs.ErrNotFound)

	got, _ := f.directory.Get(ctx, ch.ID)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, got.Admins)
	assertAdminsSubsetOfMembers(t, got)
}

func TestLeaveChannel_AdminRetention(t *testing.T) {
	tests := []struct {
		name       string
		retain     bool
		wantAdmins int
	}{
		{name: "retain", retain: true, wantAdmins: 1},
		{name: "drop", retain: false, wantAdmins: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, MembershipOptions{RetainAdminOnLeave: tt.retain})
			ctx := context.Background()
			alice := uuid.New()
			ch, _ := f.membership.CreateChannel(ctx, "general", alice)

			scope, err := f.membership.LeaveChannel(ctx, ch.ID, alice)
			require.NoError(t, err)
			assert.True(t, scope.IsPublic())

			got, _ := f.directory.Get(ctx, ch.ID)
			assert.Empty(t, got.Members)
			assert.Len(t, got.Admins, tt.wantAdmins)

			_, err = f.membership.LeaveChannel(ctx, ch.ID, alice)
			assert.ErrorIs(t, err, errs.ErrNotMember)
		})
	}
}

func TestLeaveChannel_OnLeaveRunsBeforePublish(t *testing.T) {
	ctx := context.Background()
	var (
		calls      int
		gotChannel uuid.UUID
		gotUser    uuid.UUID
		published  bool
		listener   realtime.Listener
	)
	f := newFixture(t, MembershipOptions{
		RetainAdminOnLeave: true,
		OnLeave: func(_ context.Context, channelID, userID uuid.UUID) {
			calls++
			gotChannel, gotUser = channelID, userID
			select {
			case <-listener.C():
				published = true
			default:
			}
		},
	})

	alice := uuid.New()
	ch, err := f.membership.CreateChannel(ctx, "general", alice)
	require.NoError(t, err)
	listener, err = f.bus.Subscribe(ctx, models.TopicChannels)
	require.NoError(t, err)
	defer listener.Close()

	_, err = f.membership.LeaveChannel(ctx, ch.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ch.ID, gotChannel)
	assert.Equal(t, alice, gotUser)
	assert.False(t, published, "change published before OnLeave ran")

	select {
	case <-listener.C():
	case <-time.After(2 * time.Second):
		t.Fatal("leave was not published")
	}

	_, err = f.membership.LeaveChannel(ctx, ch.ID, alice)
	assert.ErrorIs(t, err, errs.ErrNotMember)
	assert.Equal(t, 1, calls)
}

func TestJoinLeaveScenarioResetsSelection(t *testing.T) {
	f := newFixture(t, MembershipOptions{RetainAdminOnLeave: true})
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	c, err := f.membership.CreateChannel(ctx, "general", a)
	require.NoError(t, err)

	sub := f.directory.ObserveChannels(ctx, b)
	defer sub.Close()
	selection := RepairSelection(models.PublicScope(), next(t, sub))
	assert.True(t, selection.IsPublic())

	require.NoError(t, f.membership.JoinChannel(ctx, c.ID.String(), b))
	set := next(t, sub)
	require.Len(t, set, 1)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, set[0].Members)
	selection = models.ChannelScope(c.ID)
	assert.Equal(t, selection, RepairSelection(selection, set))

	_, err = f.membership.LeaveChannel(ctx, c.ID, b)
	require.NoError(t, err)
	set = next(t, sub)
	assert.Empty(t, set)
	assert.True(t, RepairSelection(selection, set).IsPublic())

	got, _ := f.directory.Get(ctx, c.ID)
	assert.Equal(t, []uuid.UUID{a}, got.Members)
}

func TestObserveChannels_FiltersOtherUsersChanges(t *testing.T) {
	f := newFixture(t, MembershipOptions{RetainAdminOnLeave: true})
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	mine, _ := f.membership.CreateChannel(ctx, "mine", alice)

	sub := f.directory.ObserveChannels(ctx, alice)
	defer sub.Close()
	require.Len(t, next(t, sub), 1)

	_, err := f.membership.CreateChannel(ctx, "theirs", bob)
	require.NoError(t, err)
	set := next(t, sub)
	require.Len(t, set, 1)
	assert.Equal(t, mine.ID, set[0].ID)
}

func TestObserveAdminChannels(t *testing.T) {
	f := newFixture(t, MembershipOptions{RetainAdminOnLeave: true})
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	ch, _ := f.membership.CreateChannel(ctx, "general", alice)
	require.NoError(t, f.membership.JoinChannel(ctx, ch.ID.String(), bob))

	sub := f.directory.ObserveAdminChannels(ctx, bob)
	defer sub.Close()
	assert.Empty(t, next(t, sub))

	require.NoError(t, f.membership.PromoteToAdmin(ctx, ch.ID, alice, bob))
	set := next(t, sub)
	require.Len(t, set, 1)
	assert.Equal(t, ch.ID, set[0].ID)
}

func TestObserveChannels_CloseReleasesListener(t *testing.T) {
	f := newFixture(t, MembershipOptions{})
	sub := f.directory.ObserveChannels(context.Background(), uuid.New())
	next(t, sub)
	assert.Equal(t, 1, f.bus.ListenerCount(models.TopicChannels))

	sub.Close()
	assert.Eventually(t, func() bool {
		return f.bus.ListenerCount(models.TopicChannels) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRepairSelection(t *testing.T) {
	c1 := models.Channel{ID: uuid.New()}
	c2 := models.Channel{ID: uuid.New()}
	gone := models.ChannelScope(uuid.New())

	tests := []struct {
		name     string
		selected models.Scope
		set      []models.Channel
		want     models.Scope
	}{
		{name: "still present", selected: models.ChannelScope(c2.ID), set: []models.Channel{c1, c2}, want: models.ChannelScope(c2.ID)},
		{name: "gone picks first", selected: gone, set: []models.Channel{c1, c2}, want: models.ChannelScope(c1.ID)},
		{name: "gone with empty set", selected: gone, set: nil, want: models.PublicScope()},
		{name: "public stays public", selected: models.PublicScope(), set: []models.Channel{c1}, want: models.PublicScope()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RepairSelection(tt.selected, tt.set))
		})
	}
}

func TestListMembers(t *testing.T) {
	f := newFixture(t, MembershipOptions{RetainAdminOnLeave: true})
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	_, _ = f.users.Create(ctx, models.Profile{ID: alice, DisplayName: "Alice"})
	_, _ = f.users.Create(ctx, models.Profile{ID: bob, DisplayName: "Bob"})

	ch, _ := f.membership.CreateChannel(ctx, "general", alice)
	require.NoError(t, f.membership.JoinChannel(ctx, ch.ID.String(), bob))

	members, err := f.membership.ListMembers(ctx, ch.ID, bob)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Alice", members[0].DisplayName)
	assert.Equal(t, "Bob", members[1].DisplayName)

	_, err = f.membership.ListMembers(ctx, ch.ID, carol)
	assert.ErrorIs(t, err, errs.ErrNotMember)
	_, err = f.membership.ListMembers(ctx, uuid.New(), alice)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
