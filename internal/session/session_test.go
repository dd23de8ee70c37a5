package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository/memory"
	"github.com/lalith-99/huddle/internal/subscription"
)

func newProvider() *auth.Provider {
	return auth.NewProvider(
		memory.NewAccountStore(nil),
		auth.NewMemoryRevocations(nil),
		auth.ProviderOptions{Secret: "s", TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost},
		zap.NewNop(),
	)
}

func next[T any](t *testing.T, sub *subscription.Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.Updates():
		require.True(t, ok, "stream ended")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	var zero T
	return zero
}

func TestManager_RegisterResolvesUsername(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserStore(nil)
	m := NewManager(newProvider(), users, zap.NewNop())

	sub := m.Observe()
	defer sub.Close()
	assert.False(t, next(t, sub).Authenticated)

	state, err := m.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", state.DisplayName)

	observed := next(t, sub)
	assert.True(t, observed.Authenticated)
	assert.Equal(t, "Alice", observed.DisplayName)
	assert.Equal(t, state.UserID, observed.UserID)

	profile, err := users.GetByID(ctx, state.UserID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Alice", profile.DisplayName)
}

func TestManager_RegisterValidation(t *testing.T) {
	m := NewManager(newProvider(), memory.NewUserStore(nil), zap.NewNop())

	_, err := m.Register(context.Background(), "a@x.com", "secret1", "   ")
	var ve *errs.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = m.Register(context.Background(), "a@x.com", "123", "Al")
	code, ok := errs.IdentityCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.WeakPassword, code)
	assert.False(t, m.Current().Authenticated)
}

func TestManager_LoginCreatesDefaultProfile(t *testing.T) {
	ctx := context.Background()
	provider := newProvider()
	users := memory.NewUserStore(nil)

	id, err := provider.SignUp(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)

	m := NewManager(provider, users, zap.NewNop())
	state, err := m.Login(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, DefaultUsername(id.UserID), state.DisplayName)
	assert.Equal(t, "User_"+id.UserID.String()[:5], state.DisplayName)

	profile, _ := users.GetByID(ctx, id.UserID)
	require.NotNil(t, profile)
	assert.Equal(t, state.DisplayName, profile.DisplayName)
}

func TestManager_RestoreAndLogout(t *testing.T) {
	ctx := context.Background()
	provider := newProvider()
	users := memory.NewUserStore(nil)

	first := NewManager(provider, users, zap.NewNop())
	registered, err := first.Register(ctx, "carol@example.com", "secret1", "Carol")
	require.NoError(t, err)

	second := NewManager(provider, users, zap.NewNop())
	restored, err := second.Restore(ctx, registered.Token)
	require.NoError(t, err)
	assert.Equal(t, "Carol", restored.DisplayName)

	sub := second.Observe()
	defer sub.Close()
	assert.True(t, next(t, sub).Authenticated)

	require.NoError(t, second.Logout(ctx))
	assert.False(t, next(t, sub).Authenticated)
	assert.Equal(t, State{}, second.Current())

	_, err = NewManager(provider, users, zap.NewNop()).Restore(ctx, registered.Token)
	code, _ := errs.IdentityCodeOf(err)
	assert.Equal(t, errs.InvalidCredential, code)
}

func TestManager_ExpireSignsOutLocally(t *testing.T) {
	ctx := context.Background()
	provider := newProvider()
	users := memory.NewUserStore(nil)

	registered, err := NewManager(provider, users, zap.NewNop()).Register(ctx, "dan@example.com", "secret1", "Dan")
	require.NoError(t, err)

	m := NewManager(provider, users, zap.NewNop())
	_, err = m.Restore(ctx, registered.Token)
	require.NoError(t, err)
	sub := m.Observe()
	defer sub.Close()
	assert.True(t, next(t, sub).Authenticated)

	m.Expire()
	assert.False(t, next(t, sub).Authenticated)
	assert.Equal(t, State{}, m.Current())

	// The provider was not asked to revoke anything.
	_, err = NewManager(provider, users, zap.NewNop()).Restore(ctx, registered.Token)
	assert.NoError(t, err)
}

type failingUsers struct {
	*memory.UserStore
}

func (f *failingUsers) GetByID(context.Context, uuid.UUID) (*models.Profile, error) {
	return nil, errors.New("store down")
}

func TestResolveDisplayName_Fallbacks(t *testing.T) {
	ctx := context.Background()
	broken := &failingUsers{UserStore: memory.NewUserStore(nil)}

	assert.Equal(t, "Provider Name",
		ResolveDisplayName(ctx, broken, auth.Identity{UserID: uuid.New(), DisplayName: "Provider Name"}, zap.NewNop()))
	assert.Equal(t, anonymousName,
		ResolveDisplayName(ctx, broken, auth.Identity{UserID: uuid.New()}, zap.NewNop()))
}

func TestManager_CloseEndsObservers(t *testing.T) {
	m := NewManager(newProvider(), memory.NewUserStore(nil), zap.NewNop())
	sub := m.Observe()
	next(t, sub)

	m.Close()
	_, ok := <-sub.Updates()
	assert.False(t, ok)
	sub.Close()
}
