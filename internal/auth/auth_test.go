package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/repository/memory"
)

const testSecret = "test-secret"

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newTestProvider(t *testing.T) (*Provider, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	p := NewProvider(
		memory.NewAccountStore(clock.Now),
		NewMemoryRevocations(clock.Now),
		ProviderOptions{Secret: testSecret, TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost, Now: clock.Now},
		zap.NewNop(),
	)
	return p, clock
}

func TestParseToken(t *testing.T) {
	now := time.Now()
	userID := uuid.New()
	token, claims, err := GenerateToken(userID, "a@x.com", testSecret, time.Hour, now)
	require.NoError(t, err)

	got, err := ParseToken(token, testSecret, nil)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, claims.ID, got.ID)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := ParseToken(token, "other", nil)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := ParseToken(token, testSecret, func() time.Time { return now.Add(2 * time.Hour) })
		assert.Error(t, err)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
		s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = ParseToken(s, testSecret, nil)
		assert.Error(t, err)
	})
}

func TestProvider_SignUpErrors(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "taken@x.com", "secret1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		want     errs.IdentityCode
	}{
		{name: "malformed email", email: "not-an-email", password: "secret1", want: errs.InvalidEmail},
		{name: "empty email", email: "  ", password: "secret1", want: errs.InvalidEmail},
		{name: "short password", email: "new@x.com", password: "12345", want: errs.WeakPassword},
		{name: "email in use", email: "TAKEN@x.com", password: "secret1", want: errs.EmailInUse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.SignUp(ctx, tt.email, tt.password)
			code, ok := errs.IdentityCodeOf(err)
			require.True(t, ok, "want IdentityError, got %v", err)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestProvider_SignInDoesNotEnumerate(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "alice@x.com", "secret1")
	require.NoError(t, err)

	_, wrongPassword := p.SignIn(ctx, "alice@x.com", "nope123")
	_, unknownEmail := p.SignIn(ctx, "bob@x.com", "secret1")

	for _, err := range []error{wrongPassword, unknownEmail} {
		code, ok := errs.IdentityCodeOf(err)
		require.True(t, ok)
		assert.Equal(t, errs.InvalidCredential, code)
	}
	assert.Equal(t, errs.Message(wrongPassword), errs.Message(unknownEmail))

	id, err := p.SignIn(ctx, "alice@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, id.Token)
}

func TestProvider_VerifyAndSignOut(t *testing.T) {
	p, clock := newTestProvider(t)
	ctx := context.Background()

	id, err := p.SignUp(ctx, "alice@x.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, p.SetDisplayName(ctx, id.UserID, "Alice"))

	restored, err := p.Verify(ctx, id.Token)
	require.NoError(t, err)
	assert.Equal(t, id.UserID, restored.UserID)
	assert.Equal(t, "Alice", restored.DisplayName)

	require.NoError(t, p.SignOut(ctx, id.Token))
	_, err = p.Verify(ctx, id.Token)
	code, _ := errs.IdentityCodeOf(err)
	assert.Equal(t, errs.InvalidCredential, code)

	other, err := p.SignIn(ctx, "alice@x.com", "secret1")
	require.NoError(t, err)
	clock.t = clock.t.Add(2 * time.Hour)
	_, err = p.Verify(ctx, other.Token)
	code, _ = errs.IdentityCodeOf(err)
	assert.Equal(t, errs.InvalidCredential, code)

	assert.NoError(t, p.SignOut(ctx, "garbage"))
}

func TestRedisRevocations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	defer client.Close()

	r := NewRedisRevocations(client, "huddle:")
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	revoked, err := r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, mr.Exists("huddle:revoked:jti-1"))

	mr.FastForward(2 * time.Minute)
	revoked, err = r.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, "jti-2", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists("huddle:revoked:jti-2"))
}

func TestMemoryRevocations_Expire(t *testing.T) {
	clock := &testClock{t: time.Now()}
	r := NewMemoryRevocations(clock.Now)
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "a", clock.t.Add(time.Minute)))
	revoked, _ := r.IsRevoked(ctx, "a")
	assert.True(t, revoked)

	clock.t = clock.t.Add(time.Hour)
	revoked, _ = r.IsRevoked(ctx, "a")
	assert.False(t, revoked)
}
