package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/repository"
)

// MinPasswordLength is the shortest password SignUp accepts.
const MinPasswordLength = 6

// Identity is an authenticated user as the provider sees them.
type Identity struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ProviderOptions struct {
	Secret   string
	TokenTTL time.Duration

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Now        func() time.Time
}

// Provider implements sign-up, sign-in, sign-out and token verification
// over an account repository. It keeps no per-session state.
type Provider struct {
	accounts    repository.AccountRepository
	revocations Revocations
	validate    *validator.Validate
	secret      string
	ttl         time.Duration
	cost        int
	now         func() time.Time
	logger      *zap.Logger
}

func NewProvider(accounts repository.AccountRepository, revocations Revocations, opts ProviderOptions, logger *zap.Logger) *Provider {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TokenTTL == 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	return &Provider{
		accounts:    accounts,
		revocations: revocations,
		validate:    validator.New(),
		secret:      opts.Secret,
		ttl:         opts.TokenTTL,
		cost:        opts.BcryptCost,
		now:         opts.Now,
		logger:      logger,
	}
}

func (p *Provider) checkEmail(email string) error {
	if err := p.validate.Var(email, "required,email"); err != nil {
		return errs.Identity(errs.InvalidEmail, nil)
	}
	return nil
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(email)
	if err := p.checkEmail(email); err != nil {
		return Identity{}, err
	}
	if len(password) < MinPasswordLength {
		return Identity{}, errs.Identity(errs.WeakPassword, nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return Identity{}, errs.Identity(errs.IdentityOther, fmt.Errorf("hash password: %w", err))
	}

	account, err := p.accounts.Create(ctx, email, string(hash))
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return Identity{}, errs.Identity(errs.EmailInUse, nil)
		}
		p.logger.Error("failed to create account", zap.Error(err))
		return Identity{}, errs.Identity(errs.IdentityOther, err)
	}

	return p.issue(account.ID, account.Email, account.DisplayName)
}

// SignIn reports invalid_credential for both an unknown email and a wrong
// password so callers cannot discover which emails are registered.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(email)
	if err := p.checkEmail(email); err != nil {
		return Identity{}, err
	}

	account, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		p.logger.Error("failed to look up account", zap.Error(err))
		return Identity{}, errs.Identity(errs.IdentityOther, err)
	}
	if account == nil {
		return Identity{}, errs.Identity(errs.InvalidCredential, nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Identity{}, errs.Identity(errs.InvalidCredential, nil)
	}

	return p.issue(account.ID, account.Email, account.DisplayName)
}

// SignOut revokes token until it expires. A token that no longer verifies
// has nothing left to revoke.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := ParseToken(token, p.secret, p.now)
	if err != nil {
		return nil
	}
	if err := p.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return errs.Identity(errs.IdentityOther, err)
	}
	return nil
}

// Verify restores an identity from a token. Expired, tampered and revoked
// tokens fail with invalid_credential.
func (p *Provider) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := ParseToken(token, p.secret, p.now)
	if err != nil {
		return Identity{}, errs.Identity(errs.InvalidCredential, err)
	}

	revoked, err := p.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Identity{}, errs.Identity(errs.IdentityOther, err)
	}
	if revoked {
		return Identity{}, errs.Identity(errs.InvalidCredential, errors.New("token revoked"))
	}

	account, err := p.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		return Identity{}, errs.Identity(errs.IdentityOther, err)
	}
	if account == nil {
		return Identity{}, errs.Identity(errs.InvalidCredential, errors.New("account no longer exists"))
	}

	return Identity{
		UserID:      account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Token:       token,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

func (p *Provider) SetDisplayName(ctx context.Context, userID uuid.UUID, name string) error {
	if err := p.accounts.SetDisplayName(ctx, userID, name); err != nil {
		return fmt.Errorf("set display name: %w", err)
	}
	return nil
}

func (p *Provider) issue(userID uuid.UUID, email, displayName string) (Identity, error) {
	token, claims, err := GenerateToken(userID, email, p.secret, p.ttl, p.now())
	if err != nil {
		return Identity{}, errs.Identity(errs.IdentityOther, err)
	}
	return Identity{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		Token:       token,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
