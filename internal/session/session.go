// Package session tracks one client's authentication state and resolves
// the display name the rest of the app shows for that user.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/auth"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/subscription"
)

const anonymousName = "Anonymous User"

// IdentityProvider is the part of auth.Provider the session needs.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (auth.Identity, error)
	SignIn(ctx context.Context, email, password string) (auth.Identity, error)
	SignOut(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (auth.Identity, error)
	SetDisplayName(ctx context.Context, userID uuid.UUID, name string) error
}

// State is the session as observers see it. The zero value is signed out.
type State struct {
	Authenticated bool      `json:"authenticated"`
	UserID        uuid.UUID `json:"user_id,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	Email         string    `json:"email,omitempty"`
	Token         string    `json:"-"`
}

type Manager struct {
	provider IdentityProvider
	users    repository.UserRepository
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	observers map[*subscription.Subscription[State]]struct{}
}

func NewManager(provider IdentityProvider, users repository.UserRepository, logger *zap.Logger) *Manager {
	return &Manager{
		provider:  provider,
		users:     users,
		logger:    logger,
		observers: make(map[*subscription.Subscription[State]]struct{}),
	}
}

// Register signs up, stores the profile under username and sets the
// provider display name to match.
func (m *Manager) Register(ctx context.Context, email, password, username string) (State, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return State{}, errs.Validation("username", "empty_username")
	}

	id, err := m.provider.SignUp(ctx, email, password)
	if err != nil {
		return State{}, err
	}

	if _, err := m.users.Create(ctx, models.Profile{ID: id.UserID, DisplayName: username, Email: id.Email}); err != nil {
		return State{}, fmt.Errorf("create profile: %w", err)
	}
	if err := m.provider.SetDisplayName(ctx, id.UserID, username); err != nil {
		m.logger.Warn("failed to set provider display name",
			zap.String("user_id", id.UserID.String()), zap.Error(err))
	}
	id.DisplayName = username

	return m.become(ctx, id), nil
}

func (m *Manager) Login(ctx context.Context, email, password string) (State, error) {
	id, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return State{}, err
	}
	return m.become(ctx, id), nil
}

// Restore resumes a session from a previously issued token.
func (m *Manager) Restore(ctx context.Context, token string) (State, error) {
	id, err := m.provider.Verify(ctx, token)
	if err != nil {
		return State{}, err
	}
	return m.become(ctx, id), nil
}

// Logout revokes the current token and moves to the signed-out state.
// The local state is cleared even when revocation fails.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	token := m.state.Token
	m.mu.Unlock()

	var err error
	if token != "" {
		err = m.provider.SignOut(ctx, token)
	}
	m.transition(State{})
	return err
}

// Expire moves to the signed-out state without contacting the provider. It
// is for a token that was already revoked through another path.
func (m *Manager) Expire() {
	m.transition(State{})
}

func (m *Manager) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Observe delivers the current state immediately, then every transition.
func (m *Manager) Observe() *subscription.Subscription[State] {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sub *subscription.Subscription[State]
	sub = subscription.New[State](func() {
		m.mu.Lock()
		delete(m.observers, sub)
		m.mu.Unlock()
		sub.End()
	})
	m.observers[sub] = struct{}{}
	sub.Send(m.state)
	return sub
}

// Close ends every observer stream.
func (m *Manager) Close() {
	m.mu.Lock()
	observers := m.observers
	m.observers = make(map[*subscription.Subscription[State]]struct{})
	m.mu.Unlock()

	for sub := range observers {
		sub.End()
	}
}

func (m *Manager) become(ctx context.Context, id auth.Identity) State {
	state := State{
		Authenticated: true,
		UserID:        id.UserID,
		DisplayName:   ResolveDisplayName(ctx, m.users, id, m.logger),
		Email:         id.Email,
		Token:         id.Token,
	}
	m.transition(state)
	return state
}

func (m *Manager) transition(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = state
	for sub := range m.observers {
		sub.Send(state)
	}
}

// DefaultUsername is the name given to a profile created on first login.
func DefaultUsername(userID uuid.UUID) string {
	return "User_" + userID.String()[:5]
}

// ResolveDisplayName reads the user's profile, creating a default one when
// absent. A failed read falls back to the provider's display name.
func ResolveDisplayName(ctx context.Context, users repository.UserRepository, id auth.Identity, logger *zap.Logger) string {
	profile, err := users.GetByID(ctx, id.UserID)
	if err != nil {
		logger.Error("failed to load profile",
			zap.String("user_id", id.UserID.String()), zap.Error(err))
		if id.DisplayName != "" {
			return id.DisplayName
		}
		return anonymousName
	}
	if profile != nil {
		return profile.DisplayName
	}

	name := id.DisplayName
	if name == "" {
		name = DefaultUsername(id.UserID)
	}
	created, err := users.Create(ctx, models.Profile{ID: id.UserID, DisplayName: name, Email: id.Email})
	if err != nil {
		logger.Error("failed to create default profile",
			zap.String("user_id", id.UserID.String()), zap.Error(err))
		return name
	}
	return created.DisplayName
}
