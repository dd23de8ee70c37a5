package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

type UserStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]models.Profile
	now      Clock
}

func NewUserStore(now Clock) *UserStore {
	if now == nil {
		now = time.Now
	}
	return &UserStore{profiles: make(map[uuid.UUID]models.Profile), now: now}
}

func (s *UserStore) GetByID(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *UserStore) Create(_ context.Context, p models.Profile) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[p.ID]; ok {
		return &existing, nil
	}
	p.CreatedAt = s.now()
	s.profiles[p.ID] = p
	return &p, nil
}

func (s *UserStore) UpdateDisplayName(_ context.Context, userID uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return errs.ErrNotFound
	}
	p.DisplayName = name
	s.profiles[userID] = p
	return nil
}

func (s *UserStore) ListByIDs(_ context.Context, ids []uuid.UUID) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type AccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]models.Account
	byEmail  map[string]uuid.UUID
	now      Clock
}

func NewAccountStore(now Clock) *AccountStore {
	if now == nil {
		now = time.Now
	}
	return &AccountStore{
		accounts: make(map[uuid.UUID]models.Account),
		byEmail:  make(map[string]uuid.UUID),
		now:      now,
	}
}

// Emails compare case-insensitively, matching the citext-free lower()
// index the postgres store uses.
func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AccountStore) Create(_ context.Context, email, passwordHash string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(email)
	if _, taken := s.byEmail[key]; taken {
		return nil, repository.ErrDuplicateEmail
	}
	a := models.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	}
	s.accounts[a.ID] = a
	s.byEmail[key] = a.ID
	return &a, nil
}

func (s *AccountStore) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, nil
	}
	a := s.accounts[id]
	return &a, nil
}

func (s *AccountStore) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *AccountStore) SetDisplayName(_ context.Context, id uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return errs.ErrNotFound
	}
	a.DisplayName = name
	s.accounts[id] = a
	return nil
}
