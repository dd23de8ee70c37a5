// Package memory implements the repository interfaces in process memory.
// It backs the service tests and the no-database development mode.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

// Clock returns the store's notion of "now" (the serverTimestamp stand-in).
type Clock func() time.Time

type ChannelStore struct {
	mu       sync.Mutex
	channels map[uuid.UUID]*models.Channel
	order    []uuid.UUID
	now      Clock
}

func NewChannelStore(now Clock) *ChannelStore {
	if now == nil {
		now = time.Now
	}
	return &ChannelStore{channels: make(map[uuid.UUID]*models.Channel), now: now}
}

func cloneChannel(ch *models.Channel) models.Channel {
	out := *ch
	out.Members = slices.Clone(ch.Members)
	out.Admins = slices.Clone(ch.Admins)
	out.Normalize()
	return out
}

func (s *ChannelStore) Create(_ context.Context, name string, creatorID uuid.UUID) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := &models.Channel{
		ID:        uuid.New(),
		Name:      name,
		CreatedBy: creatorID,
		CreatedAt: s.now(),
		Members:   []uuid.UUID{creatorID},
		Admins:    []uuid.UUID{creatorID},
	}
	s.channels[ch.ID] = ch
	s.order = append(s.order, ch.ID)

	out := cloneChannel(ch)
	return &out, nil
}

func (s *ChannelStore) GetByID(_ context.Context, channelID uuid.UUID) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return nil, nil
	}
	out := cloneChannel(ch)
	return &out, nil
}

// List returns channels newest first, the same order the postgres store uses.
func (s *ChannelStore) List(_ context.Context) ([]models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := make([]models.Channel, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		channels = append(channels, cloneChannel(s.channels[s.order[i]]))
	}
	return channels, nil
}

// lookup returns the live record or nil. Caller holds mu.
func (s *ChannelStore) lookup(channelID uuid.UUID) *models.Channel {
	ch, ok := s.channels[channelID]
	if !ok {
		return nil
	}
	return ch
}

func (s *ChannelStore) AddMember(_ context.Context, channelID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.lookup(channelID)
	if err := repository.CheckJoin(ch, userID); err != nil {
		return err
	}
	ch.Members = append(ch.Members, userID)
	return nil
}

func (s *ChannelStore) RemoveMember(_ context.Context, channelID, userID uuid.UUID, dropAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.lookup(channelID)
	if err := repository.CheckLeave(ch, userID); err != nil {
		return err
	}
	ch.Members = slices.DeleteFunc(ch.Members, func(id uuid.UUID) bool { return id == userID })
	if dropAdmin {
		ch.Admins = slices.DeleteFunc(ch.Admins, func(id uuid.UUID) bool { return id == userID })
	}
	return nil
}

func (s *ChannelStore) AddAdmin(_ context.Context, channelID, actorID, targetID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.lookup(channelID)
	if err := repository.CheckPromote(ch, actorID, targetID); err != nil {
		return err
	}
	ch.Admins = append(ch.Admins, targetID)
	return nil
}
