package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
)

type MessageStore struct {
	mu     sync.Mutex
	scopes map[models.Scope][]models.Message
	seq    int64
	now    Clock
}

func NewMessageStore(now Clock) *MessageStore {
	if now == nil {
		now = time.Now
	}
	return &MessageStore{scopes: make(map[models.Scope][]models.Message), now: now}
}

func copyMessage(m models.Message) models.Message {
	if m.File != nil {
		f := *m.File
		m.File = &f
	}
	return m
}

func (s *MessageStore) Append(_ context.Context, msg models.Message) (*models.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	msg.ID = uuid.New()
	msg.CreatedAt = s.now()
	msg.Seq = s.seq
	s.scopes[msg.Scope] = append(s.scopes[msg.Scope], copyMessage(msg))

	return &msg, nil
}

func (s *MessageStore) GetByID(_ context.Context, scope models.Scope, messageID uuid.UUID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.scopes[scope] {
		if m.ID == messageID {
			out := copyMessage(m)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MessageStore) ListByScope(_ context.Context, scope models.Scope, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.scopes[scope]
	messages := make([]models.Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, copyMessage(m))
	}
	// Clocks can step backwards; ordering is by timestamp, not insertion.
	sort.SliceStable(messages, func(i, j int) bool { return messages[i].Less(&messages[j]) })

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (s *MessageStore) Delete(_ context.Context, scope models.Scope, messageID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.scopes[scope]
	for i, m := range stored {
		if m.ID == messageID {
			s.scopes[scope] = append(stored[:i:i], stored[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}
