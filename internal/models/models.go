package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the stored record for a user (users/{userId}).
//
// The ID is the identity provider's user id. DisplayName is mutable and is
// copied into every message at send time, so old messages keep the name the
// sender had back then.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

// Channel is a named chat room with its member and admin sets.
//
// Members and Admins are sets stored as arrays. Admins ⊆ Members holds after
// create, join and promote. Leave may leave an admin entry behind, depending
// on configuration.
type Channel struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	CreatedBy uuid.UUID   `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	Members   []uuid.UUID `json:"members"`
	Admins    []uuid.UUID `json:"admins"`
}

// IsMember reports whether userID is in the member set.
func (c *Channel) IsMember(userID uuid.UUID) bool {
	return slices.Contains(c.Members, userID)
}

// IsAdmin reports whether userID is in the admin set.
func (c *Channel) IsAdmin(userID uuid.UUID) bool {
	return slices.Contains(c.Admins, userID)
}

// Normalize upgrades a record read from the store: nil sets become empty
// and duplicate ids are dropped, keeping first-seen order.
func (c *Channel) Normalize() {
	c.Members = dedupe(c.Members)
	c.Admins = dedupe(c.Admins)
}

// UnmarshalJSON accepts the legacy "admin" field as an alias for "admins".
func (c *Channel) UnmarshalJSON(data []byte) error {
	type plain Channel
	aux := struct {
		*plain
		Admin []uuid.UUID `json:"admin"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(c.Admins) == 0 && len(aux.Admin) > 0 {
		c.Admins = aux.Admin
	}
	c.Normalize()
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// MessageKind tags the payload a Message carries.
type MessageKind string

const (
	KindText MessageKind = "text"
	KindFile MessageKind = "file"
)

// FileRef is the retrievable descriptor produced by a finished upload.
type FileRef struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Message is one entry in a scope's ordered stream.
//
// CreatedAt is assigned by the store and is the ordering key. Seq is the
// store's insertion sequence and only breaks ties between equal timestamps.
type Message struct {
	ID         uuid.UUID   `json:"id"`
	Scope      Scope       `json:"scope"`
	SenderID   uuid.UUID   `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Kind       MessageKind `json:"kind"`
	Body       string      `json:"body,omitempty"`
	File       *FileRef    `json:"file,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Seq        int64       `json:"-"`
}

var ErrInvalidMessage = errors.New("invalid message record")

// Validate checks the kind-specific payload of a record read from the store.
func (m *Message) Validate() error {
	switch m.Kind {
	case KindText:
		if m.File != nil {
			return fmt.Errorf("%w: text message %s carries a file", ErrInvalidMessage, m.ID)
		}
	case KindFile:
		if m.File == nil || m.File.URL == "" {
			return fmt.Errorf("%w: file message %s has no url", ErrInvalidMessage, m.ID)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	return nil
}

// Less orders messages by timestamp, then by store sequence.
func (m *Message) Less(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}

// Scope is a message destination: the public feed or one channel.
// The zero value is the public feed.
type Scope struct {
	channel uuid.UUID
}

const publicScopeName = "public"

// PublicScope returns the public feed scope.
func PublicScope() Scope { return Scope{} }

// ChannelScope returns the scope of a channel's message stream.
func ChannelScope(id uuid.UUID) Scope { return Scope{channel: id} }

// IsPublic reports whether s is the public feed.
func (s Scope) IsPublic() bool { return s.channel == uuid.Nil }

// ChannelID returns the channel id, uuid.Nil for the public feed.
func (s Scope) ChannelID() uuid.UUID { return s.channel }

// String returns "public" or the channel id.
func (s Scope) String() string {
	if s.IsPublic() {
		return publicScopeName
	}
	return s.channel.String()
}

// Topic is the change-notification topic for messages in s.
func (s Scope) Topic() string {
	return "messages." + s.String()
}

// ParseScope parses the String form. Empty input means public.
func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == publicScopeName {
		return PublicScope(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Scope{}, fmt.Errorf("parse scope %q: %w", raw, err)
	}
	return ChannelScope(id), nil
}

func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TopicChannels is the change-notification topic for all channel records.
const TopicChannels = "channels"

// Account is an identity provider credential record. It is separate from
// Profile: the provider owns email and password, the profile is app data.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
