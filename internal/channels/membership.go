package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository"
)

type MembershipOptions struct {
	// RetainAdminOnLeave keeps a leaving user in the admin set.
	RetainAdminOnLeave bool

	// OnLeave runs after a successful leave and before the change is
	// published, so live views can move to the public feed first.
	OnLeave func(ctx context.Context, channelID, userID uuid.UUID)
}

// Membership creates channels and changes who is in them. Every successful
// write publishes the channels topic.
type Membership struct {
	channels repository.ChannelRepository
	users    repository.UserRepository
	bus      realtime.Bus
	opts     MembershipOptions
	logger   *zap.Logger
}

func NewMembership(
	channels repository.ChannelRepository,
	users repository.UserRepository,
	bus realtime.Bus,
	opts MembershipOptions,
	logger *zap.Logger,
) *Membership {
	return &Membership{channels: channels, users: users, bus: bus, opts: opts, logger: logger}
}

// ParseChannelID turns user input into a channel id. Blank input is a
// validation error; anything that is not an id cannot name a channel.
func ParseChannelID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, errs.Validation("channel_id", "empty_id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.ErrNotFound
	}
	return id, nil
}

func (m *Membership) CreateChannel(ctx context.Context, name string, creatorID uuid.UUID) (*models.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.Validation("name", "empty_name")
	}

	ch, err := m.channels.Create(ctx, name, creatorID)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	m.logger.Info("channel created",
		zap.String("channel_id", ch.ID.String()),
		zap.String("created_by", creatorID.String()),
	)
	m.publish(ctx)
	return ch, nil
}

func (m *Membership) JoinChannel(ctx context.Context, rawChannelID string, userID uuid.UUID) error {
	channelID, err := ParseChannelID(rawChannelID)
	if err != nil {
		return err
	}
	if err := m.channels.AddMember(ctx, channelID, userID); err != nil {
		return err
	}
	m.publish(ctx)
	return nil
}

// LeaveChannel removes userID from the channel and returns the scope the
// caller should switch to, which is always the public feed.
func (m *Membership) LeaveChannel(ctx context.Context, channelID, userID uuid.UUID) (models.Scope, error) {
	if err := m.channels.RemoveMember(ctx, channelID, userID, !m.opts.RetainAdminOnLeave); err != nil {
		return models.Scope{}, err
	}
	if m.opts.OnLeave != nil {
		m.opts.OnLeave(ctx, channelID, userID)
	}
	m.publish(ctx)
	return models.PublicScope(), nil
}

func (m *Membership) PromoteToAdmin(ctx context.Context, channelID, actorID, targetID uuid.UUID) error {
	if err := m.channels.AddAdmin(ctx, channelID, actorID, targetID); err != nil {
		return err
	}
	m.logger.Info("admin promoted",
		zap.String("channel_id", channelID.String()),
		zap.String("actor_id", actorID.String()),
		zap.String("target_id", targetID.String()),
	)
	m.publish(ctx)
	return nil
}

// ListMembers returns the profiles of a channel's members. Only members
// may list them.
func (m *Membership) ListMembers(ctx context.Context, channelID, actorID uuid.UUID) ([]models.Profile, error) {
	ch, err := m.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return nil, errs.ErrNotFound
	}
	if !ch.IsMember(actorID) {
		return nil, errs.ErrNotMember
	}

	profiles, err := m.users.ListByIDs(ctx, ch.Members)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return profiles, nil
}

// publish failures are logged, not returned: the write already happened
// and observers will catch up on the next change.
func (m *Membership) publish(ctx context.Context) {
	if err := m.bus.Publish(ctx, models.TopicChannels); err != nil {
		m.logger.Warn("failed to publish channel change", zap.Error(err))
	}
}
