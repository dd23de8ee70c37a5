// Package channels owns channel listing, membership changes and the rule
// that keeps a client's selection pointing at something it can see.
package channels

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/subscription"
)

type Directory struct {
	channels repository.ChannelRepository
	bus      realtime.Bus
	logger   *zap.Logger
}

func NewDirectory(channels repository.ChannelRepository, bus realtime.Bus, logger *zap.Logger) *Directory {
	return &Directory{channels: channels, bus: bus, logger: logger}
}

// ObserveChannels streams the channels userID is a member of. Every change
// to any channel produces a fresh, filtered snapshot.
func (d *Directory) ObserveChannels(ctx context.Context, userID uuid.UUID) *subscription.Subscription[[]models.Channel] {
	return realtime.Watch(ctx, d.bus, models.TopicChannels, "channels", func(ctx context.Context) ([]models.Channel, error) {
		return d.list(ctx, func(ch *models.Channel) bool { return ch.IsMember(userID) })
	})
}

// ObserveAdminChannels streams the channels userID administers, whether or
// not they are still a member.
func (d *Directory) ObserveAdminChannels(ctx context.Context, userID uuid.UUID) *subscription.Subscription[[]models.Channel] {
	return realtime.Watch(ctx, d.bus, models.TopicChannels, "admin channels", func(ctx context.Context) ([]models.Channel, error) {
		return d.list(ctx, func(ch *models.Channel) bool { return ch.IsAdmin(userID) })
	})
}

// MemberChannels is the one-shot form of ObserveChannels.
func (d *Directory) MemberChannels(ctx context.Context, userID uuid.UUID) ([]models.Channel, error) {
	return d.list(ctx, func(ch *models.Channel) bool { return ch.IsMember(userID) })
}

// AdminChannels is the one-shot form of ObserveAdminChannels.
func (d *Directory) AdminChannels(ctx context.Context, userID uuid.UUID) ([]models.Channel, error) {
	return d.list(ctx, func(ch *models.Channel) bool { return ch.IsAdmin(userID) })
}

// Get returns one channel or errs.ErrNotFound.
func (d *Directory) Get(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := d.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return nil, errs.ErrNotFound
	}
	return ch, nil
}

func (d *Directory) list(ctx context.Context, keep func(*models.Channel) bool) ([]models.Channel, error) {
	all, err := d.channels.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	out := make([]models.Channel, 0, len(all))
	for i := range all {
		if keep(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// RepairSelection returns the scope a client should show after receiving
// set. A selected channel that is still in set stays selected. One that is
// gone is replaced by the first channel in set, or the public feed when set
// is empty. The public feed itself is always available and never repaired.
func RepairSelection(selected models.Scope, set []models.Channel) models.Scope {
	if selected.IsPublic() {
		return selected
	}
	for i := range set {
		if set[i].ID == selected.ChannelID() {
			return selected
		}
	}
	if len(set) > 0 {
		return models.ChannelScope(set[0].ID)
	}
	return models.PublicScope()
}
