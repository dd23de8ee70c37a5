// Package messages is the ordered message stream of the public feed and of
// each channel.
package messages

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
	"github.com/lalith-99/huddle/internal/subscription"
)

// DefaultHistoryLimit caps how many of the newest messages a snapshot holds.
const DefaultHistoryLimit = 500

// BlobRemover deletes the stored file behind a file message. Failures are
// the remover's to log; message deletion never fails because of them.
type BlobRemover interface {
	DeleteBlob(ctx context.Context, ref models.FileRef)
}

type Options struct {
	HistoryLimit int
}

type Stream struct {
	messages repository.MessageRepository
	channels repository.ChannelRepository
	blobs    BlobRemover
	bus      realtime.Bus
	limit    int
	logger   *zap.Logger
}

func NewStream(
	messages repository.MessageRepository,
	channels repository.ChannelRepository,
	blobs BlobRemover,
	bus realtime.Bus,
	opts Options,
	logger *zap.Logger,
) *Stream {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return &Stream{
		messages: messages,
		channels: channels,
		blobs:    blobs,
		bus:      bus,
		limit:    opts.HistoryLimit,
		logger:   logger,
	}
}

// ObserveMessages streams full snapshots of scope in ascending timestamp
// order, reloaded on every change to the scope.
func (s *Stream) ObserveMessages(ctx context.Context, scope models.Scope) *subscription.Subscription[[]models.Message] {
	return realtime.Watch(ctx, s.bus, scope.Topic(), "messages", func(ctx context.Context) ([]models.Message, error) {
		return s.messages.ListByScope(ctx, scope, s.limit)
	})
}

// List is the one-shot form of ObserveMessages for a user allowed to read
// scope.
func (s *Stream) List(ctx context.Context, scope models.Scope, userID uuid.UUID) ([]models.Message, error) {
	if err := s.Authorize(ctx, scope, userID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByScope(ctx, scope, s.limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Authorize reports whether userID may read and write scope. Everyone may
// use the public feed; a channel needs membership.
func (s *Stream) Authorize(ctx context.Context, scope models.Scope, userID uuid.UUID) error {
	if scope.IsPublic() {
		return nil
	}
	ch, err := s.channels.GetByID(ctx, scope.ChannelID())
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return errs.ErrNotFound
	}
	if !ch.IsMember(userID) {
		return errs.ErrNotMember
	}
	return nil
}

// SendText appends a text message. A body that is blank after trimming is
// ignored and (nil, nil) is returned.
func (s *Stream) SendText(ctx context.Context, scope models.Scope, senderID uuid.UUID, senderName, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	return s.send(ctx, models.Message{
		Scope:      scope,
		SenderID:   senderID,
		SenderName: senderName,
		Kind:       models.KindText,
		Body:       body,
	})
}

// SendFileReference appends a file message for an uploaded blob.
func (s *Stream) SendFileReference(ctx context.Context, scope models.Scope, senderID uuid.UUID, senderName string, ref models.FileRef) (*models.Message, error) {
	if ref.URL == "" {
		return nil, errs.Validation("file", "empty_file_url")
	}
	return s.send(ctx, models.Message{
		Scope:      scope,
		SenderID:   senderID,
		SenderName: senderName,
		Kind:       models.KindFile,
		File:       &ref,
	})
}

func (s *Stream) send(ctx context.Context, msg models.Message) (*models.Message, error) {
	if err := s.Authorize(ctx, msg.Scope, msg.SenderID); err != nil {
		return nil, err
	}

	stored, err := s.messages.Append(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	s.publish(ctx, msg.Scope)
	return stored, nil
}

// DeleteMessage removes one of actorID's own messages. The blob behind
// fileRef, or behind the stored message when fileRef is nil, is deleted
// afterwards on a best-effort basis.
func (s *Stream) DeleteMessage(ctx context.Context, scope models.Scope, messageID, actorID uuid.UUID, fileRef *models.FileRef) error {
	msg, err := s.messages.GetByID(ctx, scope, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return errs.ErrNotFound
	}
	if msg.SenderID != actorID {
		return errs.ErrPermission
	}

	if err := s.messages.Delete(ctx, scope, messageID); err != nil {
		return err
	}
	s.publish(ctx, scope)

	ref := fileRef
	if ref == nil {
		ref = msg.File
	}
	if ref != nil && s.blobs != nil {
		s.blobs.DeleteBlob(ctx, *ref)
	}
	return nil
}

func (s *Stream) publish(ctx context.Context, scope models.Scope) {
	if err := s.bus.Publish(ctx, scope.Topic()); err != nil {
		s.logger.Warn("failed to publish message change",
			zap.String("scope", scope.String()), zap.Error(err))
	}
}
