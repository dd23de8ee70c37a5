package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/models"
)

// These interfaces are the document-store capability the services are
// written against. Implementations live in postgres/ and memory/.
//
// Conventions shared by every implementation:
//   - context.Context first on every method.
//   - Get* returns (nil, nil) when the record does not exist.
//   - Mutations that have a precondition (join, leave, promote) check it and
//     write in one atomic step and report violations with the errs sentinels.
//   - Timestamps and ids are assigned by the store, never by the caller.

// ErrDuplicateEmail is returned by AccountRepository.Create.
var ErrDuplicateEmail = errors.New("email already registered")

// AccountRepository stores identity provider credentials.
type AccountRepository interface {
	Create(ctx context.Context, email, passwordHash string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	SetDisplayName(ctx context.Context, id uuid.UUID, name string) error
}

// UserRepository stores user profiles (users/{userId}).
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)

	// Create inserts p unless a profile with the same id exists, and
	// returns whichever record is stored afterwards.
	Create(ctx context.Context, p models.Profile) (*models.Profile, error)

	UpdateDisplayName(ctx context.Context, userID uuid.UUID, name string) error

	// ListByIDs returns the profiles that exist among ids, in ids order.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Profile, error)
}

// ChannelRepository stores channels with their member and admin sets.
type ChannelRepository interface {
	// Create inserts a channel with members = admins = {creatorID}.
	Create(ctx context.Context, name string, creatorID uuid.UUID) (*models.Channel, error)

	GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error)

	// List returns every channel. Returns an empty slice, never nil.
	List(ctx context.Context) ([]models.Channel, error)

	// AddMember set-adds userID to members.
	// errs.ErrNotFound, errs.ErrAlreadyMember.
	AddMember(ctx context.Context, channelID, userID uuid.UUID) error

	// RemoveMember set-removes userID from members, and from admins too
	// when dropAdmin is set. errs.ErrNotFound, errs.ErrNotMember.
	RemoveMember(ctx context.Context, channelID, userID uuid.UUID, dropAdmin bool) error

	// AddAdmin set-adds targetID to admins if actorID is an admin and
	// targetID is a member and not yet an admin.
	// errs.ErrNotFound, errs.ErrPermission, errs.ErrNotMember, errs.ErrAlreadyAdmin.
	AddAdmin(ctx context.Context, channelID, actorID, targetID uuid.UUID) error
}

// MessageRepository stores the ordered message stream of every scope.
type MessageRepository interface {
	// Append stores msg and returns it with ID, CreatedAt and Seq assigned.
	Append(ctx context.Context, msg models.Message) (*models.Message, error)

	GetByID(ctx context.Context, scope models.Scope, messageID uuid.UUID) (*models.Message, error)

	// ListByScope returns messages in ascending (CreatedAt, Seq) order.
	// limit > 0 keeps only the newest limit messages.
	ListByScope(ctx context.Context, scope models.Scope, limit int) ([]models.Message, error)

	// Delete removes one message. errs.ErrNotFound if absent.
	Delete(ctx context.Context, scope models.Scope, messageID uuid.UUID) error
}
