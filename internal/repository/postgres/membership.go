package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
)

// Membership lives on the channel row as two uuid[] columns. Every mutation
// is a single UPDATE whose WHERE clause is the precondition, so the check
// and the write cannot be separated by a concurrent request. When the
// UPDATE matches nothing we re-read the row only to explain why.

func (s *ChannelStore) AddMember(ctx context.Context, channelID, userID uuid.UUID) error {
	query := `
		UPDATE channels
		SET members = array_append(members, $2::uuid)
		WHERE id = $1 AND NOT ($2::uuid = ANY(members))`

	tag, err := s.pool.Exec(ctx, query, channelID, userID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.explain(ctx, channelID, func(ch *models.Channel) error {
		return repository.CheckJoin(ch, userID)
	})
}

func (s *ChannelStore) RemoveMember(ctx context.Context, channelID, userID uuid.UUID, dropAdmin bool) error {
	query := `
		UPDATE channels
		SET members = array_remove(members, $2::uuid),
		    admins  = CASE WHEN $3::boolean THEN array_remove(admins, $2::uuid) ELSE admins END
		WHERE id = $1 AND $2::uuid = ANY(members)`

	tag, err := s.pool.Exec(ctx, query, channelID, userID, dropAdmin)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.explain(ctx, channelID, func(ch *models.Channel) error {
		return repository.CheckLeave(ch, userID)
	})
}

func (s *ChannelStore) AddAdmin(ctx context.Context, channelID, actorID, targetID uuid.UUID) error {
	query := `
		UPDATE channels
		SET admins = array_append(admins, $3::uuid)
		WHERE id = $1
		  AND $2::uuid = ANY(admins)
		  AND $3::uuid = ANY(members)
		  AND NOT ($3::uuid = ANY(admins))`

	tag, err := s.pool.Exec(ctx, query, channelID, actorID, targetID)
	if err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.explain(ctx, channelID, func(ch *models.Channel) error {
		return repository.CheckPromote(ch, actorID, targetID)
	})
}

// explain reloads the channel after a conditional UPDATE matched no row and
// asks check for the reason. A nil result means a concurrent writer got
// there first and then undid it; report the precondition as unmet.
func (s *ChannelStore) explain(ctx context.Context, channelID uuid.UUID, check func(*models.Channel) error) error {
	ch, err := s.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if err := check(ch); err != nil {
		return err
	}
	return fmt.Errorf("channel %s changed concurrently: %w", channelID, errs.ErrConflict)
}
