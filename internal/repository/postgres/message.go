package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `id, seq, channel_id, sender_id, sender_name, kind, body,
	file_url, file_name, file_type, file_size, created_at`

// scopeArg maps a scope to its channel_id column value. The public feed is
// stored as NULL.
func scopeArg(scope models.Scope) *uuid.UUID {
	if scope.IsPublic() {
		return nil
	}
	id := scope.ChannelID()
	return &id
}

func scanMessage(row scanner) (*models.Message, error) {
	var (
		msg       models.Message
		channelID *uuid.UUID
		fileURL   *string
		fileName  *string
		fileType  *string
		fileSize  *int64
	)
	if err := row.Scan(
		&msg.ID,
		&msg.Seq,
		&channelID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.Kind,
		&msg.Body,
		&fileURL,
		&fileName,
		&fileType,
		&fileSize,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	if channelID != nil {
		msg.Scope = models.ChannelScope(*channelID)
	}
	if fileURL != nil {
		msg.File = &models.FileRef{URL: *fileURL}
		if fileName != nil {
			msg.File.Name = *fileName
		}
		if fileType != nil {
			msg.File.ContentType = *fileType
		}
		if fileSize != nil {
			msg.File.Size = *fileSize
		}
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Append(ctx context.Context, msg models.Message) (*models.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var fileURL, fileName, fileType *string
	var fileSize *int64
	if msg.File != nil {
		fileURL, fileName, fileType = &msg.File.URL, &msg.File.Name, &msg.File.ContentType
		fileSize = &msg.File.Size
	}

	// created_at uses clock_timestamp() so rows inserted in one transaction
	// still get distinct, ordered times. seq breaks any remaining ties.
	query := `
		INSERT INTO messages (channel_id, sender_id, sender_name, kind, body,
			file_url, file_name, file_type, file_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + messageColumns

	out, err := scanMessage(s.pool.QueryRow(ctx, query,
		scopeArg(msg.Scope), msg.SenderID, msg.SenderName, msg.Kind, msg.Body,
		fileURL, fileName, fileType, fileSize,
	))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return out, nil
}

func (s *MessageStore) GetByID(ctx context.Context, scope models.Scope, messageID uuid.UUID) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1 AND channel_id IS NOT DISTINCT FROM $2`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID, scopeArg(scope)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) ListByScope(ctx context.Context, scope models.Scope, limit int) ([]models.Message, error) {
	// With a limit we read the newest rows descending and flip them, so the
	// caller always sees ascending order.
	var (
		query string
		args  []any
	)
	if limit > 0 {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE channel_id IS NOT DISTINCT FROM $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2`
		args = []any{scopeArg(scope), limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE channel_id IS NOT DISTINCT FROM $1
			ORDER BY created_at ASC, seq ASC`
		args = []any{scopeArg(scope)}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if errors.Is(err, models.ErrInvalidMessage) {
			// One bad row is left out of the snapshot instead of failing it.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if limit > 0 {
		slices.Reverse(messages)
	}
	return messages, nil
}

func (s *MessageStore) Delete(ctx context.Context, scope models.Scope, messageID uuid.UUID) error {
	query := `DELETE FROM messages WHERE id = $1 AND channel_id IS NOT DISTINCT FROM $2`

	tag, err := s.pool.Exec(ctx, query, messageID, scopeArg(scope))
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
