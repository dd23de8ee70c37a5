package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/huddle/internal/models"
)

type ChannelStore struct {
	pool *pgxpool.Pool
}

func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

const channelColumns = `id, name, created_by, created_at, members, admins`

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (*models.Channel, error) {
	var ch models.Channel
	if err := row.Scan(
		&ch.ID,
		&ch.Name,
		&ch.CreatedBy,
		&ch.CreatedAt,
		&ch.Members,
		&ch.Admins,
	); err != nil {
		return nil, err
	}
	ch.Normalize()
	return &ch, nil
}

func (s *ChannelStore) Create(ctx context.Context, name string, creatorID uuid.UUID) (*models.Channel, error) {
	// The creator goes into both sets in the same INSERT, so there is no
	// moment where the channel exists without an admin.
	query := `
		INSERT INTO channels (name, created_by, members, admins)
		VALUES ($1, $2::uuid, ARRAY[$2::uuid], ARRAY[$2::uuid])
		RETURNING ` + channelColumns

	ch, err := scanChannel(s.pool.QueryRow(ctx, query, name, creatorID))
	if err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`

	ch, err := scanChannel(s.pool.QueryRow(ctx, query, channelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) List(ctx context.Context) ([]models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]models.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	return channels, nil
}
