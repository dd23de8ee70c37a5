package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
)

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `SELECT id, display_name, email, created_at FROM users WHERE id = $1`

	var p models.Profile
	err := s.pool.QueryRow(ctx, query, userID).Scan(&p.ID, &p.DisplayName, &p.Email, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &p, nil
}

// Create inserts the profile if absent. ON CONFLICT DO NOTHING returns no
// row for an existing id, so that case falls through to a read.
func (s *UserStore) Create(ctx context.Context, p models.Profile) (*models.Profile, error) {
	query := `
		INSERT INTO users (id, display_name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
		RETURNING id, display_name, email, created_at`

	var out models.Profile
	err := s.pool.QueryRow(ctx, query, p.ID, p.DisplayName, p.Email).Scan(
		&out.ID, &out.DisplayName, &out.Email, &out.CreatedAt,
	)
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	existing, err := s.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("insert user %s: row vanished after conflict", p.ID)
	}
	return existing, nil
}

func (s *UserStore) UpdateDisplayName(ctx context.Context, userID uuid.UUID, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET display_name = $2 WHERE id = $1`, userID, name)
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *UserStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Profile, error) {
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}

	query := `
		SELECT u.id, u.display_name, u.email, u.created_at
		FROM unnest($1::uuid[]) WITH ORDINALITY AS want(id, ord)
		JOIN users u ON u.id = want.id
		ORDER BY want.ord`

	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	profiles := make([]models.Profile, 0, len(ids))
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Email, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return profiles, nil
}
