package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-gigs/backend/internal/models"
)

// Repository handles participant persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a participant by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	const q = `SELECT id, secret_hash, created_at, last_seen_at FROM participants WHERE id = $1`
	var p models.Participant
	if err := r.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.SecretHash, &p.CreatedAt, &p.LastSeenAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a participant with the given device secret hash.
func (r *Repository) Create(ctx context.Context, secretHash string) (*models.Participant, error) {
	const q = `INSERT INTO participants (secret_hash) VALUES ($1)
		RETURNING id, secret_hash, created_at, last_seen_at`
	var p models.Participant
	if err := r.pool.QueryRow(ctx, q, secretHash).Scan(&p.ID, &p.SecretHash, &p.CreatedAt, &p.LastSeenAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Touch records that a participant resumed its identity.
func (r *Repository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE participants SET last_seen_at = NOW() WHERE id = $1`, id)
	return err
}
