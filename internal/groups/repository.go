package groups

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confera/backend/internal/models"
)

// Repository handles discussion-group persistence. Groups are provisioned
// lazily when a conference ends.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a groups repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Provision creates the conference's discussion group if it does not exist
// yet and returns it. Safe to call repeatedly; the unique constraint on
// conference_id makes this idempotent.
func (r *Repository) Provision(ctx context.Context, conferenceID uuid.UUID, name string) (*models.Group, error) {
	const ins = `INSERT INTO groups (id, conference_id, name) VALUES (gen_random_uuid(), $1, $2)
		ON CONFLICT (conference_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, ins, conferenceID, name); err != nil {
		return nil, err
	}
	return r.GetByConference(ctx, conferenceID)
}

// GetByConference returns the conference's group, or models.ErrNotFound.
func (r *Repository) GetByConference(ctx context.Context, conferenceID uuid.UUID) (*models.Group, error) {
	var g models.Group
	err := r.pool.QueryRow(ctx,
		`SELECT id, conference_id, name, created_at FROM groups WHERE conference_id = $1`, conferenceID).
		Scan(&g.ID, &g.ConferenceID, &g.Name, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}
