package conferences

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confera/backend/internal/models"
)

// joinCodeAlphabet excludes ambiguous characters (0/O, 1/I/L).
const (
	joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 6
	joinCodeRetries  = 5
)

// Repository handles conference persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a conference repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func newJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}

// Create inserts a new conference in draft status. The join code is generated
// here and retried on the rare collision.
func (r *Repository) Create(ctx context.Context, conf *models.Conference) error {
	const q = `INSERT INTO conferences (id, title, description, status, host_id, host_role, join_code)
		VALUES (gen_random_uuid(), $1, $2, 'draft', $3, $4, $5)
		RETURNING id, status, created_at, updated_at`
	for attempt := 0; attempt < joinCodeRetries; attempt++ {
		code, err := newJoinCode()
		if err != nil {
			return err
		}
		err = r.pool.QueryRow(ctx, q, conf.Title, conf.Description, conf.HostID, conf.HostRole, code).
			Scan(&conf.ID, &conf.Status, &conf.CreatedAt, &conf.UpdatedAt)
		if err == nil {
			conf.JoinCode = code
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue
		}
		return err
	}
	return fmt.Errorf("join code generation exhausted after %d attempts", joinCodeRetries)
}

const confColumns = `id, title, description, status, host_id, host_role, join_code, group_id, created_at, updated_at`

func scanConference(row pgx.Row) (*models.Conference, error) {
	var c models.Conference
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Status, &c.HostID, &c.HostRole, &c.JoinCode, &c.GroupID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID returns a conference by ID, or models.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Conference, error) {
	return scanConference(r.pool.QueryRow(ctx, `SELECT `+confColumns+` FROM conferences WHERE id = $1`, id))
}

// GetByJoinCode returns a conference by its audience join code.
func (r *Repository) GetByJoinCode(ctx context.Context, code string) (*models.Conference, error) {
	return scanConference(r.pool.QueryRow(ctx, `SELECT `+confColumns+` FROM conferences WHERE join_code = $1`, code))
}

// ListByHost returns conferences created by a host, newest first.
func (r *Repository) ListByHost(ctx context.Context, hostID uuid.UUID) ([]models.Conference, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+confColumns+` FROM conferences WHERE host_id = $1 ORDER BY created_at DESC`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Conference
	for rows.Next() {
		var c models.Conference
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Status, &c.HostID, &c.HostRole, &c.JoinCode, &c.GroupID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// Update changes title and description. Ended conferences are immutable.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, title, description string) error {
	const q = `UPDATE conferences SET title = $1, description = $2, updated_at = NOW()
		WHERE id = $3 AND status <> 'ended'`
	tag, err := r.pool.Exec(ctx, q, title, description, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// TransitionStatus moves a conference from one status to another. Returns
// false when the conference was not in the expected status; transitions are
// one-way so this doubles as the idempotency guard.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.ConferenceStatus) (bool, error) {
	const q = `UPDATE conferences SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetGroupID links the discussion group created when the conference ended.
func (r *Repository) SetGroupID(ctx context.Context, id, groupID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE conferences SET group_id = $1, updated_at = NOW() WHERE id = $2`, groupID, id)
	return err
}

// Delete removes a draft conference. Active and ended conferences stay.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM conferences WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AddSpeaker adds a speaker to a conference.
func (r *Repository) AddSpeaker(ctx context.Context, conferenceID, userID uuid.UUID) error {
	const q = `INSERT INTO conference_speakers (conference_id, user_id) VALUES ($1, $2)
		ON CONFLICT (conference_id, user_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, conferenceID, userID)
	return err
}

// ListSpeakers returns the speakers of a conference.
func (r *Repository) ListSpeakers(ctx context.Context, conferenceID uuid.UUID) ([]models.ConferenceSpeaker, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT conference_id, user_id, added_at FROM conference_speakers WHERE conference_id = $1 ORDER BY added_at`, conferenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ConferenceSpeaker
	for rows.Next() {
		var s models.ConferenceSpeaker
		if err := rows.Scan(&s.ConferenceID, &s.UserID, &s.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// IsHostOrSpeaker reports whether the user hosts the conference or is one of
// its speakers.
func (r *Repository) IsHostOrSpeaker(ctx context.Context, conferenceID, userID uuid.UUID) (bool, error) {
	conf, err := r.GetByID(ctx, conferenceID)
	if err != nil {
		return false, err
	}
	if conf.HostID == userID {
		return true, nil
	}
	var exists int
	err = r.pool.QueryRow(ctx,
		`SELECT 1 FROM conference_speakers WHERE conference_id = $1 AND user_id = $2`, conferenceID, userID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
