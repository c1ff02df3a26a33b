package questions

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confera/backend/internal/models"
)

// Repository handles question persistence. It also backs the polling core's
// durable question lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a questions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new question in idle status.
func (r *Repository) Create(ctx context.Context, q *models.Question) error {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	const query = `INSERT INTO questions (id, conference_id, display_order, text, options, correct_option, slide_index, created_by, creator_role)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, status, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, q.ConferenceID, q.DisplayOrder, q.Text, opts, q.CorrectOption, q.SlideIndex, q.CreatedBy, q.CreatorRole).
		Scan(&q.ID, &q.Status, &q.CreatedAt, &q.UpdatedAt)
}

const questionColumns = `id, conference_id, display_order, text, options, correct_option, slide_index, is_live, status, created_by, creator_role, final_counts, final_percentages, created_at, updated_at`

func scanQuestion(row pgx.Row) (*models.Question, error) {
	var q models.Question
	var opts []byte
	var finalCounts, finalPcts []byte
	err := row.Scan(&q.ID, &q.ConferenceID, &q.DisplayOrder, &q.Text, &opts, &q.CorrectOption, &q.SlideIndex,
		&q.IsLive, &q.Status, &q.CreatedBy, &q.CreatorRole, &finalCounts, &finalPcts, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(opts, &q.Options); err != nil {
		return nil, err
	}
	if len(finalCounts) > 0 {
		if err := json.Unmarshal(finalCounts, &q.FinalCounts); err != nil {
			return nil, err
		}
	}
	if len(finalPcts) > 0 {
		if err := json.Unmarshal(finalPcts, &q.FinalPercentages); err != nil {
			return nil, err
		}
	}
	return &q, nil
}

// GetByID returns a question by ID, or models.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return scanQuestion(r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
}

// GetBySlide returns the question mapped to a slide index. When several map
// to the same slide the lowest display_order wins.
func (r *Repository) GetBySlide(ctx context.Context, conferenceID uuid.UUID, slideIndex int) (*models.Question, error) {
	const q = `SELECT ` + questionColumns + ` FROM questions
		WHERE conference_id = $1 AND slide_index = $2
		ORDER BY display_order LIMIT 1`
	return scanQuestion(r.pool.QueryRow(ctx, q, conferenceID, slideIndex))
}

// ListByConference returns a conference's questions in display order.
func (r *Repository) ListByConference(ctx context.Context, conferenceID uuid.UUID) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE conference_id = $1 ORDER BY display_order, created_at`, conferenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *q)
	}
	return list, rows.Err()
}

// Update rewrites a question's editable fields. Live questions are immutable;
// the WHERE clause is the last line of defense behind the handler check.
func (r *Repository) Update(ctx context.Context, q *models.Question) error {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	const query = `UPDATE questions
		SET display_order = $1, text = $2, options = $3, correct_option = $4, slide_index = $5, updated_at = NOW()
		WHERE id = $6 AND is_live = FALSE`
	tag, err := r.pool.Exec(ctx, query, q.DisplayOrder, q.Text, opts, q.CorrectOption, q.SlideIndex, q.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a question that is not live.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1 AND is_live = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetLiveStatus flips the durable live flag and session status.
func (r *Repository) SetLiveStatus(ctx context.Context, id uuid.UUID, live bool, status models.QuestionStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE questions SET is_live = $1, status = $2, updated_at = NOW() WHERE id = $3`, live, status, id)
	return err
}

// SaveFinalResults stores a closed question's tallies and marks it closed.
func (r *Repository) SaveFinalResults(ctx context.Context, id uuid.UUID, counts, percentages map[string]int) error {
	rawCounts, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	rawPcts, err := json.Marshal(percentages)
	if err != nil {
		return err
	}
	const q = `UPDATE questions
		SET final_counts = $1, final_percentages = $2, is_live = FALSE, status = 'closed', updated_at = NOW()
		WHERE id = $3`
	_, err = r.pool.Exec(ctx, q, rawCounts, rawPcts, id)
	return err
}
