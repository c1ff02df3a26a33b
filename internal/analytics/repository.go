package analytics

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/confera/backend/internal/models"
)

// Repository handles per-question response analytics.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert writes a question's aggregated responses, replacing any prior row.
func (r *Repository) Upsert(ctx context.Context, a *models.QuestionAnalytics) error {
	counts, err := json.Marshal(a.OptionCounts)
	if err != nil {
		return err
	}
	const q = `INSERT INTO question_analytics (question_id, conference_id, total_responses, option_counts, correct_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (question_id) DO UPDATE
		SET total_responses = EXCLUDED.total_responses,
		    option_counts = EXCLUDED.option_counts,
		    correct_count = EXCLUDED.correct_count,
		    updated_at = NOW()`
	_, err = r.pool.Exec(ctx, q, a.QuestionID, a.ConferenceID, a.TotalResponses, counts, a.CorrectCount)
	return err
}

const analyticsColumns = `question_id, conference_id, total_responses, option_counts, correct_count, updated_at`

func scanAnalytics(row pgx.Row) (*models.QuestionAnalytics, error) {
	var a models.QuestionAnalytics
	var counts []byte
	err := row.Scan(&a.QuestionID, &a.ConferenceID, &a.TotalResponses, &counts, &a.CorrectCount, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(counts, &a.OptionCounts); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByQuestion returns one question's analytics, or models.ErrNotFound.
func (r *Repository) GetByQuestion(ctx context.Context, questionID uuid.UUID) (*models.QuestionAnalytics, error) {
	return scanAnalytics(r.pool.QueryRow(ctx,
		`SELECT `+analyticsColumns+` FROM question_analytics WHERE question_id = $1`, questionID))
}

// ListByConference returns analytics for every closed question in a
// conference, in the questions' display order.
func (r *Repository) ListByConference(ctx context.Context, conferenceID uuid.UUID) ([]models.QuestionAnalytics, error) {
	const q = `SELECT a.question_id, a.conference_id, a.total_responses, a.option_counts, a.correct_count, a.updated_at
		FROM question_analytics a
		JOIN questions q ON q.id = a.question_id
		WHERE a.conference_id = $1
		ORDER BY q.display_order, q.created_at`
	rows, err := r.pool.Query(ctx, q, conferenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.QuestionAnalytics
	for rows.Next() {
		a, err := scanAnalytics(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// ConferenceSummary is the roll-up across a conference's questions.
type ConferenceSummary struct {
	ConferenceID   uuid.UUID `json:"conference_id"`
	QuestionCount  int       `json:"question_count"`
	TotalResponses int       `json:"total_responses"`
	CorrectCount   int       `json:"correct_count"`
}

// Summary aggregates response totals across a conference.
func (r *Repository) Summary(ctx context.Context, conferenceID uuid.UUID) (*ConferenceSummary, error) {
	const q = `SELECT COUNT(*), COALESCE(SUM(total_responses), 0), COALESCE(SUM(correct_count), 0)
		FROM question_analytics WHERE conference_id = $1`
	s := &ConferenceSummary{ConferenceID: conferenceID}
	err := r.pool.QueryRow(ctx, q, conferenceID).Scan(&s.QuestionCount, &s.TotalResponses, &s.CorrectCount)
	if err != nil {
		return nil, err
	}
	return s, nil
}
