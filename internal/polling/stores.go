package polling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/confera/backend/internal/models"
)

// ConferenceStore is the durable-store view the polling core needs.
// Implemented by the conferences repository; return models.ErrNotFound for
// missing records.
type ConferenceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conference, error)
}

// QuestionStore is the durable-store view for questions.
type QuestionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	// GetBySlide returns the question mapped to a slide index, or models.ErrNotFound.
	GetBySlide(ctx context.Context, conferenceID uuid.UUID, slideIndex int) (*models.Question, error)
	SetLiveStatus(ctx context.Context, id uuid.UUID, live bool, status models.QuestionStatus) error
}

// Finalization carries a closed question's final tallies to durable storage.
type Finalization struct {
	ConferenceID  uuid.UUID
	QuestionID    uuid.UUID
	Reason        string
	TotalVotes    int
	OptionCounts  map[string]int
	Percentages   map[string]int
	CorrectOption string
	CorrectCount  int
	ClosedAt      time.Time
}

// FinalizeSink persists a closed question's results. Called fire-and-forget
// relative to the closure broadcast; failures are logged, never re-raised to
// the live protocol.
type FinalizeSink interface {
	FinalizeQuestion(ctx context.Context, f Finalization) error
}
