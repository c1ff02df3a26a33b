package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionStatus is the live-session state of a question.
type QuestionStatus string

const (
	QuestionIdle   QuestionStatus = "idle"
	QuestionActive QuestionStatus = "active"
	QuestionClosed QuestionStatus = "closed"
)

// QuestionOption is one selectable answer. Keys are unique within a question.
type QuestionOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Question represents a multiple-choice question in a conference.
// CorrectOption must match one of the option keys. At most one question per
// conference may be live at a time; that invariant is enforced by the polling
// coordinator, not by the schema.
type Question struct {
	ID               uuid.UUID        `json:"id"`
	ConferenceID     uuid.UUID        `json:"conference_id"`
	DisplayOrder     int              `json:"display_order"`
	Text             string           `json:"text"`
	Options          []QuestionOption `json:"options"`
	CorrectOption    string           `json:"correct_option"`
	SlideIndex       *int             `json:"slide_index,omitempty"`
	IsLive           bool             `json:"is_live"`
	Status           QuestionStatus   `json:"status"`
	CreatedBy        uuid.UUID        `json:"created_by"`
	CreatorRole      Role             `json:"creator_role"`
	FinalCounts      map[string]int   `json:"final_counts,omitempty"`
	FinalPercentages map[string]int   `json:"final_percentages,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// OptionKeys returns the ordered option keys.
func (q *Question) OptionKeys() []string {
	keys := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		keys = append(keys, o.Key)
	}
	return keys
}

// Vote is one durable vote. One per (question, user) pair.
type Vote struct {
	QuestionID uuid.UUID `json:"question_id"`
	UserID     uuid.UUID `json:"user_id"`
	OptionKey  string    `json:"option_key"`
	IsCorrect  bool      `json:"is_correct"`
	CreatedAt  time.Time `json:"created_at"`
}

// QuestionAnalytics aggregates responses for one question.
type QuestionAnalytics struct {
	QuestionID     uuid.UUID      `json:"question_id"`
	ConferenceID   uuid.UUID      `json:"conference_id"`
	TotalResponses int            `json:"total_responses"`
	OptionCounts   map[string]int `json:"option_counts"`
	CorrectCount   int            `json:"correct_count"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
