package polling

import (
	"time"

	"github.com/google/uuid"
)

// Inbound event names (client -> server).
const (
	EventConferenceJoin  = "conference:join"
	EventConferenceLeave = "conference:leave"
	EventQuestionPush    = "question:push_live"
	EventQuestionClose   = "question:close"
	EventPollJoin        = "poll:join"
	EventPollVote        = "poll:vote"
	EventVoteSubmit      = "vote:submit"
	EventSlideChange     = "presentation:slide_change"
)

// Outbound event names (server -> client).
const (
	EventConferenceJoined = "conference:joined"
	EventAudienceJoined   = "audience:joined"
	EventAudienceLeft     = "audience:left"
	EventAudienceCount    = "audience:count"
	EventQuestionLive     = "question:live"
	EventTimerUpdate      = "question:timer_update"
	EventQuestionClosed   = "question:closed"
	EventPollVoteAccepted = "poll:vote:accepted"
	EventLiveStats        = "poll:live-stats"
	EventVoteAccepted     = "vote:accepted"
	EventVoteResult       = "vote:result"
	EventFinalResult      = "vote:final_result"
	EventSlideUpdate      = "presentation:slide_update"
	EventError            = "error"
)

// ParticipantRole is the realtime-layer role. The REST layer distinguishes
// speakers; the socket protocol only knows host vs audience.
type ParticipantRole string

const (
	RoleHost     ParticipantRole = "HOST"
	RoleAudience ParticipantRole = "AUDIENCE"
)

// Room returns the hub room key for a conference.
func Room(conferenceID uuid.UUID) string {
	return conferenceID.String()
}

// HostRoom returns the host-only sub-room key for a conference.
func HostRoom(conferenceID uuid.UUID) string {
	return conferenceID.String() + ":host"
}

// Inbound payloads.

type ConferenceRef struct {
	ConferenceID uuid.UUID `json:"conference_id"`
}

type QuestionRef struct {
	ConferenceID uuid.UUID `json:"conference_id"`
	QuestionID   uuid.UUID `json:"question_id"`
}

type PushLivePayload struct {
	ConferenceID uuid.UUID `json:"conference_id"`
	QuestionID   uuid.UUID `json:"question_id"`
	Duration     int       `json:"duration,omitempty"`
}

type VotePayload struct {
	ConferenceID uuid.UUID `json:"conference_id"`
	QuestionID   uuid.UUID `json:"question_id"`
	OptionKey    string    `json:"option_key"`
}

type SubmitVotePayload struct {
	ConferenceID   uuid.UUID `json:"conference_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
}

type SlideChangePayload struct {
	ConferenceID uuid.UUID `json:"conference_id"`
	SlideIndex   int       `json:"slide_index"`
}

// Outbound payloads.

// LiveSnapshot is the live-question view sent to joining participants and in
// question:live broadcasts. The correct option is never included here.
type LiveSnapshot struct {
	QuestionID    uuid.UUID     `json:"question_id"`
	QuestionText  string        `json:"question_text"`
	Options       []OptionView  `json:"options"`
	Duration      int           `json:"duration"`
	TimeRemaining int           `json:"time_remaining"`
	StartedAt     time.Time     `json:"started_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	SlideIndex    *int          `json:"slide_index,omitempty"`
}

type OptionView struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type JoinedPayload struct {
	ConferenceID  uuid.UUID       `json:"conference_id"`
	Status        string          `json:"status"`
	Role          ParticipantRole `json:"role"`
	AudienceCount int             `json:"audience_count"`
	LiveQuestion  *LiveSnapshot   `json:"live_question,omitempty"`
}

type AudiencePayload struct {
	ConferenceID uuid.UUID `json:"conference_id"`
	UserID       uuid.UUID `json:"user_id,omitempty"`
	Count        int       `json:"count"`
}

type TimerUpdatePayload struct {
	QuestionID    uuid.UUID `json:"question_id"`
	TimeRemaining int       `json:"time_remaining"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type QuestionClosedPayload struct {
	QuestionID uuid.UUID `json:"question_id"`
	Reason     string    `json:"reason"`
	ClosedAt   time.Time `json:"closed_at"`
}

// OptionStat is one option's live tally.
type OptionStat struct {
	Count      int `json:"count"`
	Percentage int `json:"percentage"`
}

// LiveStatsPayload goes to the host room only.
type LiveStatsPayload struct {
	QuestionID   uuid.UUID             `json:"question_id"`
	Participants int                   `json:"participants"`
	TotalVotes   int                   `json:"total_votes"`
	Results      map[string]OptionStat `json:"results"`
}

type PollVoteAcceptedPayload struct {
	QuestionID uuid.UUID `json:"question_id"`
	OptionKey  string    `json:"option_key"`
}

type VoteAcceptedPayload struct {
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
}

// VoteResultPayload is the whole-room running tally; the correct answer is
// not revealed until close.
type VoteResultPayload struct {
	QuestionID   uuid.UUID      `json:"question_id"`
	TotalVotes   int            `json:"total_votes"`
	OptionCounts map[string]int `json:"option_counts"`
}

// FinalResultPayload reveals the correct option; broadcast once on close.
type FinalResultPayload struct {
	QuestionID          uuid.UUID      `json:"question_id"`
	TotalVotes          int            `json:"total_votes"`
	OptionCounts        map[string]int `json:"option_counts"`
	CorrectOption       string         `json:"correct_option"`
	CorrectCount        int            `json:"correct_count"`
	PercentageBreakdown map[string]int `json:"percentage_breakdown"`
}

type SlideUpdatePayload struct {
	ConferenceID uuid.UUID `json:"conference_id"`
	SlideIndex   int       `json:"slide_index"`
}

type ErrorPayload struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
