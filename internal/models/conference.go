package models

import (
	"time"

	"github.com/google/uuid"
)

// ConferenceStatus is the lifecycle state of a conference.
// Transitions are one-way: draft -> active -> ended.
type ConferenceStatus string

const (
	ConferenceDraft  ConferenceStatus = "draft"
	ConferenceActive ConferenceStatus = "active"
	ConferenceEnded  ConferenceStatus = "ended"
)

// Conference represents a live conference session.
// HostID is immutable after creation; JoinCode is generated once and never changes.
type Conference struct {
	ID          uuid.UUID        `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      ConferenceStatus `json:"status"`
	HostID      uuid.UUID        `json:"host_id"`
	HostRole    Role             `json:"host_role"`
	JoinCode    string           `json:"join_code"`
	GroupID     *uuid.UUID       `json:"group_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ConferenceSpeaker links a user as speaker to a conference.
type ConferenceSpeaker struct {
	ConferenceID uuid.UUID `json:"conference_id"`
	UserID       uuid.UUID `json:"user_id"`
	AddedAt      time.Time `json:"added_at"`
}

// Group is the discussion group lazily created when a conference ends.
type Group struct {
	ID           uuid.UUID `json:"id"`
	ConferenceID uuid.UUID `json:"conference_id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}
