package model

import (
	"encoding/json"
	"time"
)

// EventStatus is the lifecycle state stored on an event row. "Ended" is not
// stored; it is derived from EndDate.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
)

// Event is the events row.
type Event struct {
	ID                   string          `json:"id,omitempty"`
	Slug                 string          `json:"slug"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	StartDate            time.Time       `json:"start_date"`
	EndDate              time.Time       `json:"end_date"`
	RegistrationDeadline *time.Time      `json:"registration_deadline"`
	MaxTeamSize          int             `json:"max_team_size"`
	Status               EventStatus     `json:"status"`
	CreatorID            string          `json:"creator_id"`
	CoverImage           *string         `json:"cover_image,omitempty"`
	Requirements         []string        `json:"requirements,omitempty"`
	PrizePool            json.RawMessage `json:"prize_pool,omitempty"`
	CreatedAt            *time.Time      `json:"created_at,omitempty"`
}

// EventPhase is where an event sits relative to a point in time.
type EventPhase string

const (
	PhaseUpcoming EventPhase = "upcoming"
	PhaseLive     EventPhase = "live"
	PhaseEnded    EventPhase = "ended"
)

// PhaseAt derives the phase of e at now.
func (e *Event) PhaseAt(now time.Time) EventPhase {
	switch {
	case now.Before(e.StartDate):
		return PhaseUpcoming
	case now.After(e.EndDate):
		return PhaseEnded
	default:
		return PhaseLive
	}
}

// RegistrationOpenAt reports whether new registrations are accepted at now:
// the event has not started and the deadline, if any, has not passed.
func (e *Event) RegistrationOpenAt(now time.Time) bool {
	if !now.Before(e.StartDate) {
		return false
	}
	if e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline) {
		return false
	}
	return true
}

// EventRegistration is the event_registrations row. (event_id, user_id) is
// unique on the backend.
type EventRegistration struct {
	ID           string     `json:"id,omitempty"`
	EventID      string     `json:"event_id"`
	UserID       string     `json:"user_id"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
}
