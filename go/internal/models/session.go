package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the lifecycle status of a session.
type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "scheduled"
	SessionStatusConfigured SessionStatus = "configured"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// Ended reports whether the session can no longer change.
func (s SessionStatus) Ended() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// Session represents one live tournament night.
type Session struct {
	ID             uuid.UUID     `json:"id"`
	TournamentID   *uuid.UUID    `json:"tournament_id,omitempty"`
	Name           string        `json:"name"`
	Status         SessionStatus `json:"status"`
	TotalPlayers   int           `json:"total_players"`
	WinnerPlayerID *uuid.UUID    `json:"winner_player_id,omitempty"`
	ScheduledAt    *time.Time    `json:"scheduled_at,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// BlindLevel is one step of a session's blind schedule.
// Duration is in minutes; 0 means the level runs until advanced by hand.
type BlindLevel struct {
	SessionID  uuid.UUID `json:"session_id"`
	Level      int       `json:"level"`
	SmallBlind int       `json:"small_blind"`
	BigBlind   int       `json:"big_blind"`
	Ante       int       `json:"ante,omitempty"`
	Duration   int       `json:"duration"`
}

// Unlimited reports whether the level has no countdown.
func (b BlindLevel) Unlimited() bool {
	return b.Duration == 0
}

// DurationSeconds returns the level length in seconds.
func (b BlindLevel) DurationSeconds() int64 {
	return int64(b.Duration) * 60
}
