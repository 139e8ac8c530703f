package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TimerStatus defines whether a session clock is running.
type TimerStatus string

const (
	TimerStatusActive TimerStatus = "active"
	TimerStatusPaused TimerStatus = "paused"
)

// TimerCheckpoint is the persisted state of a session clock.
//
// While paused the stored values are exact. While active they are lower
// bounds and the true values are derived from LevelStartTime and StartTime.
// Durations are whole seconds.
type TimerCheckpoint struct {
	SessionID      uuid.UUID   `json:"session_id"`
	Status         TimerStatus `json:"status"`
	CurrentLevel   int         `json:"current_level"`
	TimeRemaining  int64       `json:"time_remaining"`
	TotalElapsed   int64       `json:"total_elapsed"`
	LevelDuration  int64       `json:"level_duration"`
	StartTime      *time.Time  `json:"start_time,omitempty"`
	LevelStartTime *time.Time  `json:"level_start_time,omitempty"`
	PausedAt       *time.Time  `json:"paused_at,omitempty"`
	LastUpdated    time.Time   `json:"last_updated"`
	Version        int64       `json:"version"`
}

// Started reports whether the clock has ever run.
func (c TimerCheckpoint) Started() bool {
	return c.StartTime != nil
}

// TimerAction names a command recorded in the transition log.
type TimerAction string

const (
	TimerActionStart   TimerAction = "start"
	TimerActionPause   TimerAction = "pause"
	TimerActionResume  TimerAction = "resume"
	TimerActionAdvance TimerAction = "level_advance"
	TimerActionReset   TimerAction = "reset"
)

// TimerTransition is one append-only audit entry of a timer command.
type TimerTransition struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   uuid.UUID       `json:"session_id"`
	ActionType  TimerAction     `json:"action_type"`
	FromLevel   int             `json:"from_level"`
	ToLevel     int             `json:"to_level"`
	PerformedBy string          `json:"performed_by"`
	PerformedAt time.Time       `json:"performed_at"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}
