package events

import (
	"time"
)

// Event payload types shared between the engines and the gateway

// TimerActionPayload is the payload for started, paused and resumed events
type TimerActionPayload struct {
	Action      string    `json:"action"`
	Level       int       `json:"level"`
	PerformedBy string    `json:"performed_by"`
	At          time.Time `json:"at"`
}

// LevelChangedPayload is the payload for a level-changed event
type LevelChangedPayload struct {
	FromLevel   int       `json:"from_level"`
	ToLevel     int       `json:"to_level"`
	SmallBlind  int       `json:"small_blind"`
	BigBlind    int       `json:"big_blind"`
	Ante        int       `json:"ante,omitempty"`
	Duration    int       `json:"duration"`
	PerformedBy string    `json:"performed_by"`
	At          time.Time `json:"at"`
}

// EliminationDeletedPayload is the payload for an elimination-deleted event
type EliminationDeletedPayload struct {
	EliminationID string `json:"elimination_id"`
	Position      int    `json:"position"`
	WinnerCleared bool   `json:"winner_cleared"`
}

// SyncTimePayload answers a viewer clock reading. Both values are unix milliseconds.
type SyncTimePayload struct {
	ServerTime int64 `json:"serverTime"`
	ClientTime int64 `json:"clientTime"`
}

// ErrorPayload reports a rejected client message
type ErrorPayload struct {
	Message string `json:"message"`
}
