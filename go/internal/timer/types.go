package timer

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pokerleague/go/internal/models"
)

// Snapshot is the computed timer state pushed to viewers after every command.
type Snapshot struct {
	SessionID     uuid.UUID          `json:"session_id"`
	State                            // embedded computed values
	LevelDuration int64              `json:"level_duration"`
	Blind         *models.BlindLevel `json:"blind,omitempty"`
	NextBlind     *models.BlindLevel `json:"next_blind,omitempty"`
	Started       bool               `json:"started"`
	ComputedAt    time.Time          `json:"computed_at"`
}

// View is the getState answer: a snapshot plus caller-specific fields.
type View struct {
	Snapshot
	CanMutate  bool      `json:"can_mutate"`
	ServerTime time.Time `json:"server_time"`
}

// AdvanceLevelRequest represents a request to move the clock forward
type AdvanceLevelRequest struct {
	TargetLevel int `json:"target_level"`
}
