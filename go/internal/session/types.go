package session

import (
	"time"

	"github.com/google/uuid"
)

// CreateSessionRequest represents a request to schedule a new session
type CreateSessionRequest struct {
	ID           uuid.UUID  `json:"id"`
	TournamentID *uuid.UUID `json:"tournament_id"`
	Name         string     `json:"name"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
}

// BlindLevelInput is one level of a configured blind schedule
type BlindLevelInput struct {
	Level      int `json:"level"       yaml:"level"`
	SmallBlind int `json:"small_blind" yaml:"small_blind"`
	BigBlind   int `json:"big_blind"   yaml:"big_blind"`
	Ante       int `json:"ante"        yaml:"ante"`
	Duration   int `json:"duration"    yaml:"duration"`
}

// ConfigureSessionRequest sets the field size and blind schedule
type ConfigureSessionRequest struct {
	TotalPlayers int               `json:"total_players"`
	Levels       []BlindLevelInput `json:"levels"`
}
