package elimination

import (
	"github.com/google/uuid"
	"github.com/mcdev12/pokerleague/go/internal/models"
)

// RegisterRequest records the next finishing position of a session.
// Points are always computed; there is no way to supply them.
type RegisterRequest struct {
	Position           int        `json:"position"`
	EliminatedPlayerID uuid.UUID  `json:"eliminated_player_id"`
	EliminatorPlayerID *uuid.UUID `json:"eliminator_player_id"`
}

// UpdateRequest reassigns the players of the latest record. Position and
// Points are accepted only so that attempts to change them can be rejected.
type UpdateRequest struct {
	EliminatedPlayerID *uuid.UUID `json:"eliminated_player_id"`
	EliminatorPlayerID *uuid.UUID `json:"eliminator_player_id"`
	Position           *int       `json:"position,omitempty"`
	Points             *int       `json:"points,omitempty"`
}

// View is a record with player names for display
type View struct {
	models.EliminationRecord
	Kind                 models.EliminationKind `json:"kind"`
	EliminatedPlayerName string                 `json:"eliminated_player_name"`
	EliminatorPlayerName string                 `json:"eliminator_player_name,omitempty"`
}

// Standing is one player's result in a session
type Standing struct {
	PlayerID   uuid.UUID `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Position   int       `json:"position"`
	Points     int       `json:"points"`
}

// Standings summarizes a session's ledger
type Standings struct {
	SessionID          uuid.UUID  `json:"session_id"`
	TotalPlayers       int        `json:"total_players"`
	PlayersRemaining   int        `json:"players_remaining"`
	NextPosition       int        `json:"next_position"`
	WinnerPlayerID     *uuid.UUID `json:"winner_player_id,omitempty"`
	ChampionTierPoints int        `json:"champion_tier_points"`
	PointsTable        []int      `json:"points_table,omitempty"` // indexed by position-1
	Results            []Standing `json:"results"`
}
