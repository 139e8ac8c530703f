package models

import (
	"time"

	"github.com/google/uuid"
)

// EliminationKind separates knockouts from the winner entry.
type EliminationKind string

const (
	EliminationKindEliminated EliminationKind = "eliminated"
	EliminationKindWon        EliminationKind = "won"
)

// EliminationRecord is one finishing position recorded during a session.
// The position 1 record stores the winner as both eliminated and eliminator.
type EliminationRecord struct {
	ID                 uuid.UUID  `json:"id"`
	SessionID          uuid.UUID  `json:"session_id"`
	Position           int        `json:"position"`
	Points             int        `json:"points"`
	EliminatedPlayerID uuid.UUID  `json:"eliminated_player_id"`
	EliminatorPlayerID *uuid.UUID `json:"eliminator_player_id,omitempty"`
	EliminationTime    time.Time  `json:"elimination_time"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Kind derives whether the record is a knockout or the win.
func (r EliminationRecord) Kind() EliminationKind {
	if r.Position == 1 {
		return EliminationKindWon
	}
	return EliminationKindEliminated
}
