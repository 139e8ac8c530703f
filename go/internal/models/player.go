package models

import (
	"time"

	"github.com/google/uuid"
)

// Player represents a league member who can sit at a session table
type Player struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
