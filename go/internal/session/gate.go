package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcdev12/pokerleague/go/internal/apperr"
	"github.com/mcdev12/pokerleague/go/internal/models"
)

// SessionReader is the read side of Repository
type SessionReader interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Gate answers status questions for the timer and the ledger without
// depending on the lifecycle App, which itself depends on the timer.
type Gate struct {
	repo SessionReader
}

// NewGate creates a Gate over repo
func NewGate(repo SessionReader) *Gate {
	return &Gate{repo: repo}
}

// GetSession returns the session by ID
func (g *Gate) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := g.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// RequireInProgress returns the session when its live commands are reachable
func (g *Gate) RequireInProgress(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := g.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SessionStatusInProgress {
		return nil, apperr.Wrap(apperr.ErrSessionNotActive, "session %s is %s", id, s.Status)
	}
	return s, nil
}
