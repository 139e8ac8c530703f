// Package seed bulk-loads players and a configured session with its blind
// structure straight into Postgres.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/pokerleague/go/internal/apperr"
	"github.com/mcdev12/pokerleague/go/internal/models"
	"github.com/mcdev12/pokerleague/go/internal/session"
)

// Player is one roster entry of a seed file
type Player struct {
	ID   uuid.UUID `yaml:"id"`
	Name string    `yaml:"name"`
}

// Session describes the session the blind structure belongs to
type Session struct {
	ID           uuid.UUID `yaml:"id"`
	Name         string    `yaml:"name"`
	TotalPlayers int       `yaml:"total_players"`
}

// File is the YAML layout read by Load
type File struct {
	Session Session                   `yaml:"session"`
	Players []Player                  `yaml:"players"`
	Levels  []session.BlindLevelInput `yaml:"levels"`
}

// Result counts what Apply wrote
type Result struct {
	SessionID       uuid.UUID
	PlayersInserted int
	PlayersSkipped  int
	Levels          int
}

// Load reads and validates a seed file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the file before anything is written
func (f *File) Validate() error {
	f.Session.Name = strings.TrimSpace(f.Session.Name)
	if f.Session.Name == "" {
		return apperr.Wrap(apperr.ErrInvalidArgument, "session name is required")
	}
	seen := make(map[uuid.UUID]bool, len(f.Players))
	for i, p := range f.Players {
		if p.ID == uuid.Nil || strings.TrimSpace(p.Name) == "" {
			return apperr.Wrap(apperr.ErrInvalidArgument, "player %d needs an id and a name", i+1)
		}
		if seen[p.ID] {
			return apperr.Wrap(apperr.ErrInvalidArgument, "player %s is listed twice", p.ID)
		}
		seen[p.ID] = true
	}
	return session.ConfigureSessionRequest{
		TotalPlayers: f.Session.TotalPlayers,
		Levels:       f.Levels,
	}.Validate()
}

// Apply writes the players, the session and its levels in one transaction.
// An existing session is reconfigured only while it has not started.
func (f *File) Apply(ctx context.Context, pool *pgxpool.Pool, now time.Time) (*Result, error) {
	if f.Session.ID == uuid.Nil {
		f.Session.ID = uuid.New()
	}
	res := &Result{SessionID: f.Session.ID, Levels: len(f.Levels)}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, p := range f.Players {
			tag, err := tx.Exec(ctx, `
				INSERT INTO players (id, name, created_at) VALUES ($1, $2, $3)
				ON CONFLICT (id) DO NOTHING`,
				p.ID, p.Name, now)
			if err != nil {
				return fmt.Errorf("insert player %s: %w", p.ID, err)
			}
			if tag.RowsAffected() == 1 {
				res.PlayersInserted++
			} else {
				res.PlayersSkipped++
			}
		}

		if err := f.upsertSession(ctx, tx, now); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM blind_levels WHERE session_id = $1`, f.Session.ID); err != nil {
			return fmt.Errorf("clear blind levels: %w", err)
		}
		rows := make([][]any, len(f.Levels))
		for i, l := range f.Levels {
			rows[i] = []any{f.Session.ID, l.Level, l.SmallBlind, l.BigBlind, l.Ante, l.Duration}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"blind_levels"},
			[]string{"session_id", "level", "small_blind", "big_blind", "ante", "duration"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy blind levels: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *File) upsertSession(ctx context.Context, tx pgx.Tx, now time.Time) error {
	var status models.SessionStatus
	err := tx.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1 FOR UPDATE`, f.Session.ID).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO sessions (id, name, status, total_players, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)`,
			f.Session.ID, f.Session.Name, models.SessionStatusConfigured, f.Session.TotalPlayers, now)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("lock session: %w", err)
	}

	if status != models.SessionStatusScheduled && status != models.SessionStatusConfigured {
		return apperr.Wrap(apperr.ErrInvalidTransition, "session %s is %s and can no longer be configured", f.Session.ID, status)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE sessions SET name = $2, status = $3, total_players = $4, updated_at = $5
		WHERE id = $1`,
		f.Session.ID, f.Session.Name, models.SessionStatusConfigured, f.Session.TotalPlayers, now); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}
