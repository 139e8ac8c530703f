// Package postgres is the production store backed by database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerleague/go/internal/apperr"
	"github.com/mcdev12/pokerleague/go/internal/models"
	"github.com/mcdev12/pokerleague/go/internal/sqlutil"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Store implements every repository interface on top of Postgres.
type Store struct {
	db *sql.DB
	q  *Queries
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: newQueries(db)}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Info().Msg("postgres schema applied")
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) inTx(ctx context.Context, fn func(q *Queries) error) error {
	return sqlutil.Run(ctx, s.db, txQueries, fn)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.ErrNotFound, format, args...)
	}
	return err
}

// --- players ---

// UpsertPlayer creates or renames a player.
func (s *Store) UpsertPlayer(ctx context.Context, p *models.Player) error {
	return s.q.UpsertPlayer(ctx, p)
}

// GetPlayers returns the players found among ids.
func (s *Store) GetPlayers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Player, error) {
	players, err := s.q.GetPlayers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]models.Player, len(players))
	for _, p := range players {
		out[p.ID] = p
	}
	return out, nil
}

// --- sessions ---

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	if err := s.q.CreateSession(ctx, sess); err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.ErrConflict, "session %s already exists", sess.ID)
		}
		return err
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := s.q.GetSession(ctx, id)
	if err != nil {
		return nil, notFound(err, "session %s", id)
	}
	return sess, nil
}

// UpdateSession writes the lifecycle columns. The winner is owned by the ledger.
func (s *Store) UpdateSession(ctx context.Context, sess *models.Session) error {
	n, err := s.q.UpdateSession(ctx, sess)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Wrap(apperr.ErrNotFound, "session %s", sess.ID)
	}
	return nil
}

func (s *Store) ReplaceBlindLevels(ctx context.Context, sessionID uuid.UUID, levels []models.BlindLevel) error {
	return s.inTx(ctx, func(q *Queries) error {
		if err := q.DeleteBlindLevels(ctx, sessionID); err != nil {
			return err
		}
		for _, l := range levels {
			if err := q.InsertBlindLevel(ctx, sessionID, l); err != nil {
				return fmt.Errorf("insert level %d: %w", l.Level, err)
			}
		}
		return nil
	})
}

func (s *Store) ListBlindLevels(ctx context.Context, sessionID uuid.UUID) ([]models.BlindLevel, error) {
	return s.q.ListBlindLevels(ctx, sessionID)
}

// --- timer ---

func (s *Store) GetCheckpoint(ctx context.Context, sessionID uuid.UUID) (*models.TimerCheckpoint, error) {
	cp, err := s.q.GetCheckpoint(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, "timer checkpoint for session %s", sessionID)
	}
	return cp, nil
}

// SaveCheckpoint writes cp guarded by expectedVersion and appends tr in the same transaction.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *models.TimerCheckpoint, expectedVersion int64, tr *models.TimerTransition) error {
	return s.inTx(ctx, func(q *Queries) error {
		if expectedVersion == 0 {
			if err := q.InsertCheckpoint(ctx, cp); err != nil {
				if isUniqueViolation(err) {
					return apperr.Wrap(apperr.ErrConflict, "checkpoint for session %s already exists", cp.SessionID)
				}
				return err
			}
		} else {
			n, err := q.UpdateCheckpoint(ctx, cp, expectedVersion)
			if err != nil {
				return err
			}
			if n == 0 {
				return apperr.Wrap(apperr.ErrConflict, "checkpoint for session %s changed since version %d", cp.SessionID, expectedVersion)
			}
		}
		if tr == nil {
			return nil
		}
		return q.InsertTransition(ctx, tr)
	})
}

func (s *Store) DeleteCheckpoint(ctx context.Context, sessionID uuid.UUID) error {
	n, err := s.q.DeleteCheckpoint(ctx, sessionID)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Wrap(apperr.ErrNotFound, "timer checkpoint for session %s", sessionID)
	}
	return nil
}

func (s *Store) ListTransitions(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.TimerTransition, error) {
	return s.q.ListTransitions(ctx, sessionID, limit)
}

// ListOrphanedCheckpoints returns sessions that ended but still hold a checkpoint.
func (s *Store) ListOrphanedCheckpoints(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.q.ListOrphanedCheckpoints(ctx, limit)
}

// --- eliminations ---

// InsertElimination stores rec while the session still holds expectedCount records.
// The session row lock serializes concurrent writers; the unique key backs it up.
func (s *Store) InsertElimination(ctx context.Context, rec *models.EliminationRecord, expectedCount int) error {
	return s.inTx(ctx, func(q *Queries) error {
		if err := q.LockSession(ctx, rec.SessionID); err != nil {
			return notFound(err, "session %s", rec.SessionID)
		}
		count, err := q.CountEliminations(ctx, rec.SessionID)
		if err != nil {
			return err
		}
		if count != expectedCount {
			return apperr.Wrap(apperr.ErrOutOfSequence, "session now has %d eliminations, expected %d", count, expectedCount)
		}
		if err := q.InsertElimination(ctx, rec); err != nil {
			if isUniqueViolation(err) {
				return apperr.Wrap(apperr.ErrOutOfSequence, "position %d is already recorded", rec.Position)
			}
			return err
		}
		if rec.Position == 1 {
			winner := rec.EliminatedPlayerID
			return q.SetWinner(ctx, rec.SessionID, &winner)
		}
		return nil
	})
}

func (s *Store) GetElimination(ctx context.Context, id uuid.UUID) (*models.EliminationRecord, error) {
	rec, err := s.q.GetElimination(ctx, id)
	if err != nil {
		return nil, notFound(err, "elimination %s", id)
	}
	return &rec, nil
}

// ListEliminations returns the session's records, highest position first.
func (s *Store) ListEliminations(ctx context.Context, sessionID uuid.UUID) ([]models.EliminationRecord, error) {
	return s.q.ListEliminations(ctx, sessionID)
}

// UpdateEliminationPlayers rewrites the player columns of rec.
func (s *Store) UpdateEliminationPlayers(ctx context.Context, rec *models.EliminationRecord) error {
	return s.inTx(ctx, func(q *Queries) error {
		n, err := q.UpdateEliminationPlayers(ctx, rec)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.Wrap(apperr.ErrNotFound, "elimination %s", rec.ID)
		}
		if rec.Position == 1 {
			winner := rec.EliminatedPlayerID
			return q.SetWinner(ctx, rec.SessionID, &winner)
		}
		return nil
	})
}

// DeleteElimination removes rec if it still holds the session's lowest position.
func (s *Store) DeleteElimination(ctx context.Context, rec *models.EliminationRecord) error {
	return s.inTx(ctx, func(q *Queries) error {
		if err := q.LockSession(ctx, rec.SessionID); err != nil {
			return notFound(err, "session %s", rec.SessionID)
		}
		lowest, err := q.LowestPosition(ctx, rec.SessionID)
		if err != nil {
			return err
		}
		if !lowest.Valid {
			return apperr.Wrap(apperr.ErrNotFound, "elimination %s", rec.ID)
		}
		if int(lowest.Int64) != rec.Position {
			return apperr.Wrap(apperr.ErrNotMostRecent, "position %d is not the latest elimination (latest is %d)", rec.Position, lowest.Int64)
		}
		n, err := q.DeleteElimination(ctx, rec.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.Wrap(apperr.ErrNotFound, "elimination %s", rec.ID)
		}
		if rec.Position == 1 {
			return q.SetWinner(ctx, rec.SessionID, nil)
		}
		return nil
	})
}
