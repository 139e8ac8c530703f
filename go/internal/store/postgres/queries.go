package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/pokerleague/go/internal/models"
	"github.com/mcdev12/pokerleague/go/internal/sqlutil"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds every statement used by the store.
type Queries struct {
	db DBTX
}

func newQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func txQueries(tx *sql.Tx) *Queries {
	return newQueries(tx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- players ---

const upsertPlayer = `
INSERT INTO players (id, name, created_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

func (q *Queries) UpsertPlayer(ctx context.Context, p *models.Player) error {
	_, err := q.db.ExecContext(ctx, upsertPlayer, p.ID, p.Name, p.CreatedAt)
	return err
}

const getPlayers = `SELECT id, name, created_at FROM players WHERE id = ANY($1::uuid[])`

func (q *Queries) GetPlayers(ctx context.Context, ids []uuid.UUID) ([]models.Player, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	rows, err := q.db.QueryContext(ctx, getPlayers, pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Player
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- sessions ---

const sessionColumns = `id, tournament_id, name, status, total_players, winner_player_id,
	scheduled_at, started_at, completed_at, created_at, updated_at`

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s                                 models.Session
		tournament, winner                uuid.NullUUID
		status                            string
		scheduledAt, startedAt, completed sql.NullTime
	)
	if err := row.Scan(&s.ID, &tournament, &s.Name, &status, &s.TotalPlayers, &winner,
		&scheduledAt, &startedAt, &completed, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	s.TournamentID = sqlutil.FromNullUUID(tournament)
	s.WinnerPlayerID = sqlutil.FromNullUUID(winner)
	s.ScheduledAt = sqlutil.FromSqlTime(scheduledAt)
	s.StartedAt = sqlutil.FromSqlTime(startedAt)
	s.CompletedAt = sqlutil.FromSqlTime(completed)
	return &s, nil
}

const createSession = `INSERT INTO sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (q *Queries) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := q.db.ExecContext(ctx, createSession,
		s.ID, sqlutil.ToNullUUID(s.TournamentID), s.Name, string(s.Status), s.TotalPlayers,
		sqlutil.ToNullUUID(s.WinnerPlayerID), sqlutil.ToSqlTime(s.ScheduledAt),
		sqlutil.ToSqlTime(s.StartedAt), sqlutil.ToSqlTime(s.CompletedAt), s.CreatedAt, s.UpdatedAt)
	return err
}

const getSession = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(q.db.QueryRowContext(ctx, getSession, id))
}

const lockSession = `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`

// LockSession serializes ledger writes of one session for the rest of the tx.
func (q *Queries) LockSession(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	return q.db.QueryRowContext(ctx, lockSession, id).Scan(&locked)
}

const updateSession = `
UPDATE sessions SET name = $2, status = $3, total_players = $4, scheduled_at = $5,
	started_at = $6, completed_at = $7, updated_at = $8
WHERE id = $1`

func (q *Queries) UpdateSession(ctx context.Context, s *models.Session) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateSession, s.ID, s.Name, string(s.Status), s.TotalPlayers,
		sqlutil.ToSqlTime(s.ScheduledAt), sqlutil.ToSqlTime(s.StartedAt), sqlutil.ToSqlTime(s.CompletedAt), s.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setWinner = `UPDATE sessions SET winner_player_id = $2 WHERE id = $1`

func (q *Queries) SetWinner(ctx context.Context, sessionID uuid.UUID, playerID *uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, setWinner, sessionID, sqlutil.ToNullUUID(playerID))
	return err
}

// --- blind levels ---

const deleteBlindLevels = `DELETE FROM blind_levels WHERE session_id = $1`

func (q *Queries) DeleteBlindLevels(ctx context.Context, sessionID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteBlindLevels, sessionID)
	return err
}

const insertBlindLevel = `
INSERT INTO blind_levels (session_id, level, small_blind, big_blind, ante, duration)
VALUES ($1, $2, $3, $4, $5, $6)`

func (q *Queries) InsertBlindLevel(ctx context.Context, sessionID uuid.UUID, l models.BlindLevel) error {
	_, err := q.db.ExecContext(ctx, insertBlindLevel, sessionID, l.Level, l.SmallBlind, l.BigBlind, l.Ante, l.Duration)
	return err
}

const listBlindLevels = `
SELECT session_id, level, small_blind, big_blind, ante, duration
FROM blind_levels WHERE session_id = $1 ORDER BY level ASC`

func (q *Queries) ListBlindLevels(ctx context.Context, sessionID uuid.UUID) ([]models.BlindLevel, error) {
	rows, err := q.db.QueryContext(ctx, listBlindLevels, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.BlindLevel
	for rows.Next() {
		var l models.BlindLevel
		if err := rows.Scan(&l.SessionID, &l.Level, &l.SmallBlind, &l.BigBlind, &l.Ante, &l.Duration); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- timer ---

const getCheckpoint = `
SELECT session_id, status, current_level, time_remaining, total_elapsed, level_duration,
	start_time, level_start_time, paused_at, last_updated, version
FROM timer_checkpoints WHERE session_id = $1`

func (q *Queries) GetCheckpoint(ctx context.Context, sessionID uuid.UUID) (*models.TimerCheckpoint, error) {
	var (
		cp                          models.TimerCheckpoint
		status                      string
		start, levelStart, pausedAt sql.NullTime
	)
	err := q.db.QueryRowContext(ctx, getCheckpoint, sessionID).Scan(
		&cp.SessionID, &status, &cp.CurrentLevel, &cp.TimeRemaining, &cp.TotalElapsed, &cp.LevelDuration,
		&start, &levelStart, &pausedAt, &cp.LastUpdated, &cp.Version)
	if err != nil {
		return nil, err
	}
	cp.Status = models.TimerStatus(status)
	cp.StartTime = sqlutil.FromSqlTime(start)
	cp.LevelStartTime = sqlutil.FromSqlTime(levelStart)
	cp.PausedAt = sqlutil.FromSqlTime(pausedAt)
	return &cp, nil
}

const insertCheckpoint = `
INSERT INTO timer_checkpoints (session_id, status, current_level, time_remaining, total_elapsed,
	level_duration, start_time, level_start_time, paused_at, last_updated, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

func (q *Queries) InsertCheckpoint(ctx context.Context, cp *models.TimerCheckpoint) error {
	_, err := q.db.ExecContext(ctx, insertCheckpoint, cp.SessionID, string(cp.Status), cp.CurrentLevel,
		cp.TimeRemaining, cp.TotalElapsed, cp.LevelDuration, sqlutil.ToSqlTime(cp.StartTime),
		sqlutil.ToSqlTime(cp.LevelStartTime), sqlutil.ToSqlTime(cp.PausedAt), cp.LastUpdated, cp.Version)
	return err
}

const updateCheckpoint = `
UPDATE timer_checkpoints SET status = $3, current_level = $4, time_remaining = $5, total_elapsed = $6,
	level_duration = $7, start_time = $8, level_start_time = $9, paused_at = $10, last_updated = $11,
	version = $12
WHERE session_id = $1 AND version = $2`

func (q *Queries) UpdateCheckpoint(ctx context.Context, cp *models.TimerCheckpoint, expectedVersion int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCheckpoint, cp.SessionID, expectedVersion, string(cp.Status),
		cp.CurrentLevel, cp.TimeRemaining, cp.TotalElapsed, cp.LevelDuration, sqlutil.ToSqlTime(cp.StartTime),
		sqlutil.ToSqlTime(cp.LevelStartTime), sqlutil.ToSqlTime(cp.PausedAt), cp.LastUpdated, cp.Version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteCheckpoint = `DELETE FROM timer_checkpoints WHERE session_id = $1`

func (q *Queries) DeleteCheckpoint(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCheckpoint, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertTransition = `
INSERT INTO timer_transitions (id, session_id, action_type, from_level, to_level, performed_by, performed_at, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (q *Queries) InsertTransition(ctx context.Context, tr *models.TimerTransition) error {
	_, err := q.db.ExecContext(ctx, insertTransition, tr.ID, tr.SessionID, string(tr.ActionType),
		tr.FromLevel, tr.ToLevel, tr.PerformedBy, tr.PerformedAt, sqlutil.ToNullRawMessage(tr.Metadata))
	return err
}

const listTransitions = `
SELECT id, session_id, action_type, from_level, to_level, performed_by, performed_at, metadata
FROM timer_transitions WHERE session_id = $1
ORDER BY performed_at DESC, seq DESC
LIMIT $2`

func (q *Queries) ListTransitions(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.TimerTransition, error) {
	rows, err := q.db.QueryContext(ctx, listTransitions, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TimerTransition
	for rows.Next() {
		var (
			tr     models.TimerTransition
			action string
			meta   pqtype.NullRawMessage
		)
		if err := rows.Scan(&tr.ID, &tr.SessionID, &action, &tr.FromLevel, &tr.ToLevel,
			&tr.PerformedBy, &tr.PerformedAt, &meta); err != nil {
			return nil, err
		}
		tr.ActionType = models.TimerAction(action)
		tr.Metadata = sqlutil.FromNullRawMessage(meta)
		out = append(out, tr)
	}
	return out, rows.Err()
}

const listOrphanedCheckpoints = `
SELECT c.session_id FROM timer_checkpoints c
JOIN sessions s ON s.id = c.session_id
WHERE s.status IN ('completed', 'cancelled')
LIMIT $1`

func (q *Queries) ListOrphanedCheckpoints(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, listOrphanedCheckpoints, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// --- eliminations ---

const eliminationColumns = `id, session_id, position, points, eliminated_player_id, eliminator_player_id,
	elimination_time, created_at, updated_at`

func scanElimination(row rowScanner) (models.EliminationRecord, error) {
	var (
		rec        models.EliminationRecord
		eliminator uuid.NullUUID
	)
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.Position, &rec.Points, &rec.EliminatedPlayerID,
		&eliminator, &rec.EliminationTime, &rec.CreatedAt, &rec.UpdatedAt)
	rec.EliminatorPlayerID = sqlutil.FromNullUUID(eliminator)
	return rec, err
}

const countEliminations = `SELECT COUNT(*) FROM eliminations WHERE session_id = $1`

func (q *Queries) CountEliminations(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, countEliminations, sessionID).Scan(&n)
	return n, err
}

const insertElimination = `INSERT INTO eliminations (` + eliminationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (q *Queries) InsertElimination(ctx context.Context, rec *models.EliminationRecord) error {
	_, err := q.db.ExecContext(ctx, insertElimination, rec.ID, rec.SessionID, rec.Position, rec.Points,
		rec.EliminatedPlayerID, sqlutil.ToNullUUID(rec.EliminatorPlayerID), rec.EliminationTime,
		rec.CreatedAt, rec.UpdatedAt)
	return err
}

const getElimination = `SELECT ` + eliminationColumns + ` FROM eliminations WHERE id = $1`

func (q *Queries) GetElimination(ctx context.Context, id uuid.UUID) (models.EliminationRecord, error) {
	return scanElimination(q.db.QueryRowContext(ctx, getElimination, id))
}

const listEliminations = `SELECT ` + eliminationColumns + `
FROM eliminations WHERE session_id = $1 ORDER BY position DESC`

func (q *Queries) ListEliminations(ctx context.Context, sessionID uuid.UUID) ([]models.EliminationRecord, error) {
	rows, err := q.db.QueryContext(ctx, listEliminations, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EliminationRecord
	for rows.Next() {
		rec, err := scanElimination(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const updateEliminationPlayers = `
UPDATE eliminations SET eliminated_player_id = $2, eliminator_player_id = $3, updated_at = $4
WHERE id = $1`

func (q *Queries) UpdateEliminationPlayers(ctx context.Context, rec *models.EliminationRecord) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateEliminationPlayers, rec.ID, rec.EliminatedPlayerID,
		sqlutil.ToNullUUID(rec.EliminatorPlayerID), rec.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const lowestPosition = `SELECT MIN(position) FROM eliminations WHERE session_id = $1`

func (q *Queries) LowestPosition(ctx context.Context, sessionID uuid.UUID) (sql.NullInt64, error) {
	var lowest sql.NullInt64
	err := q.db.QueryRowContext(ctx, lowestPosition, sessionID).Scan(&lowest)
	return lowest, err
}

const deleteElimination = `DELETE FROM eliminations WHERE id = $1`

func (q *Queries) DeleteElimination(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteElimination, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
