// Package sqlite is the embedded store used for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mcdev12/pokerleague/go/internal/apperr"
	"github.com/mcdev12/pokerleague/go/internal/models"
)

// Store implements every repository interface on top of SQLite.
type Store struct {
	db *gorm.DB
}

// New opens the SQLite database at path and creates the schema.
// An empty path opens a private in-memory database.
func New(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	if path == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	// one writer keeps the compare-and-swap transactions serialized
	sqlDB.SetMaxOpenConns(1)

	for _, model := range MigrateModels {
		if err := db.AutoMigrate(model); err != nil {
			return nil, fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	log.Debug().Str("path", path).Msg("sqlite store opened")
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, format, args...)
	}
	return err
}

// --- players ---

// UpsertPlayer creates or renames a player.
func (s *Store) UpsertPlayer(ctx context.Context, p *models.Player) error {
	row := Player{ID: p.ID.String(), Name: p.Name, CreatedAt: p.CreatedAt}
	return s.db.WithContext(ctx).
		Where(Player{ID: row.ID}).
		Assign(Player{Name: row.Name}).
		FirstOrCreate(&row).Error
}

// GetPlayers returns the players found among ids.
func (s *Store) GetPlayers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Player, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	var rows []Player
	if err := s.db.WithContext(ctx).Where("id IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]models.Player, len(rows))
	for _, r := range rows {
		p := r.toModel()
		out[p.ID] = p
	}
	return out, nil
}

// --- sessions ---

// CreateSession inserts a new session.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	row := sessionFromModel(sess)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.ErrConflict, "session %s already exists", sess.ID)
		}
		return err
	}
	return nil
}

// GetSession loads a session by ID.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var row Session
	if err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error; err != nil {
		return nil, notFound(err, "session %s", id)
	}
	return row.toModel(), nil
}

// UpdateSession writes the lifecycle columns. The winner is owned by the ledger.
func (s *Store) UpdateSession(ctx context.Context, sess *models.Session) error {
	res := s.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sess.ID.String()).
		Updates(map[string]any{
			"name":          sess.Name,
			"status":        string(sess.Status),
			"total_players": sess.TotalPlayers,
			"scheduled_at":  sess.ScheduledAt,
			"started_at":    sess.StartedAt,
			"completed_at":  sess.CompletedAt,
			"updated_at":    sess.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Wrap(apperr.ErrNotFound, "session %s", sess.ID)
	}
	return nil
}

// ReplaceBlindLevels swaps the whole blind schedule of a session.
func (s *Store) ReplaceBlindLevels(ctx context.Context, sessionID uuid.UUID, levels []models.BlindLevel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID.String()).Delete(&BlindLevel{}).Error; err != nil {
			return err
		}
		if len(levels) == 0 {
			return nil
		}
		rows := make([]BlindLevel, len(levels))
		for i, l := range levels {
			rows[i] = BlindLevel{
				SessionID:  sessionID.String(),
				Level:      l.Level,
				SmallBlind: l.SmallBlind,
				BigBlind:   l.BigBlind,
				Ante:       l.Ante,
				Duration:   l.Duration,
			}
		}
		return tx.Create(&rows).Error
	})
}

// ListBlindLevels returns the schedule ordered by level.
func (s *Store) ListBlindLevels(ctx context.Context, sessionID uuid.UUID) ([]models.BlindLevel, error) {
	var rows []BlindLevel
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID.String()).
		Order("level ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.BlindLevel, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// --- timer ---

// GetCheckpoint loads the checkpoint of a session.
func (s *Store) GetCheckpoint(ctx context.Context, sessionID uuid.UUID) (*models.TimerCheckpoint, error) {
	var row TimerCheckpoint
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID.String()).First(&row).Error; err != nil {
		return nil, notFound(err, "timer checkpoint for session %s", sessionID)
	}
	return row.toModel(), nil
}

// SaveCheckpoint writes cp guarded by expectedVersion and appends tr.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *models.TimerCheckpoint, expectedVersion int64, tr *models.TimerTransition) error {
	row := checkpointFromModel(cp)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if expectedVersion == 0 {
			if err := tx.Create(&row).Error; err != nil {
				if isUniqueViolation(err) {
					return apperr.Wrap(apperr.ErrConflict, "checkpoint for session %s already exists", cp.SessionID)
				}
				return err
			}
		} else {
			res := tx.Model(&TimerCheckpoint{}).
				Where("session_id = ? AND version = ?", row.SessionID, expectedVersion).
				Updates(map[string]any{
					"status":           row.Status,
					"current_level":    row.CurrentLevel,
					"time_remaining":   row.TimeRemaining,
					"total_elapsed":    row.TotalElapsed,
					"level_duration":   row.LevelDuration,
					"start_time":       row.StartTime,
					"level_start_time": row.LevelStartTime,
					"paused_at":        row.PausedAt,
					"last_updated":     row.LastUpdated,
					"version":          row.Version,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return apperr.Wrap(apperr.ErrConflict, "checkpoint for session %s changed since version %d", cp.SessionID, expectedVersion)
			}
		}
		if tr == nil {
			return nil
		}
		trRow := transitionFromModel(tr)
		return tx.Create(&trRow).Error
	})
}

// DeleteCheckpoint removes the checkpoint of a session.
func (s *Store) DeleteCheckpoint(ctx context.Context, sessionID uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("session_id = ?", sessionID.String()).Delete(&TimerCheckpoint{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Wrap(apperr.ErrNotFound, "timer checkpoint for session %s", sessionID)
	}
	return nil
}

// ListTransitions returns the newest transition entries first.
func (s *Store) ListTransitions(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.TimerTransition, error) {
	var rows []TimerTransition
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID.String()).
		Order("performed_at DESC").
		Order("rowid DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.TimerTransition, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// ListOrphanedCheckpoints returns sessions that ended but still hold a checkpoint.
func (s *Store) ListOrphanedCheckpoints(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&TimerCheckpoint{}).
		Joins("JOIN sessions ON sessions.id = timer_checkpoints.session_id").
		Where("sessions.status IN ?", []string{string(models.SessionStatusCompleted), string(models.SessionStatusCancelled)}).
		Limit(limit).
		Pluck("timer_checkpoints.session_id", &ids).Error; err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if parsed, err := uuid.Parse(id); err == nil {
			out = append(out, parsed)
		}
	}
	return out, nil
}

// --- eliminations ---

// InsertElimination stores rec while the session still holds expectedCount records.
func (s *Store) InsertElimination(ctx context.Context, rec *models.EliminationRecord, expectedCount int) error {
	row := eliminationFromModel(rec)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Elimination{}).Where("session_id = ?", row.SessionID).Count(&count).Error; err != nil {
			return err
		}
		if int(count) != expectedCount {
			return apperr.Wrap(apperr.ErrOutOfSequence, "session now has %d eliminations, expected %d", count, expectedCount)
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return apperr.Wrap(apperr.ErrOutOfSequence, "position %d is already recorded", rec.Position)
			}
			return err
		}
		if rec.Position == 1 {
			return setWinner(tx, row.SessionID, &row.EliminatedPlayerID)
		}
		return nil
	})
}

// GetElimination loads a record by ID.
func (s *Store) GetElimination(ctx context.Context, id uuid.UUID) (*models.EliminationRecord, error) {
	var row Elimination
	if err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error; err != nil {
		return nil, notFound(err, "elimination %s", id)
	}
	rec := row.toModel()
	return &rec, nil
}

// ListEliminations returns the session's records, highest position first.
func (s *Store) ListEliminations(ctx context.Context, sessionID uuid.UUID) ([]models.EliminationRecord, error) {
	var rows []Elimination
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID.String()).
		Order("position DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.EliminationRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// UpdateEliminationPlayers rewrites the player columns of rec.
func (s *Store) UpdateEliminationPlayers(ctx context.Context, rec *models.EliminationRecord) error {
	row := eliminationFromModel(rec)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Elimination{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"eliminated_player_id": row.EliminatedPlayerID,
				"eliminator_player_id": row.EliminatorPlayerID,
				"updated_at":           row.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Wrap(apperr.ErrNotFound, "elimination %s", rec.ID)
		}
		if rec.Position == 1 {
			return setWinner(tx, row.SessionID, &row.EliminatedPlayerID)
		}
		return nil
	})
}

// DeleteElimination removes rec if it still holds the session's lowest position.
func (s *Store) DeleteElimination(ctx context.Context, rec *models.EliminationRecord) error {
	sessionID := rec.SessionID.String()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lowest sql.NullInt64
		if err := tx.Model(&Elimination{}).
			Where("session_id = ?", sessionID).
			Select("MIN(position)").
			Scan(&lowest).Error; err != nil {
			return err
		}
		if !lowest.Valid {
			return apperr.Wrap(apperr.ErrNotFound, "elimination %s", rec.ID)
		}
		if int(lowest.Int64) != rec.Position {
			return apperr.Wrap(apperr.ErrNotMostRecent, "position %d is not the latest elimination (latest is %d)", rec.Position, lowest.Int64)
		}
		res := tx.Where("id = ?", rec.ID.String()).Delete(&Elimination{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Wrap(apperr.ErrNotFound, "elimination %s", rec.ID)
		}
		if rec.Position == 1 {
			return setWinner(tx, sessionID, nil)
		}
		return nil
	})
}

func setWinner(tx *gorm.DB, sessionID string, playerID *string) error {
	return tx.Model(&Session{}).
		Where("id = ?", sessionID).
		Update("winner_player_id", playerID).Error
}
