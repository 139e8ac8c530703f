package sqlite

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/pokerleague/go/internal/models"
)

// MigrateModels lists every table created by AutoMigrate
var MigrateModels = []any{
	&Player{},
	&Session{},
	&BlindLevel{},
	&TimerCheckpoint{},
	&TimerTransition{},
	&Elimination{},
}

type Player struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (Player) TableName() string { return "players" }

type Session struct {
	ID             string  `gorm:"primaryKey;size:36"`
	TournamentID   *string `gorm:"size:36"`
	Name           string  `gorm:"not null"`
	Status         string  `gorm:"index;not null"`
	TotalPlayers   int
	WinnerPlayerID *string `gorm:"size:36"`
	ScheduledAt    *time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

func (Session) TableName() string { return "sessions" }

type BlindLevel struct {
	SessionID  string `gorm:"primaryKey;size:36"`
	Level      int    `gorm:"primaryKey;autoIncrement:false"`
	SmallBlind int
	BigBlind   int
	Ante       int
	Duration   int
}

func (BlindLevel) TableName() string { return "blind_levels" }

type TimerCheckpoint struct {
	SessionID      string `gorm:"primaryKey;size:36"`
	Status         string `gorm:"not null"`
	CurrentLevel   int
	TimeRemaining  int64
	TotalElapsed   int64
	LevelDuration  int64
	StartTime      *time.Time
	LevelStartTime *time.Time
	PausedAt       *time.Time
	LastUpdated    time.Time
	Version        int64 `gorm:"not null"`
}

func (TimerCheckpoint) TableName() string { return "timer_checkpoints" }

type TimerTransition struct {
	ID          string `gorm:"primaryKey;size:36"`
	SessionID   string `gorm:"index;size:36;not null"`
	ActionType  string `gorm:"not null"`
	FromLevel   int
	ToLevel     int
	PerformedBy string
	PerformedAt time.Time `gorm:"index"`
	Metadata    string
}

func (TimerTransition) TableName() string { return "timer_transitions" }

type Elimination struct {
	ID                 string    `gorm:"primaryKey;size:36"`
	SessionID          string    `gorm:"uniqueIndex:idx_eliminations_session_position;size:36;not null"`
	Position           int       `gorm:"uniqueIndex:idx_eliminations_session_position;not null"`
	Points             int       `gorm:"not null"`
	EliminatedPlayerID string    `gorm:"size:36;not null"`
	EliminatorPlayerID *string   `gorm:"size:36"`
	EliminationTime    time.Time `gorm:"not null"`
	CreatedAt          time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime:false"`
}

func (Elimination) TableName() string { return "eliminations" }

// Converters between rows and domain models

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func stringPtrUUID(s *string) *uuid.UUID {
	if s == nil {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}

func (r Player) toModel() models.Player {
	return models.Player{ID: uuid.MustParse(r.ID), Name: r.Name, CreatedAt: r.CreatedAt}
}

func sessionFromModel(s *models.Session) Session {
	return Session{
		ID:             s.ID.String(),
		TournamentID:   uuidPtrString(s.TournamentID),
		Name:           s.Name,
		Status:         string(s.Status),
		TotalPlayers:   s.TotalPlayers,
		WinnerPlayerID: uuidPtrString(s.WinnerPlayerID),
		ScheduledAt:    s.ScheduledAt,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func (r Session) toModel() *models.Session {
	return &models.Session{
		ID:             uuid.MustParse(r.ID),
		TournamentID:   stringPtrUUID(r.TournamentID),
		Name:           r.Name,
		Status:         models.SessionStatus(r.Status),
		TotalPlayers:   r.TotalPlayers,
		WinnerPlayerID: stringPtrUUID(r.WinnerPlayerID),
		ScheduledAt:    r.ScheduledAt,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r BlindLevel) toModel() models.BlindLevel {
	return models.BlindLevel{
		SessionID:  uuid.MustParse(r.SessionID),
		Level:      r.Level,
		SmallBlind: r.SmallBlind,
		BigBlind:   r.BigBlind,
		Ante:       r.Ante,
		Duration:   r.Duration,
	}
}

func checkpointFromModel(cp *models.TimerCheckpoint) TimerCheckpoint {
	return TimerCheckpoint{
		SessionID:      cp.SessionID.String(),
		Status:         string(cp.Status),
		CurrentLevel:   cp.CurrentLevel,
		TimeRemaining:  cp.TimeRemaining,
		TotalElapsed:   cp.TotalElapsed,
		LevelDuration:  cp.LevelDuration,
		StartTime:      cp.StartTime,
		LevelStartTime: cp.LevelStartTime,
		PausedAt:       cp.PausedAt,
		LastUpdated:    cp.LastUpdated,
		Version:        cp.Version,
	}
}

func (r TimerCheckpoint) toModel() *models.TimerCheckpoint {
	return &models.TimerCheckpoint{
		SessionID:      uuid.MustParse(r.SessionID),
		Status:         models.TimerStatus(r.Status),
		CurrentLevel:   r.CurrentLevel,
		TimeRemaining:  r.TimeRemaining,
		TotalElapsed:   r.TotalElapsed,
		LevelDuration:  r.LevelDuration,
		StartTime:      r.StartTime,
		LevelStartTime: r.LevelStartTime,
		PausedAt:       r.PausedAt,
		LastUpdated:    r.LastUpdated,
		Version:        r.Version,
	}
}

func transitionFromModel(tr *models.TimerTransition) TimerTransition {
	return TimerTransition{
		ID:          tr.ID.String(),
		SessionID:   tr.SessionID.String(),
		ActionType:  string(tr.ActionType),
		FromLevel:   tr.FromLevel,
		ToLevel:     tr.ToLevel,
		PerformedBy: tr.PerformedBy,
		PerformedAt: tr.PerformedAt,
		Metadata:    string(tr.Metadata),
	}
}

func (r TimerTransition) toModel() models.TimerTransition {
	tr := models.TimerTransition{
		ID:          uuid.MustParse(r.ID),
		SessionID:   uuid.MustParse(r.SessionID),
		ActionType:  models.TimerAction(r.ActionType),
		FromLevel:   r.FromLevel,
		ToLevel:     r.ToLevel,
		PerformedBy: r.PerformedBy,
		PerformedAt: r.PerformedAt,
	}
	if r.Metadata != "" {
		tr.Metadata = json.RawMessage(r.Metadata)
	}
	return tr
}

func eliminationFromModel(rec *models.EliminationRecord) Elimination {
	return Elimination{
		ID:                 rec.ID.String(),
		SessionID:          rec.SessionID.String(),
		Position:           rec.Position,
		Points:             rec.Points,
		EliminatedPlayerID: rec.EliminatedPlayerID.String(),
		EliminatorPlayerID: uuidPtrString(rec.EliminatorPlayerID),
		EliminationTime:    rec.EliminationTime,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
}

func (r Elimination) toModel() models.EliminationRecord {
	return models.EliminationRecord{
		ID:                 uuid.MustParse(r.ID),
		SessionID:          uuid.MustParse(r.SessionID),
		Position:           r.Position,
		Points:             r.Points,
		EliminatedPlayerID: uuid.MustParse(r.EliminatedPlayerID),
		EliminatorPlayerID: stringPtrUUID(r.EliminatorPlayerID),
		EliminationTime:    r.EliminationTime,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}
