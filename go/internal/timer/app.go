package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerleague/go/internal/apperr"
	"github.com/mcdev12/pokerleague/go/internal/auth"
	"github.com/mcdev12/pokerleague/go/internal/events"
	"github.com/mcdev12/pokerleague/go/internal/models"
)

// Repository defines what the timer app layer needs from storage
type Repository interface {
	GetCheckpoint(ctx context.Context, sessionID uuid.UUID) (*models.TimerCheckpoint, error)
	// SaveCheckpoint writes cp and appends tr in one transaction. expectedVersion
	// 0 inserts a new checkpoint; otherwise the stored version must match or
	// apperr.ErrConflict is returned.
	SaveCheckpoint(ctx context.Context, cp *models.TimerCheckpoint, expectedVersion int64, tr *models.TimerTransition) error
	DeleteCheckpoint(ctx context.Context, sessionID uuid.UUID) error
	ListBlindLevels(ctx context.Context, sessionID uuid.UUID) ([]models.BlindLevel, error)
	ListTransitions(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.TimerTransition, error)
}

// SessionGate answers whether session commands are currently reachable
type SessionGate interface {
	RequireInProgress(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
}

// App handles timer business logic
type App struct {
	repo      Repository
	sessions  SessionGate
	publisher events.Publisher
	checker   auth.Checker
	clock     clockwork.Clock
	locks     *sessionLocks
}

// NewApp creates a new timer App. A nil clock uses the real clock.
func NewApp(repo Repository, sessions SessionGate, publisher events.Publisher, checker auth.Checker, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &App{
		repo:      repo,
		sessions:  sessions,
		publisher: publisher,
		checker:   checker,
		clock:     clock,
		locks:     newSessionLocks(),
	}
}

// mutation describes one command applied to a frozen checkpoint.
// apply returns the named event to emit after the snapshot.
type mutation struct {
	action models.TimerAction
	apply  func(cp *models.TimerCheckpoint, st State, sched schedule, now time.Time) (events.Message, error)
	// createIfMissing lets the command run on a session without a checkpoint
	createIfMissing bool
	metadata        map[string]any
}

// Pause freezes the running clock.
func (a *App) Pause(ctx context.Context, actor auth.Actor, sessionID uuid.UUID) (*Snapshot, error) {
	return a.run(ctx, actor, sessionID, mutation{
		action: models.TimerActionPause,
		apply: func(cp *models.TimerCheckpoint, st State, _ schedule, now time.Time) (events.Message, error) {
			if cp.Status != models.TimerStatusActive {
				return events.Message{}, apperr.Wrap(apperr.ErrInvalidTransition, "timer is already paused")
			}
			cp.Status = models.TimerStatusPaused
			cp.TimeRemaining = st.TimeRemaining
			cp.TotalElapsed = st.TotalElapsed
			cp.PausedAt = &now
			cp.LevelStartTime = nil
			return events.Message{Type: events.TypePaused, Payload: actionPayload("pause", cp.CurrentLevel, "", now)}, nil
		},
	})
}

// Resume restarts a paused clock. The first resume of a session starts it.
func (a *App) Resume(ctx context.Context, actor auth.Actor, sessionID uuid.UUID) (*Snapshot, error) {
	return a.run(ctx, actor, sessionID, mutation{
		action: models.TimerActionResume,
		apply: func(cp *models.TimerCheckpoint, _ State, _ schedule, now time.Time) (events.Message, error) {
			if cp.Status != models.TimerStatusPaused {
				return events.Message{}, apperr.Wrap(apperr.ErrInvalidTransition, "timer is already running")
			}
			typ, name := events.TypeResumed, "resume"
			if cp.StartTime == nil {
				cp.StartTime = &now
				typ, name = events.TypeStarted, "start"
			}
			cp.Status = models.TimerStatusActive
			cp.LevelStartTime = &now
			cp.PausedAt = nil
			return events.Message{Type: typ, Payload: actionPayload(name, cp.CurrentLevel, "", now)}, nil
		},
	})
}

// AdvanceLevel moves the clock forward to targetLevel with its full duration.
// The running or paused status is kept.
func (a *App) AdvanceLevel(ctx context.Context, actor auth.Actor, sessionID uuid.UUID, targetLevel int) (*Snapshot, error) {
	return a.run(ctx, actor, sessionID, mutation{
		action:   models.TimerActionAdvance,
		metadata: map[string]any{"target_level": targetLevel},
		apply: func(cp *models.TimerCheckpoint, st State, sched schedule, now time.Time) (events.Message, error) {
			if targetLevel <= cp.CurrentLevel {
				return events.Message{}, apperr.Wrap(apperr.ErrInvalidLevel,
					"target level %d must be after current level %d", targetLevel, cp.CurrentLevel)
			}
			level, ok := sched.level(targetLevel)
			if !ok {
				return events.Message{}, apperr.Wrap(apperr.ErrInvalidLevel, "level %d is not in the blind schedule", targetLevel)
			}
			from := cp.CurrentLevel
			cp.CurrentLevel = targetLevel
			cp.LevelDuration = level.DurationSeconds()
			cp.TimeRemaining = level.DurationSeconds()
			cp.TotalElapsed = st.TotalElapsed
			// a paused clock has no level anchor until Resume sets one
			if cp.Status == models.TimerStatusActive {
				cp.LevelStartTime = &now
			}
			return events.Message{Type: events.TypeLevelChanged, Payload: events.LevelChangedPayload{
				FromLevel:  from,
				ToLevel:    targetLevel,
				SmallBlind: level.SmallBlind,
				BigBlind:   level.BigBlind,
				Ante:       level.Ante,
				Duration:   level.Duration,
				At:         now,
			}}, nil
		},
	})
}

// Reset restarts the session clock at level 1, running.
func (a *App) Reset(ctx context.Context, actor auth.Actor, sessionID uuid.UUID) (*Snapshot, error) {
	return a.run(ctx, actor, sessionID, mutation{
		action:          models.TimerActionReset,
		createIfMissing: true,
		apply: func(cp *models.TimerCheckpoint, _ State, sched schedule, now time.Time) (events.Message, error) {
			first, ok := sched.level(1)
			if !ok {
				return events.Message{}, apperr.Wrap(apperr.ErrInvalidLevel, "blind schedule has no level 1")
			}
			cp.Status = models.TimerStatusActive
			cp.CurrentLevel = 1
			cp.LevelDuration = first.DurationSeconds()
			cp.TimeRemaining = first.DurationSeconds()
			cp.TotalElapsed = 0
			cp.StartTime = &now
			cp.LevelStartTime = &now
			cp.PausedAt = nil
			return events.Message{Type: events.TypeStarted, Payload: actionPayload("reset", 1, "", now)}, nil
		},
	})
}

// run applies m under the session lock: authorize, gate, freeze, mutate,
// persist with the transition entry, then broadcast.
func (a *App) run(ctx context.Context, actor auth.Actor, sessionID uuid.UUID, m mutation) (*Snapshot, error) {
	if !a.checker.HasMutationCapability(actor) {
		return nil, apperr.Wrap(apperr.ErrForbidden, "actor %q cannot control the timer", actor.ID)
	}

	unlock := a.locks.lock(sessionID)
	defer unlock()

	if _, err := a.sessions.RequireInProgress(ctx, sessionID); err != nil {
		return nil, err
	}

	levels, err := a.repo.ListBlindLevels(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load blind levels: %w", err)
	}
	sched := newSchedule(levels)

	cp, err := a.repo.GetCheckpoint(ctx, sessionID)
	switch {
	case errors.Is(err, apperr.ErrNotFound) && m.createIfMissing:
		cp = &models.TimerCheckpoint{SessionID: sessionID, Status: models.TimerStatusPaused, CurrentLevel: 1}
	case err != nil:
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	now := a.clock.Now()
	st := Compute(*cp, now)
	expected := cp.Version
	fromLevel := cp.CurrentLevel

	next := *cp
	named, err := m.apply(&next, st, sched, now)
	if err != nil {
		return nil, err
	}
	next.LastUpdated = now
	next.Version = expected + 1

	tr := &models.TimerTransition{
		ID:          uuid.New(),
		SessionID:   sessionID,
		ActionType:  m.action,
		FromLevel:   fromLevel,
		ToLevel:     next.CurrentLevel,
		PerformedBy: actor.ID,
		PerformedAt: now,
		Metadata:    transitionMetadata(st, m.metadata),
	}
	if err := a.repo.SaveCheckpoint(ctx, &next, expected, tr); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	snap := a.snapshot(next, sched, now)
	stampActor(&named, actor.ID)
	events.PublishAll(ctx, a.publisher, sessionID,
		events.Message{Type: events.TypeSnapshot, Payload: snap},
		named,
	)

	log.Info().
		Str("session_id", sessionID.String()).
		Str("action", string(m.action)).
		Str("performed_by", actor.ID).
		Int("from_level", fromLevel).
		Int("to_level", next.CurrentLevel).
		Int64("time_remaining", snap.TimeRemaining).
		Msg("timer command applied")

	return snap, nil
}

// Initialize creates the paused level 1 checkpoint for a session entering
// play. It is a no-op when the checkpoint already exists.
func (a *App) Initialize(ctx context.Context, sessionID uuid.UUID) error {
	unlock := a.locks.lock(sessionID)
	defer unlock()

	if _, err := a.repo.GetCheckpoint(ctx, sessionID); err == nil {
		return nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("failed to get checkpoint: %w", err)
	}

	levels, err := a.repo.ListBlindLevels(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load blind levels: %w", err)
	}
	sched := newSchedule(levels)
	first, ok := sched.level(1)
	if !ok {
		return apperr.Wrap(apperr.ErrInvalidLevel, "blind schedule has no level 1")
	}

	now := a.clock.Now()
	cp := models.TimerCheckpoint{
		SessionID:     sessionID,
		Status:        models.TimerStatusPaused,
		CurrentLevel:  1,
		TimeRemaining: first.DurationSeconds(),
		LevelDuration: first.DurationSeconds(),
		PausedAt:      &now,
		LastUpdated:   now,
		Version:       1,
	}
	if err := a.repo.SaveCheckpoint(ctx, &cp, 0, nil); err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}

	events.PublishAll(ctx, a.publisher, sessionID,
		events.Message{Type: events.TypeSnapshot, Payload: a.snapshot(cp, sched, now)})

	log.Info().Str("session_id", sessionID.String()).Msg("timer checkpoint initialized")
	return nil
}

// Discard removes the checkpoint of a finished session.
func (a *App) Discard(ctx context.Context, sessionID uuid.UUID) error {
	unlock := a.locks.lock(sessionID)
	defer unlock()

	if err := a.repo.DeleteCheckpoint(ctx, sessionID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// GetState returns the computed state with the active and next blind level.
// Viewers without mutation capability receive the same data.
func (a *App) GetState(ctx context.Context, actor auth.Actor, sessionID uuid.UUID) (*View, error) {
	cp, err := a.repo.GetCheckpoint(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	levels, err := a.repo.ListBlindLevels(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load blind levels: %w", err)
	}

	now := a.clock.Now()
	return &View{
		Snapshot:   *a.snapshot(*cp, newSchedule(levels), now),
		CanMutate:  a.checker.HasMutationCapability(actor),
		ServerTime: now,
	}, nil
}

// History returns the most recent transition entries, newest first.
func (a *App) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.TimerTransition, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	transitions, err := a.repo.ListTransitions(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	return transitions, nil
}

func (a *App) snapshot(cp models.TimerCheckpoint, sched schedule, now time.Time) *Snapshot {
	snap := &Snapshot{
		SessionID:     cp.SessionID,
		State:         Compute(cp, now),
		LevelDuration: cp.LevelDuration,
		Started:       cp.Started(),
		ComputedAt:    now,
	}
	if l, ok := sched.level(cp.CurrentLevel); ok {
		snap.Blind = &l
	}
	if l, ok := sched.after(cp.CurrentLevel); ok {
		snap.NextBlind = &l
	}
	return snap
}

func actionPayload(action string, level int, by string, at time.Time) events.TimerActionPayload {
	return events.TimerActionPayload{Action: action, Level: level, PerformedBy: by, At: at}
}

func stampActor(m *events.Message, actorID string) {
	switch p := m.Payload.(type) {
	case events.TimerActionPayload:
		p.PerformedBy = actorID
		m.Payload = p
	case events.LevelChangedPayload:
		p.PerformedBy = actorID
		m.Payload = p
	}
}

// transitionMetadata records the frozen values the command started from.
func transitionMetadata(st State, extra map[string]any) json.RawMessage {
	md := map[string]any{
		"previous_status":  st.Status,
		"time_remaining":   st.TimeRemaining,
		"total_elapsed":    st.TotalElapsed,
		"elapsed_in_level": st.ElapsedInLevel,
	}
	for k, v := range extra {
		md[k] = v
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil
	}
	return b
}
