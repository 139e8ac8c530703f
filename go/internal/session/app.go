package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerleague/go/internal/apperr"
	"github.com/mcdev12/pokerleague/go/internal/auth"
	"github.com/mcdev12/pokerleague/go/internal/models"
)

// Repository defines what the session app layer needs from storage
type Repository interface {
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	ReplaceBlindLevels(ctx context.Context, sessionID uuid.UUID, levels []models.BlindLevel) error
	ListBlindLevels(ctx context.Context, sessionID uuid.UUID) ([]models.BlindLevel, error)
}

// TimerLifecycle creates and discards the session clock
type TimerLifecycle interface {
	Initialize(ctx context.Context, sessionID uuid.UUID) error
	Discard(ctx context.Context, sessionID uuid.UUID) error
}

// App handles session lifecycle logic
type App struct {
	repo    Repository
	timer   TimerLifecycle
	checker auth.Checker
	clock   clockwork.Clock
}

// NewApp creates a new session App
func NewApp(repo Repository, timer TimerLifecycle, checker auth.Checker, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:    repo,
		timer:   timer,
		checker: checker,
		clock:   clock,
	}
}

// CreateSession schedules a new session
func (a *App) CreateSession(ctx context.Context, actor auth.Actor, req CreateSessionRequest) (*models.Session, error) {
	if err := a.authorize(actor); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "name is required")
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	now := a.clock.Now()
	s := &models.Session{
		ID:           req.ID,
		TournamentID: req.TournamentID,
		Name:         req.Name,
		Status:       models.SessionStatusScheduled,
		ScheduledAt:  req.ScheduledAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.repo.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().Str("session_id", s.ID.String()).Str("name", s.Name).Msg("session created")
	return s, nil
}

// GetSession retrieves a session by ID
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListBlindLevels returns the session's blind schedule ordered by level
func (a *App) ListBlindLevels(ctx context.Context, id uuid.UUID) ([]models.BlindLevel, error) {
	levels, err := a.repo.ListBlindLevels(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list blind levels: %w", err)
	}
	return levels, nil
}

// Configure sets the field size and blind schedule before the session starts
func (a *App) Configure(ctx context.Context, actor auth.Actor, id uuid.UUID, req ConfigureSessionRequest) (*models.Session, error) {
	if err := a.authorize(actor); err != nil {
		return nil, err
	}
	if err := validateConfiguration(req); err != nil {
		return nil, err
	}

	s, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if err := validateStatusTransition(s.Status, models.SessionStatusConfigured); err != nil {
		return nil, err
	}

	levels := make([]models.BlindLevel, len(req.Levels))
	for i, l := range req.Levels {
		levels[i] = models.BlindLevel{
			SessionID:  id,
			Level:      l.Level,
			SmallBlind: l.SmallBlind,
			BigBlind:   l.BigBlind,
			Ante:       l.Ante,
			Duration:   l.Duration,
		}
	}
	if err := a.repo.ReplaceBlindLevels(ctx, id, levels); err != nil {
		return nil, fmt.Errorf("failed to store blind levels: %w", err)
	}

	s.Status = models.SessionStatusConfigured
	s.TotalPlayers = req.TotalPlayers
	s.UpdatedAt = a.clock.Now()
	if err := a.repo.UpdateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	log.Info().
		Str("session_id", id.String()).
		Int("total_players", s.TotalPlayers).
		Int("levels", len(levels)).
		Msg("session configured")
	return s, nil
}

// Start puts the session in progress and creates its paused clock
func (a *App) Start(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Session, error) {
	if err := a.authorize(actor); err != nil {
		return nil, err
	}
	s, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if err := validateStatusTransition(s.Status, models.SessionStatusInProgress); err != nil {
		return nil, err
	}

	if err := a.timer.Initialize(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to initialize timer: %w", err)
	}

	now := a.clock.Now()
	s.Status = models.SessionStatusInProgress
	s.StartedAt = &now
	s.UpdatedAt = now
	if err := a.repo.UpdateSession(ctx, s); err != nil {
		if derr := a.timer.Discard(ctx, id); derr != nil {
			log.Error().Err(derr).Str("session_id", id.String()).Msg("failed to discard timer after start failure")
		}
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	log.Info().Str("session_id", id.String()).Msg("session started")
	return s, nil
}

// Complete ends a session in progress
func (a *App) Complete(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Session, error) {
	return a.finish(ctx, actor, id, models.SessionStatusCompleted)
}

// Cancel ends a session that has not completed
func (a *App) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Session, error) {
	return a.finish(ctx, actor, id, models.SessionStatusCancelled)
}

func (a *App) finish(ctx context.Context, actor auth.Actor, id uuid.UUID, status models.SessionStatus) (*models.Session, error) {
	if err := a.authorize(actor); err != nil {
		return nil, err
	}
	s, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if err := validateStatusTransition(s.Status, status); err != nil {
		return nil, err
	}

	wasRunning := s.Status == models.SessionStatusInProgress
	now := a.clock.Now()
	s.Status = status
	s.CompletedAt = &now
	s.UpdatedAt = now
	if err := a.repo.UpdateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	// a leftover checkpoint is removed later by the sweeper
	if wasRunning {
		if err := a.timer.Discard(ctx, id); err != nil {
			log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to discard timer checkpoint")
		}
	}

	log.Info().Str("session_id", id.String()).Str("status", string(status)).Msg("session finished")
	return s, nil
}

// RequireInProgress returns the session when its live commands are reachable
func (a *App) RequireInProgress(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return NewGate(a.repo).RequireInProgress(ctx, id)
}

func (a *App) authorize(actor auth.Actor) error {
	if !a.checker.HasMutationCapability(actor) {
		return apperr.Wrap(apperr.ErrForbidden, "actor %q cannot manage sessions", actor.ID)
	}
	return nil
}

// Validation methods

// Validate checks the request the same way Configure does
func (r ConfigureSessionRequest) Validate() error {
	return validateConfiguration(r)
}

// validateConfiguration checks the field size and that levels run 1..N without gaps
func validateConfiguration(req ConfigureSessionRequest) error {
	if req.TotalPlayers < 2 {
		return apperr.Wrap(apperr.ErrInvalidArgument, "total_players must be at least 2, got %d", req.TotalPlayers)
	}
	if len(req.Levels) == 0 {
		return apperr.Wrap(apperr.ErrInvalidArgument, "at least one blind level is required")
	}

	levels := make([]BlindLevelInput, len(req.Levels))
	copy(levels, req.Levels)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	var errs []error
	for i, l := range levels {
		if l.Level != i+1 {
			errs = append(errs, fmt.Errorf("levels must be numbered 1..%d without gaps, found %d at position %d", len(levels), l.Level, i+1))
			break
		}
		if l.SmallBlind < 0 || l.BigBlind < l.SmallBlind || l.Ante < 0 {
			errs = append(errs, fmt.Errorf("level %d has invalid blinds %d/%d ante %d", l.Level, l.SmallBlind, l.BigBlind, l.Ante))
		}
		if l.Duration < 0 {
			errs = append(errs, fmt.Errorf("level %d has negative duration", l.Level))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

// validateStatusTransition validates if a status transition is allowed
func validateStatusTransition(current, next models.SessionStatus) error {
	allowedTransitions := map[models.SessionStatus][]models.SessionStatus{
		models.SessionStatusScheduled:  {models.SessionStatusConfigured, models.SessionStatusCancelled},
		models.SessionStatusConfigured: {models.SessionStatusConfigured, models.SessionStatusInProgress, models.SessionStatusCancelled},
		models.SessionStatusInProgress: {models.SessionStatusCompleted, models.SessionStatusCancelled},
		models.SessionStatusCompleted:  {},
		models.SessionStatusCancelled:  {},
	}

	allowedNext, exists := allowedTransitions[current]
	if !exists {
		return apperr.Wrap(apperr.ErrInvalidTransition, "unknown current status: %s", current)
	}
	for _, allowed := range allowedNext {
		if next == allowed {
			return nil
		}
	}
	return apperr.Wrap(apperr.ErrInvalidTransition, "session cannot move from %s to %s", current, next)
}
