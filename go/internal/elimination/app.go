package elimination

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerleague/go/internal/apperr"
	"github.com/mcdev12/pokerleague/go/internal/auth"
	"github.com/mcdev12/pokerleague/go/internal/events"
	"github.com/mcdev12/pokerleague/go/internal/models"
	"github.com/mcdev12/pokerleague/go/internal/notify"
	"github.com/mcdev12/pokerleague/go/internal/scoring"
)

// Repository defines what the ledger needs from storage
type Repository interface {
	// InsertElimination stores rec only while the session still holds
	// expectedCount records, returning apperr.ErrOutOfSequence otherwise.
	// A position 1 record also sets the session winner.
	InsertElimination(ctx context.Context, rec *models.EliminationRecord, expectedCount int) error
	GetElimination(ctx context.Context, id uuid.UUID) (*models.EliminationRecord, error)
	// ListEliminations returns the session's records, highest position first.
	ListEliminations(ctx context.Context, sessionID uuid.UUID) ([]models.EliminationRecord, error)
	// UpdateEliminationPlayers rewrites the player columns and keeps the
	// session winner in step for position 1.
	UpdateEliminationPlayers(ctx context.Context, rec *models.EliminationRecord) error
	// DeleteElimination removes rec if it still holds the lowest position,
	// returning apperr.ErrNotMostRecent otherwise. Position 1 clears the winner.
	DeleteElimination(ctx context.Context, rec *models.EliminationRecord) error
}

// PlayerDirectory resolves player identities for display
type PlayerDirectory interface {
	GetPlayers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Player, error)
}

// SessionGate exposes the session data the ledger depends on
type SessionGate interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	RequireInProgress(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// App handles elimination ledger logic
type App struct {
	repo       Repository
	players    PlayerDirectory
	sessions   SessionGate
	publisher  events.Publisher
	dispatcher notify.Dispatcher
	checker    auth.Checker
	clock      clockwork.Clock
}

// NewApp creates a new ledger App
func NewApp(
	repo Repository,
	players PlayerDirectory,
	sessions SessionGate,
	publisher events.Publisher,
	dispatcher notify.Dispatcher,
	checker auth.Checker,
	clock clockwork.Clock,
) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if publisher == nil {
		publisher = events.Discard
	}
	if dispatcher == nil {
		dispatcher = notify.LogDispatcher{}
	}
	return &App{
		repo:       repo,
		players:    players,
		sessions:   sessions,
		publisher:  publisher,
		dispatcher: dispatcher,
		checker:    checker,
		clock:      clock,
	}
}

// Register records the next knockout of a session and assigns its points.
func (a *App) Register(ctx context.Context, actor auth.Actor, sessionID uuid.UUID, req RegisterRequest) (*View, error) {
	if err := a.authorize(actor); err != nil {
		return nil, err
	}
	if req.EliminatedPlayerID == uuid.Nil {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "eliminated_player_id is required")
	}

	s, err := a.sessions.RequireInProgress(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	existing, err := a.repo.ListEliminations(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list eliminations: %w", err)
	}
	expected := s.TotalPlayers - len(existing)
	if expected < 1 {
		return nil, apperr.Wrap(apperr.ErrOutOfSequence, "all %d positions are already recorded", s.TotalPlayers)
	}
	if req.Position != expected {
		return nil, apperr.Wrap(apperr.ErrOutOfSequence, "next position is %d, got %d", expected, req.Position)
	}

	eliminator, err := normalizeEliminator(req.Position, req.EliminatedPlayerID, req.EliminatorPlayerID)
	if err != nil {
		return nil, err
	}
	if err := checkNotFinished(existing, uuid.Nil, req.EliminatedPlayerID); err != nil {
		return nil, err
	}
	names, err := a.resolve(ctx, req.EliminatedPlayerID, eliminator)
	if err != nil {
		return nil, err
	}

	points, err := scoring.Points(req.Position, s.TotalPlayers)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	rec := &models.EliminationRecord{
		ID:                 uuid.New(),
		SessionID:          sessionID,
		Position:           req.Position,
		Points:             points,
		EliminatedPlayerID: req.EliminatedPlayerID,
		EliminatorPlayerID: eliminator,
		EliminationTime:    now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := a.repo.InsertElimination(ctx, rec, len(existing)); err != nil {
		return nil, fmt.Errorf("failed to insert elimination: %w", err)
	}

	view := newView(*rec, names)
	a.notify(ctx, view)
	events.PublishAll(ctx, a.publisher, sessionID, events.Message{Type: events.TypeEliminationRecorded, Payload: view})

	log.Info().
		Str("session_id", sessionID.String()).
		Int("position", rec.Position).
		Int("points", rec.Points).
		Str("player", view.EliminatedPlayerName).
		Msg("elimination recorded")
	return view, nil
}

// Update reassigns the players of the most recent record.
func (a *App) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, req UpdateRequest) (*View, error) {
	if err := a.authorize(actor); err != nil {
		return nil, err
	}
	if req.Position != nil || req.Points != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "position and points are assigned at registration and cannot be changed")
	}
	if req.EliminatedPlayerID == nil && req.EliminatorPlayerID == nil {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "nothing to update")
	}

	rec, existing, err := a.latest(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *rec
	if req.EliminatedPlayerID != nil {
		if *req.EliminatedPlayerID == uuid.Nil {
			return nil, apperr.Wrap(apperr.ErrInvalidArgument, "eliminated_player_id cannot be empty")
		}
		updated.EliminatedPlayerID = *req.EliminatedPlayerID
	}
	// the winner record re-derives its eliminator from the winner
	var eliminator *uuid.UUID
	switch {
	case req.EliminatorPlayerID != nil && *req.EliminatorPlayerID != uuid.Nil:
		eliminator = req.EliminatorPlayerID
	case req.EliminatorPlayerID == nil && updated.Position != 1:
		eliminator = updated.EliminatorPlayerID
	}
	updated.EliminatorPlayerID, err = normalizeEliminator(updated.Position, updated.EliminatedPlayerID, eliminator)
	if err != nil {
		return nil, err
	}
	if err := checkNotFinished(existing, updated.ID, updated.EliminatedPlayerID); err != nil {
		return nil, err
	}
	names, err := a.resolve(ctx, updated.EliminatedPlayerID, updated.EliminatorPlayerID)
	if err != nil {
		return nil, err
	}

	updated.UpdatedAt = a.clock.Now()
	if err := a.repo.UpdateEliminationPlayers(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update elimination: %w", err)
	}

	view := newView(updated, names)
	events.PublishAll(ctx, a.publisher, updated.SessionID, events.Message{Type: events.TypeEliminationUpdated, Payload: view})

	log.Info().
		Str("session_id", updated.SessionID.String()).
		Str("elimination_id", id.String()).
		Int("position", updated.Position).
		Msg("elimination updated")
	return view, nil
}

// Delete undoes the most recent record. Deleting the winner record also
// clears the session winner.
func (a *App) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if err := a.authorize(actor); err != nil {
		return err
	}
	rec, _, err := a.latest(ctx, id)
	if err != nil {
		return err
	}
	if err := a.repo.DeleteElimination(ctx, rec); err != nil {
		return fmt.Errorf("failed to delete elimination: %w", err)
	}

	events.PublishAll(ctx, a.publisher, rec.SessionID, events.Message{
		Type: events.TypeEliminationDeleted,
		Payload: events.EliminationDeletedPayload{
			EliminationID: rec.ID.String(),
			Position:      rec.Position,
			WinnerCleared: rec.Position == 1,
		},
	})

	log.Info().
		Str("session_id", rec.SessionID.String()).
		Str("elimination_id", id.String()).
		Int("position", rec.Position).
		Msg("elimination deleted")
	return nil
}

// List returns the session's records with player names, highest position first.
func (a *App) List(ctx context.Context, sessionID uuid.UUID) ([]View, error) {
	if _, err := a.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	records, err := a.repo.ListEliminations(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list eliminations: %w", err)
	}
	names, err := a.lookup(ctx, records)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(records))
	for _, rec := range records {
		views = append(views, *newView(rec, names))
	}
	return views, nil
}

// Standings returns the points earned so far in a session, best first.
func (a *App) Standings(ctx context.Context, sessionID uuid.UUID) (*Standings, error) {
	s, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	views, err := a.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := &Standings{
		SessionID:        sessionID,
		TotalPlayers:     s.TotalPlayers,
		PlayersRemaining: s.TotalPlayers - len(views),
		WinnerPlayerID:   s.WinnerPlayerID,
		Results:          make([]Standing, 0, len(views)),
	}
	if out.PlayersRemaining > 0 {
		out.NextPosition = out.PlayersRemaining
	}
	if s.TotalPlayers > 0 {
		if out.ChampionTierPoints, err = scoring.WinnerPoints(s.TotalPlayers); err != nil {
			return nil, err
		}
		if out.PointsTable, err = scoring.Table(s.TotalPlayers); err != nil {
			return nil, err
		}
	}
	for _, v := range views {
		out.Results = append(out.Results, Standing{
			PlayerID:   v.EliminatedPlayerID,
			PlayerName: v.EliminatedPlayerName,
			Position:   v.Position,
			Points:     v.Points,
		})
	}
	sort.Slice(out.Results, func(i, j int) bool { return out.Results[i].Position < out.Results[j].Position })
	return out, nil
}

// latest loads a record and checks it holds its session's lowest position.
func (a *App) latest(ctx context.Context, id uuid.UUID) (*models.EliminationRecord, []models.EliminationRecord, error) {
	rec, err := a.repo.GetElimination(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get elimination: %w", err)
	}
	if _, err := a.sessions.RequireInProgress(ctx, rec.SessionID); err != nil {
		return nil, nil, err
	}
	existing, err := a.repo.ListEliminations(ctx, rec.SessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list eliminations: %w", err)
	}
	lowest := rec.Position
	for _, e := range existing {
		lowest = min(lowest, e.Position)
	}
	if rec.Position != lowest {
		return nil, nil, apperr.Wrap(apperr.ErrNotMostRecent,
			"position %d is not the latest elimination (latest is %d)", rec.Position, lowest)
	}
	return rec, existing, nil
}

func (a *App) authorize(actor auth.Actor) error {
	if !a.checker.HasMutationCapability(actor) {
		return apperr.Wrap(apperr.ErrForbidden, "actor %q cannot record eliminations", actor.ID)
	}
	return nil
}

// resolve loads the names of the given players, failing on unknown ids.
func (a *App) resolve(ctx context.Context, eliminated uuid.UUID, eliminator *uuid.UUID) (map[uuid.UUID]models.Player, error) {
	ids := []uuid.UUID{eliminated}
	if eliminator != nil && *eliminator != eliminated {
		ids = append(ids, *eliminator)
	}
	players, err := a.players.GetPlayers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load players: %w", err)
	}
	for _, id := range ids {
		if _, ok := players[id]; !ok {
			return nil, apperr.Wrap(apperr.ErrNotFound, "player %s", id)
		}
	}
	return players, nil
}

func (a *App) lookup(ctx context.Context, records []models.EliminationRecord) (map[uuid.UUID]models.Player, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, r := range records {
		add(r.EliminatedPlayerID)
		if r.EliminatorPlayerID != nil {
			add(*r.EliminatorPlayerID)
		}
	}
	if len(ids) == 0 {
		return map[uuid.UUID]models.Player{}, nil
	}
	players, err := a.players.GetPlayers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load players: %w", err)
	}
	return players, nil
}

func (a *App) notify(ctx context.Context, v *View) {
	n := notify.Build(notify.Notification{
		SessionID:      v.SessionID,
		Position:       v.Position,
		Points:         v.Points,
		PlayerID:       v.EliminatedPlayerID,
		PlayerName:     v.EliminatedPlayerName,
		EliminatorName: v.EliminatorPlayerName,
		At:             v.EliminationTime,
	})
	if err := a.dispatcher.Dispatch(ctx, n); err != nil {
		log.Error().
			Err(err).
			Str("session_id", v.SessionID.String()).
			Int("position", v.Position).
			Msg("failed to dispatch elimination notification")
	}
}

// normalizeEliminator makes the winner record self-referential and keeps
// knockouts from naming the eliminated player as their own eliminator.
func normalizeEliminator(position int, eliminated uuid.UUID, eliminator *uuid.UUID) (*uuid.UUID, error) {
	if position == 1 {
		if eliminator != nil && *eliminator != eliminated {
			return nil, apperr.Wrap(apperr.ErrInvalidArgument, "the winner record cannot name another eliminator")
		}
		id := eliminated
		return &id, nil
	}
	if eliminator == nil {
		return nil, nil
	}
	if *eliminator == eliminated {
		return nil, apperr.Wrap(apperr.ErrInvalidArgument, "a player cannot eliminate themselves")
	}
	id := *eliminator
	return &id, nil
}

// checkNotFinished rejects a player who already holds another position.
func checkNotFinished(existing []models.EliminationRecord, skip, player uuid.UUID) error {
	for _, e := range existing {
		if e.ID != skip && e.EliminatedPlayerID == player {
			return apperr.Wrap(apperr.ErrInvalidArgument, "player %s already finished in position %d", player, e.Position)
		}
	}
	return nil
}

func newView(rec models.EliminationRecord, players map[uuid.UUID]models.Player) *View {
	v := &View{
		EliminationRecord:    rec,
		Kind:                 rec.Kind(),
		EliminatedPlayerName: players[rec.EliminatedPlayerID].Name,
	}
	if rec.EliminatorPlayerID != nil {
		v.EliminatorPlayerName = players[*rec.EliminatorPlayerID].Name
	}
	return v
}
